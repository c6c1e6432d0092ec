// Package l2switch implements the forwarding decision engine: a learning
// switch that floods unknown and group destinations, and installs exact
// match rules for known unicast flows only when the topology policy permits
// the endpoints to talk.
//
// For each packet from the switch:
//  1. Use source address and switch port to update the address/port table
//  2. Not transparent and either LLDP or a bridge filtered destination?
//     Drop the packet, don't forward link-local traffic (LLDP, 802.1x)
//  3. Destination multicast? Flood the packet
//  4. Port for destination unknown? Flood the packet
//  5. Known unicast: build a rule for the flow
//  6. Not ARP or TCP? Drop the packet and similar ones for a while
//  7. Pairing refused by the policy? Drop the packet and similar ones for a while
//  8. Output on the ports the policy's egress table names, install the rule
//     and send the packet out the same ports
//
// Flooding is gated by the hold-down timer.
package l2switch

import (
	"net"
	"time"

	"github.com/shaleman/polswitch/pkg/holdDown"
	"github.com/shaleman/polswitch/pkg/macTable"
	"github.com/shaleman/polswitch/pkg/ofctrl"
	"github.com/shaleman/polswitch/pkg/topoPolicy"

	log "github.com/sirupsen/logrus"
)

// Timeouts in seconds
const (
	flowIdleTimeout     = 10
	flowHardTimeout     = 30
	denyTimeout         = 1
	samePortDropTimeout = 10
)

// SwitchHandle is the part of a switch connection the engine uses
type SwitchHandle interface {
	DPID() ofctrl.DPID
	ConnectTime() time.Time
	RemoteAddr() net.Addr
	InstallTableMiss() error
	InstallFlow(rule *ofctrl.FlowRule) error
	SendPacketOut(pktOut *ofctrl.PacketOut) error
}

// Options are fixed at startup and shared by all engines
type Options struct {
	// Transparent disables the link-local filter
	Transparent bool
	// HoldDown suppresses flooding for this long after a switch connects
	HoldDown time.Duration
	// LoopGuard enables the same port check on the known unicast path
	LoopGuard bool
	// Clock defaults to time.Now
	Clock func() time.Time
}

// Engine is the forwarding brain of a single switch connection.
// HandlePacket must not be called concurrently.
type Engine struct {
	sw       SwitchHandle
	opts     Options
	policy   *topoPolicy.Policy
	macTable *macTable.Table
	holdDown *holdDown.Timer
}

// NewEngine binds a new engine to a switch
func NewEngine(sw SwitchHandle, policy *topoPolicy.Policy, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	e := &Engine{
		sw:       sw,
		opts:     opts,
		policy:   policy,
		macTable: macTable.NewTable(),
		holdDown: holdDown.New(sw.ConnectTime(), opts.HoldDown, opts.Clock),
	}
	return e
}

// MacTable returns the engine's learning table
func (e *Engine) MacTable() *macTable.Table {
	return e.macTable
}

// HoldDownExpired reports whether flooding is enabled. Safe to call from
// any goroutine.
func (e *Engine) HoldDownExpired() bool {
	return e.holdDown.Expired()
}

// HoldDownRemaining returns how long flooding stays suppressed. Safe to
// call from any goroutine.
func (e *Engine) HoldDownRemaining() time.Duration {
	return e.holdDown.Remaining()
}

// HandlePacket runs one packet event to a terminal decision and sends the
// resulting rule and packet out to the switch
func (e *Engine) HandlePacket(ev *PacketEvent) Decision {
	decision := e.decide(ev)
	countDecision(&decision)

	return decision
}

func (e *Engine) decide(ev *PacketEvent) Decision {
	dpid := e.sw.DPID()

	// 1
	e.macTable.Record(ev.Src, ev.InPort)

	// 2
	if !e.opts.Transparent && (ev.IsLLDP || IsBridgeFiltered(ev.Dst)) {
		log.Debugf("%v: dropping link-local frame %v -> %v on port %d", dpid, ev.Src, ev.Dst, ev.InPort)
		return e.drop(ev, reasonLinkLocal, "")
	}

	// 3
	if IsMulticast(ev.Dst) {
		return e.flood(ev, reasonMulticast)
	}

	// 4
	dstPort, known := e.macTable.Lookup(ev.Dst)
	if !known {
		log.Debugf("%v: port for %v unknown -- flooding", dpid, ev.Dst)
		return e.flood(ev, reasonUnknownDst)
	}

	// 5
	if e.opts.LoopGuard && sameportGuard(dstPort, ev.InPort) {
		log.Warnf("%v: same port for packet from %v -> %v on port %d. Drop.", dpid, ev.Src, ev.Dst, dstPort)
		return e.dropFor(ev, samePortDropTimeout, reasonSamePort, "")
	}

	rule := &ofctrl.FlowRule{
		Match:       e.flowMatch(ev, true),
		Priority:    ofctrl.FLOW_MATCH_PRIORITY,
		IdleTimeout: flowIdleTimeout,
		HardTimeout: flowHardTimeout,
		BufferId:    ev.BufferId,
		Data:        ev.Data,
	}

	log.Infof("%v: %v -> %v arrived on port %d", dpid, ev.Src, ev.Dst, ev.InPort)

	// 6
	if !ev.IsARP && !ev.IsTCP {
		log.Infof("%v: only ARP and TCP are permitted, dropping %v -> %v (ethertype 0x%04x)",
			dpid, ev.Src, ev.Dst, ev.Ethertype)
		return e.dropFor(ev, denyTimeout, reasonProtocol, "only ARP and TCP are permitted")
	}

	// 7
	srcClass := topoPolicy.ClassOf(ev.Src)
	dstClass := topoPolicy.ClassOf(ev.Dst)
	if !e.policy.ValidPairing(srcClass, dstClass) {
		msg := e.policy.DenyReason(srcClass, dstClass)
		log.Infof("%v: %s (%v -> %v)", dpid, msg, ev.Src, ev.Dst)
		return e.dropFor(ev, denyTimeout, reasonPairing, msg)
	}

	// 8
	verdict := e.policy.EgressFor(ev.InPort, srcClass, dstClass)
	if verdict.Deny != "" {
		log.Infof("%v: %s (%v -> %v on port %d)", dpid, verdict.Deny, ev.Src, ev.Dst, ev.InPort)
		return e.dropFor(ev, denyTimeout, reasonEgressDeny, verdict.Deny)
	}

	for _, port := range verdict.OutPorts {
		log.Infof("%v: output port %d for %v -> %v", dpid, port, ev.Src, ev.Dst)
		rule.AddOutput(ofctrl.NewOutputPort(port))
	}

	decision := Decision{
		Verdict: VerdictForwarded,
		Reason:  reasonPolicy,
		Rule:    rule,
	}

	// The egress table has no entry for this port/class combination. The
	// rule goes in without actions so the switch drops the flow until it
	// times out. Needs checking against the deployed topology.
	if len(rule.Actions) == 0 {
		log.Warnf("%v: no egress port for %v -> %v on port %d, installing rule without actions",
			dpid, ev.Src, ev.Dst, ev.InPort)
		decision.Unmapped = true
	}

	if err := e.sw.InstallFlow(rule); err != nil {
		log.Warnf("%v: error installing flow %+v. Err: %v", dpid, rule.Match, err)
	}

	return decision
}

// sameportGuard is the loop check of a plain learning switch: a frame
// whose destination was learned on its own ingress port would be sent
// straight back. Only evaluated when Options.LoopGuard is set and never on
// the egress path chosen by the policy.
func sameportGuard(dstPort, inPort uint32) bool {
	return dstPort == inPort
}

// flowMatch builds the match for the frame's flow. Negative rules leave
// the ingress port wildcarded.
func (e *Engine) flowMatch(ev *PacketEvent, withInPort bool) ofctrl.FlowMatch {
	match := ofctrl.FlowMatch{
		MacSa:     ev.Src,
		MacDa:     ev.Dst,
		Ethertype: ev.Ethertype,
		IpProto:   ev.IpProto,
	}
	if withInPort {
		match.InputPort = ev.InPort
	}

	return match
}

// flood sends the frame out all ports but the ingress port. While the
// hold-down is in effect the frame is only released.
func (e *Engine) flood(ev *PacketEvent, reason string) Decision {
	pktOut := &ofctrl.PacketOut{
		BufferId: ev.BufferId,
		InPort:   ev.InPort,
		Data:     ev.Data,
	}

	held := !e.holdDown.Allow(e.sw.DPID())
	if !held {
		pktOut.Actions = []ofctrl.Output{ofctrl.FloodOutput()}
	} else {
		log.Debugf("%v: holding down flood of %v -> %v", e.sw.DPID(), ev.Src, ev.Dst)
	}

	if err := e.sw.SendPacketOut(pktOut); err != nil {
		log.Warnf("%v: error sending packet out. Err: %v", e.sw.DPID(), err)
	}

	return Decision{
		Verdict:   VerdictFlooded,
		Reason:    reason,
		PacketOut: pktOut,
		FloodHeld: held,
	}
}

// drop drops this packet only. A buffered frame is released so the switch
// can free the buffer.
func (e *Engine) drop(ev *PacketEvent, reason, msg string) Decision {
	decision := Decision{Verdict: VerdictDropped, Reason: reason, Message: msg}

	if ev.BufferId == ofctrl.NoBuffer {
		return decision
	}

	pktOut := &ofctrl.PacketOut{
		BufferId: ev.BufferId,
		InPort:   ev.InPort,
	}
	if err := e.sw.SendPacketOut(pktOut); err != nil {
		log.Warnf("%v: error sending packet out. Err: %v", e.sw.DPID(), err)
	}
	decision.PacketOut = pktOut

	return decision
}

// dropFor drops this packet and installs a rule without actions so similar
// ones are dropped by the switch for timeout seconds
func (e *Engine) dropFor(ev *PacketEvent, timeout uint16, reason, msg string) Decision {
	rule := &ofctrl.FlowRule{
		Match:       e.flowMatch(ev, false),
		Priority:    ofctrl.FLOW_MATCH_PRIORITY,
		IdleTimeout: timeout,
		HardTimeout: timeout,
		BufferId:    ev.BufferId,
	}

	if err := e.sw.InstallFlow(rule); err != nil {
		log.Warnf("%v: error installing drop flow %+v. Err: %v", e.sw.DPID(), rule.Match, err)
	}

	return Decision{Verdict: VerdictDropped, Reason: reason, Message: msg, Rule: rule}
}
