package ofctrl

// This file implements the flow rule and packet out model and translates
// them to openflow 1.3 messages

import (
	"net"

	"antrea.io/libOpenflow/openflow13"
	"antrea.io/libOpenflow/util"

	log "github.com/sirupsen/logrus"
)

// NoBuffer is the buffer id of a frame the switch did not buffer
const NoBuffer = 0xffffffff

const ethTypeIPv4 = 0x0800

const FLOW_MATCH_PRIORITY = 100 // Priority for all match flows
const FLOW_MISS_PRIORITY = 0    // priority for table miss flow

// Small subset of openflow fields we currently support.
// Zero values are wildcards.
type FlowMatch struct {
	InputPort uint32           `json:"inPort,omitempty"`
	MacSa     net.HardwareAddr `json:"macSa,omitempty"`
	MacDa     net.HardwareAddr `json:"macDa,omitempty"`
	Ethertype uint16           `json:"ethertype,omitempty"`
	IpProto   uint8            `json:"ipProto,omitempty"` // only applied to IPv4
}

// FlowRule is a match plus ordered output actions. An empty action list
// drops matching frames in the switch.
type FlowRule struct {
	Match       FlowMatch `json:"match"`
	Priority    uint16    `json:"priority"`
	IdleTimeout uint16    `json:"idleTimeout"`
	HardTimeout uint16    `json:"hardTimeout"`
	BufferId    uint32    `json:"bufferId"`
	Actions     []Output  `json:"actions"`
	Data        []byte    `json:"-"` // frame to forward when BufferId is NoBuffer
}

// PacketOut sends or releases a single frame
type PacketOut struct {
	BufferId uint32   `json:"bufferId"`
	InPort   uint32   `json:"inPort"`
	Actions  []Output `json:"actions"`
	Data     []byte   `json:"-"`
}

// AddOutput appends an output action
func (self *FlowRule) AddOutput(out Output) {
	self.Actions = append(self.Actions, out)
}

// Translate our match fields into openflow 1.3 match fields
func (self *FlowMatch) xlateMatch() openflow13.Match {
	ofMatch := openflow13.NewMatch()

	if self.InputPort != 0 {
		inportField := openflow13.NewInPortField(self.InputPort)
		ofMatch.AddField(*inportField)
	}

	if self.MacDa != nil {
		macDaField := openflow13.NewEthDstField(self.MacDa, nil)
		ofMatch.AddField(*macDaField)
	}

	if self.MacSa != nil {
		macSaField := openflow13.NewEthSrcField(self.MacSa, nil)
		ofMatch.AddField(*macSaField)
	}

	if self.Ethertype != 0 {
		etypeField := openflow13.NewEthTypeField(self.Ethertype)
		ofMatch.AddField(*etypeField)
	}

	// ip_proto has eth_type=0x0800 as prerequisite
	if self.Ethertype == ethTypeIPv4 && self.IpProto != 0 {
		protoField := openflow13.NewIpProtoField(self.IpProto)
		ofMatch.AddField(*protoField)
	}

	return *ofMatch
}

func applyActions(outputs []Output) *openflow13.InstrActions {
	instr := openflow13.NewInstrApplyActions()

	for _, out := range outputs {
		act := out.GetOutAction()
		if act == nil {
			log.Errorf("Unknown output type %q", out.OutputType)
			continue
		}
		instr.AddAction(act, false)
	}

	return instr
}

// flowMod builds the OFPFC_ADD message for the rule
func (self *FlowRule) flowMod() *openflow13.FlowMod {
	flowMod := openflow13.NewFlowMod()
	flowMod.TableId = 0
	flowMod.Command = openflow13.FC_ADD
	flowMod.Priority = self.Priority
	flowMod.IdleTimeout = self.IdleTimeout
	flowMod.HardTimeout = self.HardTimeout
	flowMod.BufferId = self.BufferId
	flowMod.Match = self.Match.xlateMatch()

	// No instruction at all means drop
	if len(self.Actions) != 0 {
		flowMod.AddInstruction(applyActions(self.Actions))
	}

	return flowMod
}

// packetOut builds the packet out forwarding an unbuffered frame by the
// rule's actions. Returns nil when there is nothing to forward.
func (self *FlowRule) packetOut() *PacketOut {
	if self.BufferId != NoBuffer || len(self.Data) == 0 {
		return nil
	}

	return &PacketOut{
		BufferId: NoBuffer,
		InPort:   self.Match.InputPort,
		Actions:  self.Actions,
		Data:     self.Data,
	}
}

func (self *PacketOut) message() *openflow13.PacketOut {
	pktOut := openflow13.NewPacketOut()
	pktOut.BufferId = self.BufferId
	if self.InPort != 0 {
		pktOut.InPort = self.InPort
	}

	for _, out := range self.Actions {
		if act := out.GetOutAction(); act != nil {
			pktOut.AddAction(act)
		}
	}

	// data is only carried when the switch has not buffered the frame
	if self.BufferId == NoBuffer && len(self.Data) != 0 {
		pktOut.Data = util.NewBuffer(self.Data)
	}

	return pktOut
}
