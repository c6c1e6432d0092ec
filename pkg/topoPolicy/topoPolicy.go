// Package topoPolicy implements the topology policy overlay.
//
// The overlay is deployment specific wiring for a fixed multi switch topology
// of four hosts (classes 1-4) and two servers (classes 5 and 6). Hosts 1/2
// may only talk to server 5 and hosts 3/4 only to server 6. The egress table
// pins the path every permitted frame takes through the switches.
//
// All tables are plain data. A Policy is immutable once compiled and may be
// shared by any number of engines without locking.
package topoPolicy

import (
	"net"
	"strings"
)

// Class is the identity bucket of an address: the last character of its
// canonical text form
type Class string

// Pair is a permitted <source class, destination class> combination
type Pair struct {
	Src Class `yaml:"src" json:"src"`
	Dst Class `yaml:"dst" json:"dst"`
}

// DenyRule picks the message logged when a pairing is refused
type DenyRule struct {
	Src    []Class `yaml:"src" json:"src"`
	Dst    []Class `yaml:"dst" json:"dst"`
	Reason string  `yaml:"reason" json:"reason"`
}

// EgressRule maps an ingress port (and optionally the classes) to the
// ports a frame must leave on. Empty class lists match any class.
// A rule carries either OutPorts or Deny, never both.
type EgressRule struct {
	InPorts  []uint32 `yaml:"inPorts" json:"inPorts"`
	Src      []Class  `yaml:"src,omitempty" json:"src,omitempty"`
	Dst      []Class  `yaml:"dst,omitempty" json:"dst,omitempty"`
	OutPorts []uint32 `yaml:"outPorts,omitempty" json:"outPorts,omitempty"`
	Deny     string   `yaml:"deny,omitempty" json:"deny,omitempty"`
}

// Policy holds the overlay tables
type Policy struct {
	Pairs       []Pair       `yaml:"pairs" json:"pairs"`
	Denials     []DenyRule   `yaml:"denials" json:"denials"`
	DefaultDeny string       `yaml:"defaultDeny" json:"defaultDeny"`
	Egress      []EgressRule `yaml:"egress" json:"egress"`

	pairSet  map[Pair]bool
	egressDb map[uint32][]*EgressRule // rules per ingress port, table order
}

// Verdict is the result of an egress lookup
type Verdict struct {
	Matched  bool     // an egress rule matched
	OutPorts []uint32 // ports to output on
	Deny     string   // non empty when the matched rule refuses the frame
}

// ClassOf returns the class of an address
func ClassOf(addr net.HardwareAddr) Class {
	str := strings.ToLower(addr.String())
	if str == "" {
		return ""
	}

	return Class(str[len(str)-1:])
}

func hasClass(list []Class, c Class) bool {
	if len(list) == 0 {
		return true
	}
	for _, elem := range list {
		if elem == c {
			return true
		}
	}
	return false
}

// compile builds the lookup indexes. Must be called once the tables are final.
func (p *Policy) compile() {
	p.pairSet = make(map[Pair]bool, len(p.Pairs))
	for _, pair := range p.Pairs {
		p.pairSet[pair] = true
	}

	p.egressDb = make(map[uint32][]*EgressRule)
	for i := range p.Egress {
		rule := &p.Egress[i]
		for _, port := range rule.InPorts {
			p.egressDb[port] = append(p.egressDb[port], rule)
		}
	}
}

// ValidPairing reports whether src may send to dst
func (p *Policy) ValidPairing(src, dst Class) bool {
	return p.pairSet[Pair{Src: src, Dst: dst}]
}

// DenyReason returns the message for a refused pairing
func (p *Policy) DenyReason(src, dst Class) string {
	for _, rule := range p.Denials {
		if hasClass(rule.Src, src) && hasClass(rule.Dst, dst) {
			return rule.Reason
		}
	}

	return p.DefaultDeny
}

// EgressFor looks up the ports a frame arriving on inPort must leave on.
// First matching rule wins.
func (p *Policy) EgressFor(inPort uint32, src, dst Class) Verdict {
	for _, rule := range p.egressDb[inPort] {
		if !hasClass(rule.Src, src) || !hasClass(rule.Dst, dst) {
			continue
		}

		if rule.Deny != "" {
			return Verdict{Matched: true, Deny: rule.Deny}
		}

		ports := make([]uint32, len(rule.OutPorts))
		copy(ports, rule.OutPorts)
		return Verdict{Matched: true, OutPorts: ports}
	}

	return Verdict{}
}
