package l2switch

import (
	"github.com/shaleman/polswitch/pkg/ofctrl"
)

// Verdict is the terminal state of a packet event
type Verdict string

const (
	VerdictDropped   Verdict = "dropped"
	VerdictFlooded   Verdict = "flooded"
	VerdictForwarded Verdict = "forwarded"
)

// Decision reasons, also used as metric labels
const (
	reasonLinkLocal  = "link_local"
	reasonMulticast  = "multicast"
	reasonUnknownDst = "unknown_destination"
	reasonSamePort   = "same_port"
	reasonProtocol   = "protocol_not_permitted"
	reasonPairing    = "pairing_denied"
	reasonEgressDeny = "egress_denied"
	reasonPolicy     = "policy"
)

// Decision is what the engine did with a packet event
type Decision struct {
	Verdict   Verdict
	Reason    string
	Message   string            // deny message, if any
	Rule      *ofctrl.FlowRule  // rule installed, if any
	PacketOut *ofctrl.PacketOut // packet out sent, if any
	FloodHeld bool              // flood suppressed by the hold-down
	Unmapped  bool              // forwarded without any egress port
}
