package topoPolicy

const (
	denyHosts12Server6 = "communication between hosts 1/2 and server 6 is not permitted"
	denyHosts34Server5 = "communication between hosts 3/4 and server 5 is not permitted"
	denyHosts          = "communication between hosts is not permitted"
	denyCrossServer    = "communication between hosts 1/2 and server 6 or hosts 3/4 and server 5 is not permitted"
)

// Default returns the built-in tables for the lab topology.
//
//	h1 (2), h2 (4)   -> s1 -> 17        s1: 16 from s2, 22 towards h1/h2
//	h3 (6), h4 (8)   -> s2 -> 15        s2: 14 towards h3/h4
//	h5 (10), h6 (12) -> s5 -> 19        s5: 18 towards h5/h6
//	s3: 20 in, 21 back to s1 or 23 on to s4
//	s4: 24 in, 13 on
func Default() *Policy {
	p := &Policy{
		Pairs: []Pair{
			{"1", "5"}, {"2", "5"},
			{"3", "6"}, {"4", "6"},
			{"5", "1"}, {"5", "2"},
			{"6", "3"}, {"6", "4"},
		},
		Denials: []DenyRule{
			{Src: []Class{"1", "2"}, Dst: []Class{"6"}, Reason: denyHosts12Server6},
			{Src: []Class{"6"}, Dst: []Class{"1", "2"}, Reason: denyHosts12Server6},
			{Src: []Class{"3", "4"}, Dst: []Class{"5"}, Reason: denyHosts34Server5},
			{Src: []Class{"5"}, Dst: []Class{"3", "4"}, Reason: denyHosts34Server5},
		},
		DefaultDeny: denyHosts,
		Egress: []EgressRule{
			// host facing ports
			{InPorts: []uint32{2, 4}, Src: []Class{"1", "2"}, OutPorts: []uint32{17}},
			{InPorts: []uint32{6, 8}, Src: []Class{"3", "4"}, OutPorts: []uint32{15}},
			{InPorts: []uint32{10, 12}, Src: []Class{"5", "6"}, OutPorts: []uint32{19}},

			// inter switch links
			{InPorts: []uint32{16}, Src: []Class{"3", "4"}, OutPorts: []uint32{17}},
			{InPorts: []uint32{20}, Dst: []Class{"1", "2"}, OutPorts: []uint32{21}},
			{InPorts: []uint32{20}, OutPorts: []uint32{23}},
			{InPorts: []uint32{24}, OutPorts: []uint32{13}},

			// delivery to hosts and servers
			{InPorts: []uint32{22}, Dst: []Class{"1"}, OutPorts: []uint32{2}},
			{InPorts: []uint32{22}, Dst: []Class{"2"}, OutPorts: []uint32{4}},
			{InPorts: []uint32{14}, Dst: []Class{"3"}, OutPorts: []uint32{6}},
			{InPorts: []uint32{14}, Dst: []Class{"4"}, OutPorts: []uint32{8}},
			{InPorts: []uint32{18}, Src: []Class{"1", "2"}, Dst: []Class{"5"}, OutPorts: []uint32{10}},
			{InPorts: []uint32{18}, Src: []Class{"3", "4"}, Dst: []Class{"6"}, OutPorts: []uint32{12}},
			{InPorts: []uint32{18}, Deny: denyCrossServer},
		},
	}

	p.compile()

	return p
}
