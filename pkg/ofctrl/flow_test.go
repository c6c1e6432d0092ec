package ofctrl

import (
	"net"
	"testing"

	"antrea.io/libOpenflow/openflow13"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outputPorts(t *testing.T, instr openflow13.Instruction) []uint32 {
	t.Helper()
	actions, ok := instr.(*openflow13.InstrActions)
	require.True(t, ok)

	var ports []uint32
	for _, act := range actions.Actions {
		out, ok := act.(*openflow13.ActionOutput)
		require.True(t, ok)
		ports = append(ports, out.Port)
	}
	return ports
}

func TestFlowModTranslation(t *testing.T) {
	src, _ := net.ParseMAC("00:00:00:00:00:03")
	dst, _ := net.ParseMAC("00:00:00:00:00:06")

	rule := &FlowRule{
		Match:       FlowMatch{InputPort: 6, MacSa: src, MacDa: dst, Ethertype: 0x0800, IpProto: 6},
		Priority:    FLOW_MATCH_PRIORITY,
		IdleTimeout: 10,
		HardTimeout: 30,
		BufferId:    NoBuffer,
	}
	rule.AddOutput(NewOutputPort(15))
	rule.AddOutput(NewOutputPort(16))

	flowMod := rule.flowMod()
	assert.Equal(t, uint8(openflow13.FC_ADD), flowMod.Command)
	assert.Equal(t, uint16(FLOW_MATCH_PRIORITY), flowMod.Priority)
	assert.Equal(t, uint32(NoBuffer), flowMod.BufferId)

	fields := map[uint8]bool{}
	for _, f := range flowMod.Match.Fields {
		fields[f.Field] = true
	}
	assert.Equal(t, map[uint8]bool{
		openflow13.OXM_FIELD_IN_PORT:  true,
		openflow13.OXM_FIELD_ETH_DST:  true,
		openflow13.OXM_FIELD_ETH_SRC:  true,
		openflow13.OXM_FIELD_ETH_TYPE: true,
		openflow13.OXM_FIELD_IP_PROTO: true,
	}, fields)

	require.Len(t, flowMod.Instructions, 1)
	assert.Equal(t, []uint32{15, 16}, outputPorts(t, flowMod.Instructions[0]))
}

func TestDropRuleHasNoInstructions(t *testing.T) {
	rule := &FlowRule{
		Match:       FlowMatch{Ethertype: 0x0806},
		IdleTimeout: 1,
		HardTimeout: 1,
		BufferId:    NoBuffer,
	}

	flowMod := rule.flowMod()
	assert.Empty(t, flowMod.Instructions)
	require.Len(t, flowMod.Match.Fields, 1)
	assert.Nil(t, rule.packetOut())
}

func TestIpProtoNeedsIPv4(t *testing.T) {
	m := FlowMatch{Ethertype: 0x0806, IpProto: 6}
	match := m.xlateMatch()

	assert.Len(t, match.Fields, 1)
}

func TestUnbufferedRuleForwardsFrame(t *testing.T) {
	rule := &FlowRule{
		Match:    FlowMatch{InputPort: 22},
		BufferId: NoBuffer,
		Data:     []byte{1, 2, 3},
	}
	rule.AddOutput(NewOutputPort(2))

	pktOut := rule.packetOut()
	require.NotNil(t, pktOut)
	assert.Equal(t, uint32(22), pktOut.InPort)
	assert.Equal(t, []Output{NewOutputPort(2)}, pktOut.Actions)

	msg := pktOut.message()
	assert.Equal(t, uint32(NoBuffer), msg.BufferId)
	assert.Equal(t, uint32(22), msg.InPort)
	assert.Len(t, msg.Actions, 1)
	assert.NotNil(t, msg.Data)

	// buffered frames are released by the flow mod itself
	rule.BufferId = 5
	assert.Nil(t, rule.packetOut())
}

func TestPacketOutFlood(t *testing.T) {
	pktOut := &PacketOut{BufferId: 9, InPort: 3, Actions: []Output{FloodOutput()}, Data: []byte{1}}

	msg := pktOut.message()
	assert.Equal(t, uint32(9), msg.BufferId)
	require.Len(t, msg.Actions, 1)
	assert.Equal(t, uint32(openflow13.P_FLOOD), msg.Actions[0].(*openflow13.ActionOutput).Port)
	assert.Nil(t, msg.Data)
}

func TestOutputString(t *testing.T) {
	assert.Equal(t, "flood", FloodOutput().String())
	assert.Equal(t, "output:17", NewOutputPort(17).String())
	assert.True(t, FloodOutput().IsFlood())
	assert.False(t, NewOutputPort(1).IsFlood())
}

func TestDPID(t *testing.T) {
	tests := []struct {
		in   string
		want DPID
	}{
		{"00-00-00-00-00-01", 1},
		{"00:00:00:00:00:00:00:1f", 31},
		{"0x10", 16},
		{"42", 42},
		{" 00-00-00-00-01-00 ", 256},
	}
	for _, tt := range tests {
		got, err := ParseDPID(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "xyz", "00:00:00:00:00:00:00:00:01", "0xzz"} {
		_, err := ParseDPID(bad)
		assert.Error(t, err, bad)
	}

	assert.Equal(t, "00:00:00:00:00:00:00:1f", DPID(31).String())
	assert.Equal(t, DPID(3), DPIDFromHardwareAddr(net.HardwareAddr{0, 0, 0, 0, 0, 3}))
	assert.Equal(t, DPID(0x0102030405060708), DPIDFromHardwareAddr(net.HardwareAddr{1, 2, 3, 4, 5, 6, 7, 8}))

	txt, err := DPID(1).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "00:00:00:00:00:00:00:01", string(txt))
}

func TestTableMissRule(t *testing.T) {
	rule := &FlowRule{Priority: FLOW_MISS_PRIORITY, BufferId: NoBuffer, Actions: []Output{ControllerOutput()}}

	flowMod := rule.flowMod()
	assert.Empty(t, flowMod.Match.Fields)
	assert.Equal(t, uint16(0), flowMod.Priority)
	require.Len(t, flowMod.Instructions, 1)

	actions := flowMod.Instructions[0].(*openflow13.InstrActions).Actions
	require.Len(t, actions, 1)
	out := actions[0].(*openflow13.ActionOutput)
	assert.Equal(t, uint32(openflow13.P_CONTROLLER), out.Port)
	assert.Equal(t, uint16(openflow13.OFPCML_NO_BUFFER), out.MaxLen)
	assert.Equal(t, "controller", ControllerOutput().String())
}
