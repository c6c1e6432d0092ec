package l2switch

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"antrea.io/libOpenflow/common"
	"antrea.io/libOpenflow/openflow13"
	"antrea.io/libOpenflow/util"
	"github.com/shaleman/polswitch/pkg/ofctrl"
	"github.com/shaleman/polswitch/pkg/topoPolicy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// packetIn wraps a frame the way a switch punts it. inPort 0 leaves the
// match empty.
func packetIn(t *testing.T, frame []byte, inPort, bufferId uint32) *openflow13.PacketIn {
	t.Helper()
	pkt := openflow13.NewPacketIn()
	pkt.BufferId = bufferId
	if inPort != 0 {
		pkt.Match.AddField(*openflow13.NewInPortField(inPort))
	}
	require.NoError(t, pkt.Data.UnmarshalBinary(frame))

	return pkt
}

func TestDecodePacketIn(t *testing.T) {
	h1, h5 := host(t, 1), host(t, 5)

	ev, err := DecodePacketIn(packetIn(t, tcpFrame(t, h1, h5), 2, 33))
	require.NoError(t, err)
	assert.Equal(t, h1, ev.Src)
	assert.Equal(t, h5, ev.Dst)
	assert.Equal(t, uint32(2), ev.InPort)
	assert.Equal(t, uint32(33), ev.BufferId)
	assert.Equal(t, uint16(0x0800), ev.Ethertype)
	assert.Equal(t, uint8(6), ev.IpProto)
	assert.True(t, ev.IsTCP)
	assert.False(t, ev.IsARP)

	ev, err = DecodePacketIn(packetIn(t, arpFrame(t, h5, h1), 22, ofctrl.NoBuffer))
	require.NoError(t, err)
	assert.Equal(t, uint32(22), ev.InPort)
	assert.Equal(t, uint32(ofctrl.NoBuffer), ev.BufferId)
	assert.True(t, ev.IsARP)
	assert.NotEmpty(t, ev.Data)
}

func TestDecodePacketInWithoutInPort(t *testing.T) {
	_, err := DecodePacketIn(packetIn(t, arpFrame(t, host(t, 1), host(t, 5)), 0, ofctrl.NoBuffer))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without in_port")
}

// wireSwitch is the switch end of a controller connection
type wireSwitch struct {
	t    *testing.T
	conn net.Conn
}

func (w *wireSwitch) read() util.Message {
	w.t.Helper()
	w.conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	hdr := make([]byte, 8)
	_, err := io.ReadFull(w.conn, hdr)
	require.NoError(w.t, err)

	buf := make([]byte, binary.BigEndian.Uint16(hdr[2:]))
	copy(buf, hdr)
	_, err = io.ReadFull(w.conn, buf[8:])
	require.NoError(w.t, err)

	msg, err := ofctrl.Parse(buf)
	require.NoError(w.t, err)
	return msg
}

// readSkipEcho returns the next message that is not a keepalive
func (w *wireSwitch) readSkipEcho() util.Message {
	w.t.Helper()
	for {
		msg := w.read()
		if hdr, ok := msg.(*common.Header); ok && hdr.Type == openflow13.Type_EchoRequest {
			continue
		}
		return msg
	}
}

func (w *wireSwitch) write(msg util.Message) {
	w.t.Helper()
	data, err := msg.MarshalBinary()
	require.NoError(w.t, err)

	w.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err = w.conn.Write(data)
	require.NoError(w.t, err)
}

func outputPorts(t *testing.T, actions []openflow13.Action) []uint32 {
	t.Helper()
	ports := make([]uint32, 0, len(actions))
	for _, act := range actions {
		out, ok := act.(*openflow13.ActionOutput)
		require.True(t, ok, "expected output action, got %T", act)
		ports = append(ports, out.Port)
	}
	return ports
}

func flowModPorts(t *testing.T, flowMod *openflow13.FlowMod) []uint32 {
	t.Helper()
	require.Len(t, flowMod.Instructions, 1)
	instr, ok := flowMod.Instructions[0].(*openflow13.InstrActions)
	require.True(t, ok)
	return outputPorts(t, instr.Actions)
}

func TestDispatcherOverWire(t *testing.T) {
	d := NewDispatcher(topoPolicy.Default(), Options{}, nil)
	ctrler := ofctrl.NewController(d)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrler.Serve(ctx, listener) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	conn, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	sw := &wireSwitch{t: t, conn: conn}

	// handshake
	_, ok := sw.read().(*common.Hello)
	require.True(t, ok, "expected hello")
	hello, err := common.NewHello(openflow13.VERSION)
	require.NoError(t, err)
	sw.write(hello)

	req, ok := sw.read().(*common.Header)
	require.True(t, ok, "expected features request")
	assert.Equal(t, uint8(openflow13.Type_FeaturesRequest), req.Type)

	features := openflow13.NewFeaturesReply()
	features.DPID = net.HardwareAddr{0, 0, 0, 0, 0, 0, 0, 3}
	sw.write(features)

	// table miss goes in first
	tableMiss, ok := sw.readSkipEcho().(*openflow13.FlowMod)
	require.True(t, ok, "expected table miss flow mod")
	assert.Equal(t, uint16(ofctrl.FLOW_MISS_PRIORITY), tableMiss.Priority)
	assert.Equal(t, []uint32{openflow13.P_CONTROLLER}, flowModPorts(t, tableMiss))

	h1, h5 := host(t, 1), host(t, 5)

	// broadcast from server 5 is learned and flooded
	sw.write(packetIn(t, arpFrame(t, h5, mac(t, "ff:ff:ff:ff:ff:ff")), 10, ofctrl.NoBuffer))
	flood, ok := sw.readSkipEcho().(*openflow13.PacketOut)
	require.True(t, ok, "expected flood packet out")
	assert.Equal(t, []uint32{openflow13.P_FLOOD}, outputPorts(t, flood.Actions))
	assert.Equal(t, uint32(10), flood.InPort)

	// host 1 to server 5 is installed towards port 17 and the frame follows
	sw.write(packetIn(t, tcpFrame(t, h1, h5), 2, ofctrl.NoBuffer))
	flowMod, ok := sw.readSkipEcho().(*openflow13.FlowMod)
	require.True(t, ok, "expected flow mod")
	assert.Equal(t, uint16(ofctrl.FLOW_MATCH_PRIORITY), flowMod.Priority)
	assert.Equal(t, uint16(10), flowMod.IdleTimeout)
	assert.Equal(t, uint16(30), flowMod.HardTimeout)
	assert.Equal(t, []uint32{17}, flowModPorts(t, flowMod))

	pktOut, ok := sw.readSkipEcho().(*openflow13.PacketOut)
	require.True(t, ok, "expected packet out")
	assert.Equal(t, []uint32{17}, outputPorts(t, pktOut.Actions))

	engine := d.Engine(3)
	require.NotNil(t, engine)
	port, found := engine.MacTable().Lookup(h5)
	assert.True(t, found)
	assert.Equal(t, uint32(10), port)

	list := d.Switches()
	require.Len(t, list, 1)
	assert.Equal(t, conn.LocalAddr().String(), list[0].RemoteAddr)
	assert.Equal(t, 2, list[0].LearnedMacs)
}
