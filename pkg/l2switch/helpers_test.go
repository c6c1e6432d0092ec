package l2switch

import (
	"net"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/shaleman/polswitch/pkg/ofctrl"
	"github.com/stretchr/testify/require"
)

// fakeSwitch records everything the engine sends
type fakeSwitch struct {
	dpid        ofctrl.DPID
	connectTime time.Time
	addr        net.Addr
	tableMiss   int
	flows       []*ofctrl.FlowRule
	pktOuts     []*ofctrl.PacketOut
}

func newFakeSwitch(dpid ofctrl.DPID, connectTime time.Time) *fakeSwitch {
	return &fakeSwitch{dpid: dpid, connectTime: connectTime}
}

func (f *fakeSwitch) DPID() ofctrl.DPID { return f.dpid }

func (f *fakeSwitch) ConnectTime() time.Time { return f.connectTime }

func (f *fakeSwitch) RemoteAddr() net.Addr { return f.addr }

func (f *fakeSwitch) InstallTableMiss() error {
	f.tableMiss++
	return nil
}

func (f *fakeSwitch) InstallFlow(rule *ofctrl.FlowRule) error {
	f.flows = append(f.flows, rule)
	return nil
}

func (f *fakeSwitch) SendPacketOut(pktOut *ofctrl.PacketOut) error {
	f.pktOuts = append(f.pktOuts, pktOut)
	return nil
}

func (f *fakeSwitch) reset() {
	f.flows = nil
	f.pktOuts = nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func mac(t *testing.T, s string) net.HardwareAddr {
	t.Helper()
	addr, err := net.ParseMAC(s)
	require.NoError(t, err)
	return addr
}

// host returns the lab address of host/server n
func host(t *testing.T, n int) net.HardwareAddr {
	t.Helper()
	return net.HardwareAddr{0, 0, 0, 0, 0, byte(n)}
}

func serialize(t *testing.T, l ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, l...))
	return buf.Bytes()
}

func arpFrame(t *testing.T, src, dst net.HardwareAddr) []byte {
	eth := &layers.Ethernet{SrcMAC: src, DstMAC: dst, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPReply,
		SourceHwAddress:   src,
		SourceProtAddress: []byte{10, 0, 0, src[5]},
		DstHwAddress:      dst,
		DstProtAddress:    []byte{10, 0, 0, dst[5]},
	}
	return serialize(t, eth, arp)
}

func ipv4Frame(t *testing.T, src, dst net.HardwareAddr, l4 gopacket.SerializableLayer, proto layers.IPProtocol) []byte {
	eth := &layers.Ethernet{SrcMAC: src, DstMAC: dst, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.IP{10, 0, 0, src[5]},
		DstIP:    net.IP{10, 0, 0, dst[5]},
	}

	switch l := l4.(type) {
	case *layers.TCP:
		l.SetNetworkLayerForChecksum(ip)
	case *layers.UDP:
		l.SetNetworkLayerForChecksum(ip)
	}

	return serialize(t, eth, ip, l4, gopacket.Payload([]byte("hello")))
}

func tcpFrame(t *testing.T, src, dst net.HardwareAddr) []byte {
	return ipv4Frame(t, src, dst, &layers.TCP{SrcPort: 40000, DstPort: 80, SYN: true, Window: 1024}, layers.IPProtocolTCP)
}

func udpFrame(t *testing.T, src, dst net.HardwareAddr) []byte {
	return ipv4Frame(t, src, dst, &layers.UDP{SrcPort: 40000, DstPort: 53}, layers.IPProtocolUDP)
}

func lldpFrame(t *testing.T, src net.HardwareAddr) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       net.HardwareAddr{0x01, 0x80, 0xc2, 0x00, 0x00, 0x0e},
		EthernetType: layers.EthernetTypeLinkLayerDiscovery,
	}
	return serialize(t, eth, gopacket.Payload(make([]byte, 46)))
}

// event decodes a frame into a packet event
func event(t *testing.T, frame []byte, inPort, bufferId uint32) *PacketEvent {
	t.Helper()
	ev, err := DecodeFrame(frame, inPort, bufferId)
	require.NoError(t, err)
	return ev
}
