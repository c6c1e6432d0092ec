package l2switch

import (
	"net"

	"antrea.io/libOpenflow/openflow13"
	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/pkg/errors"
)

// PacketEvent is one frame punted by a switch, already classified
type PacketEvent struct {
	Src       net.HardwareAddr
	Dst       net.HardwareAddr
	Ethertype uint16
	IpProto   uint8 // zero unless IPv4
	InPort    uint32
	BufferId  uint32 // ofctrl.NoBuffer when the switch kept no copy

	IsLLDP bool
	IsARP  bool
	IsTCP  bool

	Data []byte
}

// bridge filtered destinations: 01:80:c2:00:00:00 - 01:80:c2:00:00:0f
var bridgeFilteredPrefix = []byte{0x01, 0x80, 0xc2, 0x00, 0x00}

// IsBridgeFiltered reports whether a bridge must never forward to addr
// (802.1D reserved group addresses such as STP, LACP and 802.1X)
func IsBridgeFiltered(addr net.HardwareAddr) bool {
	if len(addr) != 6 {
		return false
	}
	for i, b := range bridgeFilteredPrefix {
		if addr[i] != b {
			return false
		}
	}
	return addr[5] <= 0x0f
}

// IsMulticast is true for group addresses, broadcast included
func IsMulticast(addr net.HardwareAddr) bool {
	return len(addr) > 0 && addr[0]&0x01 != 0
}

// DecodeFrame classifies a raw ethernet frame received on inPort
func DecodeFrame(data []byte, inPort, bufferId uint32) (*PacketEvent, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})

	ethLayer := packet.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		if errLayer := packet.ErrorLayer(); errLayer != nil {
			return nil, errors.Wrap(errLayer.Error(), "decode ethernet")
		}
		return nil, errors.New("not an ethernet frame")
	}
	eth := ethLayer.(*layers.Ethernet)

	ev := &PacketEvent{
		Src:       eth.SrcMAC,
		Dst:       eth.DstMAC,
		Ethertype: uint16(eth.EthernetType),
		InPort:    inPort,
		BufferId:  bufferId,
		Data:      data,
	}

	if dot1q, ok := packet.Layer(layers.LayerTypeDot1Q).(*layers.Dot1Q); ok {
		ev.Ethertype = uint16(dot1q.Type)
	}

	if ip4, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok {
		ev.IpProto = uint8(ip4.Protocol)
	}

	ev.IsLLDP = ev.Ethertype == uint16(layers.EthernetTypeLinkLayerDiscovery)
	ev.IsARP = packet.Layer(layers.LayerTypeARP) != nil
	ev.IsTCP = packet.Layer(layers.LayerTypeTCP) != nil

	return ev, nil
}

// inPort returns the in_port carried in the packet-in match
func inPort(pkt *openflow13.PacketIn) (uint32, bool) {
	for _, field := range pkt.Match.Fields {
		if field.Field != openflow13.OXM_FIELD_IN_PORT {
			continue
		}
		if port, ok := field.Value.(*openflow13.InPortField); ok {
			return port.InPort, true
		}
	}
	return 0, false
}

// DecodePacketIn turns a packet-in into a PacketEvent
func DecodePacketIn(pkt *openflow13.PacketIn) (*PacketEvent, error) {
	port, ok := inPort(pkt)
	if !ok {
		return nil, errors.New("packet-in without in_port")
	}

	data, err := pkt.Data.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "packet-in frame")
	}

	return DecodeFrame(data, port, pkt.BufferId)
}
