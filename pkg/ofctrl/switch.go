package ofctrl

import (
	"net"
	"time"

	"antrea.io/libOpenflow/common"
	"antrea.io/libOpenflow/openflow13"
	"antrea.io/libOpenflow/util"

	log "github.com/sirupsen/logrus"
)

// Interval between keepalive echo requests
const echoInterval = 5 * time.Second

type OFSwitch struct {
	stream      *MessageStream
	dpid        DPID
	ctrler      *Controller
	connectTime time.Time
}

// Builds and populates a Switch struct, notifies the app and then
// processes messages from the switch until the stream goes down.
func (c *Controller) runSwitch(stream *MessageStream, dpid net.HardwareAddr) {
	s := &OFSwitch{
		stream:      stream,
		dpid:        DPIDFromHardwareAddr(dpid),
		ctrler:      c,
		connectTime: time.Now(),
	}

	log.Infof("Openflow Connection for switch: %v", s.dpid)

	c.addSwitch(s)

	// Send connection up callback
	c.app.SwitchConnected(s)

	go s.keepalive()

	// Main receive loop for the switch
	s.receive()

	c.removeSwitch(s)
	c.app.SwitchDisconnected(s)
}

// Returns the dpid of Switch s.
func (s *OFSwitch) DPID() DPID {
	return s.dpid
}

// ConnectTime returns when the switch completed the handshake
func (s *OFSwitch) ConnectTime() time.Time {
	return s.connectTime
}

// RemoteAddr returns the switch end of the connection
func (s *OFSwitch) RemoteAddr() net.Addr {
	return s.stream.GetAddr()
}

// Sends an OpenFlow message to this Switch.
func (s *OFSwitch) Send(req util.Message) error {
	return s.stream.Send(req)
}

// Disconnect closes the connection to the switch
func (s *OFSwitch) Disconnect() {
	s.stream.Close()
}

// InstallFlow sends a flow mod for the rule. When the frame that triggered
// the rule was not buffered by the switch it is forwarded by a packet out
// with the same actions.
func (s *OFSwitch) InstallFlow(rule *FlowRule) error {
	flowMod := rule.flowMod()
	log.Debugf("Sending flowmod: %+v", flowMod)

	if err := s.Send(flowMod); err != nil {
		return err
	}

	if pktOut := rule.packetOut(); pktOut != nil {
		return s.SendPacketOut(pktOut)
	}

	return nil
}

// InstallTableMiss sends every frame that misses all rules to the
// controller. Openflow 1.3 switches drop table misses by default.
func (s *OFSwitch) InstallTableMiss() error {
	rule := &FlowRule{
		Priority: FLOW_MISS_PRIORITY,
		BufferId: NoBuffer,
		Actions:  []Output{ControllerOutput()},
	}

	return s.InstallFlow(rule)
}

// SendPacketOut sends a packet out to the switch
func (s *OFSwitch) SendPacketOut(pktOut *PacketOut) error {
	msg := pktOut.message()
	log.Debugf("Sending packet out: %+v", msg)

	return s.Send(msg)
}

// Receive loop for each Switch.
func (s *OFSwitch) receive() {
	for {
		select {
		case msg := <-s.stream.Inbound:
			// New message has been received from message stream.
			s.handleMessage(msg)
		case err := <-s.stream.Error:
			// Message stream has been disconnected.
			log.Infof("Switch %v disconnected. Err: %v", s.dpid, err)
			return
		case <-s.stream.Done():
			log.Infof("Switch %v connection closed", s.dpid)
			return
		}
	}
}

func (s *OFSwitch) handleMessage(msg util.Message) {
	switch t := msg.(type) {
	case *common.Header:
		switch t.Type {
		case openflow13.Type_EchoRequest:
			// Send echo reply
			res := openflow13.NewEchoReply()
			res.Xid = t.Xid
			s.Send(res)
		case openflow13.Type_EchoReply:
			log.Debugf("Echo reply from switch %v", s.dpid)
		default:
			log.Debugf("Ignoring message type %d from switch %v", t.Type, s.dpid)
		}
	case *openflow13.PacketIn:
		s.ctrler.app.PacketRcvd(s, t)
	case *openflow13.ErrorMsg:
		log.Warnf("Received error from switch %v: type %d code %d", s.dpid, t.Type, t.Code)
	case *openflow13.PortStatus:
		log.Debugf("Port status from switch %v: %+v", s.dpid, t)
	default:
		log.Debugf("Ignoring message %T from switch %v", msg, s.dpid)
	}
}

// keepalive sends echo requests until the stream closes
func (s *OFSwitch) keepalive() {
	ticker := time.NewTicker(echoInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Send(openflow13.NewEchoRequest()); err != nil {
				return
			}
		case <-s.stream.Done():
			return
		}
	}
}
