// Package ofctrl implements a small openflow 1.3 controller: it accepts
// switch connections, negotiates the version, and hands packet-ins to the
// application. Flow rules and packet outs are sent fire and forget.
package ofctrl

import (
	"context"
	"net"
	"sync"
	"time"

	"antrea.io/libOpenflow/common"
	"antrea.io/libOpenflow/openflow13"
	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"
)

// Note: Command to make ovs connect to controller:
// ovs-vsctl set-controller <bridge-name> tcp:<ip-addr>:<port>
// E.g.    ovs-vsctl set-controller ovsbr0 tcp:127.0.0.1:6633

// To enable openflow1.3 support in OVS:
// ovs-vsctl set bridge <bridge-name> protocols=OpenFlow13

// Time allowed for hello/features exchange
const handshakeTimeout = 3 * time.Second

// AppInterface is implemented by the application driving the switches.
// All calls for one switch come from the same goroutine, in order.
type AppInterface interface {
	SwitchConnected(sw *OFSwitch)
	SwitchDisconnected(sw *OFSwitch)
	PacketRcvd(sw *OFSwitch, pkt *openflow13.PacketIn)
}

type Controller struct {
	app      AppInterface
	mutex    sync.Mutex
	switchDb map[DPID]*OFSwitch
}

// Create a new controller
func NewController(app AppInterface) *Controller {
	c := new(Controller)

	// Save the handler
	c.app = app
	c.switchDb = make(map[DPID]*OFSwitch)

	return c
}

// Listen on an address until ctx is cancelled
func (c *Controller) Listen(ctx context.Context, addr string) error {
	sock, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}

	return c.Serve(ctx, sock)
}

// Serve accepts switch connections on sock until ctx is cancelled
func (c *Controller) Serve(ctx context.Context, sock net.Listener) error {
	go func() {
		<-ctx.Done()
		sock.Close()
	}()

	log.Infof("Listening for connections on %v", sock.Addr())
	for {
		conn, err := sock.Accept()
		if err != nil {
			if ctx.Err() != nil {
				c.disconnectAll()
				return nil
			}
			return errors.Wrap(err, "accept")
		}
		go c.handleConnection(conn)
	}
}

// Switch returns the connected switch with dpid, or nil
func (c *Controller) Switch(dpid DPID) *OFSwitch {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.switchDb[dpid]
}

func (c *Controller) addSwitch(sw *OFSwitch) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if old := c.switchDb[sw.dpid]; old != nil {
		log.Warnf("Switch %v reconnected, dropping old connection", sw.dpid)
		old.Disconnect()
	}
	c.switchDb[sw.dpid] = sw
}

func (c *Controller) removeSwitch(sw *OFSwitch) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.switchDb[sw.dpid] == sw {
		delete(c.switchDb, sw.dpid)
	}
}

func (c *Controller) disconnectAll() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for _, sw := range c.switchDb {
		sw.Disconnect()
	}
}

func (c *Controller) handleConnection(conn net.Conn) {
	stream := NewMessageStream(conn)

	log.Infof("New connection from %v", conn.RemoteAddr())

	// Send ofp 1.3 Hello by default
	h, err := common.NewHello(openflow13.VERSION)
	if err != nil {
		log.Errorf("Error building hello. Err: %v", err)
		stream.Close()
		return
	}
	stream.Send(h)

	timeout := time.After(handshakeTimeout)

	for {
		select {
		case msg := <-stream.Inbound:
			switch m := msg.(type) {
			// A Hello message of the appropriate type
			// completes version negotiation. If version
			// types are incompatable the connection is severed.
			case *common.Hello:
				if m.Header.Version < openflow13.VERSION {
					log.Warnf("Received Openflow %d Hello message from %v. This controller requires openflow 1.3",
						m.Header.Version, conn.RemoteAddr())
					stream.Close()
					return
				}

				log.Infof("Received Openflow 1.3 Hello message from %v", conn.RemoteAddr())
				stream.Version = openflow13.VERSION
				stream.Send(openflow13.NewFeaturesRequest())

			// After a vaild FeaturesReply has been received we
			// have all the information we need. Create a new
			// switch object and notify applications.
			case *openflow13.SwitchFeatures:
				log.Infof("Received ofp1.3 Switch feature response: %+v", *m)

				// Let switch instance handle all future messages..
				c.runSwitch(stream, m.DPID)
				return

			// An error message may indicate a version mismatch. We
			// disconnect if an error occurs this early.
			case *openflow13.ErrorMsg:
				log.Warnf("Received ofp1.3 error msg: %+v", *m)
				stream.Close()
				return
			}
		case err := <-stream.Error:
			// The connection has been shutdown.
			log.Infof("Connection from %v closed during handshake: %v", conn.RemoteAddr(), err)
			return
		case <-timeout:
			// This shouldn't happen. If it does, both the controller
			// and switch are no longer communicating. The TCPConn is
			// still established though.
			log.Warnf("Connection from %v timed out.", conn.RemoteAddr())
			stream.Close()
			return
		}
	}
}
