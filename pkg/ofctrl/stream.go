package ofctrl

import (
	"encoding/binary"
	"io"
	"net"
	"sync"

	"antrea.io/libOpenflow/common"
	"antrea.io/libOpenflow/openflow13"
	"antrea.io/libOpenflow/util"
	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"
)

const (
	ofpHeaderLen   = 8
	outboundQueLen = 64
)

// ErrStreamClosed is returned when sending on a closed stream
var ErrStreamClosed = errors.New("openflow message stream closed")

type MessageStream struct {
	conn net.Conn
	// OpenFlow Version
	Version uint8
	// Channel on which to publish connection errors
	Error chan error
	// Channel on which to publish inbound messages
	Inbound chan util.Message
	// Channel on which to receive outbound messages
	Outbound chan util.Message

	closeOnce sync.Once
	done      chan struct{}
}

// Returns a pointer to a new MessageStream. Used to parse
// OpenFlow messages from conn.
func NewMessageStream(conn net.Conn) *MessageStream {
	m := &MessageStream{
		conn:     conn,
		Error:    make(chan error, 1),
		Inbound:  make(chan util.Message, 1),
		Outbound: make(chan util.Message, outboundQueLen),
		done:     make(chan struct{}),
	}

	go m.outbound()
	go m.inbound()

	return m
}

func (m *MessageStream) GetAddr() net.Addr {
	return m.conn.RemoteAddr()
}

// Done is closed once the stream shuts down
func (m *MessageStream) Done() <-chan struct{} {
	return m.done
}

// Close shuts the stream down. Safe to call more than once.
func (m *MessageStream) Close() {
	m.closeOnce.Do(func() {
		log.Debugf("Closing OpenFlow message stream to %v", m.conn.RemoteAddr())
		close(m.done)
		m.conn.Close()
	})
}

// Send queues a message for the switch. Never waits for the switch.
func (m *MessageStream) Send(msg util.Message) error {
	select {
	case <-m.done:
		return ErrStreamClosed
	default:
	}

	select {
	case m.Outbound <- msg:
		return nil
	case <-m.done:
		return ErrStreamClosed
	}
}

// report publishes the first connection error and shuts the stream
func (m *MessageStream) report(err error) {
	select {
	case <-m.done:
		// already closed by us, not a connection error
	default:
		select {
		case m.Error <- err:
		default:
		}
	}
	m.Close()
}

// Listen for Outbound messages and write them to conn
func (m *MessageStream) outbound() {
	for {
		select {
		case <-m.done:
			return
		case msg := <-m.Outbound:
			data, err := msg.MarshalBinary()
			if err != nil {
				log.Errorf("Error encoding message %+v. Err: %v", msg, err)
				continue
			}

			if _, err := m.conn.Write(data); err != nil {
				log.Warnf("OutboundError: %v", err)
				m.report(err)
				return
			}

			log.Debugf("Sent %d bytes to %v", len(data), m.conn.RemoteAddr())
		}
	}
}

// Read framed messages from conn, parse and publish them in order
func (m *MessageStream) inbound() {
	hdr := make([]byte, ofpHeaderLen)

	for {
		if _, err := io.ReadFull(m.conn, hdr); err != nil {
			log.Debugf("InboundError: %v", err)
			m.report(err)
			return
		}

		msgLen := int(binary.BigEndian.Uint16(hdr[2:]))
		if msgLen < ofpHeaderLen {
			err := errors.Errorf("invalid openflow message length %d", msgLen)
			log.Warnf("InboundError: %v", err)
			m.report(err)
			return
		}

		buf := make([]byte, msgLen)
		copy(buf, hdr)
		if _, err := io.ReadFull(m.conn, buf[ofpHeaderLen:]); err != nil {
			log.Debugf("InboundError: %v", err)
			m.report(err)
			return
		}

		msg, err := Parse(buf)
		// Log all message parsing errors.
		if err != nil {
			log.Warnf("Error parsing openflow message: %v", err)
			continue
		}
		if msg == nil {
			continue
		}

		select {
		case m.Inbound <- msg:
		case <-m.done:
			return
		}
	}
}

// Parse decodes a single framed message. Hellos of any version are
// decoded so version negotiation can happen; everything else must be 1.3.
func Parse(b []byte) (message util.Message, err error) {
	if len(b) < ofpHeaderLen {
		return nil, errors.Errorf("short openflow message (%d bytes)", len(b))
	}

	if b[1] == openflow13.Type_Hello {
		hello := new(common.Hello)
		if err := hello.UnmarshalBinary(b); err != nil {
			return nil, errors.Wrap(err, "hello")
		}
		return hello, nil
	}

	switch b[0] {
	case openflow13.VERSION:
		message, err = openflow13.Parse(b)
	default:
		err = errors.Errorf("unsupported openflow version %d (type %d)", b[0], b[1])
	}

	return
}
