package ofctrl

import (
	"encoding/binary"
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DPID is an openflow datapath id
type DPID uint64

// String formats the dpid as eight colon separated hex bytes
func (d DPID) String() string {
	buf := make(net.HardwareAddr, 8)
	binary.BigEndian.PutUint64(buf, uint64(d))
	return buf.String()
}

// MarshalText lets dpids be used as json keys and values
func (d DPID) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DPIDFromHardwareAddr converts the dpid carried in a features reply
func DPIDFromHardwareAddr(addr net.HardwareAddr) DPID {
	var buf [8]byte

	// right align shorter ids
	if len(addr) > 8 {
		addr = addr[len(addr)-8:]
	}
	copy(buf[8-len(addr):], addr)

	return DPID(binary.BigEndian.Uint64(buf[:]))
}

// ParseDPID accepts "00-00-00-00-00-01", "00:00:00:00:00:00:00:01",
// "0x1" or a plain decimal number
func ParseDPID(str string) (DPID, error) {
	s := strings.ToLower(strings.TrimSpace(str))
	if s == "" {
		return 0, errors.New("empty dpid")
	}

	var val uint64
	var err error

	switch {
	case strings.HasPrefix(s, "0x"):
		val, err = strconv.ParseUint(s[2:], 16, 64)
	case strings.ContainsAny(s, ":-"):
		hexStr := strings.NewReplacer(":", "", "-", "").Replace(s)
		if len(hexStr) > 16 {
			return 0, errors.Errorf("dpid %q is longer than 8 bytes", str)
		}
		val, err = strconv.ParseUint(hexStr, 16, 64)
	default:
		val, err = strconv.ParseUint(s, 10, 64)
	}

	if err != nil {
		return 0, errors.Wrapf(err, "invalid dpid %q", str)
	}

	return DPID(val), nil
}
