package l2switch

import (
	"sort"
	"sync"
	"time"

	"antrea.io/libOpenflow/openflow13"
	"github.com/shaleman/polswitch/pkg/ofctrl"
	"github.com/shaleman/polswitch/pkg/topoPolicy"

	log "github.com/sirupsen/logrus"
)

// SwitchInfo describes a managed switch
type SwitchInfo struct {
	DPID              ofctrl.DPID   `json:"dpid"`
	RemoteAddr        string        `json:"remoteAddr"`
	ConnectTime       time.Time     `json:"connectTime"`
	HoldDownExpired   bool          `json:"holdDownExpired"`
	HoldDownRemaining time.Duration `json:"holdDownRemaining"`
	LearnedMacs       int           `json:"learnedMacs"`
}

// Dispatcher binds an engine to every switch that connects, except those
// on the ignore list. It implements ofctrl.AppInterface.
type Dispatcher struct {
	policy *topoPolicy.Policy
	opts   Options
	ignore map[ofctrl.DPID]bool

	mutex   sync.RWMutex
	engines map[ofctrl.DPID]*Engine
}

// NewDispatcher creates a dispatcher. All engines share policy and opts.
func NewDispatcher(policy *topoPolicy.Policy, opts Options, ignore []ofctrl.DPID) *Dispatcher {
	d := &Dispatcher{
		policy:  policy,
		opts:    opts,
		ignore:  make(map[ofctrl.DPID]bool, len(ignore)),
		engines: make(map[ofctrl.DPID]*Engine),
	}

	for _, dpid := range ignore {
		d.ignore[dpid] = true
	}

	return d
}

// Handle switch connected event
func (d *Dispatcher) SwitchConnected(sw *ofctrl.OFSwitch) {
	d.connect(sw)
}

// Handle switch disconnect event
func (d *Dispatcher) SwitchDisconnected(sw *ofctrl.OFSwitch) {
	d.disconnect(sw)
}

// Receive a packet from the switch.
func (d *Dispatcher) PacketRcvd(sw *ofctrl.OFSwitch, pkt *openflow13.PacketIn) {
	engine := d.engineFor(sw)
	if engine == nil {
		return
	}

	ev, err := DecodePacketIn(pkt)
	if err != nil {
		log.Warnf("%v: dropping undecodable packet-in. Err: %v", sw.DPID(), err)
		return
	}

	engine.HandlePacket(ev)
}

func (d *Dispatcher) connect(sw SwitchHandle) *Engine {
	dpid := sw.DPID()
	if d.ignore[dpid] {
		log.Debugf("Ignoring connection %v", dpid)
		return nil
	}

	log.Infof("Connection %v", dpid)

	if err := sw.InstallTableMiss(); err != nil {
		log.Warnf("%v: error installing table miss flow. Err: %v", dpid, err)
	}

	engine := NewEngine(sw, d.policy, d.opts)

	d.mutex.Lock()
	if _, found := d.engines[dpid]; !found {
		switchesConnected.Inc()
	}
	d.engines[dpid] = engine
	d.mutex.Unlock()

	return engine
}

func (d *Dispatcher) disconnect(sw SwitchHandle) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	engine := d.engines[sw.DPID()]
	if engine == nil || engine.sw != sw {
		return
	}

	log.Infof("Disconnected %v, releasing %d learned addresses", sw.DPID(), engine.macTable.Len())
	delete(d.engines, sw.DPID())
	switchesConnected.Dec()
}

// engineFor returns the engine bound to this very connection
func (d *Dispatcher) engineFor(sw SwitchHandle) *Engine {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	engine := d.engines[sw.DPID()]
	if engine == nil || engine.sw != sw {
		return nil
	}
	return engine
}

// Engine returns the engine of a managed switch, or nil
func (d *Dispatcher) Engine(dpid ofctrl.DPID) *Engine {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	return d.engines[dpid]
}

// Switches lists the managed switches ordered by dpid
func (d *Dispatcher) Switches() []SwitchInfo {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	list := make([]SwitchInfo, 0, len(d.engines))
	for dpid, engine := range d.engines {
		info := SwitchInfo{
			DPID:              dpid,
			ConnectTime:       engine.sw.ConnectTime(),
			HoldDownExpired:   engine.HoldDownExpired(),
			HoldDownRemaining: engine.HoldDownRemaining(),
			LearnedMacs:       engine.macTable.Len(),
		}
		if addr := engine.sw.RemoteAddr(); addr != nil {
			info.RemoteAddr = addr.String()
		}
		list = append(list, info)
	}

	sort.Slice(list, func(i, j int) bool { return list[i].DPID < list[j].DPID })

	return list
}

// Policy returns the policy shared by all engines
func (d *Dispatcher) Policy() *topoPolicy.Policy {
	return d.policy
}
