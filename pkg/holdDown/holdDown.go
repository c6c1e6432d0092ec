// Package holdDown implements the flood hold-down timer. Flooding is
// suppressed for a configured delay after a switch connects so the
// controller does not storm a topology that is still converging.
package holdDown

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/shaleman/polswitch/pkg/libfsm"

	log "github.com/sirupsen/logrus"
)

const (
	stateHolding = "holding"
	stateExpired = "expired"

	eventFlood = "flood"
)

var errHoldingDown = errors.New("flood hold-down in effect")

// Timer is the hold-down state of one switch connection. Allow must only
// be called by the switch's engine; Expired and Remaining are safe from
// any goroutine.
type Timer struct {
	connectTime time.Time
	delay       time.Duration
	now         func() time.Time
	fsm         *libfsm.Fsm

	// mirrors the fsm state for readers on other goroutines
	expired atomic.Bool
}

// New creates a timer for a connection made at connectTime. A nil clock
// uses time.Now.
func New(connectTime time.Time, delay time.Duration, clock func() time.Time) *Timer {
	if clock == nil {
		clock = time.Now
	}

	timer := &Timer{
		connectTime: connectTime,
		delay:       delay,
		now:         clock,
	}

	initState := stateHolding
	if delay <= 0 {
		initState = stateExpired
	}

	timer.fsm = libfsm.NewFsm(&libfsm.FsmTable{
		// currentState,  event,      newState,     callback
		{CurrState: stateHolding, EventName: eventFlood, NewState: stateExpired, Callback: timer.checkElapsed},
		{CurrState: stateExpired, EventName: eventFlood, NewState: stateExpired, Callback: nil},
	}, initState)
	timer.expired.Store(initState == stateExpired)

	return timer
}

func (self *Timer) checkElapsed(event libfsm.Event) error {
	if self.now().Sub(self.connectTime) < self.delay {
		return errHoldingDown
	}

	log.Infof("%v: Flood hold-down expired -- flooding", event.EventData)
	self.expired.Store(true)

	return nil
}

// Allow is called on every flood attempt. It returns false while the
// hold-down is in effect. sw is only used for logging.
func (self *Timer) Allow(sw interface{}) bool {
	return self.fsm.FsmEvent(libfsm.Event{EventName: eventFlood, EventData: sw}) == nil
}

// Expired reports whether flooding has been enabled
func (self *Timer) Expired() bool {
	return self.expired.Load()
}

// Remaining returns how long flooding stays suppressed
func (self *Timer) Remaining() time.Duration {
	if self.Expired() {
		return 0
	}

	left := self.delay - self.now().Sub(self.connectTime)
	if left < 0 {
		return 0
	}
	return left
}
