package libfsm

// Finite state machines
// Library to implement small table driven FSMs.
// - The FSM is not goroutine safe. Owner must serialize events
// - A transition whose callback returns an error leaves the state unchanged
//   and the error is returned to the caller

import (
	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"
)

// Main FSM structure
type Fsm struct {
	transitions *FsmTable // FSM transition table
	FsmState    string    // FSM's current state
}

// FSM event
type Event struct {
	EventName string      // Name of the event
	EventData interface{} // Event specific data
}

// Callback function type
type CallbackFunc func(Event) error

// FSM Transition entry
type Transition struct {
	CurrState string
	EventName string
	NewState  string
	Callback  CallbackFunc
}

type FsmTable []Transition

// ErrInvalidEvent is returned when there is no transition for the
// <state, event> pair
var ErrInvalidEvent = errors.New("invalid event")

// Create a new Fsm
func NewFsm(fsmTable *FsmTable, initState string) *Fsm {
	fsm := new(Fsm)

	fsm.transitions = fsmTable
	fsm.FsmState = initState

	return fsm
}

// Handle a new event for the fsm
func (self *Fsm) FsmEvent(event Event) error {
	log.Debugf("Processing event %s in state %s", event.EventName, self.FsmState)

	// find the <currState,event> pair in the transition table
	for _, trans := range *self.transitions {
		if (trans.CurrState != self.FsmState) || (trans.EventName != event.EventName) {
			continue
		}

		if trans.Callback != nil {
			if err := trans.Callback(event); err != nil {
				log.Debugf("Processing event %s in state %s returned: %v", event.EventName, self.FsmState, err)
				return err
			}
		}

		if self.FsmState != trans.NewState {
			log.Debugf("Transitioning to state %s", trans.NewState)
			self.FsmState = trans.NewState
		}

		return nil
	}

	// If we reached here, we did not find a valid transition
	log.Errorf("Invalid event %s in state %s", event.EventName, self.FsmState)

	return errors.Wrapf(ErrInvalidEvent, "event %s in state %s", event.EventName, self.FsmState)
}
