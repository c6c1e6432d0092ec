package ofctrl

import (
	"strconv"

	"antrea.io/libOpenflow/openflow13"
)

const (
	outputPort         = "port"
	outputFlood        = "flood"
	outputToController = "toController"
)

// Output is a single output action of a flow rule or packet out
type Output struct {
	OutputType string `json:"type"`           // Output type: "port", "flood" or "toController"
	PortNo     uint32 `json:"port,omitempty"` // Output port number
}

// NewOutputPort returns an output action for portNo
func NewOutputPort(portNo uint32) Output {
	return Output{OutputType: outputPort, PortNo: portNo}
}

// FloodOutput returns an action sending out all ports except the ingress port
func FloodOutput() Output {
	return Output{OutputType: outputFlood, PortNo: openflow13.P_FLOOD}
}

// ControllerOutput returns an action punting frames to the controller
func ControllerOutput() Output {
	return Output{OutputType: outputToController, PortNo: openflow13.P_CONTROLLER}
}

// IsFlood reports whether this is the flood action
func (self Output) IsFlood() bool {
	return self.OutputType == outputFlood
}

// GetOutAction returns the openflow action for this output
func (self Output) GetOutAction() openflow13.Action {
	switch self.OutputType {
	case outputFlood:
		return openflow13.NewActionOutput(openflow13.P_FLOOD)
	case outputToController:
		outputAct := openflow13.NewActionOutput(openflow13.P_CONTROLLER)
		// Dont buffer the packets being sent to controller
		outputAct.MaxLen = openflow13.OFPCML_NO_BUFFER
		return outputAct
	case outputPort:
		return openflow13.NewActionOutput(self.PortNo)
	}

	return nil
}

func (self Output) String() string {
	switch self.OutputType {
	case outputFlood:
		return "flood"
	case outputToController:
		return "controller"
	}
	return "output:" + strconv.FormatUint(uint64(self.PortNo), 10)
}
