package smp

import (
	"fmt"

	"github.com/rigado/blesm"
	"github.com/rigado/blesm/hci"
)

// HCI sends commands to the controller.
type HCI interface {
	Send(cmd hci.Command) error
}

// Sender writes an L2CAP frame on the SM fixed channel of a link.
type Sender interface {
	SendPDU(handle uint16, frame []byte) error
}

// IOAction is what the application has to do for a pairing to proceed.
type IOAction uint8

const (
	IONone              IOAction = iota // nothing to do
	IOOOB                               // provide OOB data
	IOInput                             // type the passkey
	IODisplay                           // show the passkey
	IONumericComparison                 // confirm the displayed number
)

var ioActionStrings = map[IOAction]string{
	IONone:              "none",
	IOOOB:               "oob",
	IOInput:             "input",
	IODisplay:           "display",
	IONumericComparison: "numeric comparison",
}

func (a IOAction) String() string {
	if s, ok := ioActionStrings[a]; ok {
		return s
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// IORequest asks the application for input. Number is the value to compare
// for IONumericComparison.
type IORequest struct {
	Action IOAction
	Number uint32
}

// IOResult is the application's answer to an IORequest.
//
// IODisplay and IOInput carry the passkey shown or entered, IOOOB carries
// 16 octets of OOB data and IONumericComparison carries the user's answer.
type IOResult struct {
	Action  IOAction
	Passkey uint32
	Confirm bool
	OOB     []byte
}

// IOHandler is the application side of user interaction. Calls are made
// without the engine lock held, so a handler may call InjectIO directly.
type IOHandler interface {
	RequestIO(handle uint16, req IORequest)
	PasskeyNotify(handle uint16, notification uint8)
}

// SecurityEvent reports the end of a procedure. Err is nil on success.
type SecurityEvent struct {
	Err   error
	State blesm.SecurityState
}

// EventHandler receives the outcome of every procedure, once per procedure.
type EventHandler interface {
	OnSecurityEvent(handle uint16, ev SecurityEvent)
}

type nopIO struct{}

func (nopIO) RequestIO(uint16, IORequest) {}
func (nopIO) PasskeyNotify(uint16, uint8) {}

type nopEvents struct{}

func (nopEvents) OnSecurityEvent(uint16, SecurityEvent) {}
