package smp

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/rigado/blesm/pdu"
)

var (
	// ErrNotConnected is returned for a handle with no known link.
	ErrNotConnected = errors.New("not connected")
	// ErrTimeout is returned once a procedure on the link has timed out.
	// No further SM traffic is allowed until the link reconnects.
	ErrTimeout = errors.New("smp procedure timed out")
	// ErrAlreadyInProgress is returned when the link already runs a procedure.
	ErrAlreadyInProgress = errors.New("pairing already in progress")
	// ErrAlreadyDone is returned by InjectIO when the answer was already given.
	ErrAlreadyDone = errors.New("io already injected")
	// ErrInvalid reports a malformed argument.
	ErrInvalid = errors.New("invalid argument")
	// ErrNoProcedure is returned when no procedure runs on the link.
	ErrNoProcedure = errors.New("no pairing procedure")
	// ErrUnexpectedPDU reports an SM PDU not valid in the current state.
	ErrUnexpectedPDU = errors.New("unexpected sm pdu")
	// ErrKeyNotFound is returned when no LTK matches an LTK request.
	ErrKeyNotFound = errors.New("no long term key")
	// ErrRole reports an operation the local role of the link does not allow.
	ErrRole = errors.New("operation not allowed in this role")
	// ErrNotEncrypted reports that the link came up unencrypted.
	ErrNotEncrypted = errors.New("encryption not enabled")
)

// PairingError is a pairing failure carrying an SM reason code. Remote is
// set when the reason came from the peer in a Pairing Failed PDU.
type PairingError struct {
	Reason pdu.Reason
	Remote bool
}

func (e *PairingError) Error() string {
	if e.Remote {
		return fmt.Sprintf("pairing failed by peer: %v", e.Reason)
	}
	return fmt.Sprintf("pairing failed: %v", e.Reason)
}

func pairingErr(r pdu.Reason) error {
	return &PairingError{Reason: r}
}

// HCIError is a non-zero controller status.
type HCIError struct {
	Status uint8
}

func (e *HCIError) Error() string {
	return fmt.Sprintf("hci status 0x%02x", e.Status)
}

// Reason extracts the SM reason code from err, if it carries one.
func Reason(err error) (pdu.Reason, bool) {
	var pe *PairingError
	if errors.As(err, &pe) {
		return pe.Reason, true
	}
	return 0, false
}

// localReason reports the reason to send to the peer for err: only local
// protocol failures are reported.
func localReason(err error) (pdu.Reason, bool) {
	var pe *PairingError
	if errors.As(err, &pe) && !pe.Remote {
		return pe.Reason, true
	}
	return 0, false
}
