package hci

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Event codes.
const (
	DisconnectionCompleteCode        = 0x05
	EncryptionChangeCode             = 0x08
	EncryptionKeyRefreshCompleteCode = 0x30
	LEMetaEventCode                  = 0x3E

	LELongTermKeyRequestSubCode = 0x05
)

// Status codes the security manager reacts to.
const (
	StatusSuccess                 = 0x00
	StatusPINOrKeyMissing         = 0x06
	StatusRemoteUserTerminated    = 0x13
	StatusConnectionTerminatedMIC = 0x3D
)

var ErrUnknownEvent = errors.New("hci: unhandled event")

// Event is a decoded event concerning one connection.
type Event interface {
	ConnectionHandle() uint16
}

// DisconnectionComplete implements Disconnection Complete (0x05) [Vol 2, Part E, 7.7.5].
type DisconnectionComplete []byte

func (e DisconnectionComplete) Status() uint8 {
	v, _ := e.StatusWErr()
	return v
}

func (e DisconnectionComplete) ConnectionHandle() uint16 {
	v, _ := e.ConnectionHandleWErr()
	return v
}

func (e DisconnectionComplete) Reason() uint8 {
	v, _ := e.ReasonWErr()
	return v
}

// EncryptionChange implements Encryption Change (0x08) [Vol 2, Part E, 7.7.8].
type EncryptionChange []byte

func (e EncryptionChange) Status() uint8 {
	v, _ := e.StatusWErr()
	return v
}

func (e EncryptionChange) ConnectionHandle() uint16 {
	v, _ := e.ConnectionHandleWErr()
	return v
}

func (e EncryptionChange) EncryptionEnabled() uint8 {
	v, _ := e.EncryptionEnabledWErr()
	return v
}

// EncryptionKeyRefreshComplete implements Encryption Key Refresh Complete (0x30) [Vol 2, Part E, 7.7.39].
type EncryptionKeyRefreshComplete []byte

func (e EncryptionKeyRefreshComplete) Status() uint8 {
	v, _ := e.StatusWErr()
	return v
}

func (e EncryptionKeyRefreshComplete) ConnectionHandle() uint16 {
	v, _ := e.ConnectionHandleWErr()
	return v
}

// LELongTermKeyRequest implements LE Long Term Key Request (0x3E:0x05) [Vol 2, Part E, 7.7.65.5].
// The subevent code is the first octet.
type LELongTermKeyRequest []byte

func (e LELongTermKeyRequest) ConnectionHandle() uint16 {
	v, _ := e.ConnectionHandleWErr()
	return v
}

func (e LELongTermKeyRequest) RandomNumber() uint64 {
	v, _ := e.RandomNumberWErr()
	return v
}

func (e LELongTermKeyRequest) EncryptedDiversifier() uint16 {
	v, _ := e.EncryptedDiversifierWErr()
	return v
}

// Decode splits an event packet (code, length, parameters; no H4 type
// octet) into one of the event types above.
func Decode(b []byte) (Event, error) {
	if len(b) < 2 {
		return nil, errors.New("hci: short event")
	}

	code, plen, params := b[0], int(b[1]), b[2:]
	if len(params) != plen {
		return nil, errors.Errorf("hci: event 0x%02x length %d, header says %d", code, len(params), plen)
	}

	var e Event
	var n int
	switch code {
	case DisconnectionCompleteCode:
		e, n = DisconnectionComplete(params), 4
	case EncryptionChangeCode:
		e, n = EncryptionChange(params), 4
	case EncryptionKeyRefreshCompleteCode:
		e, n = EncryptionKeyRefreshComplete(params), 3
	case LEMetaEventCode:
		if plen == 0 || params[0] != LELongTermKeyRequestSubCode {
			return nil, errors.Wrapf(ErrUnknownEvent, "le meta 0x%02x", params)
		}
		e, n = LELongTermKeyRequest(params), 13
	default:
		return nil, errors.Wrapf(ErrUnknownEvent, "0x%02x", code)
	}

	if plen < n {
		return nil, errors.Errorf("hci: event 0x%02x too short: %d < %d", code, plen, n)
	}
	return e, nil
}

func event(code uint8, params ...[]byte) []byte {
	b := []byte{code, 0}
	for _, p := range params {
		b = append(b, p...)
	}
	b[1] = uint8(len(b) - 2)
	return b
}

func u16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

// NewEncryptionChange builds an Encryption Change event packet.
func NewEncryptionChange(status uint8, handle uint16, enabled uint8) []byte {
	return event(EncryptionChangeCode, []byte{status}, u16(handle), []byte{enabled})
}

// NewEncryptionKeyRefreshComplete builds an Encryption Key Refresh Complete event packet.
func NewEncryptionKeyRefreshComplete(status uint8, handle uint16) []byte {
	return event(EncryptionKeyRefreshCompleteCode, []byte{status}, u16(handle))
}

// NewLELongTermKeyRequest builds an LE Long Term Key Request event packet.
func NewLELongTermKeyRequest(handle uint16, rand uint64, ediv uint16) []byte {
	r := make([]byte, 8)
	binary.LittleEndian.PutUint64(r, rand)
	return event(LEMetaEventCode, []byte{LELongTermKeyRequestSubCode}, u16(handle), r, u16(ediv))
}

// NewDisconnectionComplete builds a Disconnection Complete event packet.
func NewDisconnectionComplete(status uint8, handle uint16, reason uint8) []byte {
	return event(DisconnectionCompleteCode, []byte{status}, u16(handle), []byte{reason})
}
