// Package hci carries the few HCI commands and events the security manager
// exchanges with a controller [Vol 4, Part E].
package hci

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

const pktTypeCommand = 0x01

// Command is an HCI command the security manager asks the host to send.
type Command interface {
	OpCode() int
	Len() int
	Marshal([]byte) error
}

func marshal(c interface{}, n int, b []byte) error {
	if len(b) < n {
		return errors.Errorf("hci: buffer too small, %d < %d", len(b), n)
	}
	return binary.Write(bytes.NewBuffer(b[:0]), binary.LittleEndian, c)
}

// LEStartEncryption implements LE Start Encryption (0x08|0x0019) [Vol 2, Part E, 7.8.24].
type LEStartEncryption struct {
	ConnectionHandle     uint16
	RandomNumber         uint64
	EncryptedDiversifier uint16
	LongTermKey          [16]byte
}

func (c *LEStartEncryption) String() string {
	return "LE Start Encryption (0x08|0x0019)"
}

// OpCode returns the opcode of the command.
func (c *LEStartEncryption) OpCode() int { return 0x08<<10 | 0x0019 }

// Len returns the length of the command.
func (c *LEStartEncryption) Len() int { return 28 }

// Marshal serializes the command parameters into binary form.
func (c *LEStartEncryption) Marshal(b []byte) error {
	return marshal(c, c.Len(), b)
}

// LELongTermKeyRequestReply implements LE Long Term Key Request Reply (0x08|0x001A) [Vol 2, Part E, 7.8.25].
type LELongTermKeyRequestReply struct {
	ConnectionHandle uint16
	LongTermKey      [16]byte
}

func (c *LELongTermKeyRequestReply) String() string {
	return "LE Long Term Key Request Reply (0x08|0x001A)"
}

// OpCode returns the opcode of the command.
func (c *LELongTermKeyRequestReply) OpCode() int { return 0x08<<10 | 0x001A }

// Len returns the length of the command.
func (c *LELongTermKeyRequestReply) Len() int { return 18 }

// Marshal serializes the command parameters into binary form.
func (c *LELongTermKeyRequestReply) Marshal(b []byte) error {
	return marshal(c, c.Len(), b)
}

// LELongTermKeyRequestNegativeReply implements LE Long Term Key Request Negative Reply (0x08|0x001B) [Vol 2, Part E, 7.8.26].
type LELongTermKeyRequestNegativeReply struct {
	ConnectionHandle uint16
}

func (c *LELongTermKeyRequestNegativeReply) String() string {
	return "LE Long Term Key Request Negative Reply (0x08|0x001B)"
}

// OpCode returns the opcode of the command.
func (c *LELongTermKeyRequestNegativeReply) OpCode() int { return 0x08<<10 | 0x001B }

// Len returns the length of the command.
func (c *LELongTermKeyRequestNegativeReply) Len() int { return 2 }

// Marshal serializes the command parameters into binary form.
func (c *LELongTermKeyRequestNegativeReply) Marshal(b []byte) error {
	return marshal(c, c.Len(), b)
}

// LEAddDeviceToResolvingList implements LE Add Device To Resolving List (0x08|0x0027) [Vol 2, Part E, 7.8.38].
type LEAddDeviceToResolvingList struct {
	PeerIdentityAddressType uint8
	PeerIdentityAddress     [6]byte
	PeerIRK                 [16]byte
	LocalIRK                [16]byte
}

func (c *LEAddDeviceToResolvingList) String() string {
	return "LE Add Device To Resolving List (0x08|0x0027)"
}

// OpCode returns the opcode of the command.
func (c *LEAddDeviceToResolvingList) OpCode() int { return 0x08<<10 | 0x0027 }

// Len returns the length of the command.
func (c *LEAddDeviceToResolvingList) Len() int { return 39 }

// Marshal serializes the command parameters into binary form.
func (c *LEAddDeviceToResolvingList) Marshal(b []byte) error {
	return marshal(c, c.Len(), b)
}

// Packet frames a command for an H4 transport: type, opcode, length and
// parameters.
func Packet(c Command) ([]byte, error) {
	b := make([]byte, 4+c.Len())
	b[0] = pktTypeCommand
	b[1] = byte(c.OpCode())
	b[2] = byte(c.OpCode() >> 8)
	b[3] = byte(c.Len())
	if err := c.Marshal(b[4:]); err != nil {
		return nil, errors.Wrap(err, "hci: failed to marshal cmd")
	}
	return b, nil
}
