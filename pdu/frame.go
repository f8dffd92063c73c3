package pdu

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Frame wraps an encoded PDU in an L2CAP basic header on the SM channel.
func Frame(p PDU) ([]byte, error) {
	out := Encode(p)
	buf := bytes.NewBuffer(make([]byte, 0, len(out)+4))
	if err := binary.Write(buf, binary.LittleEndian, uint16(len(out))); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, CID); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unframe strips the L2CAP basic header and returns the SM PDU.
func Unframe(b []byte) ([]byte, error) {
	if len(b) < 4 {
		return nil, errors.Wrapf(ErrInvalidPDU, "l2cap frame too short: %d", len(b))
	}

	l := binary.LittleEndian.Uint16(b[0:])
	cid := binary.LittleEndian.Uint16(b[2:])
	switch {
	case cid != CID:
		return nil, errors.Wrapf(ErrInvalidPDU, "cid 0x%04x is not the sm channel", cid)
	case int(l) != len(b)-4:
		return nil, errors.Wrapf(ErrInvalidPDU, "l2cap length %d, payload %d", l, len(b)-4)
	case l > MTU:
		return nil, errors.Wrapf(ErrInvalidPDU, "pdu exceeds sm mtu: %d", l)
	}

	return b[4:], nil
}
