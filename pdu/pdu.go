package pdu

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

var (
	ErrInvalidPDU    = errors.New("invalid sm pdu")
	ErrUnknownOpcode = errors.New("unknown sm opcode")
)

// PDU is a decoded SM command. The set of implementations is closed; the
// concrete types below are the only ones.
type PDU interface {
	Opcode() Opcode
	payload() []byte
}

// PairCmd is the body shared by Pairing Request and Pairing Response.
type PairCmd struct {
	IOCap       uint8
	OOBFlag     uint8
	AuthReq     uint8
	MaxKeySize  uint8
	InitKeyDist uint8
	RespKeyDist uint8
}

func (c PairCmd) payload() []byte {
	return []byte{c.IOCap, c.OOBFlag, c.AuthReq, c.MaxKeySize, c.InitKeyDist, c.RespKeyDist}
}

func parsePairCmd(b []byte) PairCmd {
	return PairCmd{
		IOCap:       b[0],
		OOBFlag:     b[1],
		AuthReq:     b[2],
		MaxKeySize:  b[3],
		InitKeyDist: b[4],
		RespKeyDist: b[5],
	}
}

type PairingRequest struct{ PairCmd }

type PairingResponse struct{ PairCmd }

type PairingConfirm struct{ Value [16]byte }

type PairingRandom struct{ Value [16]byte }

type PairingFailed struct{ Reason Reason }

type EncryptionInfo struct{ LTK [16]byte }

type MasterIdent struct {
	EDiv uint16
	Rand uint64
}

type IdentityInfo struct{ IRK [16]byte }

type IdentityAddrInfo struct {
	AddrType uint8
	Addr     [6]byte
}

type SigningInfo struct{ CSRK [16]byte }

type SecurityRequest struct{ AuthReq uint8 }

// PublicKey carries both P-256 coordinates, each little endian.
type PublicKey struct {
	X [32]byte
	Y [32]byte
}

type DHKeyCheck struct{ Value [16]byte }

type KeypressNotification struct{ Type uint8 }

func (PairingRequest) Opcode() Opcode       { return OpPairingRequest }
func (PairingResponse) Opcode() Opcode      { return OpPairingResponse }
func (PairingConfirm) Opcode() Opcode       { return OpPairingConfirm }
func (PairingRandom) Opcode() Opcode        { return OpPairingRandom }
func (PairingFailed) Opcode() Opcode        { return OpPairingFailed }
func (EncryptionInfo) Opcode() Opcode       { return OpEncryptionInfo }
func (MasterIdent) Opcode() Opcode          { return OpMasterIdent }
func (IdentityInfo) Opcode() Opcode         { return OpIdentityInfo }
func (IdentityAddrInfo) Opcode() Opcode     { return OpIdentityAddrInfo }
func (SigningInfo) Opcode() Opcode          { return OpSigningInfo }
func (SecurityRequest) Opcode() Opcode      { return OpSecurityRequest }
func (PublicKey) Opcode() Opcode            { return OpPairingPublicKey }
func (DHKeyCheck) Opcode() Opcode           { return OpPairingDHKeyCheck }
func (KeypressNotification) Opcode() Opcode { return OpKeypressNotification }

func (p PairingConfirm) payload() []byte { return append([]byte(nil), p.Value[:]...) }
func (p PairingRandom) payload() []byte  { return append([]byte(nil), p.Value[:]...) }
func (p PairingFailed) payload() []byte  { return []byte{uint8(p.Reason)} }
func (p EncryptionInfo) payload() []byte { return append([]byte(nil), p.LTK[:]...) }
func (p IdentityInfo) payload() []byte   { return append([]byte(nil), p.IRK[:]...) }
func (p SigningInfo) payload() []byte    { return append([]byte(nil), p.CSRK[:]...) }
func (p DHKeyCheck) payload() []byte     { return append([]byte(nil), p.Value[:]...) }

func (p SecurityRequest) payload() []byte      { return []byte{p.AuthReq} }
func (p KeypressNotification) payload() []byte { return []byte{p.Type} }

func (p MasterIdent) payload() []byte {
	b := make([]byte, MasterIdentSize)
	binary.LittleEndian.PutUint16(b[0:], p.EDiv)
	binary.LittleEndian.PutUint64(b[2:], p.Rand)
	return b
}

func (p IdentityAddrInfo) payload() []byte {
	return append([]byte{p.AddrType}, p.Addr[:]...)
}

func (p PublicKey) payload() []byte {
	return p.Bytes()
}

// Bytes returns X || Y as sent on the wire.
func (p PublicKey) Bytes() []byte {
	b := make([]byte, 0, PublicKeySize)
	b = append(b, p.X[:]...)
	return append(b, p.Y[:]...)
}

// NewPublicKey splits a 64-octet X || Y key.
func NewPublicKey(b []byte) (PublicKey, error) {
	var k PublicKey
	if len(b) != PublicKeySize {
		return k, errors.Wrapf(ErrInvalidPDU, "public key length %d", len(b))
	}
	copy(k.X[:], b[:32])
	copy(k.Y[:], b[32:])
	return k, nil
}

type decoder struct {
	size  int
	parse func(b []byte) PDU
}

func value16(b []byte) (v [16]byte) {
	copy(v[:], b)
	return
}

var decoders = map[Opcode]decoder{
	OpPairingRequest: {PairCmdSize, func(b []byte) PDU {
		return PairingRequest{parsePairCmd(b)}
	}},
	OpPairingResponse: {PairCmdSize, func(b []byte) PDU {
		return PairingResponse{parsePairCmd(b)}
	}},
	OpPairingConfirm: {ValueSize, func(b []byte) PDU {
		return PairingConfirm{value16(b)}
	}},
	OpPairingRandom: {ValueSize, func(b []byte) PDU {
		return PairingRandom{value16(b)}
	}},
	OpPairingFailed: {PairingFailedSize, func(b []byte) PDU {
		return PairingFailed{Reason(b[0])}
	}},
	OpEncryptionInfo: {ValueSize, func(b []byte) PDU {
		return EncryptionInfo{value16(b)}
	}},
	OpMasterIdent: {MasterIdentSize, func(b []byte) PDU {
		return MasterIdent{
			EDiv: binary.LittleEndian.Uint16(b[0:]),
			Rand: binary.LittleEndian.Uint64(b[2:]),
		}
	}},
	OpIdentityInfo: {ValueSize, func(b []byte) PDU {
		return IdentityInfo{value16(b)}
	}},
	OpIdentityAddrInfo: {IdentityAddrInfoSize, func(b []byte) PDU {
		p := IdentityAddrInfo{AddrType: b[0]}
		copy(p.Addr[:], b[1:])
		return p
	}},
	OpSigningInfo: {ValueSize, func(b []byte) PDU {
		return SigningInfo{value16(b)}
	}},
	OpSecurityRequest: {SecurityRequestSize, func(b []byte) PDU {
		return SecurityRequest{b[0]}
	}},
	OpPairingPublicKey: {PublicKeySize, func(b []byte) PDU {
		k, _ := NewPublicKey(b)
		return k
	}},
	OpPairingDHKeyCheck: {ValueSize, func(b []byte) PDU {
		return DHKeyCheck{value16(b)}
	}},
	OpKeypressNotification: {KeypressSize, func(b []byte) PDU {
		return KeypressNotification{b[0]}
	}},
}

// Decode parses one SM PDU, opcode included. The input is not retained.
func Decode(b []byte) (PDU, error) {
	if len(b) == 0 {
		return nil, errors.Wrap(ErrInvalidPDU, "empty pdu")
	}

	op := Opcode(b[0])
	d, ok := decoders[op]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownOpcode, "0x%02x", b[0])
	}

	data := b[1:]
	if len(data) != d.size {
		return nil, errors.Wrapf(ErrInvalidPDU, "%v: invalid length %d, want %d", op, len(data), d.size)
	}

	return d.parse(data), nil
}

// Encode serialises a PDU, opcode first.
func Encode(p PDU) []byte {
	return append([]byte{uint8(p.Opcode())}, p.payload()...)
}

// Bytes7 returns a pairing command the way c1 consumes it: opcode and the
// six parameter octets.
func Bytes7(p PDU) []byte {
	switch p.(type) {
	case PairingRequest, PairingResponse:
		return Encode(p)
	}
	return nil
}
