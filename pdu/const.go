package pdu

import "fmt"

// Opcode is the first octet of every SM PDU.
type Opcode uint8

const (
	OpPairingRequest       Opcode = 0x01 // Pairing Request LE-U, ACL-U
	OpPairingResponse      Opcode = 0x02 // Pairing Response LE-U, ACL-U
	OpPairingConfirm       Opcode = 0x03 // Pairing Confirm LE-U
	OpPairingRandom        Opcode = 0x04 // Pairing Random LE-U
	OpPairingFailed        Opcode = 0x05 // Pairing Failed LE-U, ACL-U
	OpEncryptionInfo       Opcode = 0x06 // Encryption Information LE-U
	OpMasterIdent          Opcode = 0x07 // Master Identification LE-U
	OpIdentityInfo         Opcode = 0x08 // Identity Information LE-U, ACL-U
	OpIdentityAddrInfo     Opcode = 0x09 // Identity Address Information LE-U, ACL-U
	OpSigningInfo          Opcode = 0x0A // Signing Information LE-U, ACL-U
	OpSecurityRequest      Opcode = 0x0B // Security Request LE-U
	OpPairingPublicKey     Opcode = 0x0C // Pairing Public Key LE-U
	OpPairingDHKeyCheck    Opcode = 0x0D // Pairing DHKey Check LE-U
	OpKeypressNotification Opcode = 0x0E // Pairing Keypress Notification LE-U
)

var opcodeStrings = map[Opcode]string{
	OpPairingRequest:       "pairing request",
	OpPairingResponse:      "pairing response",
	OpPairingConfirm:       "pairing confirm",
	OpPairingRandom:        "pairing random",
	OpPairingFailed:        "pairing failed",
	OpEncryptionInfo:       "encryption info",
	OpMasterIdent:          "master id",
	OpIdentityInfo:         "id info",
	OpIdentityAddrInfo:     "id addr info",
	OpSigningInfo:          "signing info",
	OpSecurityRequest:      "security req",
	OpPairingPublicKey:     "pairing pub key",
	OpPairingDHKeyCheck:    "pairing dhkey check",
	OpKeypressNotification: "pairing keypress",
}

func (o Opcode) String() string {
	if s, ok := opcodeStrings[o]; ok {
		return s
	}
	return fmt.Sprintf("opcode(0x%02x)", uint8(o))
}

const (
	// CID is the fixed L2CAP channel of the Security Manager.
	CID uint16 = 0x0006
	// MTU is the largest SM PDU, the public key.
	MTU = 65
)

// Payload sizes, opcode excluded.
const (
	PairCmdSize          = 6
	ValueSize            = 16
	PairingFailedSize    = 1
	MasterIdentSize      = 10
	IdentityAddrInfoSize = 7
	SecurityRequestSize  = 1
	PublicKeySize        = 64
	KeypressSize         = 1
)

// IO capabilities.
const (
	IOCapDisplayOnly     uint8 = 0x00
	IOCapDisplayYesNo    uint8 = 0x01
	IOCapKeyboardOnly    uint8 = 0x02
	IOCapNoInputNoOutput uint8 = 0x03
	IOCapKeyboardDisplay uint8 = 0x04
	IOCapReservedStart   uint8 = 0x05
)

// OOB data flag.
const (
	OOBNotPresent    uint8 = 0x00
	OOBPresent       uint8 = 0x01
	OOBReservedStart uint8 = 0x02
)

// AuthReq bits.
const (
	AuthReqBond     uint8 = 0x01
	AuthReqBondMask uint8 = 0x03
	AuthReqMITM     uint8 = 0x04
	AuthReqSC       uint8 = 0x08
	AuthReqKeypress uint8 = 0x10
	AuthReqCT2      uint8 = 0x20
	AuthReqReserved uint8 = 0xc2
)

// Key distribution bits.
const (
	KeyDistEnc      uint8 = 0x01
	KeyDistID       uint8 = 0x02
	KeyDistSign     uint8 = 0x04
	KeyDistLink     uint8 = 0x08
	KeyDistReserved uint8 = 0xf0
)

// Encryption key size bounds.
const (
	MinKeySize uint8 = 7
	MaxKeySize uint8 = 16
)

// Reason is the Pairing Failed reason code.
type Reason uint8

//Core spec v5.2, Vol 3, Part H, 3.5.5, Table 3.7
const (
	ReasonPasskeyEntryFailed   Reason = 0x01
	ReasonOOBNotAvailable      Reason = 0x02
	ReasonAuthRequirements     Reason = 0x03
	ReasonConfirmValueFailed   Reason = 0x04
	ReasonPairingNotSupported  Reason = 0x05
	ReasonEncryptionKeySize    Reason = 0x06
	ReasonCommandNotSupported  Reason = 0x07
	ReasonUnspecified          Reason = 0x08
	ReasonRepeatedAttempts     Reason = 0x09
	ReasonInvalidParameters    Reason = 0x0A
	ReasonDHKeyCheckFailed     Reason = 0x0B
	ReasonNumericCompFailed    Reason = 0x0C
	ReasonBREDRInProgress      Reason = 0x0D
	ReasonCrossTransportDenied Reason = 0x0E
)

var pairingFailedReason = []string{
	"reserved",
	"passkey entry failed",
	"oob not available",
	"authentication requirements",
	"confirm value failed",
	"pairing not supported",
	"encryption key size",
	"command not supported",
	"unspecified reason",
	"repeated attempts",
	"invalid parameters",
	"dhkey check failed",
	"numeric comparison failed",
	"BR/EDR pairing in progress",
	"cross-transport key derivation/generation not allowed",
}

func (r Reason) String() string {
	if int(r) < len(pairingFailedReason) {
		return pairingFailedReason[r]
	}
	return fmt.Sprintf("reason(0x%02x)", uint8(r))
}

// Keypress notification types.
const (
	KeypressEntryStarted   uint8 = 0x00
	KeypressDigitEntered   uint8 = 0x01
	KeypressDigitErased    uint8 = 0x02
	KeypressCleared        uint8 = 0x03
	KeypressEntryCompleted uint8 = 0x04
)
