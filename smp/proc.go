package smp

import (
	"fmt"
	"time"

	"github.com/rigado/blesm"
	"github.com/rigado/blesm/alg"
	"github.com/rigado/blesm/pdu"
	"github.com/rigado/blesm/sliceops"
)

type procState uint8

const (
	stateNone procState = iota
	statePair
	statePublicKey
	stateConfirm
	stateRandom
	stateDHKeyCheck
	stateLTKStart
	stateLTKRestore
	stateEncStart
	stateEncRestore
	stateKeyExch
	stateSecReq
)

var procStateStrings = []string{
	"none",
	"pair",
	"public key",
	"confirm",
	"random",
	"dhkey check",
	"ltk start",
	"ltk restore",
	"enc start",
	"enc restore",
	"key exchange",
	"security request",
}

func (s procState) String() string {
	if int(s) < len(procStateStrings) {
		return procStateStrings[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

type procFlags uint16

const (
	flagInitiator procFlags = 1 << iota
	flagTKValid
	flagRxConfirm
	flagAuthenticated
	flagKeyExchange
	flagBonded
	flagSC
	flagKeypress
	flagIOInjected
	flagWaitIO
	flagConfirmSent
	flagCheckSent
	flagKeysSent
)

// role index into per-role values
const (
	idxInit = 0
	idxResp = 1
)

// key distribution PDUs still to be received
const (
	keyEncInfo uint8 = 1 << iota
	keyMasterIdent
	keyIDInfo
	keyIDAddrInfo
	keySignInfo
)

// keyBits maps a negotiated key distribution mask onto the PDUs it implies.
// Secure Connections derives the LTK so EncKey implies nothing.
func keyBits(dist uint8, sc bool) uint8 {
	var b uint8
	if dist&pdu.KeyDistEnc != 0 && !sc {
		b |= keyEncInfo | keyMasterIdent
	}
	if dist&pdu.KeyDistID != 0 {
		b |= keyIDInfo | keyIDAddrInfo
	}
	if dist&pdu.KeyDistSign != 0 {
		b |= keySignInfo
	}
	return b
}

// proc is one pairing procedure; the engine owns it by connection handle.
type proc struct {
	handle uint16
	conn   blesm.ConnInfo
	state  procState
	flags  procFlags
	method blesm.PairingMethod
	action IOAction
	log    blesm.Logger

	pairReq pdu.PairCmd
	pairRsp pdu.PairCmd
	keySize uint8

	// auth req of the Security Request we sent, if any
	secReq uint8

	tk       []byte
	confirms [2][]byte
	rands    [2][]byte
	passkey  uint32
	round    int
	oob      []byte
	ncOK     bool

	kp      *alg.KeyPair
	peerPub []byte
	dhkey   []byte
	macKey  []byte
	ltk     []byte

	// Ea received before the user confirmed a numeric comparison
	peerCheck []byte

	ourDist  uint8
	peerDist uint8
	rxKeys   uint8
	ourKeys  blesm.Record
	peerKeys blesm.Record
	peerID   *blesm.Addr

	restored blesm.Record

	expires time.Time
}

func (p *proc) initiator() bool {
	return p.flags&flagInitiator != 0
}

func (p *proc) sc() bool {
	return p.flags&flagSC != 0
}

func (p *proc) ours() int {
	if p.initiator() {
		return idxInit
	}
	return idxResp
}

func (p *proc) theirs() int {
	return 1 - p.ours()
}

// initAddr and respAddr are the addresses of the pairing initiator
// (the link master) and responder.
func (p *proc) initAddr() blesm.Addr {
	if p.initiator() {
		return p.conn.Local
	}
	return p.conn.Peer
}

func (p *proc) respAddr() blesm.Addr {
	if p.initiator() {
		return p.conn.Peer
	}
	return p.conn.Local
}

// pubX returns the X coordinates of the initiator and responder keys.
func (p *proc) pubX() (pka, pkb []byte) {
	if p.initiator() {
		return p.kp.Public[:32], p.peerPub[:32]
	}
	return p.peerPub[:32], p.kp.Public[:32]
}

func (p *proc) authenticated() bool {
	switch p.method {
	case blesm.MethodPasskey, blesm.MethodNumericComparison, blesm.MethodOOB:
		return true
	}
	return false
}

// zero drops all working key material.
func (p *proc) zero() {
	for _, b := range [][]byte{p.tk, p.confirms[0], p.confirms[1], p.rands[0], p.rands[1],
		p.oob, p.dhkey, p.macKey, p.ltk, p.peerCheck, p.ourKeys.LTK, p.peerKeys.LTK, p.restored.LTK} {
		sliceops.Zero(b)
	}
	p.kp = nil
	p.passkey = 0
	p.state = stateNone
}
