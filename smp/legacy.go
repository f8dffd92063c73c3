package smp

import (
	"crypto/subtle"
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/rigado/blesm/hci"
	"github.com/rigado/blesm/pdu"
)

func (e *Engine) legacyStart(p *proc) error {
	p.state = stateConfirm
	if p.action == IONone {
		p.tk = make([]byte, 16)
		p.flags |= flagTKValid
	}
	if p.initiator() && p.flags&flagTKValid != 0 {
		return e.legacySendConfirm(p)
	}
	if p.flags&flagTKValid == 0 {
		p.flags |= flagWaitIO
	}
	return nil
}

// passkeyBlock is a passkey as used in place of TK and in f6.
func passkeyBlock(passkey uint32) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint32(b, passkey)
	return b
}

func (e *Engine) legacyConfirm(p *proc, r []byte) ([]byte, error) {
	ia, ra := p.initAddr(), p.respAddr()
	return e.alg.C1(p.tk, r,
		pdu.Bytes7(pdu.PairingRequest{PairCmd: p.pairReq}),
		pdu.Bytes7(pdu.PairingResponse{PairCmd: p.pairRsp}),
		uint8(ia.Type), ia.Bytes(), uint8(ra.Type), ra.Bytes())
}

func (e *Engine) legacySendConfirm(p *proc) error {
	r, err := e.rand16()
	if err != nil {
		return err
	}
	p.rands[p.ours()] = r

	c, err := e.legacyConfirm(p, r)
	if err != nil {
		return err
	}
	p.confirms[p.ours()] = c

	var m pdu.PairingConfirm
	copy(m.Value[:], c)
	if err := e.send(p, m); err != nil {
		return err
	}

	p.flags |= flagConfirmSent
	p.flags &^= flagWaitIO
	if !p.initiator() {
		p.state = stateRandom
	}
	return nil
}

func (e *Engine) legacyConfirmRx(p *proc, v []byte) error {
	if p.initiator() {
		if p.flags&flagConfirmSent == 0 {
			return errors.Wrap(pairingErr(pdu.ReasonUnspecified), "confirm before ours")
		}
		p.confirms[idxResp] = v
		var m pdu.PairingRandom
		copy(m.Value[:], p.rands[idxInit])
		if err := e.send(p, m); err != nil {
			return err
		}
		p.state = stateRandom
		return nil
	}

	p.confirms[idxInit] = v
	p.flags |= flagRxConfirm
	if p.flags&flagTKValid == 0 {
		p.flags |= flagWaitIO
		return nil
	}
	return e.legacySendConfirm(p)
}

// checkConfirm recomputes the peer's confirm from its random.
func checkConfirm(exp, got []byte) error {
	if subtle.ConstantTimeCompare(exp, got) != 1 {
		return pairingErr(pdu.ReasonConfirmValueFailed)
	}
	return nil
}

func (e *Engine) legacyRandomRx(p *proc, v []byte) error {
	p.rands[p.theirs()] = v

	c, err := e.legacyConfirm(p, v)
	if err != nil {
		return err
	}
	if err := checkConfirm(c, p.confirms[p.theirs()]); err != nil {
		return err
	}

	if !p.initiator() {
		var m pdu.PairingRandom
		copy(m.Value[:], p.rands[idxResp])
		if err := e.send(p, m); err != nil {
			return err
		}
	}

	stk, err := e.alg.S1(p.tk, p.rands[idxResp], p.rands[idxInit])
	if err != nil {
		return err
	}
	p.ltk = truncateKey(stk, p.keySize)

	if p.initiator() {
		return e.startEncryption(p, 0, 0, p.ltk, stateEncStart)
	}
	p.state = stateLTKStart
	return nil
}

// truncateKey zeroes the most significant octets beyond size.
func truncateKey(k []byte, size uint8) []byte {
	for i := int(size); i < len(k); i++ {
		k[i] = 0
	}
	return k
}

func (e *Engine) startEncryption(p *proc, rand uint64, ediv uint16, ltk []byte, next procState) error {
	cmd := &hci.LEStartEncryption{
		ConnectionHandle:     p.handle,
		RandomNumber:         rand,
		EncryptedDiversifier: ediv,
	}
	copy(cmd.LongTermKey[:], ltk)
	if err := e.sendCmd(cmd); err != nil {
		return err
	}
	p.state = next
	e.touch(p)
	return nil
}
