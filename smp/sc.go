package smp

import (
	"bytes"
	"crypto/subtle"

	"github.com/pkg/errors"
	"github.com/rigado/blesm"
	"github.com/rigado/blesm/alg"
	"github.com/rigado/blesm/pdu"
)

// passkeyRounds is the number of commitments of a Secure Connections
// passkey entry, one per passkey bit.
const passkeyRounds = 20

func onPairingConfirm(e *Engine, res *result, p *proc, m pdu.PDU) error {
	c := m.(pdu.PairingConfirm)
	v := append([]byte(nil), c.Value[:]...)
	if p.sc() {
		return e.scConfirmRx(p, v)
	}
	return e.legacyConfirmRx(p, v)
}

func onPairingRandom(e *Engine, res *result, p *proc, m pdu.PDU) error {
	r := m.(pdu.PairingRandom)
	v := append([]byte(nil), r.Value[:]...)
	if p.sc() {
		return e.scRandomRx(res, p, v)
	}
	return e.legacyRandomRx(p, v)
}

func (e *Engine) scStart(p *proc) error {
	kp := e.keyPair
	if kp == nil {
		var err error
		if kp, err = e.alg.GenerateKeyPair(); err != nil {
			return err
		}
	}
	p.kp = kp
	p.state = statePublicKey

	if p.initiator() {
		return e.sendPublicKey(p)
	}
	return nil
}

func (e *Engine) sendPublicKey(p *proc) error {
	k, err := pdu.NewPublicKey(p.kp.Public)
	if err != nil {
		return err
	}
	return e.send(p, k)
}

func onPairingPublicKey(e *Engine, res *result, p *proc, m pdu.PDU) error {
	if !p.sc() {
		return errors.Wrap(pairingErr(pdu.ReasonCommandNotSupported), "public key in legacy pairing")
	}

	pub := m.(pdu.PublicKey).Bytes()
	if bytes.Equal(pub, p.kp.Public) {
		return errors.Wrap(pairingErr(pdu.ReasonInvalidParameters), "peer reflected our public key")
	}
	if err := alg.ValidatePublicKey(pub, nil); err != nil {
		return errors.Wrap(pairingErr(pdu.ReasonDHKeyCheckFailed), err.Error())
	}

	dh, err := e.alg.DHKey(p.kp, pub)
	if err != nil {
		return errors.Wrap(pairingErr(pdu.ReasonDHKeyCheckFailed), err.Error())
	}
	p.peerPub = pub
	p.dhkey = dh

	if !p.initiator() {
		if err := e.sendPublicKey(p); err != nil {
			return err
		}
	}

	switch p.method {
	case blesm.MethodPasskey:
		p.state = stateConfirm
		p.round = 0
		if p.initiator() {
			if p.flags&flagTKValid == 0 {
				p.flags |= flagWaitIO
				return nil
			}
			return e.scSendPasskeyConfirm(p)
		}
		return nil

	case blesm.MethodOOB:
		p.state = stateRandom
		if p.initiator() {
			return e.scSendRandom(p, true)
		}
		return nil

	default:
		if p.initiator() {
			p.state = stateConfirm
			return nil
		}
		// Cb = f4(PKbx, PKax, Nb, 0)
		nb, err := e.rand16()
		if err != nil {
			return err
		}
		p.rands[idxResp] = nb
		pka, pkb := p.pubX()
		cb, err := e.alg.F4(pkb, pka, nb, 0)
		if err != nil {
			return err
		}
		p.confirms[idxResp] = cb
		if err := e.sendConfirm(p, cb); err != nil {
			return err
		}
		p.state = stateRandom
		return nil
	}
}

func (e *Engine) sendConfirm(p *proc, c []byte) error {
	var m pdu.PairingConfirm
	copy(m.Value[:], c)
	return e.send(p, m)
}

// scSendRandom sends our nonce, generating a fresh one when asked.
func (e *Engine) scSendRandom(p *proc, fresh bool) error {
	if fresh {
		r, err := e.rand16()
		if err != nil {
			return err
		}
		p.rands[p.ours()] = r
	}
	var m pdu.PairingRandom
	copy(m.Value[:], p.rands[p.ours()])
	return e.send(p, m)
}

func (p *proc) passkeyBit() uint8 {
	return 0x80 | uint8((p.passkey>>uint(p.round))&1)
}

// scSendPasskeyConfirm commits the initiator to the current passkey bit.
func (e *Engine) scSendPasskeyConfirm(p *proc) error {
	na, err := e.rand16()
	if err != nil {
		return err
	}
	p.rands[idxInit] = na

	pka, pkb := p.pubX()
	ca, err := e.alg.F4(pka, pkb, na, p.passkeyBit())
	if err != nil {
		return err
	}
	p.confirms[idxInit] = ca
	if err := e.sendConfirm(p, ca); err != nil {
		return err
	}
	p.flags |= flagConfirmSent
	p.flags &^= flagWaitIO
	return nil
}

// scPasskeyReply answers the initiator's commitment for the current round.
func (e *Engine) scPasskeyReply(p *proc) error {
	nb, err := e.rand16()
	if err != nil {
		return err
	}
	p.rands[idxResp] = nb

	pka, pkb := p.pubX()
	cb, err := e.alg.F4(pkb, pka, nb, p.passkeyBit())
	if err != nil {
		return err
	}
	p.confirms[idxResp] = cb
	if err := e.sendConfirm(p, cb); err != nil {
		return err
	}
	p.flags &^= flagRxConfirm | flagWaitIO
	p.state = stateRandom
	return nil
}

func (e *Engine) scConfirmRx(p *proc, v []byte) error {
	switch p.method {
	case blesm.MethodJustWorks, blesm.MethodNumericComparison:
		if !p.initiator() {
			return errors.Wrap(pairingErr(pdu.ReasonUnspecified), "confirm from initiator")
		}
		p.confirms[idxResp] = v
		if err := e.scSendRandom(p, true); err != nil {
			return err
		}
		p.state = stateRandom
		return nil

	case blesm.MethodPasskey:
		if p.initiator() {
			if p.flags&flagConfirmSent == 0 {
				return errors.Wrap(pairingErr(pdu.ReasonUnspecified), "confirm before ours")
			}
			p.confirms[idxResp] = v
			if err := e.scSendRandom(p, false); err != nil {
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
		return e.scPasskeyReply(p)
	}
	return errors.Wrapf(pairingErr(pdu.ReasonUnspecified), "confirm with %v", p.method)
}

func (e *Engine) scRandomRx(res *result, p *proc, v []byte) error {
	pka, pkb := p.pubX()
	p.rands[p.theirs()] = v

	switch p.method {
	case blesm.MethodPasskey:
		if p.initiator() {
			cb, err := e.alg.F4(pkb, pka, v, p.passkeyBit())
			if err != nil {
				return err
			}
			if err := checkConfirm(cb, p.confirms[idxResp]); err != nil {
				return err
			}
		} else {
			ca, err := e.alg.F4(pka, pkb, v, p.passkeyBit())
			if err != nil {
				return err
			}
			if err := checkConfirm(ca, p.confirms[idxInit]); err != nil {
				return err
			}
			if err := e.scSendRandom(p, false); err != nil {
				return err
			}
		}

		p.round++
		if p.round < passkeyRounds {
			p.state = stateConfirm
			p.flags &^= flagConfirmSent
			if p.initiator() {
				return e.scSendPasskeyConfirm(p)
			}
			return nil
		}

	case blesm.MethodOOB:
		if !p.initiator() {
			if err := e.scSendRandom(p, true); err != nil {
				return err
			}
		}

	default:
		if p.initiator() {
			cb, err := e.alg.F4(pkb, pka, v, 0)
			if err != nil {
				return err
			}
			if err := checkConfirm(cb, p.confirms[idxResp]); err != nil {
				return err
			}
		} else if err := e.scSendRandom(p, false); err != nil {
			return err
		}
	}

	if err := e.scDeriveKeys(p); err != nil {
		return err
	}
	p.state = stateDHKeyCheck

	if p.method == blesm.MethodNumericComparison {
		n, err := e.alg.G2(pka, pkb, p.rands[idxInit], p.rands[idxResp])
		if err != nil {
			return err
		}
		res.ioRequest(e, p.handle, IORequest{Action: IONumericComparison, Number: n})
	}

	if p.initiator() {
		return e.scSendCheck(p)
	}
	return nil
}

// scDeriveKeys computes MacKey || LTK = f5(DHKey, Na, Nb, A, B).
func (e *Engine) scDeriveKeys(p *proc) error {
	mac, ltk, err := e.alg.F5(p.dhkey, p.rands[idxInit], p.rands[idxResp],
		p.initAddr().Bytes56(), p.respAddr().Bytes56())
	if err != nil {
		return err
	}
	p.macKey = mac
	p.ltk = truncateKey(ltk, p.keySize)
	return nil
}

func ioCapOctets(c pdu.PairCmd) []byte {
	return []byte{c.IOCap, c.OOBFlag, c.AuthReq}
}

// checkR is the r input of f6 for the pairing method.
func (p *proc) checkR() []byte {
	switch p.method {
	case blesm.MethodPasskey:
		return passkeyBlock(p.passkey)
	case blesm.MethodOOB:
		return append([]byte(nil), p.oob...)
	}
	return make([]byte, 16)
}

// dhkeyCheck computes Ea for the initiator or Eb for the responder.
func (e *Engine) dhkeyCheck(p *proc, initiator bool) ([]byte, error) {
	a, b := p.initAddr().Bytes56(), p.respAddr().Bytes56()
	na, nb := p.rands[idxInit], p.rands[idxResp]
	if initiator {
		return e.alg.F6(p.macKey, na, nb, p.checkR(), ioCapOctets(p.pairReq), a, b)
	}
	return e.alg.F6(p.macKey, nb, na, p.checkR(), ioCapOctets(p.pairRsp), b, a)
}

// ioReady reports whether the user input the DHKey check depends on is
// available.
func (p *proc) ioReady() bool {
	switch p.method {
	case blesm.MethodNumericComparison:
		return p.ncOK
	case blesm.MethodOOB:
		return p.oob != nil
	}
	return true
}

func (e *Engine) sendCheck(p *proc, v []byte) error {
	var m pdu.DHKeyCheck
	copy(m.Value[:], v)
	return e.send(p, m)
}

func (e *Engine) scSendCheck(p *proc) error {
	if p.flags&flagCheckSent != 0 {
		return nil
	}
	if !p.ioReady() {
		p.flags |= flagWaitIO
		return nil
	}

	ea, err := e.dhkeyCheck(p, true)
	if err != nil {
		return err
	}
	if err := e.sendCheck(p, ea); err != nil {
		return err
	}
	p.flags |= flagCheckSent
	p.flags &^= flagWaitIO
	return nil
}

func onDHKeyCheck(e *Engine, res *result, p *proc, m pdu.PDU) error {
	c := m.(pdu.DHKeyCheck)
	v := append([]byte(nil), c.Value[:]...)

	if p.initiator() {
		if p.flags&flagCheckSent == 0 {
			return errors.Wrap(pairingErr(pdu.ReasonUnspecified), "dhkey check before ours")
		}
		eb, err := e.dhkeyCheck(p, false)
		if err != nil {
			return err
		}
		if subtle.ConstantTimeCompare(eb, v) != 1 {
			return pairingErr(pdu.ReasonDHKeyCheckFailed)
		}
		return e.startEncryption(p, 0, 0, p.ltk, stateEncStart)
	}

	if !p.ioReady() {
		p.peerCheck = v
		p.flags |= flagWaitIO
		return nil
	}
	return e.scVerifyCheck(p, v)
}

// scVerifyCheck checks Ea on the responder and answers with Eb.
func (e *Engine) scVerifyCheck(p *proc, v []byte) error {
	ea, err := e.dhkeyCheck(p, true)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(ea, v) != 1 {
		return pairingErr(pdu.ReasonDHKeyCheckFailed)
	}

	eb, err := e.dhkeyCheck(p, false)
	if err != nil {
		return err
	}
	if err := e.sendCheck(p, eb); err != nil {
		return err
	}

	p.peerCheck = nil
	p.flags &^= flagWaitIO
	p.state = stateLTKStart
	return nil
}
