package smp

import (
	"encoding/hex"

	"github.com/pkg/errors"
	"github.com/rigado/blesm"
	"github.com/rigado/blesm/pdu"
)

type handlerFn func(e *Engine, res *result, p *proc, m pdu.PDU) error

type smpDispatcher struct {
	desc string
	// states the pdu is expected in; nil means any state of a live procedure
	states  []procState
	handler handlerFn
}

var dispatcher map[pdu.Opcode]smpDispatcher

func init() {
	dispatcher = map[pdu.Opcode]smpDispatcher{
		pdu.OpPairingResponse:      {"pairing response", []procState{statePair}, onPairingResponse},
		pdu.OpPairingConfirm:       {"pairing confirm", []procState{stateConfirm}, onPairingConfirm},
		pdu.OpPairingRandom:        {"pairing random", []procState{stateRandom}, onPairingRandom},
		pdu.OpPairingFailed:        {"pairing failed", nil, onPairingFailed},
		pdu.OpEncryptionInfo:       {"encryption info", []procState{stateKeyExch}, onKeyPDU},
		pdu.OpMasterIdent:          {"master id", []procState{stateKeyExch}, onKeyPDU},
		pdu.OpIdentityInfo:         {"id info", []procState{stateKeyExch}, onKeyPDU},
		pdu.OpIdentityAddrInfo:     {"id addr info", []procState{stateKeyExch}, onKeyPDU},
		pdu.OpSigningInfo:          {"signing info", []procState{stateKeyExch}, onKeyPDU},
		pdu.OpPairingPublicKey:     {"pairing pub key", []procState{statePublicKey}, onPairingPublicKey},
		pdu.OpPairingDHKeyCheck:    {"pairing dhkey check", []procState{stateDHKeyCheck}, onDHKeyCheck},
		pdu.OpKeypressNotification: {"pairing keypress", nil, onKeypress},
	}
}

// DeliverFrame strips the L2CAP header of a frame received on the SM
// channel and delivers the PDU.
func (e *Engine) DeliverFrame(handle uint16, frame []byte) error {
	b, err := pdu.Unframe(frame)
	if err != nil {
		return err
	}
	return e.DeliverPDU(handle, b)
}

// DeliverPDU handles one SM PDU received on a link. The buffer is not
// retained.
func (e *Engine) DeliverPDU(handle uint16, b []byte) error {
	res := &result{}
	e.mu.Lock()
	err := e.rx(res, handle, b)
	e.mu.Unlock()
	e.process(res)
	return err
}

func (e *Engine) rx(res *result, handle uint16, b []byte) error {
	c, err := e.conn(handle)
	if err != nil {
		return err
	}
	if e.dead[handle] {
		e.log.Debugf("dropping sm pdu on %d after timeout", handle)
		return ErrTimeout
	}

	e.log.Debugf("rx on %d: %s", handle, hex.EncodeToString(b))
	p := e.procs[handle]

	m, err := pdu.Decode(b)
	if err != nil {
		reason := pdu.ReasonInvalidParameters
		if errors.Cause(err) == pdu.ErrUnknownOpcode {
			reason = pdu.ReasonCommandNotSupported
		}
		e.log.Warnf("rx on %d: %v", handle, err)
		switch {
		case p != nil:
			e.fail(res, p, &PairingError{Reason: reason})
		case reason == pdu.ReasonCommandNotSupported:
			if serr := e.sendPDU(handle, pdu.PairingFailed{Reason: reason}); serr != nil {
				e.log.Warnf("pairing failed not sent: %v", serr)
			}
		}
		return err
	}

	switch m := m.(type) {
	case pdu.PairingRequest:
		return e.onPairingRequest(res, c, p, m)
	case pdu.SecurityRequest:
		return e.onSecurityRequest(res, c, p, m)
	}

	d := dispatcher[m.Opcode()]
	if p == nil {
		if m.Opcode() == pdu.OpPairingFailed {
			return nil
		}
		if serr := e.sendPDU(handle, pdu.PairingFailed{Reason: pdu.ReasonUnspecified}); serr != nil {
			e.log.Warnf("pairing failed not sent: %v", serr)
		}
		return errors.Wrapf(ErrNoProcedure, "%s on %d", d.desc, handle)
	}

	// keypress notifications only once both sides set the keypress flag
	ungated := m.Opcode() == pdu.OpKeypressNotification && p.flags&flagKeypress == 0
	if ungated || !expected(d.states, p.state) {
		e.fail(res, p, &PairingError{Reason: pdu.ReasonUnspecified})
		return errors.Wrapf(ErrUnexpectedPDU, "%s in state %v", d.desc, p.state)
	}

	e.touch(p)
	if err := d.handler(e, res, p, m); err != nil {
		e.fail(res, p, err)
		return err
	}
	return nil
}

func expected(states []procState, s procState) bool {
	if states == nil {
		return true
	}
	for _, v := range states {
		if v == s {
			return true
		}
	}
	return false
}

func onPairingFailed(e *Engine, res *result, p *proc, m pdu.PDU) error {
	r := m.(pdu.PairingFailed).Reason
	p.log.Infof("peer reports pairing failed: %v", r)
	e.fail(res, p, &PairingError{Reason: r, Remote: true})
	return nil
}

func onKeypress(e *Engine, res *result, p *proc, m pdu.PDU) error {
	n := m.(pdu.KeypressNotification).Type
	p.log.Debugf("keypress notification %d", n)
	res.keypress(e, p.handle, n)
	return nil
}

// onSecurityRequest handles a slave's request to secure the link
// [Vol 3, Part H, 2.4.6].
func (e *Engine) onSecurityRequest(res *result, c blesm.ConnInfo, p *proc, m pdu.SecurityRequest) error {
	if c.Role != blesm.RoleMaster {
		if p != nil {
			e.fail(res, p, pairingErr(pdu.ReasonCommandNotSupported))
		} else if err := e.sendPDU(c.Handle, pdu.PairingFailed{Reason: pdu.ReasonCommandNotSupported}); err != nil {
			e.log.Warnf("pairing failed not sent: %v", err)
		}
		return errors.Wrap(ErrRole, "security request")
	}

	if p != nil {
		p.log.Debug("security request ignored, procedure in progress")
		return nil
	}

	peer := c.Peer
	rec, err := e.store.Read(blesm.Query{Kind: blesm.KeyPeer, Peer: &peer})
	if err == nil && len(rec.LTK) == 16 && (m.AuthReq&pdu.AuthReqMITM == 0 || rec.Authenticated) {
		p := e.newProc(c, true)
		return e.restoreEncryption(res, p, rec)
	}

	authReq := e.cfg.AuthReq()
	if m.AuthReq&pdu.AuthReqBond == 0 {
		authReq &^= pdu.AuthReqBondMask
	}
	p = e.newProc(c, true)
	return e.startPairing(res, p, authReq)
}
