package smp

import (
	"github.com/pkg/errors"
	"github.com/rigado/blesm"
	"github.com/rigado/blesm/pdu"
)

// InjectIO hands the application's answer to a procedure. An answer that
// arrives before the procedure needs it is kept until it does.
func (e *Engine) InjectIO(handle uint16, r IOResult) error {
	res := &result{}
	e.mu.Lock()
	err := e.injectIO(res, handle, r)
	e.mu.Unlock()
	e.process(res)
	return err
}

func ioFailReason(a IOAction) pdu.Reason {
	switch a {
	case IONumericComparison:
		return pdu.ReasonNumericCompFailed
	case IOOOB:
		return pdu.ReasonOOBNotAvailable
	}
	return pdu.ReasonPasskeyEntryFailed
}

func (e *Engine) injectIO(res *result, handle uint16, r IOResult) error {
	p, ok := e.procs[handle]
	if !ok {
		return errors.Wrapf(ErrNoProcedure, "handle %d", handle)
	}
	if p.action == IONone {
		return errors.Wrapf(ErrInvalid, "no io expected in state %v", p.state)
	}
	if r.Action != p.action {
		e.fail(res, p, pairingErr(ioFailReason(p.action)))
		return errors.Wrapf(ErrInvalid, "io action %v, expected %v", r.Action, p.action)
	}
	if p.flags&flagIOInjected != 0 {
		return ErrAlreadyDone
	}

	switch r.Action {
	case IOInput, IODisplay:
		if r.Passkey > 999999 {
			e.fail(res, p, pairingErr(pdu.ReasonPasskeyEntryFailed))
			return errors.Wrapf(ErrInvalid, "passkey %d", r.Passkey)
		}
		p.passkey = r.Passkey
		if !p.sc() {
			p.tk = passkeyBlock(r.Passkey)
		}
		p.flags |= flagTKValid

	case IOOOB:
		if len(r.OOB) != 16 {
			e.fail(res, p, pairingErr(pdu.ReasonOOBNotAvailable))
			return errors.Wrapf(ErrInvalid, "oob data length %d", len(r.OOB))
		}
		p.oob = copyKey(r.OOB)
		if !p.sc() {
			p.tk = copyKey(r.OOB)
		}
		p.flags |= flagTKValid

	case IONumericComparison:
		p.flags |= flagIOInjected
		if !r.Confirm {
			e.fail(res, p, pairingErr(pdu.ReasonNumericCompFailed))
			return nil
		}
		p.ncOK = true
	}
	p.flags |= flagIOInjected

	if err := e.resume(p); err != nil {
		e.fail(res, p, err)
		return err
	}
	return nil
}

// resume continues a procedure parked on user input.
func (e *Engine) resume(p *proc) error {
	if p.flags&flagWaitIO == 0 {
		return nil
	}
	p.log.Debugf("resuming in state %v", p.state)

	switch p.state {
	case stateConfirm:
		sent := p.flags&flagConfirmSent != 0
		rx := p.flags&flagRxConfirm != 0
		if p.initiator() && sent || !p.initiator() && !rx {
			return nil
		}
		if !p.sc() {
			return e.legacySendConfirm(p)
		}
		if p.method != blesm.MethodPasskey {
			return nil
		}
		if p.initiator() {
			return e.scSendPasskeyConfirm(p)
		}
		return e.scPasskeyReply(p)

	case stateDHKeyCheck:
		if p.initiator() {
			return e.scSendCheck(p)
		}
		if p.peerCheck != nil {
			return e.scVerifyCheck(p, p.peerCheck)
		}
	}
	return nil
}
