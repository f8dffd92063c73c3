package smp

import (
	"github.com/pkg/errors"
	"github.com/rigado/blesm"
	"github.com/rigado/blesm/pdu"
)

const (
	jw = blesm.MethodJustWorks
	pk = blesm.MethodPasskey
	nc = blesm.MethodNumericComparison
)

// Association models indexed [responder io cap][initiator io cap]
// [Vol 3, Part H, 2.3.5.1, Table 2.8].
var ioCapsTableSC = [5][5]blesm.PairingMethod{
	{jw, jw, pk, jw, pk},
	{jw, nc, pk, jw, nc},
	{pk, pk, pk, jw, pk},
	{jw, jw, jw, jw, jw},
	{pk, nc, pk, jw, nc},
}

var ioCapsTableLegacy = [5][5]blesm.PairingMethod{
	{jw, jw, pk, jw, pk},
	{jw, jw, pk, jw, pk},
	{pk, pk, pk, jw, pk},
	{jw, jw, jw, jw, jw},
	{pk, pk, pk, jw, pk},
}

const (
	non = IONone
	inp = IOInput
	dsp = IODisplay
)

// Passkey roles indexed like the association tables.
var passkeyInitAction = [5][5]IOAction{
	{non, non, inp, non, inp},
	{non, non, inp, non, inp},
	{dsp, dsp, inp, non, dsp},
	{non, non, non, non, non},
	{dsp, dsp, inp, non, dsp},
}

var passkeyRespAction = [5][5]IOAction{
	{non, non, dsp, non, dsp},
	{non, non, dsp, non, dsp},
	{inp, inp, inp, non, inp},
	{non, non, non, non, non},
	{inp, inp, dsp, non, inp},
}

func validatePairCmd(c pdu.PairCmd) error {
	switch {
	case c.IOCap >= pdu.IOCapReservedStart,
		c.OOBFlag >= pdu.OOBReservedStart,
		c.AuthReq&pdu.AuthReqReserved != 0,
		c.MaxKeySize < pdu.MinKeySize || c.MaxKeySize > pdu.MaxKeySize,
		c.InitKeyDist&pdu.KeyDistReserved != 0,
		c.RespKeyDist&pdu.KeyDistReserved != 0:
		return errors.Wrapf(pairingErr(pdu.ReasonInvalidParameters), "pairing command %+v", c)
	}
	return nil
}

func selectMethod(req, rsp pdu.PairCmd, sc bool) blesm.PairingMethod {
	if sc {
		if req.OOBFlag == pdu.OOBPresent || rsp.OOBFlag == pdu.OOBPresent {
			return blesm.MethodOOB
		}
	} else if req.OOBFlag == pdu.OOBPresent && rsp.OOBFlag == pdu.OOBPresent {
		return blesm.MethodOOB
	}

	if req.AuthReq&pdu.AuthReqMITM == 0 && rsp.AuthReq&pdu.AuthReqMITM == 0 {
		return blesm.MethodJustWorks
	}

	if sc {
		return ioCapsTableSC[rsp.IOCap][req.IOCap]
	}
	return ioCapsTableLegacy[rsp.IOCap][req.IOCap]
}

// negotiate settles phase 1 once both pairing commands are known.
func (e *Engine) negotiate(p *proc) error {
	req, rsp := p.pairReq, p.pairRsp

	sc := req.AuthReq&pdu.AuthReqSC != 0 && rsp.AuthReq&pdu.AuthReqSC != 0
	if e.cfg.SCOnly && !sc {
		return errors.Wrap(pairingErr(pdu.ReasonAuthRequirements), "secure connections required")
	}
	if sc {
		p.flags |= flagSC
	}

	p.keySize = req.MaxKeySize
	if rsp.MaxKeySize < p.keySize {
		p.keySize = rsp.MaxKeySize
	}
	if p.keySize < e.cfg.MinKeySize {
		return errors.Wrapf(pairingErr(pdu.ReasonEncryptionKeySize), "key size %d", p.keySize)
	}

	p.method = selectMethod(req, rsp, sc)
	if (e.cfg.MITM || p.secReq&pdu.AuthReqMITM != 0) && p.method == blesm.MethodJustWorks {
		return errors.Wrap(pairingErr(pdu.ReasonAuthRequirements), "mitm protection unavailable")
	}

	if req.AuthReq&pdu.AuthReqKeypress != 0 && rsp.AuthReq&pdu.AuthReqKeypress != 0 {
		p.flags |= flagKeypress
	}

	if req.AuthReq&pdu.AuthReqBond != 0 && rsp.AuthReq&pdu.AuthReqBond != 0 {
		p.flags |= flagBonded
		initDist := rsp.InitKeyDist &^ pdu.KeyDistLink
		respDist := rsp.RespKeyDist &^ pdu.KeyDistLink
		if p.initiator() {
			p.ourDist, p.peerDist = initDist, respDist
		} else {
			p.ourDist, p.peerDist = respDist, initDist
		}
		if initDist|respDist != 0 {
			p.flags |= flagKeyExchange
		}
	}

	switch p.method {
	case blesm.MethodPasskey:
		if p.initiator() {
			p.action = passkeyInitAction[rsp.IOCap][req.IOCap]
		} else {
			p.action = passkeyRespAction[rsp.IOCap][req.IOCap]
		}
	case blesm.MethodNumericComparison:
		p.action = IONumericComparison
	case blesm.MethodOOB:
		p.action = IOOOB
	default:
		p.action = IONone
	}

	p.log.Infof("pairing method %v sc %v key size %d action %v", p.method, sc, p.keySize, p.action)
	return nil
}

// startPairing sends our Pairing Request and waits for the response.
func (e *Engine) startPairing(res *result, p *proc, authReq uint8) error {
	req := pdu.PairCmd{
		IOCap:      e.cfg.IOCap,
		OOBFlag:    e.cfg.OOBFlag(),
		AuthReq:    authReq,
		MaxKeySize: e.cfg.MaxKeySize,
	}
	if authReq&pdu.AuthReqBond != 0 {
		req.InitKeyDist = e.cfg.OurKeyDist
		req.RespKeyDist = e.cfg.TheirKeyDist
	}

	p.pairReq = req
	p.state = statePair
	if err := e.send(p, pdu.PairingRequest{PairCmd: req}); err != nil {
		e.fail(res, p, err)
		return err
	}
	return nil
}

func (e *Engine) onPairingRequest(res *result, c blesm.ConnInfo, p *proc, m pdu.PairingRequest) error {
	if c.Role == blesm.RoleMaster {
		if p != nil {
			e.fail(res, p, pairingErr(pdu.ReasonCommandNotSupported))
		} else if err := e.sendPDU(c.Handle, pdu.PairingFailed{Reason: pdu.ReasonCommandNotSupported}); err != nil {
			e.log.Warnf("pairing failed not sent: %v", err)
		}
		return errors.Wrap(ErrRole, "pairing request")
	}

	if p != nil && p.state != stateSecReq {
		if err := e.sendPDU(c.Handle, pdu.PairingFailed{Reason: pdu.ReasonUnspecified}); err != nil {
			e.log.Warnf("pairing failed not sent: %v", err)
		}
		return ErrAlreadyInProgress
	}

	if p == nil {
		p = e.newProc(c, false)
	}
	e.touch(p)
	p.state = statePair

	if err := validatePairCmd(m.PairCmd); err != nil {
		e.fail(res, p, err)
		return err
	}
	p.pairReq = m.PairCmd

	rsp := pdu.PairCmd{
		IOCap:      e.cfg.IOCap,
		OOBFlag:    e.cfg.OOBFlag(),
		AuthReq:    e.cfg.AuthReq() | p.secReq&(pdu.AuthReqBond|pdu.AuthReqMITM),
		MaxKeySize: e.cfg.MaxKeySize,
	}
	if rsp.AuthReq&pdu.AuthReqBond != 0 && m.AuthReq&pdu.AuthReqBond != 0 {
		rsp.InitKeyDist = m.InitKeyDist & e.cfg.TheirKeyDist &^ pdu.KeyDistLink
		rsp.RespKeyDist = m.RespKeyDist & e.cfg.OurKeyDist &^ pdu.KeyDistLink
	}
	p.pairRsp = rsp

	if err := e.negotiate(p); err != nil {
		e.fail(res, p, err)
		return err
	}

	if err := e.send(p, pdu.PairingResponse{PairCmd: rsp}); err != nil {
		e.fail(res, p, err)
		return err
	}

	if err := e.startPhase2(res, p); err != nil {
		e.fail(res, p, err)
		return err
	}
	return nil
}

func onPairingResponse(e *Engine, res *result, p *proc, m pdu.PDU) error {
	rsp := m.(pdu.PairingResponse).PairCmd
	if !p.initiator() {
		return pairingErr(pdu.ReasonCommandNotSupported)
	}
	if err := validatePairCmd(rsp); err != nil {
		return err
	}
	if rsp.InitKeyDist&^p.pairReq.InitKeyDist != 0 || rsp.RespKeyDist&^p.pairReq.RespKeyDist != 0 {
		return errors.Wrap(pairingErr(pdu.ReasonInvalidParameters), "key distribution not requested")
	}

	p.pairRsp = rsp
	if err := e.negotiate(p); err != nil {
		return err
	}
	return e.startPhase2(res, p)
}

// startPhase2 enters key agreement once both pairing commands are settled.
func (e *Engine) startPhase2(res *result, p *proc) error {
	if p.action == IOInput || p.action == IODisplay || p.action == IOOOB {
		res.ioRequest(e, p.handle, IORequest{Action: p.action})
	}

	if p.sc() {
		return e.scStart(p)
	}
	return e.legacyStart(p)
}
