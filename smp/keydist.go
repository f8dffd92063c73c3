package smp

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/rigado/blesm"
	"github.com/rigado/blesm/hci"
	"github.com/rigado/blesm/pdu"
)

// startKeyExchange enters phase 3 on an encrypted link. The responder
// distributes first; the initiator follows once it has everything it
// expects.
func (e *Engine) startKeyExchange(res *result, p *proc) error {
	p.state = stateKeyExch
	p.rxKeys = keyBits(p.peerDist, p.sc())
	e.touch(p)

	if !p.initiator() || p.rxKeys == 0 {
		if err := e.sendKeys(p); err != nil {
			return err
		}
	}
	return e.checkKeyExchange(res, p)
}

func (e *Engine) sendKeys(p *proc) error {
	p.ourKeys = blesm.Record{Kind: blesm.KeyOurs, KeySize: p.keySize}

	if p.ourDist&pdu.KeyDistEnc != 0 && !p.sc() {
		ltk, err := e.rand16()
		if err != nil {
			return err
		}
		ltk = truncateKey(ltk, p.keySize)
		r, err := e.alg.Rand(10)
		if err != nil {
			return err
		}
		ident := pdu.MasterIdent{
			EDiv: binary.LittleEndian.Uint16(r[0:]),
			Rand: binary.LittleEndian.Uint64(r[2:]),
		}

		var info pdu.EncryptionInfo
		copy(info.LTK[:], ltk)
		if err := e.send(p, info); err != nil {
			return err
		}
		if err := e.send(p, ident); err != nil {
			return err
		}
		p.ourKeys.LTK = ltk
		p.ourKeys.EDiv = ident.EDiv
		p.ourKeys.Rand = ident.Rand
	}

	if p.ourDist&pdu.KeyDistID != 0 {
		var info pdu.IdentityInfo
		copy(info.IRK[:], e.irk)
		if err := e.send(p, info); err != nil {
			return err
		}

		id := e.identity
		if id.IsZero() {
			id = p.conn.Local
		}
		if err := e.send(p, pdu.IdentityAddrInfo{AddrType: uint8(id.Type), Addr: id.MAC}); err != nil {
			return err
		}
		p.ourKeys.IRK = append([]byte(nil), e.irk...)
	}

	if p.ourDist&pdu.KeyDistSign != 0 {
		csrk, err := e.rand16()
		if err != nil {
			return err
		}
		var info pdu.SigningInfo
		copy(info.CSRK[:], csrk)
		if err := e.send(p, info); err != nil {
			return err
		}
		p.ourKeys.CSRK = csrk
	}

	p.flags |= flagKeysSent
	return nil
}

func onKeyPDU(e *Engine, res *result, p *proc, m pdu.PDU) error {
	var bit uint8
	switch m.(type) {
	case pdu.EncryptionInfo:
		bit = keyEncInfo
	case pdu.MasterIdent:
		bit = keyMasterIdent
	case pdu.IdentityInfo:
		bit = keyIDInfo
	case pdu.IdentityAddrInfo:
		bit = keyIDAddrInfo
	case pdu.SigningInfo:
		bit = keySignInfo
	}
	if p.rxKeys&bit == 0 {
		return errors.Wrapf(pairingErr(pdu.ReasonUnspecified), "%v not expected", m.Opcode())
	}
	if a, ok := m.(pdu.IdentityAddrInfo); ok && a.AddrType > uint8(blesm.AddrRandom) {
		return errors.Wrapf(pairingErr(pdu.ReasonInvalidParameters), "identity address type 0x%02x", a.AddrType)
	}
	p.rxKeys &^= bit

	switch m := m.(type) {
	case pdu.EncryptionInfo:
		p.peerKeys.LTK = append([]byte(nil), m.LTK[:]...)
	case pdu.MasterIdent:
		p.peerKeys.EDiv = m.EDiv
		p.peerKeys.Rand = m.Rand
	case pdu.IdentityInfo:
		p.peerKeys.IRK = append([]byte(nil), m.IRK[:]...)
	case pdu.IdentityAddrInfo:
		a := blesm.NewAddrLE(blesm.AddrType(m.AddrType), m.Addr[:])
		p.peerID = &a
	case pdu.SigningInfo:
		p.peerKeys.CSRK = append([]byte(nil), m.CSRK[:]...)
	}

	if p.initiator() && p.rxKeys == 0 && p.flags&flagKeysSent == 0 {
		if err := e.sendKeys(p); err != nil {
			return err
		}
	}
	return e.checkKeyExchange(res, p)
}

// checkKeyExchange completes the procedure once both directions are done.
func (e *Engine) checkKeyExchange(res *result, p *proc) error {
	if p.rxKeys != 0 || p.flags&flagKeysSent == 0 {
		return nil
	}

	bonded := e.persist(p)
	if p.peerKeys.IRK != nil {
		e.addToResolvingList(p)
	}
	e.complete(res, p, p.securityState(bonded))
	return nil
}

func (p *proc) securityState(bonded bool) blesm.SecurityState {
	return blesm.SecurityState{
		Encrypted:     true,
		Authenticated: p.authenticated(),
		Bonded:        bonded,
		KeySize:       p.keySize,
		Method:        p.method,
	}
}

// peerAddr is the address bonds with this peer are kept under.
func (p *proc) peerAddr() blesm.Addr {
	if p.peerID != nil {
		return *p.peerID
	}
	return p.conn.Peer
}

func copyKey(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// persist writes the bond records of a completed pairing and reports
// whether anything was stored.
func (e *Engine) persist(p *proc) bool {
	if p.flags&flagBonded == 0 {
		return false
	}

	peer := p.peerAddr()
	ours := blesm.Record{
		Kind:          blesm.KeyOurs,
		Peer:          peer,
		EDiv:          p.ourKeys.EDiv,
		Rand:          p.ourKeys.Rand,
		LTK:           copyKey(p.ourKeys.LTK),
		KeySize:       p.keySize,
		IRK:           copyKey(p.ourKeys.IRK),
		CSRK:          copyKey(p.ourKeys.CSRK),
		Authenticated: p.authenticated(),
		SC:            p.sc(),
	}
	theirs := blesm.Record{
		Kind:          blesm.KeyPeer,
		Peer:          peer,
		EDiv:          p.peerKeys.EDiv,
		Rand:          p.peerKeys.Rand,
		LTK:           copyKey(p.peerKeys.LTK),
		KeySize:       p.keySize,
		IRK:           copyKey(p.peerKeys.IRK),
		CSRK:          copyKey(p.peerKeys.CSRK),
		Authenticated: p.authenticated(),
		SC:            p.sc(),
	}
	if p.sc() {
		ours.LTK, ours.EDiv, ours.Rand = copyKey(p.ltk), 0, 0
		theirs.LTK, theirs.EDiv, theirs.Rand = copyKey(p.ltk), 0, 0
	}

	stored := false
	for _, r := range []blesm.Record{ours, theirs} {
		if r.LTK == nil && r.IRK == nil && r.CSRK == nil {
			continue
		}
		if err := e.store.Write(r); err != nil {
			p.log.Errorf("bond for %v not stored: %v", peer, err)
			continue
		}
		stored = true
	}
	if stored {
		p.log.Infof("bonded with %v", peer)
	}
	return stored
}

func (e *Engine) addToResolvingList(p *proc) {
	id := p.peerAddr()
	cmd := &hci.LEAddDeviceToResolvingList{
		PeerIdentityAddressType: uint8(id.Type),
		PeerIdentityAddress:     id.MAC,
	}
	copy(cmd.PeerIRK[:], p.peerKeys.IRK)
	copy(cmd.LocalIRK[:], e.irk)
	if err := e.sendCmd(cmd); err != nil {
		p.log.Warnf("resolving list not updated: %v", err)
	}
}
