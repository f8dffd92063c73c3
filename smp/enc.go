package smp

import (
	"github.com/pkg/errors"
	"github.com/rigado/blesm"
	"github.com/rigado/blesm/hci"
)

// DeliverHCIPacket decodes a controller event packet (no H4 type octet)
// and delivers it.
func (e *Engine) DeliverHCIPacket(b []byte) error {
	evt, err := hci.Decode(b)
	if err != nil {
		return err
	}
	return e.DeliverHCIEvent(evt)
}

// DeliverHCIEvent handles the controller events that drive link
// encryption. A Disconnection Complete ends the link's procedure.
func (e *Engine) DeliverHCIEvent(evt hci.Event) error {
	res := &result{}
	e.mu.Lock()
	err := e.hciEvent(res, evt)
	e.mu.Unlock()
	e.process(res)
	return err
}

func (e *Engine) hciEvent(res *result, evt hci.Event) error {
	switch evt := evt.(type) {
	case hci.EncryptionChange:
		return e.onEncryptionChange(res, evt.ConnectionHandle(), evt.Status(), evt.EncryptionEnabled() != 0)
	case hci.EncryptionKeyRefreshComplete:
		return e.onEncryptionChange(res, evt.ConnectionHandle(), evt.Status(), true)
	case hci.LELongTermKeyRequest:
		return e.onLTKRequest(res, evt)
	case hci.DisconnectionComplete:
		delete(e.dead, evt.ConnectionHandle())
		if p, ok := e.procs[evt.ConnectionHandle()]; ok {
			e.fail(res, p, ErrNotConnected)
		}
		return nil
	}
	return errors.Wrapf(hci.ErrUnknownEvent, "%T", evt)
}

// restoreEncryption encrypts a link as master with a bonded key.
func (e *Engine) restoreEncryption(res *result, p *proc, rec blesm.Record) error {
	p.restored = rec
	p.restored.LTK = copyKey(rec.LTK)
	p.method = blesm.MethodNone
	if err := e.startEncryption(p, rec.Rand, rec.EDiv, rec.LTK, stateEncRestore); err != nil {
		e.fail(res, p, err)
		return err
	}
	p.log.Infof("restoring encryption with %v", rec.Peer)
	return nil
}

func (e *Engine) onLTKRequest(res *result, evt hci.LELongTermKeyRequest) error {
	handle := evt.ConnectionHandle()
	c, err := e.conn(handle)
	if err != nil {
		return err
	}
	if c.Role != blesm.RoleSlave {
		return errors.Wrap(ErrRole, "ltk request")
	}

	p := e.procs[handle]
	switch {
	case p == nil || p.state == stateSecReq:
		if p == nil {
			p = e.newProc(c, false)
		}
		p.state = stateLTKRestore
		return e.restoreLTK(res, p, evt.EncryptedDiversifier(), evt.RandomNumber())

	case p.state == stateLTKStart:
		if err := e.ltkReply(p, p.ltk); err != nil {
			e.fail(res, p, err)
			return err
		}
		p.state = stateEncStart
		return nil
	}

	p.log.Debugf("ltk request ignored in state %v", p.state)
	return nil
}

// restoreLTK answers an LTK request from a bonded key: legacy keys by
// EDIV/Rand, Secure Connections keys by peer address.
func (e *Engine) restoreLTK(res *result, p *proc, ediv uint16, rand uint64) error {
	q := blesm.Query{Kind: blesm.KeyOurs}
	if ediv == 0 && rand == 0 {
		peer := p.conn.Peer
		q.Peer = &peer
	} else {
		q.ByEDivRand, q.EDiv, q.Rand = true, ediv, rand
	}

	rec, err := e.store.Read(q)
	if err == nil && q.Peer != nil && !rec.SC {
		err = blesm.ErrNotFound
	}
	if err != nil || len(rec.LTK) != 16 {
		p.log.Infof("no key for ediv 0x%04x rand 0x%016x", ediv, rand)
		if nerr := e.sendCmd(&hci.LELongTermKeyRequestNegativeReply{ConnectionHandle: p.handle}); nerr != nil {
			p.log.Warnf("negative reply: %v", nerr)
		}
		err := errors.Wrapf(ErrKeyNotFound, "ediv 0x%04x rand 0x%016x", ediv, rand)
		e.fail(res, p, err)
		return err
	}

	if err := e.ltkReply(p, rec.LTK); err != nil {
		e.fail(res, p, err)
		return err
	}
	p.restored = rec
	p.restored.LTK = copyKey(rec.LTK)
	p.state = stateEncRestore
	return nil
}

func (e *Engine) ltkReply(p *proc, ltk []byte) error {
	cmd := &hci.LELongTermKeyRequestReply{ConnectionHandle: p.handle}
	copy(cmd.LongTermKey[:], ltk)
	if err := e.sendCmd(cmd); err != nil {
		return err
	}
	e.touch(p)
	return nil
}

func (e *Engine) onEncryptionChange(res *result, handle uint16, status uint8, enabled bool) error {
	p, ok := e.procs[handle]
	if !ok {
		return nil
	}
	if p.state != stateEncStart && p.state != stateEncRestore {
		p.log.Debugf("encryption change ignored in state %v", p.state)
		return nil
	}

	if status != hci.StatusSuccess {
		e.fail(res, p, &HCIError{Status: status})
		return nil
	}
	if !enabled {
		e.fail(res, p, ErrNotEncrypted)
		return nil
	}

	if p.state == stateEncRestore {
		e.complete(res, p, blesm.SecurityState{
			Encrypted:     true,
			Authenticated: p.restored.Authenticated,
			Bonded:        true,
			KeySize:       p.restored.KeySize,
			Method:        blesm.MethodNone,
		})
		return nil
	}

	if p.flags&flagKeyExchange != 0 {
		if err := e.startKeyExchange(res, p); err != nil {
			e.fail(res, p, err)
			return err
		}
		return nil
	}

	e.complete(res, p, p.securityState(e.persist(p)))
	return nil
}
