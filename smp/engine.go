// Package smp is the LE Security Manager: the pairing procedure state
// machine of [Vol 3, Part H] bridged to HCI link encryption, to the
// application's I/O capabilities and to a bonding store.
package smp

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/blesm"
	"github.com/rigado/blesm/alg"
	"github.com/rigado/blesm/bond"
	"github.com/rigado/blesm/hci"
	"github.com/rigado/blesm/pdu"
)

// Engine runs the pairing procedures of every link of a host. One lock
// serialises all entry points; application callbacks run after it is
// released.
type Engine struct {
	mu sync.Mutex

	cfg    blesm.Config
	conns  blesm.ConnTable
	hci    HCI
	tx     Sender
	store  blesm.Store
	io     IOHandler
	events EventHandler
	alg    *alg.Suite
	log    blesm.Logger
	now    func() time.Time

	keyPair  *alg.KeyPair
	irk      []byte
	identity blesm.Addr

	procs map[uint16]*proc
	// links where a procedure timed out; no SM traffic until reconnect
	dead map[uint16]bool
}

// New creates an engine serving the links of conns.
func New(conns blesm.ConnTable, h HCI, tx Sender, opts ...Option) (*Engine, error) {
	if conns == nil || h == nil || tx == nil {
		return nil, errors.Wrap(ErrInvalid, "smp: missing collaborator")
	}

	e := &Engine{
		cfg:    blesm.DefaultConfig(),
		conns:  conns,
		hci:    h,
		tx:     tx,
		store:  bond.NewMemStore(),
		io:     nopIO{},
		events: nopEvents{},
		alg:    alg.NewSuite(nil),
		log:    blesm.GetLogger().ChildLogger(map[string]interface{}{"mod": "smp"}),
		now:    time.Now,
		procs:  make(map[uint16]*proc),
		dead:   make(map[uint16]bool),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	if e.irk == nil {
		irk, err := e.alg.Rand(16)
		if err != nil {
			return nil, errors.Wrap(err, "smp: irk")
		}
		e.irk = irk
	}

	return e, nil
}

// Config returns the engine's pairing configuration.
func (e *Engine) Config() blesm.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// NumProcs returns the number of procedures in progress.
func (e *Engine) NumProcs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.procs)
}

// result collects the application callbacks produced under the engine
// lock. process runs them in order once the lock is released.
type result struct {
	calls []func()
}

func (r *result) ioRequest(e *Engine, handle uint16, req IORequest) {
	h := e.io
	r.calls = append(r.calls, func() { h.RequestIO(handle, req) })
}

func (r *result) keypress(e *Engine, handle uint16, n uint8) {
	h := e.io
	r.calls = append(r.calls, func() { h.PasskeyNotify(handle, n) })
}

func (r *result) event(e *Engine, handle uint16, ev SecurityEvent) {
	h := e.events
	r.calls = append(r.calls, func() { h.OnSecurityEvent(handle, ev) })
}

func (e *Engine) process(res *result) {
	for _, c := range res.calls {
		c()
	}
}

func (e *Engine) newProc(c blesm.ConnInfo, initiator bool) *proc {
	p := &proc{
		handle: c.Handle,
		conn:   c,
		log:    e.log.ChildLogger(map[string]interface{}{"conn": c.Handle}),
	}
	if initiator {
		p.flags |= flagInitiator
	}
	e.procs[c.Handle] = p
	e.touch(p)
	return p
}

// touch restarts the procedure timer [Vol 3, Part H, 3.4].
func (e *Engine) touch(p *proc) {
	p.expires = e.now().Add(e.cfg.Timeout)
}

func (e *Engine) conn(handle uint16) (blesm.ConnInfo, error) {
	c, ok := e.conns.Conn(handle)
	if !ok {
		return c, errors.Wrapf(ErrNotConnected, "handle %d", handle)
	}
	return c, nil
}

func (e *Engine) sendPDU(handle uint16, p pdu.PDU) error {
	b, err := pdu.Frame(p)
	if err != nil {
		return err
	}
	e.log.Debugf("tx %v on %d: %s", p.Opcode(), handle, hex.EncodeToString(b))
	return errors.Wrapf(e.tx.SendPDU(handle, b), "send %v", p.Opcode())
}

func (e *Engine) send(p *proc, m pdu.PDU) error {
	if err := e.sendPDU(p.handle, m); err != nil {
		return err
	}
	e.touch(p)
	return nil
}

func (e *Engine) sendCmd(c hci.Command) error {
	e.log.Debugf("hci cmd 0x%04x", c.OpCode())
	return errors.Wrapf(e.hci.Send(c), "hci cmd 0x%04x", c.OpCode())
}

func (e *Engine) rand16() ([]byte, error) {
	return e.alg.Rand(16)
}

// fail ends a procedure with an error. Local protocol failures are
// reported to the peer while the link is up; the link's security state is
// left as it was.
func (e *Engine) fail(res *result, p *proc, err error) {
	if e.procs[p.handle] != p {
		return
	}

	if r, ok := localReason(err); ok {
		if _, up := e.conns.Conn(p.handle); up {
			if serr := e.sendPDU(p.handle, pdu.PairingFailed{Reason: r}); serr != nil {
				p.log.Warnf("pairing failed not sent: %v", serr)
			}
		}
	}

	p.log.Infof("procedure failed in state %v: %v", p.state, err)
	e.remove(p)

	st, _ := e.conns.SecurityState(p.handle)
	res.event(e, p.handle, SecurityEvent{Err: err, State: st})
}

// complete ends a procedure successfully and publishes the new link state.
func (e *Engine) complete(res *result, p *proc, st blesm.SecurityState) {
	if e.procs[p.handle] != p {
		return
	}

	e.remove(p)
	if err := e.conns.SetSecurityState(p.handle, st); err != nil {
		p.log.Warnf("security state not updated: %v", err)
	}

	p.log.Infof("procedure complete: encrypted %v authenticated %v bonded %v", st.Encrypted, st.Authenticated, st.Bonded)
	res.event(e, p.handle, SecurityEvent{State: st})
}

func (e *Engine) remove(p *proc) {
	delete(e.procs, p.handle)
	p.zero()
}

// Initiate starts security on a link where the local device is master. A
// peer already bonded is encrypted with the stored key, otherwise pairing
// starts with a Pairing Request.
func (e *Engine) Initiate(handle uint16) error {
	res := &result{}
	e.mu.Lock()
	err := e.initiate(res, handle)
	e.mu.Unlock()
	e.process(res)
	return err
}

func (e *Engine) initiate(res *result, handle uint16) error {
	c, err := e.conn(handle)
	if err != nil {
		return err
	}
	if c.Role != blesm.RoleMaster {
		return errors.Wrap(ErrRole, "initiate")
	}
	if e.dead[handle] {
		return errors.Wrap(ErrTimeout, "initiate")
	}
	if _, ok := e.procs[handle]; ok {
		return ErrAlreadyInProgress
	}

	if e.cfg.Bonding {
		peer := c.Peer
		rec, err := e.store.Read(blesm.Query{Kind: blesm.KeyPeer, Peer: &peer})
		if err == nil && len(rec.LTK) == 16 {
			p := e.newProc(c, true)
			return e.restoreEncryption(res, p, rec)
		}
	}

	p := e.newProc(c, true)
	return e.startPairing(res, p, e.cfg.AuthReq())
}

// SlaveSecurityRequest asks the master of a link to secure it. The bonding
// and MITM bits of authReq also apply to the pairing that follows on this
// link, on top of the engine configuration.
func (e *Engine) SlaveSecurityRequest(handle uint16, authReq uint8) error {
	res := &result{}
	e.mu.Lock()
	err := e.slaveSecurityRequest(res, handle, authReq)
	e.mu.Unlock()
	e.process(res)
	return err
}

func (e *Engine) slaveSecurityRequest(res *result, handle uint16, authReq uint8) error {
	if authReq&pdu.AuthReqReserved != 0 {
		return errors.Wrapf(ErrInvalid, "security request auth req 0x%02x", authReq)
	}
	c, err := e.conn(handle)
	if err != nil {
		return err
	}
	if c.Role != blesm.RoleSlave {
		return errors.Wrap(ErrRole, "security request")
	}
	if e.dead[handle] {
		return errors.Wrap(ErrTimeout, "security request")
	}
	if _, ok := e.procs[handle]; ok {
		return ErrAlreadyInProgress
	}

	p := e.newProc(c, false)
	p.state = stateSecReq
	p.secReq = authReq
	if err := e.send(p, pdu.SecurityRequest{AuthReq: authReq}); err != nil {
		e.fail(res, p, err)
		return err
	}
	return nil
}

// ConnectionBroken ends the procedure of a link that went down.
func (e *Engine) ConnectionBroken(handle uint16) {
	res := &result{}
	e.mu.Lock()
	delete(e.dead, handle)
	if p, ok := e.procs[handle]; ok {
		e.fail(res, p, ErrNotConnected)
	}
	e.mu.Unlock()
	e.process(res)
}
