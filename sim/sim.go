// Package sim connects two security managers over one simulated LE link.
// It stands in for the controllers and the L2CAP fixed channel: SM frames
// and HCI events are queued and delivered by Pump, so engines never call
// each other while holding their locks.
package sim

import (
	"bytes"
	"encoding/hex"
	"sync"

	"github.com/pkg/errors"
	"github.com/rigado/blesm"
	"github.com/rigado/blesm/hci"
	"github.com/rigado/blesm/pdu"
	"github.com/rigado/blesm/smp"
)

// Handle is the connection handle both sides use for the link.
const Handle uint16 = 0x0040

// ErrLinkDown is returned when sending on a disconnected link.
var ErrLinkDown = errors.New("sim: link down")

// Filter may rewrite or drop (by returning nil) a frame in flight.
type Filter func(from *Side, frame []byte) []byte

// Link is one simulated connection.
type Link struct {
	mu     sync.Mutex
	queue  []func() error
	up     bool
	errs   []error
	filter Filter
	log    blesm.Logger

	// LTK the master started encryption with, waiting for the slave's reply
	pendingLTK []byte

	Central    *Side
	Peripheral *Side
}

// Side is one end of the link: its connection table, controller and
// security manager.
type Side struct {
	link  *Link
	peer  *Side
	name  string
	Conns *blesm.ConnMap
	Info  blesm.ConnInfo
	SM    *smp.Engine

	mu       sync.Mutex
	commands []hci.Command
}

// NewLink connects central and peripheral and creates an engine on each
// side with the given options.
func NewLink(central, peripheral blesm.Addr, copts, popts []smp.Option) (*Link, error) {
	l := &Link{
		up:  true,
		log: blesm.GetLogger().ChildLogger(map[string]interface{}{"mod": "sim"}),
	}
	l.Central = l.newSide("central", blesm.RoleMaster, central, peripheral)
	l.Peripheral = l.newSide("peripheral", blesm.RoleSlave, peripheral, central)
	l.Central.peer, l.Peripheral.peer = l.Peripheral, l.Central

	var err error
	if l.Central.SM, err = smp.New(l.Central.Conns, l.Central, l.Central, copts...); err != nil {
		return nil, errors.Wrap(err, "central")
	}
	if l.Peripheral.SM, err = smp.New(l.Peripheral.Conns, l.Peripheral, l.Peripheral, popts...); err != nil {
		return nil, errors.Wrap(err, "peripheral")
	}
	return l, nil
}

func (l *Link) newSide(name string, role blesm.Role, local, peer blesm.Addr) *Side {
	s := &Side{
		link:  l,
		name:  name,
		Conns: blesm.NewConnMap(),
		Info:  blesm.ConnInfo{Handle: Handle, Role: role, Local: local, Peer: peer},
	}
	s.Conns.Add(s.Info)
	return s
}

// SetFilter installs f on every frame sent from now on.
func (l *Link) SetFilter(f Filter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.filter = f
}

func (l *Link) push(fn func() error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = append(l.queue, fn)
}

func (l *Link) pop() func() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue = l.queue[1:]
	return fn
}

// Pump delivers queued traffic, including traffic it causes, until the
// link is idle. It returns the number of deliveries made.
func (l *Link) Pump() int {
	n := 0
	for fn := l.pop(); fn != nil; fn = l.pop() {
		if err := fn(); err != nil {
			l.log.Debugf("delivery: %v", err)
			l.mu.Lock()
			l.errs = append(l.errs, err)
			l.mu.Unlock()
		}
		n++
	}
	return n
}

// Errors returns the errors the engines returned for delivered traffic.
func (l *Link) Errors() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.errs...)
}

// Disconnect drops the link. Queued traffic is discarded and both
// controllers report Disconnection Complete.
func (l *Link) Disconnect(reason uint8) {
	l.mu.Lock()
	l.up = false
	l.queue = nil
	l.pendingLTK = nil
	l.mu.Unlock()

	for _, s := range []*Side{l.Central, l.Peripheral} {
		s.Conns.Remove(Handle)
		evt, err := hci.Decode(hci.NewDisconnectionComplete(hci.StatusSuccess, Handle, reason))
		if err != nil {
			panic(err)
		}
		if err := s.SM.DeliverHCIEvent(evt); err != nil {
			l.log.Warnf("%s disconnect: %v", s.name, err)
		}
	}
}

func (l *Link) isUp() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.up
}

// SendPDU implements smp.Sender: the frame is delivered to the peer.
func (s *Side) SendPDU(handle uint16, frame []byte) error {
	l := s.link
	if !l.isUp() {
		return ErrLinkDown
	}

	l.mu.Lock()
	f := l.filter
	l.mu.Unlock()

	b := append([]byte(nil), frame...)
	if f != nil {
		if b = f(s, b); b == nil {
			l.log.Debugf("%s frame dropped", s.name)
			return nil
		}
	}

	l.log.Debugf("%s -> %s: %s", s.name, s.peer.name, hex.EncodeToString(b))
	peer := s.peer
	l.push(func() error { return peer.SM.DeliverFrame(handle, b) })
	return nil
}

// Send implements smp.HCI as the side's controller.
func (s *Side) Send(cmd hci.Command) error {
	l := s.link
	if !l.isUp() {
		return ErrLinkDown
	}

	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()

	switch c := cmd.(type) {
	case *hci.LEStartEncryption:
		if s.Info.Role != blesm.RoleMaster {
			return errors.New("sim: start encryption on slave")
		}
		l.mu.Lock()
		l.pendingLTK = append([]byte(nil), c.LongTermKey[:]...)
		l.mu.Unlock()
		l.event(s.peer, hci.NewLELongTermKeyRequest(c.ConnectionHandle, c.RandomNumber, c.EncryptedDiversifier))

	case *hci.LELongTermKeyRequestReply:
		l.mu.Lock()
		match := bytes.Equal(l.pendingLTK, c.LongTermKey[:])
		l.pendingLTK = nil
		l.mu.Unlock()
		if !match {
			// keys differ: the link layer cannot decrypt and drops the link
			l.event(s.peer, hci.NewEncryptionChange(hci.StatusConnectionTerminatedMIC, c.ConnectionHandle, 0))
			l.event(s, hci.NewEncryptionChange(hci.StatusConnectionTerminatedMIC, c.ConnectionHandle, 0))
			return nil
		}
		l.event(s.peer, hci.NewEncryptionChange(hci.StatusSuccess, c.ConnectionHandle, 1))
		l.event(s, hci.NewEncryptionChange(hci.StatusSuccess, c.ConnectionHandle, 1))

	case *hci.LELongTermKeyRequestNegativeReply:
		l.mu.Lock()
		l.pendingLTK = nil
		l.mu.Unlock()
		l.event(s.peer, hci.NewEncryptionChange(hci.StatusPINOrKeyMissing, c.ConnectionHandle, 0))

	case *hci.LEAddDeviceToResolvingList:
	default:
		return errors.Errorf("sim: unsupported command 0x%04x", cmd.OpCode())
	}
	return nil
}

func (l *Link) event(to *Side, b []byte) {
	l.push(func() error { return to.SM.DeliverHCIPacket(b) })
}

// Commands returns the HCI commands the side's engine issued.
func (s *Side) Commands() []hci.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]hci.Command(nil), s.commands...)
}

// SecurityState is the side's view of the link security.
func (s *Side) SecurityState() blesm.SecurityState {
	st, _ := s.Conns.SecurityState(Handle)
	return st
}

func (s *Side) String() string {
	return s.name
}

// Opcode returns the SM opcode carried by a frame, for filters.
func Opcode(frame []byte) (pdu.Opcode, bool) {
	b, err := pdu.Unframe(frame)
	if err != nil || len(b) == 0 {
		return 0, false
	}
	return pdu.Opcode(b[0]), true
}
