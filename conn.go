package blesm

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// Role is the link-layer role of the local device on a connection.
type Role uint8

const (
	RoleMaster Role = iota
	RoleSlave
)

func (r Role) String() string {
	if r == RoleMaster {
		return "master"
	}
	return "slave"
}

// PairingMethod is the association model a pairing used.
type PairingMethod uint8

const (
	MethodNone PairingMethod = iota
	MethodJustWorks
	MethodPasskey
	MethodNumericComparison
	MethodOOB
)

var pairingMethodStrings = map[PairingMethod]string{
	MethodNone:              "none",
	MethodJustWorks:         "just works",
	MethodPasskey:           "passkey entry",
	MethodNumericComparison: "numeric comparison",
	MethodOOB:               "out of band",
}

func (m PairingMethod) String() string {
	if s, ok := pairingMethodStrings[m]; ok {
		return s
	}
	return fmt.Sprintf("method(%d)", uint8(m))
}

// SecurityState is the security state of a link.
type SecurityState struct {
	Encrypted     bool
	Authenticated bool
	Bonded        bool
	KeySize       uint8
	Method        PairingMethod
}

// ConnInfo describes a link the security manager runs on.
type ConnInfo struct {
	Handle uint16
	Role   Role
	Local  Addr
	Peer   Addr
}

// ConnTable gives the security manager access to the links it serves.
// The security manager is the only writer of a link's SecurityState.
type ConnTable interface {
	Conn(handle uint16) (ConnInfo, bool)
	SecurityState(handle uint16) (SecurityState, bool)
	SetSecurityState(handle uint16, st SecurityState) error
}

// ErrUnknownConn is returned for a handle with no link.
var ErrUnknownConn = errors.New("unknown connection")

type connEntry struct {
	info ConnInfo
	sec  SecurityState
}

// ConnMap is a mutex guarded ConnTable.
type ConnMap struct {
	sync.RWMutex
	conns map[uint16]*connEntry
}

func NewConnMap() *ConnMap {
	return &ConnMap{conns: make(map[uint16]*connEntry)}
}

// Add registers a link, replacing any previous link on the same handle.
func (m *ConnMap) Add(info ConnInfo) {
	m.Lock()
	defer m.Unlock()
	m.conns[info.Handle] = &connEntry{info: info}
}

func (m *ConnMap) Remove(handle uint16) {
	m.Lock()
	defer m.Unlock()
	delete(m.conns, handle)
}

func (m *ConnMap) Conn(handle uint16) (ConnInfo, bool) {
	m.RLock()
	defer m.RUnlock()
	e, ok := m.conns[handle]
	if !ok {
		return ConnInfo{}, false
	}
	return e.info, true
}

func (m *ConnMap) SetSecurityState(handle uint16, st SecurityState) error {
	m.Lock()
	defer m.Unlock()
	e, ok := m.conns[handle]
	if !ok {
		return errors.Wrapf(ErrUnknownConn, "handle %d", handle)
	}
	e.sec = st
	return nil
}

func (m *ConnMap) SecurityState(handle uint16) (SecurityState, bool) {
	m.RLock()
	defer m.RUnlock()
	e, ok := m.conns[handle]
	if !ok {
		return SecurityState{}, false
	}
	return e.sec, true
}
