package blesm

import (
	"github.com/pkg/errors"
)

// KeyKind tells whose keys a Record holds.
type KeyKind uint8

const (
	// KeyOurs are keys the local device distributed. A slave answers LTK
	// requests from them.
	KeyOurs KeyKind = iota
	// KeyPeer are keys the peer distributed. A master starts encryption
	// with them.
	KeyPeer
)

func (k KeyKind) String() string {
	if k == KeyOurs {
		return "ours"
	}
	return "peer"
}

// Record is one bonded security record.
type Record struct {
	Kind          KeyKind
	Peer          Addr
	EDiv          uint16
	Rand          uint64
	LTK           []byte
	KeySize       uint8
	IRK           []byte
	CSRK          []byte
	Authenticated bool
	SC            bool
}

// Query selects records. Peer and EDiv/Rand are only compared when set.
type Query struct {
	Kind       KeyKind
	Peer       *Addr
	ByEDivRand bool
	EDiv       uint16
	Rand       uint64
}

func (q Query) Matches(r Record) bool {
	if q.Kind != r.Kind {
		return false
	}
	if q.Peer != nil && *q.Peer != r.Peer {
		return false
	}
	if q.ByEDivRand && (q.EDiv != r.EDiv || q.Rand != r.Rand) {
		return false
	}
	return true
}

// Store persists security records. Write replaces any record with the
// same kind and peer.
type Store interface {
	Read(q Query) (Record, error)
	Write(r Record) error
	Delete(q Query) error
}

// ErrNotFound is returned by a Store when no record matches.
var ErrNotFound = errors.New("security record not found")
