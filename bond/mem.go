package bond

import (
	"sync"

	"github.com/rigado/blesm"
)

// MemStore keeps security records in memory.
type MemStore struct {
	lock    sync.RWMutex
	records []blesm.Record
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (m *MemStore) Read(q blesm.Query) (blesm.Record, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return find(m.records, q)
}

func (m *MemStore) Write(r blesm.Record) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.records = replace(m.records, r)
	return nil
}

func (m *MemStore) Delete(q blesm.Query) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	var err error
	m.records, err = remove(m.records, q)
	return err
}

func (m *MemStore) List() ([]blesm.Record, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return append([]blesm.Record(nil), m.records...), nil
}

func find(rs []blesm.Record, q blesm.Query) (blesm.Record, error) {
	for _, r := range rs {
		if q.Matches(r) {
			return r, nil
		}
	}
	return blesm.Record{}, blesm.ErrNotFound
}

func replace(rs []blesm.Record, r blesm.Record) []blesm.Record {
	out := rs[:0]
	for _, v := range rs {
		if v.Kind == r.Kind && v.Peer == r.Peer {
			continue
		}
		out = append(out, v)
	}
	return append(out, r)
}

func remove(rs []blesm.Record, q blesm.Query) ([]blesm.Record, error) {
	out := rs[:0]
	n := 0
	for _, v := range rs {
		if q.Matches(v) {
			n++
			continue
		}
		out = append(out, v)
	}
	if n == 0 {
		return out, blesm.ErrNotFound
	}
	return out, nil
}
