// Package bond persists security records for bonded peers.
package bond

import (
	"encoding/binary"
	"encoding/hex"
	"io/ioutil"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rigado/blesm"
)

type bondInfo struct {
	Bonds []keyInfo `json:"bonds"`
}

type keyInfo struct {
	Kind                  string `json:"kind"`
	Address               string `json:"address"`
	AddressType           uint8  `json:"addressType"`
	LongTermKey           string `json:"longTermKey"`
	EncryptionDiversifier string `json:"encryptionDiversifier"`
	RandomValue           string `json:"randomValue"`
	KeySize               uint8  `json:"keySize"`
	IdentityResolvingKey  string `json:"irk,omitempty"`
	SigningKey            string `json:"csrk,omitempty"`
	Authenticated         bool   `json:"authenticated"`
	SecureConnections     bool   `json:"secureConnections"`
}

// FileStore keeps security records in a JSON file. Every operation reads
// the file back so several processes may share it.
type FileStore struct {
	filename string
	lock     sync.RWMutex
}

func NewFileStore(filename string) *FileStore {
	return &FileStore{filename: filename}
}

func (fs *FileStore) Read(q blesm.Query) (blesm.Record, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	rs, err := fs.load()
	if err != nil {
		return blesm.Record{}, err
	}
	return find(rs, q)
}

func (fs *FileStore) Write(r blesm.Record) error {
	if r.LTK != nil && len(r.LTK) != 16 {
		return errors.Errorf("invalid ltk length %d", len(r.LTK))
	}

	fs.lock.Lock()
	defer fs.lock.Unlock()

	rs, err := fs.load()
	if err != nil {
		return err
	}
	return fs.store(replace(rs, r))
}

func (fs *FileStore) Delete(q blesm.Query) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	rs, err := fs.load()
	if err != nil {
		return err
	}

	rs, err = remove(rs, q)
	if err != nil {
		return err
	}
	return fs.store(rs)
}

func (fs *FileStore) List() ([]blesm.Record, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return fs.load()
}

// Clear removes the backing file.
func (fs *FileStore) Clear() error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	err := os.Remove(fs.filename)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (fs *FileStore) load() ([]blesm.Record, error) {
	_, err := os.Stat(fs.filename)
	if os.IsNotExist(err) {
		return nil, nil
	}

	in, err := ioutil.ReadFile(fs.filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read bond file information")
	}

	var bonds bondInfo
	if len(in) > 0 {
		if err := jsoniter.Unmarshal(in, &bonds); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal current bond info")
		}
	}

	rs := make([]blesm.Record, 0, len(bonds.Bonds))
	for _, b := range bonds.Bonds {
		r, err := b.record()
		if err != nil {
			return nil, errors.Wrapf(err, "bond %s", b.Address)
		}
		rs = append(rs, r)
	}
	return rs, nil
}

func (fs *FileStore) store(rs []blesm.Record) error {
	bonds := bondInfo{Bonds: make([]keyInfo, 0, len(rs))}
	for _, r := range rs {
		bonds.Bonds = append(bonds.Bonds, newKeyInfo(r))
	}

	out, err := jsoniter.MarshalIndent(bonds, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal bonds to json")
	}

	if err := ioutil.WriteFile(fs.filename, out, 0600); err != nil {
		return errors.Wrap(err, "failed to update bond information")
	}
	return nil
}

func newKeyInfo(r blesm.Record) keyInfo {
	eDiv := make([]byte, 2)
	binary.LittleEndian.PutUint16(eDiv, r.EDiv)

	randVal := make([]byte, 8)
	binary.LittleEndian.PutUint64(randVal, r.Rand)

	return keyInfo{
		Kind:                  r.Kind.String(),
		Address:               r.Peer.String(),
		AddressType:           uint8(r.Peer.Type),
		LongTermKey:           hex.EncodeToString(r.LTK),
		EncryptionDiversifier: hex.EncodeToString(eDiv),
		RandomValue:           hex.EncodeToString(randVal),
		KeySize:               r.KeySize,
		IdentityResolvingKey:  hex.EncodeToString(r.IRK),
		SigningKey:            hex.EncodeToString(r.CSRK),
		Authenticated:         r.Authenticated,
		SecureConnections:     r.SC,
	}
}

func decodeKey(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != 16 {
		return nil, errors.Errorf("key length %d", len(b))
	}
	return b, nil
}

func (k keyInfo) record() (blesm.Record, error) {
	var r blesm.Record

	switch k.Kind {
	case blesm.KeyOurs.String():
		r.Kind = blesm.KeyOurs
	case blesm.KeyPeer.String():
		r.Kind = blesm.KeyPeer
	default:
		return r, errors.Errorf("invalid kind %q", k.Kind)
	}

	a, err := blesm.ParseAddr(k.Address, blesm.AddrType(k.AddressType))
	if err != nil {
		return r, err
	}
	r.Peer = a

	if r.LTK, err = decodeKey(k.LongTermKey); err != nil {
		return r, errors.Wrap(err, "failed to decode long term key")
	}
	if r.IRK, err = decodeKey(k.IdentityResolvingKey); err != nil {
		return r, errors.Wrap(err, "failed to decode irk")
	}
	if r.CSRK, err = decodeKey(k.SigningKey); err != nil {
		return r, errors.Wrap(err, "failed to decode csrk")
	}

	eDiv, err := hex.DecodeString(k.EncryptionDiversifier)
	if err != nil || len(eDiv) != 2 {
		return r, errors.New("invalid ediv in bond file")
	}
	randVal, err := hex.DecodeString(k.RandomValue)
	if err != nil || len(randVal) != 8 {
		return r, errors.New("invalid random value in bond file")
	}

	r.EDiv = binary.LittleEndian.Uint16(eDiv)
	r.Rand = binary.LittleEndian.Uint64(randVal)
	r.KeySize = k.KeySize
	r.Authenticated = k.Authenticated
	r.SC = k.SecureConnections
	return r, nil
}
