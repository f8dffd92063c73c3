package blesm

import (
	"bytes"
	"testing"
)

func TestParseAddr(t *testing.T) {
	a, err := ParseAddr("6C:B7:F4:DA:FC:E1", AddrPublic)
	if err != nil {
		t.Fatal(err)
	}

	exp := []byte{0xe1, 0xfc, 0xda, 0xf4, 0xb7, 0x6c}
	if !bytes.Equal(a.Bytes(), exp) {
		t.Fatalf("wire order\ngot %x\nexp %x", a.Bytes(), exp)
	}
	if s := a.String(); s != "6c:b7:f4:da:fc:e1" {
		t.Fatalf("string %s", s)
	}
	if a != NewAddrLE(AddrPublic, exp) {
		t.Fatal("NewAddrLE differs")
	}
	if k := a.Key(); k != "6c:b7:f4:da:fc:e1/public" {
		t.Fatalf("key %s", k)
	}

	for _, s := range []string{"6c:b7:f4:da:fc", "6c:b7:f4:da:fc:e1:00", "zz:b7:f4:da:fc:e1"} {
		if _, err := ParseAddr(s, AddrPublic); err == nil {
			t.Fatalf("%q parsed", s)
		}
	}
}

func TestAddrBytes56(t *testing.T) {
	a := MustParseAddr("c6:b7:f4:da:fc:e1", AddrRandom)
	exp := []byte{0xe1, 0xfc, 0xda, 0xf4, 0xb7, 0xc6, 0x01}
	if !bytes.Equal(a.Bytes56(), exp) {
		t.Fatalf("got %x\nexp %x", a.Bytes56(), exp)
	}
	if a.IsZero() || !(Addr{Type: AddrRandom}).IsZero() {
		t.Fatal("IsZero")
	}
}

func TestConnMap(t *testing.T) {
	m := NewConnMap()
	if err := m.SetSecurityState(1, SecurityState{Encrypted: true}); err == nil {
		t.Fatal("state set on unknown link")
	}

	m.Add(ConnInfo{Handle: 1, Role: RoleSlave})
	if err := m.SetSecurityState(1, SecurityState{Encrypted: true, KeySize: 16}); err != nil {
		t.Fatal(err)
	}
	st, ok := m.SecurityState(1)
	if !ok || !st.Encrypted || st.KeySize != 16 {
		t.Fatalf("unexpected state %+v", st)
	}

	// a new link on the same handle starts unencrypted
	m.Add(ConnInfo{Handle: 1, Role: RoleMaster})
	if st, _ := m.SecurityState(1); st.Encrypted {
		t.Fatal("state survived reconnect")
	}

	m.Remove(1)
	if _, ok := m.Conn(1); ok {
		t.Fatal("link not removed")
	}
}
