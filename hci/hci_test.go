package hci

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/pkg/errors"
)

func TestCommandPackets(t *testing.T) {
	ltk := [16]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}

	tests := []struct {
		name string
		cmd  Command
		exp  string
	}{
		{
			"start encryption",
			&LEStartEncryption{ConnectionHandle: 0x0040, RandomNumber: 0x1122334455667788, EncryptedDiversifier: 0xabcd, LongTermKey: ltk},
			"0119201c" + "4000" + "8877665544332211" + "cdab" + "0102030405060708090a0b0c0d0e0f10",
		},
		{
			"ltk reply",
			&LELongTermKeyRequestReply{ConnectionHandle: 0x0001, LongTermKey: ltk},
			"011a2012" + "0100" + "0102030405060708090a0b0c0d0e0f10",
		},
		{
			"ltk negative reply",
			&LELongTermKeyRequestNegativeReply{ConnectionHandle: 0x0e02},
			"011b2002" + "020e",
		},
		{
			"add to resolving list",
			&LEAddDeviceToResolvingList{PeerIdentityAddressType: 1, PeerIdentityAddress: [6]byte{1, 2, 3, 4, 5, 6}, PeerIRK: ltk},
			"01272027" + "01" + "010203040506" + "0102030405060708090a0b0c0d0e0f10" + "00000000000000000000000000000000",
		},
	}

	for _, tc := range tests {
		b, err := Packet(tc.cmd)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if hex.EncodeToString(b) != tc.exp {
			t.Fatalf("%s:\ngot %x\nexp %s", tc.name, b, tc.exp)
		}
	}

	if err := (&LEStartEncryption{}).Marshal(make([]byte, 10)); err == nil {
		t.Fatal("expected short buffer error")
	}
}

func TestDecodeEvents(t *testing.T) {
	e, err := Decode(NewEncryptionChange(StatusSuccess, 0x0041, 1))
	if err != nil {
		t.Fatal(err)
	}
	ec, ok := e.(EncryptionChange)
	if !ok {
		t.Fatalf("unexpected type %T", e)
	}
	if ec.Status() != 0 || ec.ConnectionHandle() != 0x0041 || ec.EncryptionEnabled() != 1 {
		t.Fatalf("bad encryption change %x", []byte(ec))
	}

	e, err = Decode(NewEncryptionKeyRefreshComplete(StatusPINOrKeyMissing, 3))
	if err != nil {
		t.Fatal(err)
	}
	if kr := e.(EncryptionKeyRefreshComplete); kr.Status() != StatusPINOrKeyMissing || kr.ConnectionHandle() != 3 {
		t.Fatalf("bad key refresh %x", []byte(kr))
	}

	raw := NewLELongTermKeyRequest(7, 0x0102030405060708, 0x1234)
	if !bytes.Equal(raw[:3], []byte{LEMetaEventCode, 13, LELongTermKeyRequestSubCode}) {
		t.Fatalf("bad ltk request header %x", raw)
	}
	e, err = Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	lr := e.(LELongTermKeyRequest)
	if lr.ConnectionHandle() != 7 || lr.RandomNumber() != 0x0102030405060708 || lr.EncryptedDiversifier() != 0x1234 {
		t.Fatalf("bad ltk request %x", []byte(lr))
	}

	e, err = Decode(NewDisconnectionComplete(0, 9, StatusRemoteUserTerminated))
	if err != nil {
		t.Fatal(err)
	}
	if dc := e.(DisconnectionComplete); dc.ConnectionHandle() != 9 || dc.Reason() != StatusRemoteUserTerminated {
		t.Fatalf("bad disconnect %x", []byte(dc))
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode([]byte{EncryptionChangeCode}); err == nil {
		t.Fatal("expected short event error")
	}
	if _, err := Decode([]byte{EncryptionChangeCode, 4, 0, 1}); err == nil {
		t.Fatal("expected length mismatch error")
	}
	if _, err := Decode([]byte{EncryptionChangeCode, 2, 0, 1}); err == nil {
		t.Fatal("expected truncated event error")
	}
	if _, err := Decode([]byte{0x0e, 1, 0}); errors.Cause(err) != ErrUnknownEvent {
		t.Fatalf("expected unknown event, got %v", err)
	}
	if _, err := Decode([]byte{LEMetaEventCode, 1, 0x02}); errors.Cause(err) != ErrUnknownEvent {
		t.Fatalf("expected unknown subevent, got %v", err)
	}

	var lr LELongTermKeyRequest = []byte{LELongTermKeyRequestSubCode, 1}
	if _, err := lr.RandomNumberWErr(); err == nil {
		t.Fatal("expected index error")
	}
}
