package alg

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/pkg/errors"
	"github.com/rigado/blesm/sliceops"
)

// s2h decodes hex; swap turns an MSB-first string into wire order.
func s2h(t *testing.T, swap bool, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatal("s2h error!")
	}

	if swap {
		return sliceops.SwapBuf(b)
	}
	return b
}

func TestC1(t *testing.T) {
	s := NewSuite(nil)

	// Core spec v5.2, Vol 3, Part H, 2.2.3
	k := make([]byte, 16)
	r := s2h(t, true, "5783D52156AD6F0E6388274EC6702EE0")
	preq := s2h(t, false, "01010000100707")
	pres := s2h(t, false, "02030000080005")
	ia := s2h(t, true, "A1A2A3A4A5A6")
	ra := s2h(t, true, "B1B2B3B4B5B6")

	out, err := s.C1(k, r, preq, pres, 1, ia, 0, ra)
	if err != nil {
		t.Fatal(err)
	}

	exp := s2h(t, true, "1e1e3fef878988ead2a74dc5bef13b86")
	if !bytes.Equal(out, exp) {
		t.Fatalf("\ngot %v\nexp %v", hex.EncodeToString(out), hex.EncodeToString(exp))
	}
}

func TestC1Captured(t *testing.T) {
	s := NewSuite(nil)

	k := make([]byte, 16)
	preq := []byte{0x01, 0x04, 0x00, 0x05, 0x10, 0x07, 0x07}
	pres := []byte{0x02, 0x03, 0x00, 0x00, 0x10, 0x00, 0x00}
	ia := []byte{0xe1, 0xfc, 0xda, 0xf4, 0xb7, 0x6c}
	ra := []byte{0x03, 0x02, 0x01, 0x50, 0x13, 0x00}
	mrand := s2h(t, false, "2b3b69e4efabcc4878201a547a915dfb")
	srand := make([]byte, 16)

	confReq, err := s.C1(k, mrand, preq, pres, 0, ia, 0, ra)
	if err != nil {
		t.Fatal(err)
	}
	if exp := s2h(t, false, "0aaca2aea698dc6d6584116947368da0"); !bytes.Equal(confReq, exp) {
		t.Fatalf("confirm req\ngot %v\nexp %v", hex.EncodeToString(confReq), hex.EncodeToString(exp))
	}

	confRsp, err := s.C1(k, srand, preq, pres, 0, ia, 0, ra)
	if err != nil {
		t.Fatal(err)
	}
	if exp := s2h(t, false, "45d22c38d8914f19a2d4fc7dad3779e0"); !bytes.Equal(confRsp, exp) {
		t.Fatalf("confirm rsp\ngot %v\nexp %v", hex.EncodeToString(confRsp), hex.EncodeToString(exp))
	}

	stk, err := s.S1(k, srand, mrand)
	if err != nil {
		t.Fatal(err)
	}
	if exp := s2h(t, false, "a48e510d33e78f3845f067c3d405b3e6"); !bytes.Equal(stk, exp) {
		t.Fatalf("stk\ngot %v\nexp %v", hex.EncodeToString(stk), hex.EncodeToString(exp))
	}
}

func TestS1(t *testing.T) {
	s := NewSuite(nil)

	r1 := s2h(t, true, "000F0E0D0C0B0A091122334455667788")
	r2 := s2h(t, true, "010203040506070899AABBCCDDEEFF00")

	out, err := s.S1(make([]byte, 16), r1, r2)
	if err != nil {
		t.Fatal(err)
	}

	exp := s2h(t, true, "9a1fe1f0e8b0f49b5b4216ae796da062")
	if !bytes.Equal(out, exp) {
		t.Fatalf("\ngot %v\nexp %v", hex.EncodeToString(out), hex.EncodeToString(exp))
	}
}

func TestLengthErrors(t *testing.T) {
	s := NewSuite(nil)
	b16 := make([]byte, 16)

	if _, err := s.C1(b16, b16, make([]byte, 6), make([]byte, 7), 0, make([]byte, 6), 0, make([]byte, 6)); errors.Cause(err) != ErrLength {
		t.Fatalf("c1: expected length error, got %v", err)
	}
	if _, err := s.S1(b16, b16, b16[:8]); errors.Cause(err) != ErrLength {
		t.Fatalf("s1: expected length error, got %v", err)
	}
	if _, err := s.F4(b16, b16, b16, 0); errors.Cause(err) != ErrLength {
		t.Fatalf("f4: expected length error, got %v", err)
	}
	if _, _, err := s.F5(b16, b16, b16, make([]byte, 7), make([]byte, 7)); errors.Cause(err) != ErrLength {
		t.Fatalf("f5: expected length error, got %v", err)
	}
	if _, err := s.F6(b16, b16, b16, b16, make([]byte, 2), make([]byte, 7), make([]byte, 7)); errors.Cause(err) != ErrLength {
		t.Fatalf("f6: expected length error, got %v", err)
	}
	if _, err := s.G2(b16, b16, b16, b16); errors.Cause(err) != ErrLength {
		t.Fatalf("g2: expected length error, got %v", err)
	}
}

func TestAesCMAC(t *testing.T) {
	s := NewStd()

	// RFC 4493 example 2, big endian in and out
	key := s2h(t, false, "2b7e151628aed2a6abf7158809cf4f3c")
	msg := s2h(t, false, "6bc1bee22e409f96e93d7e117393172a")

	out, err := s.CMAC(sliceops.SwapBuf(key), sliceops.SwapBuf(msg))
	if err != nil {
		t.Fatal(err)
	}

	if exp := "070a16b46b4d4144f79bdd9dd04a287c"; hex.EncodeToString(sliceops.SwapBuf(out)) != exp {
		t.Fatalf("\ngot %v\nexp %v", hex.EncodeToString(sliceops.SwapBuf(out)), exp)
	}

	out, err = s.CMAC([]byte("Stt8Zh+srft8Uv0q"), []byte("message"))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 16 {
		t.Fatalf("cmac length %d", len(out))
	}
}

func TestSCFunctions(t *testing.T) {
	s := NewSuite(nil)

	var testU = []byte{
		0xe6, 0x9d, 0x35, 0x0e, 0x48, 0x01, 0x03, 0xcc,
		0xdb, 0xfd, 0xf4, 0xac, 0x11, 0x91, 0xf4, 0xef,
		0xb9, 0xa5, 0xf9, 0xe9, 0xa7, 0x83, 0x2c, 0x5e,
		0x2c, 0xbe, 0x97, 0xf2, 0xd2, 0x03, 0xb0, 0x20,
	}
	var testV = []byte{
		0xfd, 0xc5, 0x7f, 0xf4, 0x49, 0xdd, 0x4f, 0x6b,
		0xfb, 0x7c, 0x9d, 0xf1, 0xc2, 0x9a, 0xcb, 0x59,
		0x2a, 0xe7, 0xd4, 0xee, 0xfb, 0xfc, 0x0a, 0x90,
		0x9a, 0xbb, 0xf6, 0x32, 0x3d, 0x8b, 0x18, 0x55,
	}
	var testX = []byte{
		0xab, 0xae, 0x2b, 0x71, 0xec, 0xb2, 0xff, 0xff,
		0x3e, 0x73, 0x77, 0xd1, 0x54, 0x84, 0xcb, 0xd5,
	}
	var testExpF4 = []byte{
		0x2d, 0x87, 0x74, 0xa9, 0xbe, 0xa1, 0xed, 0xf1,
		0x1c, 0xbd, 0xa9, 0x07, 0xf1, 0x16, 0xc9, 0xf2,
	}
	var testW = []byte{
		0x98, 0xa6, 0xbf, 0x73, 0xf3, 0x34, 0x8d, 0x86,
		0xf1, 0x66, 0xf8, 0xb4, 0x13, 0x6b, 0x79, 0x99,
		0x9b, 0x7d, 0x39, 0x0a, 0xa6, 0x10, 0x10, 0x34,
		0x05, 0xad, 0xc8, 0x57, 0xa3, 0x34, 0x02, 0xec,
	}
	var testN2 = []byte{
		0xcf, 0xc4, 0x3d, 0xff, 0xf7, 0x83, 0x65, 0x21,
		0x6e, 0x5f, 0xa7, 0x25, 0xcc, 0xe7, 0xe8, 0xa6,
	}
	var testA1 = []byte{0xce, 0xbf, 0x37, 0x37, 0x12, 0x56, 0x00}
	var testA2 = []byte{0xc1, 0xcf, 0x2d, 0x70, 0x13, 0xa7, 0x00}
	var testExpLTK = []byte{
		0x38, 0x0a, 0x75, 0x94, 0xb5, 0x22, 0x05, 0x98,
		0x23, 0xcd, 0xd7, 0x69, 0x11, 0x79, 0x86, 0x69,
	}
	var testExpMACKey = []byte{
		0x20, 0x6e, 0x63, 0xce, 0x20, 0x6a, 0x3f, 0xfd,
		0x02, 0x4a, 0x08, 0xa1, 0x76, 0xf1, 0x65, 0x29,
	}
	var testR = []byte{
		0xc8, 0x0f, 0x2d, 0x0c, 0xd2, 0x42, 0xda, 0x08,
		0x54, 0xbb, 0x53, 0xb4, 0x3b, 0x34, 0xa3, 0x12,
	}
	var testIoCap = []byte{0x02, 0x01, 0x01}
	var expF6 = []byte{
		0x61, 0x8f, 0x95, 0xda, 0x09, 0x0b, 0x6c, 0xd2,
		0xc5, 0xe8, 0xd0, 0x9c, 0x98, 0x73, 0xc4, 0xe3,
	}
	var expValG2 = uint32(0x2f9ed5ba % 1000000)

	f4Out, err := s.F4(testU, testV, testX, 0)
	if err != nil {
		t.Fatal("f4 calc failed:", err)
	}
	if !bytes.Equal(f4Out, testExpF4) {
		t.Fatal("incorrect f4 output:", hex.EncodeToString(f4Out))
	}

	macKey, ltk, err := s.F5(testW, testX, testN2, testA1, testA2)
	if err != nil {
		t.Fatal("f5 calc failed:", err)
	}
	if !bytes.Equal(macKey, testExpMACKey) {
		t.Fatal("incorrect f5 macKey:", hex.EncodeToString(macKey))
	}
	if !bytes.Equal(ltk, testExpLTK) {
		t.Fatal("incorrect f5 ltk:", hex.EncodeToString(ltk))
	}

	// inputs must not be clobbered by message assembly
	a2 := append([]byte(nil), testA2...)
	res, err := s.F6(macKey, testX, testN2, testR, testIoCap, testA1, a2)
	if err != nil {
		t.Fatal("incorrect f6 operation:", err)
	}
	if !bytes.Equal(res, expF6) {
		t.Fatal("incorrect f6 output:", hex.EncodeToString(res))
	}
	if !bytes.Equal(a2, testA2) {
		t.Fatal("f6 modified its input")
	}

	val, err := s.G2(testU, testV, testX, testN2)
	if err != nil {
		t.Fatal("failed to calc G2:", err)
	}
	if val != expValG2 {
		t.Fatal("incorrect G2 output:", val)
	}
}

func TestConfirmCheckCaptured(t *testing.T) {
	// < ACL Data TX: SMP: Pairing Public Key (0x0c) len 64
	// > ACL Data RX: SMP: Pairing Public Key (0x0c) len 64
	// > ACL Data RX: SMP: Pairing Confirm (0x03) len 16
	// > ACL Data RX: SMP: Pairing Random (0x04) len 16
	s := NewSuite(nil)

	lxy := s2h(t, false, "2924dce60c38fdffe4bfa07134ea4cf238904695d7b8512b7c73ad3af2d1e789b9b7293371c2ede8cec34a8d2de8038bacac3b520fbb52c53aefe2c67e8b3661")
	rxy := s2h(t, false, "88287228a0d516fa458abc3a3264a0db65a92b8e8a53343e866eaed4b461b9c547fee8404d3a3a753e17a759ed747b7458bc5452bd4c8e69c636eeda851fb3a8")
	rrand := s2h(t, false, "e194607e5c588d24e6e22b5470f0b3c3")
	rconf := s2h(t, false, "a6c760d1be58d9b859e9823df9ab1c97")

	for _, k := range [][]byte{lxy, rxy} {
		if err := ValidatePublicKey(k, nil); err != nil {
			t.Fatal(err)
		}
	}

	//Cb = f4(PKbx, PKax, Nb, 0)
	calc, err := s.F4(rxy[:32], lxy[:32], rrand, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(calc, rconf) {
		t.Fatalf("confirm mismatch, exp %v got %v", hex.EncodeToString(rconf), hex.EncodeToString(calc))
	}
}

func TestECDH(t *testing.T) {
	s := NewStd()

	a, err := s.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Public) != 64 {
		t.Fatalf("public key length %d", len(a.Public))
	}

	ka, err := s.DHKey(a, b.Public)
	if err != nil {
		t.Fatal(err)
	}
	kb, err := s.DHKey(b, a.Public)
	if err != nil {
		t.Fatal(err)
	}
	if len(ka) != 32 || !bytes.Equal(ka, kb) {
		t.Fatalf("dhkey mismatch\n%x\n%x", ka, kb)
	}

	if err := ValidatePublicKey(a.Public, a.Public); errors.Cause(err) != ErrInvalidPublicKey {
		t.Fatalf("expected reflected key to be rejected, got %v", err)
	}

	if _, err := s.DHKey(a, make([]byte, 64)); errors.Cause(err) != ErrInvalidPublicKey {
		t.Fatalf("expected off-curve key to be rejected, got %v", err)
	}

	pk := s2h(t, false, "c697669493e497655afb7be56e319d53d97a7d5e4b043cfb23c1978ea9433ea62a56c8fda27d8ed835b5af7a31574ad71aa06ee745bc85e36bfde05b66a28d7d")
	if err := ValidatePublicKey(pk, nil); err != nil {
		t.Fatal(err)
	}
}
