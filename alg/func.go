package alg

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/rigado/blesm/sliceops"
)

var (
	ErrLength = errors.New("length error")
)

var (
	f5Salt  = []byte{0xbe, 0x83, 0x60, 0x5a, 0xdb, 0x0b, 0x37, 0x60, 0x38, 0xa5, 0xf5, 0xaa, 0x91, 0x83, 0x88, 0x6c}
	f5KeyID = []byte{0x65, 0x6c, 0x74, 0x62} // "btle"
	f5Len   = []byte{0x00, 0x01}             // 256 bits
)

// Suite evaluates the SM security functions on top of a set of Primitives.
type Suite struct {
	Primitives
}

func NewSuite(p Primitives) *Suite {
	if p == nil {
		p = NewStd()
	}
	return &Suite{Primitives: p}
}

func checkLen(name string, b []byte, n int) error {
	if len(b) != n {
		return errors.Wrapf(ErrLength, "%s: got %d want %d", name, len(b), n)
	}
	return nil
}

// C1 is the LE legacy confirm value generation function.
// preq and pres are the 7-octet pairing request/response commands, ia and
// ra the 6-octet device addresses.
func (s *Suite) C1(k, r, preq, pres []byte, iat uint8, ia []byte, rat uint8, ra []byte) ([]byte, error) {
	for _, c := range []struct {
		n string
		b []byte
		l int
	}{{"k", k, 16}, {"r", r, 16}, {"preq", preq, 7}, {"pres", pres, 7}, {"ia", ia, 6}, {"ra", ra, 6}} {
		if err := checkLen("c1 "+c.n, c.b, c.l); err != nil {
			return nil, err
		}
	}

	// p1 = pres || preq || rat || iat, laid out from the least significant octet
	p1 := sliceops.Concat([]byte{iat, rat}, preq, pres)
	// p2 = padding || ia || ra
	p2 := sliceops.Concat(ra, ia, make([]byte, 4))

	t, err := s.AES128(k, sliceops.Xor(r, p1))
	if err != nil {
		return nil, errors.Wrap(err, "c1")
	}

	out, err := s.AES128(k, sliceops.Xor(t, p2))
	return out, errors.Wrap(err, "c1")
}

// S1 is the LE legacy key generation function; the STK is s1(TK, Srand, Mrand).
func (s *Suite) S1(k, r1, r2 []byte) ([]byte, error) {
	if err := checkLen("s1 k", k, 16); err != nil {
		return nil, err
	}
	if err := checkLen("s1 r1", r1, 16); err != nil {
		return nil, err
	}
	if err := checkLen("s1 r2", r2, 16); err != nil {
		return nil, err
	}

	// r' = r1' || r2' with the least significant halves
	r := sliceops.Concat(r2[:8], r1[:8])
	out, err := s.AES128(k, r)
	return out, errors.Wrap(err, "s1")
}

// F4 is the LE Secure Connections confirm value generation function.
func (s *Suite) F4(u, v, x []byte, z uint8) ([]byte, error) {
	if len(u) != 32 || len(v) != 32 || len(x) != 16 {
		return nil, errors.Wrap(ErrLength, "f4")
	}

	m := sliceops.Concat([]byte{z}, v, u)
	return s.CMAC(x, m)
}

// F5 is the LE Secure Connections key generation function. It returns the
// MacKey and the LTK. a1 and a2 are 7-octet addresses, type last.
func (s *Suite) F5(w, n1, n2, a1, a2 []byte) ([]byte, []byte, error) {
	switch {
	case len(w) != 32:
		return nil, nil, errors.Wrap(ErrLength, "f5 w")
	case len(n1) != 16:
		return nil, nil, errors.Wrap(ErrLength, "f5 n1")
	case len(n2) != 16:
		return nil, nil, errors.Wrap(ErrLength, "f5 n2")
	case len(a1) != 7:
		return nil, nil, errors.Wrap(ErrLength, "f5 a1")
	case len(a2) != 7:
		return nil, nil, errors.Wrap(ErrLength, "f5 a2")
	}

	t, err := s.CMAC(f5Salt, w)
	if err != nil {
		return nil, nil, errors.Wrap(err, "f5 key")
	}

	m := sliceops.Concat(f5Len, a2, a1, n2, n1, f5KeyID, []byte{0x00})

	macKey, err := s.CMAC(t, m)
	if err != nil {
		return nil, nil, errors.Wrap(err, "f5 mackey")
	}

	//ltk generation bit
	m[52] = 0x01

	ltk, err := s.CMAC(t, m)
	if err != nil {
		return nil, nil, errors.Wrap(err, "f5 ltk")
	}

	sliceops.Zero(t)
	return macKey, ltk, nil
}

// F6 is the LE Secure Connections check value generation function.
func (s *Suite) F6(w, n1, n2, r, ioCap, a1, a2 []byte) ([]byte, error) {
	if len(w) != 16 || len(n1) != 16 || len(n2) != 16 || len(r) != 16 || len(ioCap) != 3 || len(a1) != 7 || len(a2) != 7 {
		return nil, errors.Wrap(ErrLength, "f6")
	}

	// f6(W, N1, N2, R, IOcap, A1, A2) = AES-CMAC W (N1 || N2 || R || IOcap || A1 || A2)
	m := sliceops.Concat(a2, a1, ioCap, r, n2, n1)
	return s.CMAC(w, m)
}

// G2 is the LE Secure Connections numeric comparison value generation
// function. The result is already reduced to six decimal digits.
func (s *Suite) G2(u, v, x, y []byte) (uint32, error) {
	if len(u) != 32 || len(v) != 32 || len(x) != 16 || len(y) != 16 {
		return 0, errors.Wrap(ErrLength, "g2")
	}

	// g2 (U, V, X, Y) = AES-CMAC X (U || V || Y) mod 2^32
	m := sliceops.Concat(y, v, u)

	h, err := s.CMAC(x, m)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(h[:4]) % 1000000, nil
}
