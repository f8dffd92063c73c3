package alg

import (
	"bytes"
	"crypto"
	"crypto/elliptic"
	"io"

	"github.com/pkg/errors"
	"github.com/rigado/blesm/sliceops"
	"github.com/wsddn/go-ecdh"
)

var (
	ErrInvalidPublicKey = errors.New("invalid public key")
)

// KeyPair is a P-256 key pair. Public is X || Y with each coordinate
// little endian, the layout of the Pairing Public Key PDU.
type KeyPair struct {
	Public  []byte
	private crypto.PrivateKey
}

var p256 = ecdh.NewEllipticECDH(elliptic.P256())

func generateKeyPair(r io.Reader) (*KeyPair, error) {
	prv, pub, err := p256.GenerateKey(r)
	if err != nil {
		return nil, errors.Wrap(err, "generate p-256 key")
	}

	return &KeyPair{Public: marshalPublicKey(pub), private: prv}, nil
}

func unmarshalPublicKey(b []byte) (crypto.PublicKey, error) {
	if len(b) != 64 {
		return nil, errors.Wrapf(ErrInvalidPublicKey, "length %d", len(b))
	}

	xs := sliceops.SwapBuf(b[:32])
	ys := sliceops.SwapBuf(b[32:])

	//add header
	r := sliceops.Concat([]byte{0x04}, xs, ys)

	pk, ok := p256.Unmarshal(r)
	if !ok {
		return nil, errors.Wrap(ErrInvalidPublicKey, "not on p-256")
	}

	return pk, nil
}

func marshalPublicKey(k crypto.PublicKey) []byte {
	ba := p256.Marshal(k)
	ba = ba[1:] //remove header
	x := sliceops.SwapBuf(ba[:32])
	y := sliceops.SwapBuf(ba[32:])

	return append(x, y...)
}

// ValidatePublicKey checks that b is a point on P-256 and, when own is
// given, that the peer did not reflect our own key (CVE-2020-26558).
func ValidatePublicKey(b, own []byte) error {
	if own != nil && bytes.Equal(b, own) {
		return errors.Wrap(ErrInvalidPublicKey, "remote public key cannot match local public key")
	}

	_, err := unmarshalPublicKey(b)
	return err
}

func dhKey(kp *KeyPair, peer []byte) ([]byte, error) {
	if kp == nil || kp.private == nil {
		return nil, errors.New("missing local key pair")
	}

	pub, err := unmarshalPublicKey(peer)
	if err != nil {
		return nil, err
	}

	s, err := p256.GenerateSharedSecret(kp.private, pub)
	if err != nil {
		return nil, errors.Wrap(err, "dhkey")
	}

	// big.Int drops leading zero octets
	secret := make([]byte, 32)
	copy(secret[32-len(s):], s)

	return sliceops.SwapBuf(secret), nil
}
