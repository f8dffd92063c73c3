package alg

import (
	"crypto/aes"
	"crypto/rand"

	"github.com/aead/cmac"
	"github.com/pkg/errors"
	"github.com/rigado/blesm/sliceops"
)

// Std implements Primitives with crypto/aes, aead/cmac and go-ecdh.
type Std struct{}

func NewStd() *Std {
	return &Std{}
}

func (Std) AES128(key, in []byte) ([]byte, error) {
	if len(key) != 16 || len(in) != 16 {
		return nil, errors.Errorf("aes128: length error key %d in %d", len(key), len(in))
	}

	c, err := aes.NewCipher(sliceops.SwapBuf(key))
	if err != nil {
		return nil, err
	}

	out := make([]byte, 16)
	c.Encrypt(out, sliceops.SwapBuf(in))
	return sliceops.SwapBuf(out), nil
}

func (Std) CMAC(key, msg []byte) ([]byte, error) {
	mCipher, err := aes.NewCipher(sliceops.SwapBuf(key))
	if err != nil {
		return nil, err
	}

	mMac, err := cmac.New(mCipher)
	if err != nil {
		return nil, err
	}

	mMac.Write(sliceops.SwapBuf(msg))

	return sliceops.SwapBuf(mMac.Sum(nil)), nil
}

func (Std) GenerateKeyPair() (*KeyPair, error) {
	return generateKeyPair(rand.Reader)
}

func (Std) DHKey(kp *KeyPair, peer []byte) ([]byte, error) {
	return dhKey(kp, peer)
}

func (Std) Rand(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, errors.Wrap(err, "rand")
	}
	return b, nil
}
