// Package alg holds the Security Manager cryptographic toolbox
// [Vol 3, Part H, 2.2] and the primitives it is built from.
//
// Every buffer crossing this package is in SM wire order (little endian).
// The swap into the big endian order of AES and CMAC happens in the
// primitives and nowhere else.
package alg

// Primitives are the cryptographic building blocks of pairing.
type Primitives interface {
	// AES128 encrypts one block (security function e).
	AES128(key, in []byte) ([]byte, error)
	// CMAC computes AES-CMAC over msg.
	CMAC(key, msg []byte) ([]byte, error)
	// GenerateKeyPair returns a fresh P-256 key pair.
	GenerateKeyPair() (*KeyPair, error)
	// DHKey computes the 32-octet shared secret with a peer public key
	// given as X || Y.
	DHKey(kp *KeyPair, peer []byte) ([]byte, error)
	// Rand returns n random octets.
	Rand(n int) ([]byte, error)
}
