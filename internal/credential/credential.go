package credential

import (
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"math/big"
)

var (
	// ErrBadCredential means the passphrase is wrong or the container is
	// corrupt. This is the single most common user error and must stay
	// distinguishable from every other signing failure.
	ErrBadCredential = errors.New("bad credential: wrong passphrase or corrupt container")

	// ErrUnsupportedAlgorithm means the container decoded fine but the key
	// type cannot be used for the mandated signature algorithm.
	ErrUnsupportedAlgorithm = errors.New("unsupported key algorithm")

	// ErrNoCredential means the owner has not uploaded a container yet.
	ErrNoCredential = errors.New("no signing credential uploaded")
)

// Credential is an unwrapped signing credential. Its lifetime is one
// signing call: the owner must Close it as soon as the signature value has
// been produced. It is never cached process-wide.
type Credential struct {
	Key   *rsa.PrivateKey
	Cert  *x509.Certificate
	Chain []*x509.Certificate
}

// Close zeroes the private key material. The Credential is unusable
// afterwards.
func (c *Credential) Close() {
	if c == nil || c.Key == nil {
		return
	}
	zero(c.Key.D)
	for _, p := range c.Key.Primes {
		zero(p)
	}
	zero(c.Key.Precomputed.Dp)
	zero(c.Key.Precomputed.Dq)
	zero(c.Key.Precomputed.Qinv)
	c.Key = nil
}

func zero(n *big.Int) {
	if n == nil {
		return
	}
	bits := n.Bits()
	for i := range bits {
		bits[i] = 0
	}
	n.SetInt64(0)
}
