package credential

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

// Decode unwraps an encrypted container into a Credential. Both PKCS#12
// (.p12/.pfx) and PEM bundles with an encrypted key are accepted, since
// issuers hand out both. Any decode failure that could stem from a wrong
// passphrase maps to ErrBadCredential.
func Decode(container []byte, passphrase string) (*Credential, error) {
	if len(container) == 0 {
		return nil, fmt.Errorf("%w: empty container", ErrBadCredential)
	}
	if isPEM(container) {
		return decodePEM(container, passphrase)
	}
	return decodePKCS12(container, passphrase)
}

func isPEM(data []byte) bool {
	block, _ := pem.Decode(data)
	return block != nil
}

func decodePKCS12(container []byte, passphrase string) (*Credential, error) {
	key, cert, chain, err := pkcs12.DecodeChain(container, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCredential, err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedAlgorithm, key)
	}
	return &Credential{Key: rsaKey, Cert: cert, Chain: chain}, nil
}

func decodePEM(container []byte, passphrase string) (*Credential, error) {
	var (
		keyDER []byte
		certs  []*x509.Certificate
	)

	rest := container
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadCredential, err)
			}
			certs = append(certs, cert)
		case "RSA PRIVATE KEY", "PRIVATE KEY", "EC PRIVATE KEY":
			der := block.Bytes
			if x509.IsEncryptedPEMBlock(block) {
				decrypted, err := x509.DecryptPEMBlock(block, []byte(passphrase))
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrBadCredential, err)
				}
				der = decrypted
			}
			keyDER = der
			if block.Type == "EC PRIVATE KEY" {
				return nil, fmt.Errorf("%w: EC keys are not accepted", ErrUnsupportedAlgorithm)
			}
		}
	}

	if keyDER == nil {
		return nil, fmt.Errorf("%w: no private key in container", ErrBadCredential)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("%w: no certificate in container", ErrBadCredential)
	}

	key, err := parseRSAKey(keyDER)
	if err != nil {
		return nil, err
	}
	return &Credential{Key: key, Cert: certs[0], Chain: certs[1:]}, nil
}

func parseRSAKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCredential, err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedAlgorithm, parsed)
	}
	return rsaKey, nil
}
