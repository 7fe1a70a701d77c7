// Package credtest generates throwaway signing credentials for tests.
package credtest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

// NewSelfSigned returns a fresh RSA key and matching self-signed
// certificate usable as a signing identity in tests.
func NewSelfSigned(t *testing.T, commonName string) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{"Facturia Test CA"},
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return key, cert
}

// EncryptedPEMContainer bundles the key (encrypted with passphrase) and
// certificate into a PEM container like the ones issuers hand out.
func EncryptedPEMContainer(t *testing.T, key *rsa.PrivateKey, cert *x509.Certificate, passphrase string) []byte {
	t.Helper()

	keyDER := x509.MarshalPKCS1PrivateKey(key)
	block, err := x509.EncryptPEMBlock(rand.Reader, "RSA PRIVATE KEY", keyDER, []byte(passphrase), x509.PEMCipherAES256)
	if err != nil {
		t.Fatalf("encrypt key: %v", err)
	}

	var out []byte
	out = append(out, pem.EncodeToMemory(block)...)
	out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})...)
	return out
}

// PKCS12Container bundles the key and certificate into a passphrase-
// protected .p12 archive, the format most Spanish CAs issue.
func PKCS12Container(t *testing.T, key *rsa.PrivateKey, cert *x509.Certificate, passphrase string) []byte {
	t.Helper()

	container, err := pkcs12.Legacy.Encode(key, cert, nil, passphrase)
	if err != nil {
		t.Fatalf("encode pkcs12: %v", err)
	}
	return container
}
