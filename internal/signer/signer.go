// Package signer produces enveloped XMLDSig signatures over canonical
// invoice documents.
package signer

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/beevik/etree"
	"github.com/facturia-app/facturia/internal/credential"
	dsig "github.com/russellhaering/goxmldsig"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrDocumentInvalid means the canonical bytes handed to the signer do not
// parse as XML. That is an upstream renderer bug surfacing here, not a
// credential problem.
var ErrDocumentInvalid = errors.New("rendered document invalid")

// SignedDocument is the immutable signed artifact. Any change to visible
// content requires re-rendering and re-signing; the bytes here are never
// patched.
type SignedDocument struct {
	XML         []byte
	Certificate string // base64 DER of the signing certificate
	SignedAt    time.Time
}

type Signer struct {
	log *zap.Logger
}

func NewSigner(log *zap.Logger) *Signer {
	return &Signer{log: log.Named("signer")}
}

// keyStore adapts an unwrapped credential to goxmldsig's keystore contract.
type keyStore struct {
	key  *rsa.PrivateKey
	cert *x509.Certificate
}

func (ks keyStore) GetKeyPair() (*rsa.PrivateKey, []byte, error) {
	return ks.key, ks.cert.Raw, nil
}

// Sign computes an RSA-SHA256 enveloped signature over the canonical
// document and embeds the signing certificate plus its chain in
// KeyInfo/X509Data. The credential stays owned by the caller; Sign never
// retains key material.
func (s *Signer) Sign(canonical []byte, cred *credential.Credential) (*SignedDocument, error) {
	if cred == nil || cred.Key == nil || cred.Cert == nil {
		return nil, credential.ErrBadCredential
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(canonical); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDocumentInvalid, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: empty document", ErrDocumentInvalid)
	}

	ctx := dsig.NewDefaultSigningContext(keyStore{key: cred.Key, cert: cred.Cert})

	signedRoot, err := ctx.SignEnveloped(root)
	if err != nil {
		return nil, fmt.Errorf("sign enveloped: %w", err)
	}

	// The enveloped-signature transform excludes the whole Signature
	// element from the digest, so chain certificates can be appended to
	// X509Data after signing without invalidating the signature value.
	if len(cred.Chain) > 0 {
		if x509Data := signedRoot.FindElement(".//X509Data"); x509Data != nil {
			for _, chainCert := range cred.Chain {
				el := x509Data.CreateElement("X509Certificate")
				el.Space = x509Data.Space
				el.SetText(base64.StdEncoding.EncodeToString(chainCert.Raw))
			}
		}
	}

	signedDoc := etree.NewDocument()
	signedDoc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	signedDoc.SetRoot(signedRoot)
	out, err := signedDoc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize signed document: %w", err)
	}

	s.log.Info("document signed",
		zap.String("subject", cred.Cert.Subject.CommonName),
	)
	return &SignedDocument{
		XML:         out,
		Certificate: base64.StdEncoding.EncodeToString(cred.Cert.Raw),
		SignedAt:    time.Now().UTC(),
	}, nil
}

var Module = fx.Module("signer",
	fx.Provide(NewSigner),
)
