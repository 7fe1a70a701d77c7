package signer

import (
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

// Verify checks that the embedded signature validates against the
// certificate embedded in the document. Used by tests and by the download
// path as an integrity check before handing out signed bytes.
func Verify(signedXML []byte) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signedXML); err != nil {
		return fmt.Errorf("parse signed document: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return errors.New("empty signed document")
	}

	cert, err := embeddedCertificate(root)
	if err != nil {
		return err
	}

	vctx := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{cert},
	})
	if _, err := vctx.Validate(root); err != nil {
		return fmt.Errorf("signature validation: %w", err)
	}
	return nil
}

func embeddedCertificate(root *etree.Element) (*x509.Certificate, error) {
	certEl := root.FindElement(".//X509Certificate")
	if certEl == nil {
		return nil, errors.New("no X509Certificate embedded in document")
	}
	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(certEl.Text()))
	if err != nil {
		return nil, fmt.Errorf("decode embedded certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse embedded certificate: %w", err)
	}
	return cert, nil
}
