// Package verifactu derives traceability records for invoices: the RF
// fingerprint string and its scannable QR rendering.
package verifactu

import (
	"strings"

	"github.com/facturia-app/facturia/internal/invoice/domain"
	"github.com/facturia-app/facturia/internal/invoice/format"
)

// delimiter is part of the wire contract with downstream verification
// tooling. Never change it.
const delimiter = "|"

// Fingerprint derives the RF record from core invoice fields. The field
// order and formatting are a wire contract: issuer tax id, issue date with
// no separators, zero-padded series-number, invoice type letter, and the
// total prefixed with T at two decimals.
//
//	RF|B12345678|20250115|F-000007|C|T121.00
func Fingerprint(inv *domain.Invoice) (string, error) {
	formatted, err := format.FormatNumber(inv.Series, inv.Number)
	if err != nil {
		return "", err
	}
	parts := []string{
		"RF",
		inv.IssuerTaxID,
		inv.IssueDate.Format("20060102"),
		formatted,
		inv.Type.Letter(),
		"T" + inv.Total.StringFixed(2),
	}
	return strings.Join(parts, delimiter), nil
}
