// Package facturae renders canonical Facturae XML documents.
package facturae

import (
	"github.com/beevik/etree"
	"github.com/facturia-app/facturia/internal/invoice/domain"
	"github.com/facturia-app/facturia/internal/invoice/format"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
)

const (
	// Namespace is the Facturae schema namespace the authority validates
	// against.
	Namespace     = "http://www.facturae.es/Facturae/2014/v3.2.1/Facturae"
	schemaVersion = "3.2.1"
)

// Renderer builds the canonical document the signature binds to. Rendering
// is deterministic: the same invoice always yields byte-identical output,
// because the signature is computed over exact bytes. Elements are emitted
// in fixed schema order and amounts as fixed two-decimal strings.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render produces the canonical unsigned XML for a numbered invoice.
func (r *Renderer) Render(inv *domain.Invoice, lines []domain.InvoiceLine) ([]byte, error) {
	if err := inv.ValidateMandatory(); err != nil {
		return nil, err
	}
	if err := inv.ValidateArithmetic(); err != nil {
		return nil, err
	}
	if !inv.Numbered() {
		return nil, domain.NewValidationError("number", "invoice has no reserved number")
	}

	formatted, err := format.FormatNumber(inv.Series, inv.Number)
	if err != nil {
		return nil, domain.NewValidationError("number", err.Error())
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("fe:Facturae")
	root.CreateAttr("xmlns:fe", Namespace)

	r.writeFileHeader(root, inv, formatted)
	r.writeParties(root, inv)
	r.writeInvoice(root, inv, lines, formatted)

	// No indentation: whitespace would change the signed bytes.
	return doc.WriteToBytes()
}

func (r *Renderer) writeFileHeader(root *etree.Element, inv *domain.Invoice, formatted string) {
	header := root.CreateElement("FileHeader")
	header.CreateElement("SchemaVersion").SetText(schemaVersion)
	header.CreateElement("Modality").SetText("I")
	header.CreateElement("InvoiceIssuerType").SetText("EM")

	batch := header.CreateElement("Batch")
	batch.CreateElement("BatchIdentifier").SetText(inv.IssuerTaxID + formatted)
	batch.CreateElement("InvoicesCount").SetText("1")
	amount(batch.CreateElement("TotalInvoicesAmount"), inv.Total)
	amount(batch.CreateElement("TotalOutstandingAmount"), inv.Total)
	amount(batch.CreateElement("TotalExecutableAmount"), inv.Total)
	batch.CreateElement("InvoiceCurrencyCode").SetText("EUR")
}

func (r *Renderer) writeParties(root *etree.Element, inv *domain.Invoice) {
	parties := root.CreateElement("Parties")
	writeParty(parties.CreateElement("SellerParty"), inv.IssuerTaxID, inv.IssuerName, inv.IssuerAddress)
	writeParty(parties.CreateElement("BuyerParty"), inv.RecipientTaxID, inv.RecipientName, inv.RecipientAddress)
}

func writeParty(party *etree.Element, taxID, name, address string) {
	tax := party.CreateElement("TaxIdentification")
	tax.CreateElement("PersonTypeCode").SetText("J")
	tax.CreateElement("ResidenceTypeCode").SetText("R")
	tax.CreateElement("TaxIdentificationNumber").SetText(taxID)

	entity := party.CreateElement("LegalEntity")
	entity.CreateElement("CorporateName").SetText(name)
	if address != "" {
		addr := entity.CreateElement("AddressInSpain")
		addr.CreateElement("Address").SetText(address)
	}
}

func (r *Renderer) writeInvoice(root *etree.Element, inv *domain.Invoice, lines []domain.InvoiceLine, formatted string) {
	invoices := root.CreateElement("Invoices")
	node := invoices.CreateElement("Invoice")

	header := node.CreateElement("InvoiceHeader")
	header.CreateElement("InvoiceNumber").SetText(formatted)
	header.CreateElement("InvoiceSeriesCode").SetText(inv.Series)
	header.CreateElement("InvoiceDocumentType").SetText(documentType(inv.Type))
	header.CreateElement("InvoiceClass").SetText("OO")

	issue := node.CreateElement("InvoiceIssueData")
	issue.CreateElement("IssueDate").SetText(inv.IssueDate.Format("2006-01-02"))
	issue.CreateElement("InvoiceCurrencyCode").SetText("EUR")
	issue.CreateElement("TaxCurrencyCode").SetText("EUR")
	issue.CreateElement("LanguageName").SetText("es")

	taxes := node.CreateElement("TaxesOutputs")
	tax := taxes.CreateElement("Tax")
	tax.CreateElement("TaxTypeCode").SetText("01")
	tax.CreateElement("TaxRate").SetText(fixed2(inv.TaxRate))
	amount(tax.CreateElement("TaxableBase"), inv.TaxableBase)
	amount(tax.CreateElement("TaxAmount"), inv.TaxAmount)

	totals := node.CreateElement("InvoiceTotals")
	totals.CreateElement("TotalGrossAmount").SetText(fixed2(inv.TaxableBase))
	totals.CreateElement("TotalGrossAmountBeforeTaxes").SetText(fixed2(inv.TaxableBase))
	totals.CreateElement("TotalTaxOutputs").SetText(fixed2(inv.TaxAmount))
	totals.CreateElement("TotalTaxesWithheld").SetText("0.00")
	totals.CreateElement("InvoiceTotal").SetText(fixed2(inv.Total))
	totals.CreateElement("TotalOutstandingAmount").SetText(fixed2(inv.Total))
	totals.CreateElement("TotalExecutableAmount").SetText(fixed2(inv.Total))

	items := node.CreateElement("Items")
	for _, line := range lines {
		il := items.CreateElement("InvoiceLine")
		il.CreateElement("ItemDescription").SetText(line.Description)
		il.CreateElement("Quantity").SetText(line.Quantity.String())
		il.CreateElement("UnitPriceWithoutTax").SetText(line.UnitPrice.StringFixed(4))
		il.CreateElement("TotalCost").SetText(fixed2(line.Quantity.Mul(line.UnitPrice)))
	}
}

func documentType(t domain.InvoiceType) string {
	switch t {
	case domain.TypeSimplificada:
		return "FA"
	case domain.TypeRectificativa:
		return "FR"
	default:
		return "FC"
	}
}

func fixed2(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func amount(parent *etree.Element, d decimal.Decimal) {
	parent.CreateElement("TotalAmount").SetText(fixed2(d))
}

var Module = fx.Module("facturae",
	fx.Provide(NewRenderer),
)
