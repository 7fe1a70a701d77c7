// Package pdf renders the human-readable representation of a fiscal
// invoice. The PDF is a convenience artifact; the signed XML remains the
// legal document.
package pdf

import (
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/image"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/extension"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	"github.com/facturia-app/facturia/internal/invoice/domain"
	"github.com/facturia-app/facturia/internal/invoice/format"
)

const dateLayout = "02/01/2006"

// Renderer produces invoice PDFs with the legal number, both parties, the
// line detail and the traceability record in the footer.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render builds the PDF. qrPNG may be nil when the image encoder is
// unavailable; the fingerprint text is always printed.
func (r *Renderer) Render(inv *domain.Invoice, lines []domain.InvoiceLine, fingerprint string, qrPNG []byte) ([]byte, error) {
	if !inv.Numbered() {
		return nil, fmt.Errorf("pdf: invoice %s has no legal number", inv.ID)
	}
	formatted, err := format.FormatNumber(inv.Series, inv.Number)
	if err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Página {current} de {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(8, title(inv.Type), props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, formatted, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(14,
		col.New(6).Add(
			text.New("Fecha de expedición: "+inv.IssueDate.Format(dateLayout), props.Text{Top: 0, Size: 9}),
			text.New(dueDateLine(inv), props.Text{Top: 5, Size: 9}),
		),
		col.New(6),
	)

	m.AddRow(34,
		col.New(6).Add(
			text.New("Emisor", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.New(inv.IssuerName, props.Text{Top: 5, Size: 9}),
			text.New("NIF: "+inv.IssuerTaxID, props.Text{Top: 10, Size: 9}),
			text.New(inv.IssuerAddress, props.Text{Top: 15, Size: 9}),
		),
		col.New(6).Add(
			text.New("Destinatario", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.New(inv.RecipientName, props.Text{Top: 5, Size: 9}),
			text.New("NIF: "+inv.RecipientTaxID, props.Text{Top: 10, Size: 9}),
			text.New(inv.RecipientAddress, props.Text{Top: 15, Size: 9}),
		),
	)

	m.AddRow(8,
		text.NewCol(6, "Concepto", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Cantidad", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Precio", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Importe", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, line := range lines {
		amount := line.Quantity.Mul(line.UnitPrice).Round(2)
		m.AddRow(8,
			text.NewCol(6, line.Description, props.Text{Size: 9}),
			text.NewCol(2, line.Quantity.String(), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, money(line.UnitPrice), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, money(amount), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Base imponible", props.Text{Size: 9}),
		text.NewCol(2, money(inv.TaxableBase), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, fmt.Sprintf("IVA %s%%", inv.TaxRate.String()), props.Text{Size: 9}),
		text.NewCol(2, money(inv.TaxAmount), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, money(inv.Total), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	if len(qrPNG) > 0 {
		m.AddRow(30,
			image.NewFromBytesCol(3, qrPNG, extension.Png, props.Rect{
				Center:  false,
				Percent: 90,
			}),
			col.New(9).Add(
				text.New("Registro de facturación verificable", props.Text{Size: 8, Top: 5}),
				text.New(fingerprint, props.Text{Size: 8, Top: 10}),
			),
		)
	} else {
		m.AddRow(12,
			text.NewCol(12, fingerprint, props.Text{Size: 8, Top: 4}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

func title(t domain.InvoiceType) string {
	switch t {
	case domain.TypeSimplificada:
		return "Factura simplificada"
	case domain.TypeRectificativa:
		return "Factura rectificativa"
	default:
		return "Factura"
	}
}

func dueDateLine(inv *domain.Invoice) string {
	if inv.DueDate == nil {
		return "Vencimiento: al contado"
	}
	return "Vencimiento: " + inv.DueDate.Format(dateLayout)
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2) + " €"
}
