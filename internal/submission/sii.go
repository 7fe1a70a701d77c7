package submission

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/beevik/etree"
)

const soapEnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"

// SIIChannel submits signed invoices to the tax authority's SII web
// service over SOAP.
type SIIChannel struct {
	endpoint string
	client   *http.Client
}

func NewSIIChannel(endpoint string, client *http.Client) *SIIChannel {
	if client == nil {
		client = http.DefaultClient
	}
	return &SIIChannel{endpoint: endpoint, client: client}
}

func (c *SIIChannel) Name() string { return ChannelSII }

func (c *SIIChannel) Submit(ctx context.Context, signedXML []byte) (Result, error) {
	envelope, err := buildSIIEnvelope(signedXML)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(envelope))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "SuministroLRFacturasEmitidas")

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{Outcome: OutcomeTransient, Err: err.Error()}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{Outcome: OutcomeTransient, Err: err.Error()}, nil
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{Outcome: OutcomeAuthFailure, Err: fmt.Sprintf("sii responded %d", resp.StatusCode)}, nil
	case resp.StatusCode >= 500:
		return Result{Outcome: OutcomeTransient, Err: fmt.Sprintf("sii responded %d", resp.StatusCode)}, nil
	}

	return parseSIIResponse(body), nil
}

func buildSIIEnvelope(signedXML []byte) ([]byte, error) {
	inner := etree.NewDocument()
	if err := inner.ReadFromBytes(signedXML); err != nil {
		return nil, fmt.Errorf("signed payload is not valid XML: %w", err)
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	env := doc.CreateElement("soapenv:Envelope")
	env.CreateAttr("xmlns:soapenv", soapEnvelopeNS)
	env.CreateElement("soapenv:Header")
	body := env.CreateElement("soapenv:Body")
	registro := body.CreateElement("sii:SuministroLRFacturasEmitidas")
	registro.CreateAttr("xmlns:sii", "https://www2.agenciatributaria.gob.es/static_files/common/internet/dep/aplicaciones/es/aeat/ssii/fact/ws/SuministroLR.xsd")
	registro.AddChild(inner.Root().Copy())

	return doc.WriteToBytes()
}

// parseSIIResponse maps the authority's structured response to an
// Outcome. EstadoEnvio is authoritative: Correcto carries a CSV
// confirmation code, Incorrecto carries per-record error codes.
func parseSIIResponse(body []byte) Result {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return Result{Outcome: OutcomeTransient, Err: "unparseable sii response"}
	}
	root := doc.Root()
	if root == nil {
		return Result{Outcome: OutcomeTransient, Err: "empty sii response"}
	}

	estado := findText(root, "EstadoEnvio")
	switch strings.TrimSpace(estado) {
	case "Correcto", "AceptadoConErrores":
		return Result{
			Outcome:          OutcomeAccepted,
			ConfirmationCode: strings.TrimSpace(findText(root, "CSV")),
		}
	case "Incorrecto":
		reason := strings.TrimSpace(findText(root, "CodigoErrorRegistro"))
		if reason == "" {
			reason = strings.TrimSpace(findText(root, "DescripcionErrorRegistro"))
		}
		return Result{Outcome: OutcomeRejected, ReasonCode: reason}
	default:
		return Result{Outcome: OutcomeTransient, Err: "missing EstadoEnvio in sii response"}
	}
}

// findText searches the tree for the first element with the given local
// name, ignoring namespace prefixes.
func findText(el *etree.Element, localName string) string {
	if local(el.Tag) == localName {
		return el.Text()
	}
	for _, child := range el.ChildElements() {
		if v := findText(child, localName); v != "" {
			return v
		}
	}
	return ""
}

func local(tag string) string {
	if idx := strings.IndexByte(tag, ':'); idx >= 0 {
		return tag[idx+1:]
	}
	return tag
}
