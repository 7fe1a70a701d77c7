package submission

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// proxyChannel is the shared shape of the REST intermediaries: a JSON
// payload with the signed document, an API key header, and a JSON
// response or error envelope.
type proxyChannel struct {
	name     string
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewFacturaeProxyChannel talks to the Facturae gateway intermediary.
func NewFacturaeProxyChannel(endpoint, apiKey string, client *http.Client) Channel {
	if client == nil {
		client = http.DefaultClient
	}
	return &proxyChannel{name: ChannelFacturae, endpoint: endpoint, apiKey: apiKey, client: client}
}

// NewVerifactuSignerChannel talks to the Veri*Factu signer/submission
// proxy service.
func NewVerifactuSignerChannel(endpoint, apiKey string, client *http.Client) Channel {
	if client == nil {
		client = http.DefaultClient
	}
	return &proxyChannel{name: ChannelVerifactuSigner, endpoint: endpoint, apiKey: apiKey, client: client}
}

func (c *proxyChannel) Name() string { return c.name }

type proxyRequest struct {
	Document string `json:"document"` // base64 signed XML
	Format   string `json:"format"`
}

type proxyResponse struct {
	Status           string `json:"status"`
	ConfirmationCode string `json:"confirmation_code"`
	Error            *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *proxyChannel) Submit(ctx context.Context, signedXML []byte) (Result, error) {
	payload, err := json.Marshal(proxyRequest{
		Document: base64.StdEncoding.EncodeToString(signedXML),
		Format:   "facturae-3.2.1",
	})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

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
		return Result{Outcome: OutcomeAuthFailure, Err: fmt.Sprintf("%s proxy responded %d", c.name, resp.StatusCode)}, nil
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Result{Outcome: OutcomeTransient, Err: fmt.Sprintf("%s proxy responded %d", c.name, resp.StatusCode)}, nil
	}

	var parsed proxyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{Outcome: OutcomeTransient, Err: "unparseable proxy response"}, nil
	}

	switch parsed.Status {
	case "accepted":
		return Result{Outcome: OutcomeAccepted, ConfirmationCode: parsed.ConfirmationCode}, nil
	case "rejected":
		reason := ""
		if parsed.Error != nil {
			reason = parsed.Error.Code
		}
		return Result{Outcome: OutcomeRejected, ReasonCode: reason}, nil
	default:
		if resp.StatusCode == http.StatusBadRequest && parsed.Error != nil {
			return Result{Outcome: OutcomeRejected, ReasonCode: parsed.Error.Code}, nil
		}
		return Result{Outcome: OutcomeTransient, Err: fmt.Sprintf("unknown proxy status %q", parsed.Status)}, nil
	}
}
