package submission

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const signedSample = `<?xml version="1.0" encoding="UTF-8"?><fe:Facturae xmlns:fe="http://www.facturae.es/Facturae/2014/v3.2.1/Facturae"><Invoices/></fe:Facturae>`

func siiOK(csv string) string {
	return `<?xml version="1.0"?><soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/"><soapenv:Body>` +
		`<siiR:RespuestaLRFacturasEmitidas xmlns:siiR="https://example.invalid/respuesta">` +
		`<siiR:EstadoEnvio>Correcto</siiR:EstadoEnvio><siiR:CSV>` + csv + `</siiR:CSV>` +
		`</siiR:RespuestaLRFacturasEmitidas></soapenv:Body></soapenv:Envelope>`
}

func siiRejected(code string) string {
	return `<?xml version="1.0"?><soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/"><soapenv:Body>` +
		`<siiR:RespuestaLRFacturasEmitidas xmlns:siiR="https://example.invalid/respuesta">` +
		`<siiR:EstadoEnvio>Incorrecto</siiR:EstadoEnvio><siiR:CodigoErrorRegistro>` + code + `</siiR:CodigoErrorRegistro>` +
		`</siiR:RespuestaLRFacturasEmitidas></soapenv:Body></soapenv:Envelope>`
}

func TestSIIAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/xml; charset=utf-8", r.Header.Get("Content-Type"))
		w.Write([]byte(siiOK("CSV123456")))
	}))
	defer srv.Close()

	g := NewGatewayWithChannels(5*time.Second, zap.NewNop(), NewSIIChannel(srv.URL, srv.Client()))
	res, err := g.Submit(context.Background(), []byte(signedSample), ChannelSII)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, res.Outcome)
	assert.Equal(t, "CSV123456", res.ConfirmationCode)
}

func TestSIIRejectedIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(siiRejected("1102")))
	}))
	defer srv.Close()

	g := NewGatewayWithChannels(5*time.Second, zap.NewNop(), NewSIIChannel(srv.URL, srv.Client()))
	res, err := g.Submit(context.Background(), []byte(signedSample), ChannelSII)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, "1102", res.ReasonCode)
	assert.False(t, res.Outcome.Retryable())
}

func TestSII5xxIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := NewGatewayWithChannels(5*time.Second, zap.NewNop(), NewSIIChannel(srv.URL, srv.Client()))
	res, err := g.Submit(context.Background(), []byte(signedSample), ChannelSII)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTransient, res.Outcome)
	assert.True(t, res.Outcome.Retryable())
}

func TestTimeoutIsTransientNotRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(siiOK("LATE")))
	}))
	defer srv.Close()

	g := NewGatewayWithChannels(50*time.Millisecond, zap.NewNop(), NewSIIChannel(srv.URL, srv.Client()))
	res, err := g.Submit(context.Background(), []byte(signedSample), ChannelSII)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTransient, res.Outcome)
}

func TestProxyAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"accepted","confirmation_code":"VF-900"}`))
	}))
	defer srv.Close()

	g := NewGatewayWithChannels(5*time.Second, zap.NewNop(),
		NewVerifactuSignerChannel(srv.URL, "key-1", srv.Client()))
	res, err := g.Submit(context.Background(), []byte(signedSample), ChannelVerifactuSigner)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, res.Outcome)
	assert.Equal(t, "VF-900", res.ConfirmationCode)
}

func TestProxyRejectionEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"rejected","error":{"code":"SCHEMA_INVALID","message":"bad document"}}`))
	}))
	defer srv.Close()

	g := NewGatewayWithChannels(5*time.Second, zap.NewNop(),
		NewFacturaeProxyChannel(srv.URL, "key-2", srv.Client()))
	res, err := g.Submit(context.Background(), []byte(signedSample), ChannelFacturae)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, "SCHEMA_INVALID", res.ReasonCode)
}

func TestProxyAuthFailureIsNotAutoRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	g := NewGatewayWithChannels(5*time.Second, zap.NewNop(),
		NewFacturaeProxyChannel(srv.URL, "stale-key", srv.Client()))
	res, err := g.Submit(context.Background(), []byte(signedSample), ChannelFacturae)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAuthFailure, res.Outcome)
	assert.False(t, res.Outcome.Retryable())
}

func TestUnknownChannel(t *testing.T) {
	g := NewGatewayWithChannels(time.Second, zap.NewNop())
	_, err := g.Submit(context.Background(), []byte(signedSample), "telegram")
	assert.ErrorIs(t, err, ErrUnknownChannel)
}
