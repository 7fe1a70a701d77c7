package submission

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/facturia-app/facturia/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrUnknownChannel is returned for a channel name no transport is
// registered under.
var ErrUnknownChannel = errors.New("unknown submission channel")

// Gateway dispatches a signed document to a named channel with a bounded
// per-attempt timeout and records metrics for every classified outcome.
type Gateway struct {
	channels map[string]Channel
	timeout  time.Duration
	log      *zap.Logger
}

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

func NewGateway(p Params) *Gateway {
	timeout := p.Config.Channels.SubmitTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &http.Client{}
	channels := map[string]Channel{}
	if ep := p.Config.Channels.SIIEndpoint; ep != "" {
		channels[ChannelSII] = NewSIIChannel(ep, client)
	}
	if ep := p.Config.Channels.FacturaeProxyEndpoint; ep != "" {
		channels[ChannelFacturae] = NewFacturaeProxyChannel(ep, p.Config.Channels.FacturaeProxyAPIKey, client)
	}
	if ep := p.Config.Channels.VerifactuSignerEndpoint; ep != "" {
		channels[ChannelVerifactuSigner] = NewVerifactuSignerChannel(ep, p.Config.Channels.VerifactuSignerAPIKey, client)
	}

	return &Gateway{
		channels: channels,
		timeout:  timeout,
		log:      p.Log.Named("submission"),
	}
}

// NewGatewayWithChannels builds a gateway over explicit channels. Used by
// tests and by deployments wiring custom transports.
func NewGatewayWithChannels(timeout time.Duration, log *zap.Logger, channels ...Channel) *Gateway {
	m := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		m[ch.Name()] = ch
	}
	return &Gateway{channels: m, timeout: timeout, log: log.Named("submission")}
}

// Submit sends the signed document over the named channel. A deadline is
// always enforced; hitting it classifies as TransientFailure, never as
// rejection, because the authority may still have processed the request.
func (g *Gateway) Submit(ctx context.Context, signedXML []byte, channelName string) (Result, error) {
	ch, ok := g.channels[channelName]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownChannel, channelName)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	result, err := ch.Submit(attemptCtx, signedXML)
	submissionDuration.WithLabelValues(channelName).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			result = Result{Outcome: OutcomeTransient, Err: "submission timed out"}
		} else {
			// Local failure before anything went on the wire.
			submissionsTotal.WithLabelValues(channelName, "error").Inc()
			return Result{}, err
		}
	}
	if result.Outcome == OutcomeTransient && attemptCtx.Err() != nil {
		result.Err = "submission timed out"
	}

	submissionsTotal.WithLabelValues(channelName, string(result.Outcome)).Inc()
	g.log.Info("submission attempt classified",
		zap.String("channel", channelName),
		zap.String("outcome", string(result.Outcome)),
		zap.String("confirmation_code", result.ConfirmationCode),
		zap.String("reason_code", result.ReasonCode),
	)
	return result, nil
}

// Has reports whether a channel with the given name is configured.
func (g *Gateway) Has(name string) bool {
	_, ok := g.channels[name]
	return ok
}

// Channels lists the configured channel names.
func (g *Gateway) Channels() []string {
	names := make([]string, 0, len(g.channels))
	for name := range g.channels {
		names = append(names, name)
	}
	return names
}

var Module = fx.Module("submission",
	fx.Provide(NewGateway),
)
