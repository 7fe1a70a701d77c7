package verifactu

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ImageEncoder renders a fingerprint string to image bytes. The capability
// is injected at construction so deployments without an encoder degrade to
// an explicit Unavailable result instead of failing at runtime.
type ImageEncoder interface {
	Encode(content string) ([]byte, error)
}

// QRResult is the outcome of a rendering request. When Available is false
// the fingerprint string is still valid and usable on its own.
type QRResult struct {
	Available bool
	PNG       []byte
}

// Generator renders traceability QR images.
type Generator struct {
	encoder ImageEncoder
	log     *zap.Logger
}

// NewGenerator builds a Generator. A nil encoder is a legal configuration:
// rendering then reports Unavailable.
func NewGenerator(encoder ImageEncoder, log *zap.Logger) *Generator {
	return &Generator{encoder: encoder, log: log.Named("verifactu")}
}

// RenderImage renders the RF string as a QR image. Best effort: a missing
// encoder yields QRResult{Available: false}, never an error.
func (g *Generator) RenderImage(rf string) (QRResult, error) {
	if g.encoder == nil {
		g.log.Debug("qr encoder not configured, returning unavailable")
		return QRResult{Available: false}, nil
	}
	data, err := g.encoder.Encode(rf)
	if err != nil {
		return QRResult{}, fmt.Errorf("encode qr: %w", err)
	}
	return QRResult{Available: true, PNG: data}, nil
}

// QREncoder is the default ImageEncoder backed by boombuler/barcode.
type QREncoder struct {
	Size int
}

func NewQREncoder() *QREncoder {
	return &QREncoder{Size: 256}
}

func (e *QREncoder) Encode(content string) ([]byte, error) {
	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return nil, err
	}
	size := e.Size
	if size <= 0 {
		size = 256
	}
	scaled, err := barcode.Scale(code, size, size)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var Module = fx.Module("verifactu",
	fx.Provide(func(log *zap.Logger) *Generator {
		return NewGenerator(NewQREncoder(), log)
	}),
)
