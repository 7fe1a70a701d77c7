package providers

import (
	"go.uber.org/fx"

	"github.com/facturia-app/facturia/internal/providers/pdf"
)

var Module = fx.Module("providers",
	fx.Provide(pdf.NewRenderer),
)
