package invoice

import (
	"github.com/facturia-app/facturia/internal/invoice/repository"
	"github.com/facturia-app/facturia/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
