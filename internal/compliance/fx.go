package compliance

import "go.uber.org/fx"

var Module = fx.Module("compliance",
	fx.Provide(NewMachine),
	fx.Provide(NewService),
)
