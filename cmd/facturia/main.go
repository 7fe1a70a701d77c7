package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/facturia-app/facturia/internal/clock"
	"github.com/facturia-app/facturia/internal/config"
	"github.com/facturia-app/facturia/internal/lease"
	"github.com/facturia-app/facturia/internal/logger"
	"github.com/facturia-app/facturia/internal/migration"
	"github.com/facturia-app/facturia/internal/server"
	"github.com/facturia-app/facturia/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lease.Module,
		migration.Module,

		// HTTP surface plus every fiscal domain module it aggregates
		server.Module,
	)

	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
