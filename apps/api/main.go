package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/soundcrate/soundcrate/internal/clock"
	"github.com/soundcrate/soundcrate/internal/migration"
	"github.com/soundcrate/soundcrate/internal/observability"
	"github.com/soundcrate/soundcrate/internal/server"
	"github.com/soundcrate/soundcrate/internal/storage"
	"github.com/soundcrate/soundcrate/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		storage.Module,

		migration.Module,
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
