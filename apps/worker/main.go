package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/soundcrate/soundcrate/internal/catalog"
	"github.com/soundcrate/soundcrate/internal/clock"
	"github.com/soundcrate/soundcrate/internal/config"
	"github.com/soundcrate/soundcrate/internal/download"
	"github.com/soundcrate/soundcrate/internal/download/worker"
	"github.com/soundcrate/soundcrate/internal/library"
	"github.com/soundcrate/soundcrate/internal/observability"
	"github.com/soundcrate/soundcrate/internal/ratelimit"
	"github.com/soundcrate/soundcrate/internal/scheduler"
	"github.com/soundcrate/soundcrate/internal/storage"
	"github.com/soundcrate/soundcrate/pkg/db"
	"go.uber.org/fx"
)

// The worker binary runs the packaging pool and the retention sweeps.
// It shares the database and blob store with the API but serves no
// HTTP traffic.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		storage.Module,
		ratelimit.Module,

		catalog.Module,
		library.Module,
		download.Module,
		worker.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
