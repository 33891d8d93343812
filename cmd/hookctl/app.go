package main

import (
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"permgate/internal/cache"
	"permgate/internal/cascade"
	"permgate/internal/config"
	"permgate/internal/embedindex"
	"permgate/internal/humanqueue"
	"permgate/internal/scope"
	"permgate/internal/session"
	"permgate/internal/store"
	"permgate/internal/supervisor"
	"permgate/internal/tokenindex"
)

// app bundles every wired component a subcommand might need. Not every
// subcommand uses every field.
type app struct {
	cfg     *config.Config
	st      *store.JSONLStore
	queue   *humanqueue.Queue
	engine  *cascade.Engine
	sessMgr *session.Manager
}

func buildApp(cmd *cobra.Command) (*app, error) {
	flags := cmd.Flags()
	configPath, _ := flags.GetString("config")
	dataDir, _ := flags.GetString("data-dir")
	team, _ := flags.GetString("team")
	socketPath, _ := flags.GetString("socket")
	humanDir, _ := flags.GetString("human-dir")
	if humanDir == "" {
		humanDir = filepath.Join(dataDir, "human")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	st, err := store.NewJSONLStore(dataDir)
	if err != nil {
		return nil, err
	}

	queue, err := humanqueue.New(humanDir)
	if err != nil {
		return nil, err
	}

	sessMgr := session.New(team, cfg)

	resolver := scope.New(st)
	exact := cache.New(nil)
	tokens := tokenindex.New(0.70, 3)
	embeds := embedindex.New(embedindex.NewHashingEmbedder(64), 0.85)

	var supClient *supervisor.Client
	if socketPath != "" {
		supClient = supervisor.NewClient(socketPath, 60*time.Second)
	}

	engine := cascade.New(sessMgr, resolver, exact, tokens, embeds, supClient, queue, st)

	return &app{cfg: cfg, st: st, queue: queue, engine: engine, sessMgr: sessMgr}, nil
}
