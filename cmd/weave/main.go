// Package main provides the weave binary: it loads a narrative project and
// plays it interactively or from a replay script.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/chzyer/readline"
	"go.uber.org/zap"

	"github.com/cory-johannsen/weave/internal/config"
	"github.com/cory-johannsen/weave/internal/console"
	"github.com/cory-johannsen/weave/internal/narrative/events"
	"github.com/cory-johannsen/weave/internal/narrative/flow"
	"github.com/cory-johannsen/weave/internal/narrative/graph"
	"github.com/cory-johannsen/weave/internal/narrative/localize"
	"github.com/cory-johannsen/weave/internal/narrative/replay"
	"github.com/cory-johannsen/weave/internal/narrative/source"
	"github.com/cory-johannsen/weave/internal/observability"
	"github.com/cory-johannsen/weave/internal/scripting"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	projectPath := flag.String("project", "", "path to a project JSON export; overrides project.path")
	replayPath := flag.String("replay", "", "path to a replay YAML script; empty = interactive console")
	startID := flag.String("start", "", "element id to start at; empty = project start")
	history := flag.String("history", "", "readline history file")
	flag.Parse()

	overrides := []config.Override{config.WithValue("project.path", *projectPath)}
	if *projectPath != "" {
		overrides = append(overrides, config.WithValue("project.source", config.SourceFile))
	}
	cfg, err := config.Load(*configPath, overrides...)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	locale := ""
	if cfg.Locale.Enabled {
		locale = cfg.Locale.Locale
	}
	src, err := source.FromConfig(cfg.Project, locale)
	if err != nil {
		logger.Fatal("configuring project source", zap.Error(err))
	}
	doc, err := fetch(src, cfg.Project.Timeout)
	if err != nil {
		logger.Fatal("fetching project", zap.String("source", cfg.Project.Source), zap.Error(err))
	}

	hub := events.NewHub(events.DefaultHistory, logger)
	runner := scripting.NewRunner(cfg.Scripting.InstructionLimit, logger)
	engine := flow.NewEngine(runner, hub, flow.Options{
		Locale: localize.Policy{
			Enabled:  cfg.Locale.Enabled,
			Locale:   cfg.Locale.Locale,
			Fallback: cfg.Locale.FallbackToDefault,
		},
		StripMarkup: cfg.Scripting.StripMarkup,
		MaxHops:     cfg.Flow.MaxHops,
	}, logger)

	project, err := engine.Load(doc)
	if err != nil {
		logger.Fatal("loading project", zap.Error(err))
	}
	for _, derr := range project.DanglingReferences() {
		logger.Warn("dangling reference", zap.Error(derr))
	}
	session := engine.NewSession(project)

	logger.Info("session started",
		zap.String("project", project.Name),
		zap.String("session", session.ID()),
		zap.Bool("locales", project.HasLocales()),
		zap.Duration("startup", time.Since(start)),
	)

	if *replayPath != "" {
		if err := runReplay(session, *replayPath, *startID); err != nil {
			logger.Fatal("replay failed", zap.Error(err))
		}
		return
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     *history,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		logger.Fatal("initializing readline", zap.Error(err))
	}
	defer rl.Close()

	c := console.New(session, hub, rl.Stdout(), logger)
	defer c.Close()
	if err := c.Begin(graph.ElementID(*startID)); err != nil {
		logger.Fatal("starting playthrough", zap.Error(err))
	}
	if err := c.Run(rl); err != nil {
		logger.Error("console stopped", zap.Error(err))
	}
}

func fetch(src source.Source, timeout time.Duration) ([]byte, error) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return src.Fetch(ctx)
}

func runReplay(session *flow.Session, path, startID string) error {
	script, err := replay.Load(path)
	if err != nil {
		return err
	}
	if startID != "" {
		script.Start = startID
	}
	t, runErr := replay.Run(session, script)
	if err := replay.Write(os.Stdout, t); err != nil {
		return err
	}
	return runErr
}
