// Package core assembles every component into the single Core object a
// running genobridge process is built from: one Registry, one Dispatcher,
// one Task Manager, one Client Bridge, one shared HTTP client, one Health
// Monitor and one Dynamic Selector, wired together once at startup and
// passed explicitly from there on. Nothing here is a package-level
// global; tests build a fresh Core per case.
package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/genobridge/genobridge/pkg/bridge"
	"github.com/genobridge/genobridge/pkg/config"
	"github.com/genobridge/genobridge/pkg/dispatcher"
	"github.com/genobridge/genobridge/pkg/handlers/action"
	"github.com/genobridge/genobridge/pkg/handlers/blast"
	"github.com/genobridge/genobridge/pkg/handlers/coordination"
	"github.com/genobridge/genobridge/pkg/handlers/evo2"
	"github.com/genobridge/genobridge/pkg/handlers/interpro"
	"github.com/genobridge/genobridge/pkg/handlers/ncbi"
	"github.com/genobridge/genobridge/pkg/handlers/pathway"
	"github.com/genobridge/genobridge/pkg/handlers/pdb"
	"github.com/genobridge/genobridge/pkg/handlers/protein"
	"github.com/genobridge/genobridge/pkg/handlers/sequence"
	"github.com/genobridge/genobridge/pkg/handlers/uniprot"
	"github.com/genobridge/genobridge/pkg/health"
	"github.com/genobridge/genobridge/pkg/httpclient"
	"github.com/genobridge/genobridge/pkg/ledger"
	"github.com/genobridge/genobridge/pkg/registry"
	"github.com/genobridge/genobridge/pkg/selector"
	"github.com/genobridge/genobridge/pkg/taskmanager"
)

// Core holds every long-lived component a serving process needs.
type Core struct {
	Config     *config.Config
	Log        *slog.Logger
	Registry   *registry.Registry
	Dispatcher *dispatcher.Dispatcher
	Tasks      *taskmanager.Manager
	Bridge     *bridge.Bridge
	Ledger     *ledger.Ledger
	Selector   *selector.Selector
	Health     *health.Monitor
	HTTP       *httpclient.Client

	longRunning map[string]taskmanager.HandlerFunc
	persist     *taskmanager.Log
}

// New builds a fully wired Core from cfg. cfg.ToolsDir, when non-empty,
// is loaded as an overlay on top of the embedded tool catalogue. log may
// be nil, in which case slog.Default is used.
func New(cfg *config.Config, log *slog.Logger) (*Core, error) {
	if log == nil {
		log = slog.Default()
	}
	cfg.SetDefaults()

	reg := registry.New()
	if err := reg.LoadBuiltin(cfg.ToolsDir); err != nil {
		return nil, fmt.Errorf("loading tool registry: %w", err)
	}

	httpClient := httpclient.New(httpclient.Config{})
	monitor := health.New(log)
	longRunning := map[string]taskmanager.HandlerFunc{}

	var persist *taskmanager.Log
	if cfg.EnablePersistence {
		path, err := taskmanager.DefaultLogPath()
		if err != nil {
			return nil, fmt.Errorf("resolving task persistence path: %w", err)
		}
		persist, err = taskmanager.OpenLog(path)
		if err != nil {
			return nil, fmt.Errorf("opening task persistence log: %w", err)
		}
	}

	tasks := taskmanager.New(taskmanager.Config{
		MaxConcurrent:      cfg.MaxConcurrentTasks,
		MaxRetries:         cfg.MaxRetries,
		DefaultTimeout:      cfg.DefaultTimeout(),
		CacheEnabled:       cfg.EnableCache,
		PersistenceEnabled: cfg.EnablePersistence,
	}, func(toolName string) (taskmanager.HandlerFunc, bool) {
		h, ok := longRunning[toolName]
		return h, ok
	}, persist, log)

	clientBridge := bridge.New(log)
	d := dispatcher.New(reg, tasks, clientBridge, log)

	sequence.Register(d)
	protein.Register(d)

	upstream := func(name string) config.UpstreamConfig { return cfg.Upstream[name] }

	if err := uniprot.Register(reg, d, httpClient, monitor, upstream("uniprot").BaseURL); err != nil {
		return nil, fmt.Errorf("wiring uniprot handlers: %w", err)
	}
	if err := pdb.Register(reg, d, httpClient, monitor, upstream("pdb").BaseURL, upstream("alphafold").BaseURL); err != nil {
		return nil, fmt.Errorf("wiring pdb/alphafold handlers: %w", err)
	}
	ncbi.Register(d, httpClient, monitor, upstream("ncbi").BaseURL, upstream("ncbi").APIKey)
	interpro.Register(d, longRunning, httpClient, monitor,
		upstream("interpro_scan").BaseURL, upstream("interpro").BaseURL, upstream("interpro").APIKey)
	evo2.Register(d, longRunning, httpClient, monitor, upstream("evo2").BaseURL, upstream("evo2").APIKey)
	blast.Register(longRunning, httpClient, monitor, upstream("blast").BaseURL)
	pathway.Register(d, httpClient, monitor, upstream("pathway").BaseURL)

	l := ledger.New(clientBridge)
	clientBridge.SetActionProgressHandler(func(clientID, actionID, status string) {
		l.UpdateActionStatus(clientID, actionID, ledger.ActionStatus(status))
	})
	action.Register(d, l)

	sel := selector.New(reg, selector.Weights{
		Keyword:  cfg.Selector.Weights.Keyword,
		Category: cfg.Selector.Weights.Category,
		Priority: cfg.Selector.Weights.Priority,
		Context:  cfg.Selector.Weights.Context,
	})
	coordination.Register(d, clientBridge, sel)

	return &Core{
		Config:      cfg,
		Log:         log,
		Registry:    reg,
		Dispatcher:  d,
		Tasks:       tasks,
		Bridge:      clientBridge,
		Ledger:      l,
		Selector:    sel,
		Health:      monitor,
		HTTP:        httpClient,
		longRunning: longRunning,
		persist:     persist,
	}, nil
}

// Start launches the Health Monitor's polling loop and, when cfg.ToolsDir
// is set, a watcher that hot-reloads the tool catalogue whenever a
// descriptor file under it changes. Call once after New; ctx's
// cancellation stops both loops.
func (c *Core) Start(ctx context.Context) {
	c.Health.Start(ctx, c.Config.HealthInterval())

	if c.Config.ToolsDir != "" {
		go func() {
			if err := c.Registry.Watch(ctx, c.Config.ToolsDir, c.Log); err != nil {
				c.Log.Warn("tool registry watcher stopped", "error", err)
			}
		}()
	}
}

// Close releases resources Core owns that need an explicit shutdown.
func (c *Core) Close() error {
	if c.persist != nil {
		return c.persist.Close()
	}
	return nil
}
