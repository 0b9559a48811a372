// Package app wires the local store, recorder, remote client, sync engine and
// connectivity probe from configuration. It is the layer between the CLI and
// the sync packages.
package app

import (
	"context"
	"fmt"

	"github.com/erauner12/todosync/internal/config"
	"github.com/erauner12/todosync/internal/connectivity"
	"github.com/erauner12/todosync/internal/localstore"
	"github.com/erauner12/todosync/internal/recorder"
	"github.com/erauner12/todosync/internal/remote"
	"github.com/erauner12/todosync/internal/syncengine"
	"github.com/rs/zerolog/log"
)

// App owns the client-side components. The caller must call Close when done.
type App struct {
	cfg      *config.Config
	store    *localstore.Store
	recorder *recorder.Recorder
	client   *remote.Client
	engine   *syncengine.Engine
	probe    *connectivity.Probe
}

// New creates a fully wired App from cfg
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	policy, err := syncengine.ParsePullPolicy(cfg.PullPolicy)
	if err != nil {
		return nil, err
	}

	store, err := localstore.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	// The transport ceiling sits above the per-call timeout so the engine's
	// context deadline is what ends a slow call
	client := remote.NewClient(cfg.RemoteURL, 2*cfg.CallTimeout())

	engine := syncengine.New(store, client, syncengine.Options{
		CallTimeout:      cfg.CallTimeout(),
		Policy:           policy,
		KeepAcknowledged: cfg.KeepAcknowledged,
	})

	log.Debug().
		Str("remote", client.BaseURL()).
		Str("db", store.Path()).
		Str("policy", string(policy)).
		Msg("app initialized")

	return &App{
		cfg:      cfg,
		store:    store,
		recorder: recorder.New(store),
		client:   client,
		engine:   engine,
		probe:    connectivity.NewProbe(client, cfg.ProbeInterval(), cfg.CallTimeout()),
	}, nil
}

// Config returns the configuration the app was built from
func (a *App) Config() *config.Config {
	return a.cfg
}

// Add creates a todo locally and queues it for push
func (a *App) Add(ctx context.Context, title string) (*localstore.Record, error) {
	return a.recorder.Create(ctx, title)
}

// Edit retitles a todo locally and queues the update
func (a *App) Edit(ctx context.Context, id, title string) (*localstore.Record, error) {
	return a.recorder.Update(ctx, id, title)
}

// Remove deletes a todo locally and queues the delete
func (a *App) Remove(ctx context.Context, id string) error {
	return a.recorder.Delete(ctx, id)
}

// List returns all local todos
func (a *App) List(ctx context.Context) ([]localstore.Record, error) {
	return a.store.ListAll(ctx)
}

// Sync runs one sync pass (or joins the pending follow-up pass)
func (a *App) Sync(ctx context.Context) syncengine.Outcome {
	return a.engine.Sync(ctx)
}

// IsSyncing reports whether a pass is running
func (a *App) IsSyncing() bool {
	return a.engine.IsSyncing()
}

// Subscribe observes isSyncing changes
func (a *App) Subscribe() (<-chan bool, func()) {
	return a.engine.Subscribe()
}

// QueueStatus is a snapshot of the outbound queue
type QueueStatus struct {
	Pending []localstore.QueueEntry `json:"pending"`
	Dead    []localstore.QueueEntry `json:"dead"`
}

// Queue returns pending entries and dead letters
func (a *App) Queue(ctx context.Context) (*QueueStatus, error) {
	pending, err := a.store.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	dead, err := a.store.ListDeadLetters(ctx)
	if err != nil {
		return nil, err
	}
	return &QueueStatus{Pending: pending, Dead: dead}, nil
}

// Purge deletes acknowledged queue entries kept for inspection
func (a *App) Purge(ctx context.Context) (int64, error) {
	return a.store.Purge(ctx)
}

// Watch probes the remote and syncs on every reconnect until ctx ends.
// While online it also pushes writes queued since the last pass, checking
// once per probe interval.
func (a *App) Watch(ctx context.Context) error {
	log.Info().
		Str("remote", a.client.BaseURL()).
		Dur("interval", a.cfg.ProbeInterval()).
		Msg("watching connectivity")

	a.engine.RunConnectivity(ctx, a.probe.Run(ctx), a.cfg.ProbeInterval())
	return ctx.Err()
}

// Close releases the local store
func (a *App) Close() error {
	return a.store.Close()
}
