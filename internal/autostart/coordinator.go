/*
Package autostart is the autostart coordinator (C9): at boot it reads
every persisted (platform, account, enabled) entry and serially starts
the matching platform runtimes, logging failures without halting the
rest of the sequence.
*/
package autostart

import (
	"context"
	"log/slog"

	"github.com/maowbot/maowbot/internal/domain/model"
)

// Repository persists autostart entries.
type Repository interface {
	List(ctx context.Context) ([]model.AutostartEntry, error)
	Set(ctx context.Context, platform, account, credentialID string, enabled bool, opts model.RuntimeOptions) error
}

// Starter is the subset of platform.Manager the coordinator depends on.
type Starter interface {
	Start(ctx context.Context, platform, account, credentialID string, opts model.RuntimeOptions) error
}

// Coordinator runs the boot-time autostart sequence.
type Coordinator struct {
	repo    Repository
	starter Starter
	log     *slog.Logger
}

// New builds a Coordinator.
func New(repo Repository, starter Starter, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{repo: repo, starter: starter, log: log}
}

// RunAutostart reads every enabled entry and starts its runtime, one at
// a time, in list order. A single failure is logged and does not stop
// the remaining entries from being attempted.
func (c *Coordinator) RunAutostart(ctx context.Context) error {
	entries, err := c.repo.List(ctx)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if !e.Enabled {
			continue
		}
		if err := c.starter.Start(ctx, e.Platform, e.Account, e.CredentialID, e.Options()); err != nil {
			c.log.Error("AUTOSTART_FAILED", "platform", e.Platform, "account", e.Account, "error", err)
			continue
		}
		c.log.Info("AUTOSTART_STARTED", "platform", e.Platform, "account", e.Account)
	}
	return nil
}

// SetAutostart persists whether (platform, account) should be started
// automatically on future boots, along with its RuntimeOptions.
func (c *Coordinator) SetAutostart(ctx context.Context, platform, account, credentialID string, enabled bool, opts model.RuntimeOptions) error {
	return c.repo.Set(ctx, platform, account, credentialID, enabled, opts)
}

// ListAutostart returns every persisted autostart entry.
func (c *Coordinator) ListAutostart(ctx context.Context) ([]model.AutostartEntry, error) {
	return c.repo.List(ctx)
}
