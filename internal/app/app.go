// Package app provides application initialization and lifecycle management.
//
// App is the container that wires the bot's components together: the
// bbolt store, Genkit, the agent, the session controller, and the
// Discord gateway. Setup builds them in dependency order and Close
// releases them in reverse.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/sync/errgroup"

	"github.com/laoshi-bot/laoshi/internal/agent"
	"github.com/laoshi-bot/laoshi/internal/config"
	"github.com/laoshi-bot/laoshi/internal/gateway"
	"github.com/laoshi-bot/laoshi/internal/log"
	"github.com/laoshi-bot/laoshi/internal/session"
	"github.com/laoshi-bot/laoshi/internal/store"
)

// drainTimeout bounds how long Close waits for in-flight generations.
const drainTimeout = 30 * time.Second

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit     *genkit.Genkit
	Store      *store.Store
	Agent      *agent.Agent
	Controller *session.Controller
	Gateway    *gateway.Gateway
}

// Run connects the gateway and blocks until ctx is canceled, then
// drains in-flight sessions before returning.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.Gateway.Open(ctx); err != nil {
			return err
		}
		a.Logger.Info("gateway connected")
		<-ctx.Done()
		return a.Gateway.Close()
	})

	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		return a.Controller.Close(drainCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases resources in reverse setup order. Safe to call on a
// partially constructed App.
func (a *App) Close() error {
	a.Logger.Info("shutting down")

	var errs []error

	if a.Controller != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		if err := a.Controller.Close(drainCtx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}

	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
