package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/headless"
	"github.com/aretw0/headless/internal/config"
	"github.com/aretw0/headless/pkg/adapters/websocket"
	"github.com/aretw0/headless/pkg/client"
	"github.com/aretw0/headless/pkg/observability"
)

// ChatOptions configures NewChat.
type ChatOptions struct {
	Config  *config.Config
	Logger  *slog.Logger
	Debug   bool
	Metrics *observability.Metrics
	Extra   []headless.Option
}

// NewChat builds a conversation from the CLI configuration. The returned
// function closes the conversation and releases its stores.
func NewChat(opts ChatOptions) (*headless.Headless, func() error, error) {
	cfg := opts.Config
	logger := opts.Logger

	storage, err := OpenStorage(cfg.Storage, logger)
	if err != nil {
		return nil, nil, err
	}

	hOpts := append([]headless.Option{headless.WithLogger(logger)}, storage.Options()...)

	var agent *websocket.Client
	if cfg.Agent.URL != "" {
		wsOpts := []websocket.Option{websocket.WithLogger(logger)}
		if cfg.Agent.VisitorID != "" {
			wsOpts = append(wsOpts, websocket.WithVisitorID(cfg.Agent.VisitorID))
		}
		agent = websocket.New(cfg.Agent.URL, wsOpts...)
		hOpts = append(hOpts, headless.WithAgentClient(client.FromEvent(agent)))
	}
	if opts.Debug {
		hOpts = append(hOpts, headless.WithLifecycleHooks(observability.LoggingHooks(logger)))
	}
	if opts.Metrics != nil {
		hOpts = append(hOpts, headless.WithLifecycleHooks(opts.Metrics.Hooks()))
	}
	hOpts = append(hOpts, opts.Extra...)

	h, err := headless.New(cfg.Chat, hOpts...)
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("error initializing headless: %w", err), storage.Close())
	}

	closeFn := func() error {
		errs := []error{h.Close()}
		if agent != nil {
			errs = append(errs, agent.Close())
		}
		errs = append(errs, storage.Close())
		return errors.Join(errs...)
	}
	return h, closeFn, nil
}
