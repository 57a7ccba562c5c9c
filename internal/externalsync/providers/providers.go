// Package providers builds the configured sync providers.
package providers

import (
	"fmt"
	"log/slog"

	"github.com/losol/eventuras-sub008/internal/config"
	"github.com/losol/eventuras-sub008/internal/externalsync"
)

const (
	KindLocal   = "local"
	KindWebhook = "webhook"
)

// NewRegistry creates one provider per SYNC_PROVIDERS entry, in order.
func NewRegistry(cfg config.SyncConfig, stores externalsync.Stores, log *slog.Logger) (*externalsync.Registry, error) {
	specs, err := cfg.ProviderSpecs()
	if err != nil {
		return nil, err
	}

	list := make([]externalsync.Provider, 0, len(specs))
	for _, spec := range specs {
		strategy, err := externalsync.ParseAccountStrategy(spec.Strategy)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", spec.Name, err)
		}

		var integration externalsync.AccountCreator
		switch spec.Kind {
		case KindLocal:
			integration = NewLocalIntegration(spec.Name)
		case KindWebhook:
			integration, err = NewWebhookIntegration(WebhookConfig{
				BaseURL: cfg.WebhookURL,
				Token:   cfg.WebhookToken,
				Timeout: cfg.WebhookTimeout,
			}, log.With("provider", spec.Name))
			if err != nil {
				return nil, fmt.Errorf("provider %s: %w", spec.Name, err)
			}
		default:
			return nil, fmt.Errorf("provider %s: unknown kind %q", spec.Name, spec.Kind)
		}

		p, err := externalsync.NewStandardProvider(spec.Name, strategy, integration, stores)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	return externalsync.NewRegistry(list...)
}
