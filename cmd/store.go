package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rfp-ingest/internal/ingest"
	"github.com/sells-group/rfp-ingest/internal/obs"
	"github.com/sells-group/rfp-ingest/internal/store"
	"github.com/sells-group/rfp-ingest/pkg/proposal"
)

// initStore opens and migrates the batch store selected by store.driver.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initClient builds the proposal backend client.
func initClient() proposal.Client {
	opts := []proposal.Option{
		proposal.WithAPIKey(cfg.Backend.APIKey),
		proposal.WithTimeout(max(cfg.Backend.FallbackTimeout(), cfg.Backend.RequestTimeout())),
	}
	if cfg.Backend.RateLimit > 0 {
		opts = append(opts, proposal.WithRateLimit(cfg.Backend.RateLimit, cfg.Backend.RateBurst))
	}
	return proposal.NewClient(cfg.Backend.BaseURL, opts...)
}

// initIngestor wires an Ingestor that logs, records to st and exports
// metrics, followed by any extra observers.
func initIngestor(st store.Store, extra ...ingest.Observer) *ingest.Ingestor {
	observers := append([]ingest.Observer{
		ingest.LogObserver{},
		store.NewRecorder(st),
		obs.NewMetrics(),
	}, extra...)
	return ingest.NewIngestor(initClient(), ingest.OptionsFromConfig(cfg), observers...)
}
