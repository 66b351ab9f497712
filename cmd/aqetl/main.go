// Command aqetl runs the air quality ETL service: optional ingestion from
// the AQS and Envista APIs into the raw layer, reconciliation and daily AQI
// derivation across all configured pollutant-year scopes, staging of fact
// and dimension tables, and optional publication of daily records to Kafka.
// An ops HTTP server exposes health, readiness, metrics, the run report,
// and the active breakpoint tables.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pacificaqd/airquality-etl/internal/adapter/aqs"
	"github.com/pacificaqd/airquality-etl/internal/adapter/envista"
	httpadapter "github.com/pacificaqd/airquality-etl/internal/adapter/http"
	kafkaadapter "github.com/pacificaqd/airquality-etl/internal/adapter/kafka"
	"github.com/pacificaqd/airquality-etl/internal/adapter/store"
	"github.com/pacificaqd/airquality-etl/internal/config"
	"github.com/pacificaqd/airquality-etl/internal/domain"
	"github.com/pacificaqd/airquality-etl/internal/observability"
	"github.com/pacificaqd/airquality-etl/internal/pipeline"
	"github.com/pacificaqd/airquality-etl/internal/stage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	registry := domain.DefaultBreakpoints()
	st := store.NewFileStore(cfg.DataDir, logger)

	p := pipeline.New(st, st, registry, cfg.TableVersion, logger, metrics, cfg.Workers)
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, registry, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// The batch run happens once; the service then stays up serving the run
	// report and metrics until signalled.
	go func() {
		if err := runBatch(ctx, cfg, logger, metrics, registry, st, p); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("batch run failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

func runBatch(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, registry *domain.BreakpointRegistry, st *store.FileStore, p *pipeline.Pipeline) error {
	if cfg.IngestEnabled {
		if err := ingest(ctx, cfg, logger, metrics, st); err != nil {
			return fmt.Errorf("ingestion: %w", err)
		}
	}

	if err := p.Run(ctx, cfg.Pollutants, cfg.Years); err != nil {
		// Failed scopes are already recorded; staging still covers the rest.
		logger.Warn("pipeline finished with failures", "error", err)
	}

	if err := stageTables(cfg, logger, registry, st); err != nil {
		return fmt.Errorf("staging: %w", err)
	}

	if cfg.KafkaEnabled {
		if err := publishDaily(ctx, cfg, logger, registry, st); err != nil {
			return fmt.Errorf("kafka publish: %w", err)
		}
	}

	logger.Info("batch run complete")
	return nil
}

// ingest pulls the configured date range from the primary feed, and from the
// secondary feed when credentials are present, into the raw layer.
func ingest(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, st *store.FileStore) error {
	start, err := time.Parse("2006-01-02", cfg.StartDate)
	if err != nil {
		return fmt.Errorf("parse START_DATE: %w", err)
	}
	end, err := time.Parse("2006-01-02", cfg.EndDate)
	if err != nil {
		return fmt.Errorf("parse END_DATE: %w", err)
	}

	aqsClient := aqs.NewClient(cfg.AQSBaseURL, cfg.AQSEmail, cfg.AQSKey,
		cfg.RequestDelay, cfg.FetchTimeout, logger, metrics)

	for _, param := range cfg.Pollutants {
		for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
			for _, state := range cfg.StateFIPS {
				obs, err := aqsClient.FetchDay(ctx, param, day, state)
				if err != nil {
					return err
				}
				name := day.Format("0102") + "_" + state
				if _, err := st.SaveRaw(domain.SourceAQS, param, day.Year(), name, obs); err != nil {
					return err
				}
			}
		}
	}

	if !cfg.EnvistaEnabled {
		return nil
	}

	envistaClient := envista.NewClient(cfg.EnvistaBaseURL,
		cfg.EnvistaAPIKey, cfg.EnvistaUsername, cfg.EnvistaPassword,
		cfg.RequestDelay, cfg.FetchTimeout, logger, metrics)
	cached := envista.NewCachedMetadata(envistaClient, cfg.EnvistaCacheSize, metrics)

	for _, param := range cfg.Pollutants {
		obs, err := envistaClient.FetchPollutant(ctx, cached, param, start, end, nil)
		if err != nil {
			return err
		}
		if len(obs) == 0 {
			continue
		}
		name := fmt.Sprintf("envista_%s_%s_%s", param, start.Format("20060102"), end.Format("20060102"))
		if _, err := st.SaveRaw(domain.SourceEnvista, param, start.Year(), name, obs); err != nil {
			return err
		}
	}
	return nil
}

func stageTables(cfg *config.Config, logger *slog.Logger, registry *domain.BreakpointRegistry, st *store.FileStore) error {
	writer := stage.NewWriter(cfg.DataDir, st, logger)

	for _, param := range cfg.Pollutants {
		table, err := registry.Effective(param, cfg.TableVersion)
		if err != nil {
			logger.Warn("no breakpoint table, skipping stage", "param", param, "error", err)
			continue
		}
		for _, year := range cfg.Years {
			scope := pipeline.Scope{ParameterCode: param, Year: year}
			if _, err := writer.WriteAQIDaily(scope, table.Version); err != nil {
				logger.Warn("stage fctAQIDaily failed", "scope", scope.String(), "error", err)
			}
		}
	}
	for _, year := range cfg.Years {
		if _, err := writer.WriteAQICategory(year); err != nil {
			logger.Warn("stage fctAQICategory failed", "year", year, "error", err)
		}
		if err := writer.WriteHourlyFacts(year, cfg.Pollutants); err != nil {
			logger.Warn("stage hourly facts failed", "year", year, "error", err)
		}
	}
	if _, err := writer.WriteMonitorCoverage(cfg.Years, cfg.Pollutants); err != nil {
		logger.Warn("stage monitor_coverage failed", "error", err)
	}
	if _, err := writer.WriteDimPollutant(); err != nil {
		return err
	}
	if _, err := writer.WriteDimAQI(registry); err != nil {
		return err
	}
	return nil
}

func publishDaily(ctx context.Context, cfg *config.Config, logger *slog.Logger, registry *domain.BreakpointRegistry, st *store.FileStore) error {
	writer := kafkaadapter.NewWriter(cfg, logger)
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}()

	for _, param := range cfg.Pollutants {
		table, err := registry.Effective(param, cfg.TableVersion)
		if err != nil {
			continue
		}
		for _, year := range cfg.Years {
			scope := pipeline.Scope{ParameterCode: param, Year: year}
			records, err := st.ReadDaily(scope, table.Version)
			if err != nil {
				logger.Warn("read daily for publish failed", "scope", scope.String(), "error", err)
				continue
			}
			if err := writer.PublishDaily(ctx, records); err != nil {
				return err
			}
		}
	}
	return nil
}
