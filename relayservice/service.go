// Package relayservice assembles the push relay: a Pub/Sub ingestion
// pipeline that fans envelopes out to devices, plus the HTTP API devices use
// to subscribe to channels.
package relayservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-dining-satellite/internal/api"
	"github.com/tinywideclouds/go-dining-satellite/internal/pipeline"
	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
	"github.com/tinywideclouds/go-dining-satellite/pkg/relay"
	"github.com/tinywideclouds/go-dining-satellite/relayservice/config"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[dining.Envelope]
	logger          *slog.Logger
}

// New assembles the service. dispatchers.APNS may be nil.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	dispatchers pipeline.Dispatchers,
	deviceStore relay.DeviceStore,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	processor := pipeline.NewProcessor(dispatchers, deviceStore, logger)

	streamingService, err := messagepipeline.NewStreamingService(
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		consumer,
		pipeline.EnvelopeTransformer,
		processor,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	deviceAPI := api.NewDeviceAPI(deviceStore, logger)
	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	deviceAPI.Routes(mux, func(h http.Handler) http.Handler {
		return corsMiddleware(authMiddleware(h))
	})

	// CORS preflight for the whole API namespace
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Relay pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
