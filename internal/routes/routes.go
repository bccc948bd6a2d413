package routes

import (
	"net/http"
	"trafficflow/internal/config"
	"trafficflow/internal/handler"
	"trafficflow/internal/logger"
	"trafficflow/internal/metrics"
	"trafficflow/internal/middleware"
	"trafficflow/internal/repository"
	hub "trafficflow/internal/service/websocket"
)

// SetupRoutes registers the consumer's HTTP surface: record ingestion (socket and
// upload), the live viewer socket, observation queries, logs and metrics.
func SetupRoutes(cfg *config.Config, sink handler.RecordSink, hubService *hub.HubService,
	repo repository.ObservationRepository, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Ingestion and live feed
	mux.HandleFunc("/api/ingest", handler.IngestWebsocketHandler(sink, cfg.StreamName, logger))
	mux.HandleFunc("/api/upload", handler.UploadHandler(sink, cfg.StreamName, logger))
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(hubService, logger))

	// API endpoints
	mux.HandleFunc("/api/observations", handler.GetObservationsHandler(repo, logger))
	mux.HandleFunc("/healthz", handler.HealthHandler)
	mux.Handle("/metrics", metrics.Handler())

	// Log endpoints
	for _, level := range []string{"info", "warning", "error"} {
		filename := level + ".log"
		mux.HandleFunc("/logs/"+level, handler.ShowLogsHandler(cfg, filename))
		mux.HandleFunc("/logs/"+level+"/clear", handler.ClearLogsHandler(logger, filename))
	}

	return middleware.LoggingMiddleware(logger, mux)
}
