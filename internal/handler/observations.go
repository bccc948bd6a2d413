package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"trafficflow/internal/logger"
	"trafficflow/internal/repository"
)

const (
	// DefaultObservationLimit is used when the request carries no valid limit.
	DefaultObservationLimit = 50
	// MaxObservationLimit caps a single page of observations.
	MaxObservationLimit = 1000
)

// ObservationsResponse is the JSON body of the observations endpoint.
type ObservationsResponse struct {
	Total        int         `json:"total"`
	Observations interface{} `json:"observations"`
}

// GetObservationsHandler returns the newest observations as JSON, ?limit=N.
func GetObservationsHandler(repo repository.ObservationRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		limit := atoiDefault(r.URL.Query().Get("limit"), DefaultObservationLimit)
		if limit > MaxObservationLimit {
			limit = MaxObservationLimit
		}

		observations, err := repo.List(r.Context(), limit)
		if err != nil {
			logger.Error("Error querying observations: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		total, err := repo.Count(r.Context())
		if err != nil {
			logger.Error("Error counting observations: %v", err)
			total = len(observations)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(ObservationsResponse{Total: total, Observations: observations}); err != nil {
			logger.Error("Error encoding observations: %v", err)
		}
	}
}

// HealthHandler reports liveness.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("OK"))
}

// atoiDefault parses a positive integer or returns def.
func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
