package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficflow/internal/codec"
	"trafficflow/internal/dto"
	"trafficflow/internal/logger"
	"trafficflow/internal/model"
)

type sliceSink struct {
	mu      sync.Mutex
	records []dto.Record
}

func (s *sliceSink) Add(_ context.Context, record dto.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
}

type stubRepo struct {
	observations []model.TrafficObservation
	listErr      error
	gotLimit     int
}

func (r *stubRepo) Insert(context.Context, model.TrafficObservation) error { return nil }

func (r *stubRepo) GetByKey(context.Context, string) (*model.TrafficObservation, error) {
	return nil, nil
}

func (r *stubRepo) List(_ context.Context, limit int) ([]model.TrafficObservation, error) {
	r.gotLimit = limit
	if r.listErr != nil {
		return nil, r.listErr
	}
	if limit < len(r.observations) {
		return r.observations[:limit], nil
	}
	return r.observations, nil
}

func (r *stubRepo) Count(context.Context) (int, error) { return len(r.observations), nil }

func TestAtoiDefault(t *testing.T) {
	assert.Equal(t, 10, atoiDefault("10", 50))
	assert.Equal(t, 50, atoiDefault("", 50))
	assert.Equal(t, 50, atoiDefault("abc", 50))
	assert.Equal(t, 50, atoiDefault("0", 50))
	assert.Equal(t, 50, atoiDefault("-3", 50))
}

func TestGetObservationsHandler(t *testing.T) {
	repo := &stubRepo{observations: []model.TrafficObservation{
		{Key: "b", Timestamp: "2025-06-15T14:30:01Z", Left: 5, Right: 1, Top: 2, Bottom: 1, Direction: model.DirectionWestEast},
		{Key: "a", Timestamp: "2025-06-15T14:30:00Z", Top: 3, Bottom: 3, Direction: model.DirectionNorthSouth},
	}}
	h := GetObservationsHandler(repo, logger.Discard())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/observations?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 2, body["total"])
	list := body["observations"].([]interface{})
	require.Len(t, list, 1)
	first := list[0].(map[string]interface{})
	assert.Equal(t, "b", first["pk"])
	assert.Equal(t, "west-east", first["direction"])
}

func TestGetObservationsHandler_Limits(t *testing.T) {
	repo := &stubRepo{}
	h := GetObservationsHandler(repo, logger.Discard())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/observations", nil))
	assert.Equal(t, DefaultObservationLimit, repo.gotLimit)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/observations?limit=99999", nil))
	assert.Equal(t, MaxObservationLimit, repo.gotLimit)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/observations", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGetObservationsHandler_RepositoryError(t *testing.T) {
	h := GetObservationsHandler(&stubRepo{listErr: errors.New("disk I/O error")}, logger.Discard())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/observations", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestUploadHandler(t *testing.T) {
	sink := &sliceSink{}
	h := UploadHandler(sink, "TrafficDataStream", logger.Discard())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/upload?partition=cam-1", strings.NewReader("png-bytes")))
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, sink.records, 1)
	record := sink.records[0]
	assert.Equal(t, "TrafficDataStream", record.StreamName)
	assert.Equal(t, "cam-1", record.PartitionKey)
	decoded, err := codec.Decode(record.Data)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(decoded))
}

func TestUploadHandler_Rejects(t *testing.T) {
	sink := &sliceSink{}
	h := UploadHandler(sink, "TrafficDataStream", logger.Discard())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/upload", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, sink.records)
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "OK", rec.Body.String())
}
