package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficflow/internal/config"
	"trafficflow/internal/dto"
	"trafficflow/internal/logger"
	"trafficflow/internal/model"
	"trafficflow/internal/service/publisher"
	"trafficflow/internal/service/source/gridsim"
	"trafficflow/internal/stream/wsstream"
)

func newTestApp(t *testing.T) *App {
	t.Helper()

	cfg := &config.Config{
		Port:              0,
		DatabasePath:      filepath.Join(t.TempDir(), "traffic.db"),
		StreamName:        "TrafficDataStream",
		Transport:         "websocket",
		BatchLimit:        2,
		ProcessingWorkers: 2,
	}

	a, err := NewApp(cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

// redLightFrame renders the intersection after 20 steps: west-east traffic is
// queued at the red light (left 5, right 4) and north-south is empty.
func redLightFrame(t *testing.T) []byte {
	t.Helper()

	sim := gridsim.New(800, 600, config.DefaultCalibration())
	for i := 0; i < 20; i++ {
		require.NoError(t, sim.Step())
	}
	frame, err := sim.Render()
	require.NoError(t, err)
	return frame
}

func assertRedLightObservation(t *testing.T, obs model.TrafficObservation) {
	t.Helper()
	assert.True(t, strings.HasPrefix(obs.Key, "road_capture_"))
	assert.Equal(t, 0, obs.Top)
	assert.Equal(t, 5, obs.Left)
	assert.Equal(t, 0, obs.Bottom)
	assert.Equal(t, 4, obs.Right)
	assert.Equal(t, model.DirectionWestEast, obs.Direction)
}

func TestEndToEnd_LocalProducer(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	pub := publisher.NewPublisherService(a.LocalProducer(), "TrafficDataStream", publisher.NewKeyer("round-robin", 2), logger.Discard())
	frame := redLightFrame(t)

	require.NoError(t, pub.Publish(ctx, frame))
	require.NoError(t, pub.Publish(ctx, frame))

	observations, err := a.Repository().List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, observations, 2)
	for _, obs := range observations {
		assertRedLightObservation(t, obs)
	}
	assert.NotEqual(t, observations[0].Key, observations[1].Key)
}

func TestEndToEnd_MalformedRecordIsSkipped(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	producer := a.LocalProducer()

	_, err := producer.PutRecord(ctx, dto.Record{StreamName: "TrafficDataStream", Data: "!!not base64!!"})
	require.NoError(t, err)

	pub := publisher.NewPublisherService(producer, "TrafficDataStream", publisher.FixedKey(publisher.DefaultPartitionKey), logger.Discard())
	require.NoError(t, pub.Publish(ctx, redLightFrame(t)))

	count, err := a.Repository().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEndToEnd_WebsocketIngest(t *testing.T) {
	a := newTestApp(t)
	server := httptest.NewServer(a.Handler())
	defer server.Close()

	client := wsstream.NewClient("ws"+strings.TrimPrefix(server.URL, "http")+"/api/ingest", logger.Discard())
	pub := publisher.NewPublisherService(client, "TrafficDataStream", publisher.FixedKey(publisher.DefaultPartitionKey), logger.Discard())
	defer pub.Close()

	frame := redLightFrame(t)
	require.NoError(t, pub.Publish(context.Background(), frame))
	require.NoError(t, pub.Publish(context.Background(), frame))

	resp, err := http.Get(server.URL + "/api/observations?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Total        int                        `json:"total"`
		Observations []model.TrafficObservation `json:"observations"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.Total)
	require.Len(t, body.Observations, 1)
	assertRedLightObservation(t, body.Observations[0])
}

func TestRoutes_Health(t *testing.T) {
	a := newTestApp(t)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "traffic_frames_captured_total")
}

func TestRun_DrainsPendingRecordsOnShutdown(t *testing.T) {
	a := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// one record stays below the batch limit of two
	pub := publisher.NewPublisherService(a.LocalProducer(), "TrafficDataStream", publisher.FixedKey("k"), logger.Discard())
	require.NoError(t, pub.Publish(ctx, redLightFrame(t)))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}

	count, err := a.Repository().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
