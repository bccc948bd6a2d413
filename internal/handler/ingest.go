package handler

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"trafficflow/internal/dto"
	"trafficflow/internal/logger"

	"github.com/gorilla/websocket"
)

// RecordSink accepts records received from publishers.
type RecordSink interface {
	Add(ctx context.Context, record dto.Record)
}

// IngestWebsocketHandler accepts publisher connections. Every text message is one
// JSON record and is answered with one JSON ack. Payloads are not inspected here;
// malformed encodings are the consumer's to skip.
func IngestWebsocketHandler(sink RecordSink, streamName string, logger *logger.Logger) http.HandlerFunc {
	var sequence atomic.Int64

	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		defer connection.Close()

		logger.Info("Publisher connected from %s", r.RemoteAddr)

		for {
			var record dto.Record
			if err := connection.ReadJSON(&record); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("Publisher disconnected normally")
				} else {
					logger.Warning("Publisher disconnected: %v", err)
				}
				return
			}

			var ack dto.Ack
			if record.StreamName != "" && record.StreamName != streamName {
				ack.Error = "unknown stream " + strconv.Quote(record.StreamName)
				logger.Warning("Rejected record %d: %s", record.SequenceHint, ack.Error)
			} else {
				sink.Add(context.WithoutCancel(r.Context()), record)
				ack.ShardID = "shard-" + record.PartitionKey
				ack.SequenceNumber = strconv.FormatInt(sequence.Add(1), 10)
			}

			if err := connection.WriteJSON(ack); err != nil {
				logger.Error("Failed to ack record %d: %v", record.SequenceHint, err)
				return
			}
		}
	}
}
