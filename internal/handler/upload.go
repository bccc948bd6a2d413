package handler

import (
	"context"
	"io"
	"net/http"
	"trafficflow/internal/codec"
	"trafficflow/internal/dto"
	"trafficflow/internal/logger"
)

// MaxUploadBytes caps one uploaded frame.
const MaxUploadBytes = 16 << 20

// UploadHandler accepts one raw image per POST and queues it as a record, for
// producers that cannot hold a websocket open. ?partition=KEY sets the partition key.
func UploadHandler(sink RecordSink, streamName string, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxUploadBytes))
		if err != nil {
			logger.Error("Error reading upload body: %v", err)
			http.Error(w, "Error reading body", http.StatusBadRequest)
			return
		}
		if len(body) == 0 {
			http.Error(w, "Empty body", http.StatusBadRequest)
			return
		}

		partition := r.URL.Query().Get("partition")
		if partition == "" {
			partition = "upload"
		}

		logger.Info("Received upload of %d bytes (partition %s)", len(body), partition)

		sink.Add(context.WithoutCancel(r.Context()), dto.Record{
			StreamName:   streamName,
			Data:         codec.Encode(body),
			PartitionKey: partition,
		})
		w.WriteHeader(http.StatusAccepted)
	}
}
