package dto

// Record is one entry on the ingestion channel. Data carries the base64 text of a frame.
type Record struct {
	StreamName   string `json:"streamName"`
	Data         string `json:"data"`
	PartitionKey string `json:"partitionKey"`
	SequenceHint int64  `json:"sequenceHint"`
}

// Ack is the channel's answer to a published record.
type Ack struct {
	ShardID        string `json:"shardId"`
	SequenceNumber string `json:"sequenceNumber"`
	Error          string `json:"error,omitempty"`
}
