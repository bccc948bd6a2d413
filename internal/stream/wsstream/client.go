// Package wsstream publishes ingestion records to the consumer over a websocket.
package wsstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trafficflow/internal/dto"
	"trafficflow/internal/logger"
)

// DefaultTimeout bounds one publish round trip when ctx carries no deadline.
const DefaultTimeout = 10 * time.Second

// Client is a stream.Producer writing one JSON text message per record and waiting
// for the JSON ack. The connection is dialed lazily and redialed once when a
// publish on an existing connection fails.
type Client struct {
	endpoint string
	dialer   *websocket.Dialer
	logger   *logger.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient creates a client for a ws:// or wss:// ingest endpoint.
func NewClient(endpoint string, logger *logger.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		dialer:   websocket.DefaultDialer,
		logger:   logger,
	}
}

// PutRecord implements stream.Producer.
func (c *Client) PutRecord(ctx context.Context, record dto.Record) (dto.Ack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reused := c.conn != nil
	ack, err := c.roundTrip(ctx, record)
	if err != nil && reused && c.conn == nil && ctx.Err() == nil {
		c.logger.Warning("Ingest connection broken (%v), redialing %s", err, c.endpoint)
		ack, err = c.roundTrip(ctx, record)
	}
	return ack, err
}

func (c *Client) roundTrip(ctx context.Context, record dto.Record) (dto.Ack, error) {
	if c.conn == nil {
		conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
		if err != nil {
			return dto.Ack{}, fmt.Errorf("failed to dial %s: %w", c.endpoint, err)
		}
		c.conn = conn
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultTimeout)
	}
	c.conn.SetWriteDeadline(deadline)
	c.conn.SetReadDeadline(deadline)

	if err := c.conn.WriteJSON(record); err != nil {
		c.drop()
		return dto.Ack{}, fmt.Errorf("failed to send record: %w", err)
	}

	var ack dto.Ack
	if err := c.conn.ReadJSON(&ack); err != nil {
		c.drop()
		return dto.Ack{}, fmt.Errorf("failed to read ack: %w", err)
	}
	if ack.Error != "" {
		return ack, errors.New(ack.Error)
	}
	return ack, nil
}

func (c *Client) drop() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close implements stream.Producer.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := c.conn.Close()
	c.conn = nil
	return err
}
