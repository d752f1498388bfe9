package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/rocketscienceinc/ultimate-tictactoe/internal/protocol"
)

const DefaultRetryDelay = 2 * time.Second

var ErrNotConnected = errors.New("not connected to the server")

// Handler receives every message read from the server.
type Handler interface {
	HandleMessage(msg protocol.Message) error
}

// Client is a reconnecting connection to the room server. It implements session.Channel.
type Client struct {
	logger     *slog.Logger
	url        string
	retryDelay time.Duration

	mu    sync.Mutex
	conn  *websocket.Conn
	ready chan struct{}
}

func NewClient(logger *slog.Logger, url string, retryDelay time.Duration) *Client {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	return &Client{
		logger:     logger.With("component", "websocket_client", "url", url),
		url:        url,
		retryDelay: retryDelay,
		ready:      make(chan struct{}),
	}
}

// Run - keeps a connection open until ctx is done and hands inbound messages to handler.
func (that *Client) Run(ctx context.Context, handler Handler) error {
	log := that.logger.With("method", "Run")

	for {
		conn, _, err := websocket.Dial(ctx, that.url, nil)
		if err == nil {
			that.setConn(conn)
			log.Info("connected to server")

			err = that.readMessages(ctx, conn, handler)
			that.setConn(nil)

			_ = conn.Close(websocket.StatusNormalClosure, "bye")
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		log.Warn("connection lost, retrying", "error", err, "delay", that.retryDelay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(that.retryDelay):
		}
	}
}

// WaitReady - blocks until a connection is open.
func (that *Client) WaitReady(ctx context.Context) error {
	that.mu.Lock()
	ready := that.ready
	that.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send - writes msg as a JSON text frame.
func (that *Client) Send(ctx context.Context, msg protocol.Message) error {
	that.mu.Lock()
	conn := that.conn
	that.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := wsjson.Write(writeCtx, conn, msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}

	return nil
}

func (that *Client) readMessages(ctx context.Context, conn *websocket.Conn, handler Handler) error {
	log := that.logger.With("method", "readMessages")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var msg protocol.Message
		if err = json.Unmarshal(data, &msg); err != nil {
			log.Warn("failed to unmarshal message", "error", err)
			continue
		}

		if err = handler.HandleMessage(msg); err != nil {
			log.Error("failed to handle message", "type", msg.Type, "error", err)
		}
	}
}

// setConn - swaps the active connection. WaitReady callers are released when a connection is set.
func (that *Client) setConn(conn *websocket.Conn) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.conn = conn

	if conn != nil {
		close(that.ready)
		return
	}

	that.ready = make(chan struct{})
}
