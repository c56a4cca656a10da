package sync

import (
	"context"
	"encoding/json"
	"fmt"
	gosync "sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fitsync/internal/events"
	"fitsync/internal/logger"
	"fitsync/internal/models"
	"fitsync/internal/retry"
)

// subscribeFrame is sent once per bound table after every (re)connect.
type subscribeFrame struct {
	Action string `json:"action"`
	Table  string `json:"table"`
	UserID string `json:"user_id"`
}

// StreamListener keeps live, user-scoped subscriptions to the remote change
// feed and applies incoming events through the same merge/conflict path as a
// pull. Delivery is best-effort; correctness comes from the idempotent
// apply logic, not from ordering.
type StreamListener struct {
	url    string
	apiKey string
	engine *Engine
	bus    *events.Bus

	mu     gosync.Mutex
	userID string
	conn   *websocket.Conn
	cancel context.CancelFunc
	wg     gosync.WaitGroup
}

func NewStreamListener(url, apiKey, userID string, engine *Engine, bus *events.Bus) *StreamListener {
	return &StreamListener{
		url:    url,
		apiKey: apiKey,
		userID: userID,
		engine: engine,
		bus:    bus,
	}
}

// Start launches the connect/read loop. It returns immediately; connection
// failures are retried with backoff until Stop.
func (l *StreamListener) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()

	l.wg.Add(1)
	go l.run(ctx)
}

func (l *StreamListener) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	conn := l.conn
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	l.wg.Wait()
	logger.Log.Info("Stopped change-stream listener")
}

// SwitchUser tears down every subscription for the current user before any
// subscription for the new user is established. All subscriptions ride one
// connection, so closing it drops them atomically; the reconnect loop picks
// up the new user id.
func (l *StreamListener) SwitchUser(userID string) {
	l.mu.Lock()
	l.userID = userID
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	logger.Log.Info("Switched change-stream user")
}

func (l *StreamListener) run(ctx context.Context) {
	defer l.wg.Done()

	cfg := retry.Config{
		MaxAttempts:  8,
		InitialDelay: time.Second,
		MaxDelay:     time.Minute,
	}

	for ctx.Err() == nil {
		var conn *websocket.Conn
		err := retry.Do(ctx, cfg, func(ctx context.Context) error {
			c, derr := l.dial(ctx)
			if derr != nil {
				logger.Log.Warn("Change-stream dial failed", zap.Error(derr))
				l.bus.Publish(events.Event{Type: events.StreamError, Payload: derr})
				return derr
			}
			conn = c
			return nil
		})
		if err != nil {
			// Budget exhausted; keep trying on a fresh budget until stopped.
			continue
		}

		l.bus.Publish(events.Event{Type: events.StreamConnected})
		l.readLoop(ctx, conn)
		l.bus.Publish(events.Event{Type: events.StreamDropped})
	}
}

func (l *StreamListener) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", l.url, err)
	}

	l.mu.Lock()
	userID := l.userID
	l.conn = conn
	l.mu.Unlock()

	for _, table := range models.Tables {
		if _, ok := l.engine.Binding(table); !ok {
			continue
		}
		frame := subscribeFrame{Action: "subscribe", Table: table.RemoteName(), UserID: userID}
		if err := conn.WriteJSON(frame); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", table, err)
		}
	}

	logger.Log.Info("Change-stream connected", zap.String("url", l.url))
	return conn, nil
}

func (l *StreamListener) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	for {
		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			if ctx.Err() == nil {
				logger.Log.Warn("Change-stream read failed", zap.Error(err))
			}
			return
		}

		var ev ChangeEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			logger.Log.Warn("Malformed change event, skipping", zap.Error(err))
			continue
		}
		l.handle(ctx, ev)
	}
}

func (l *StreamListener) handle(ctx context.Context, ev ChangeEvent) {
	if !ev.Table.Valid() {
		logger.Log.Warn("Change event for unknown table, skipping",
			zap.String("table", string(ev.Table)))
		return
	}
	b, ok := l.engine.Binding(ev.Table)
	if !ok {
		return
	}

	if err := b.Apply(ctx, ev); err != nil {
		logger.Log.Error("Failed to apply change event",
			zap.String("table", string(ev.Table)),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
		l.bus.Publish(events.Event{Type: events.StreamError, Table: ev.Table, Payload: err})
	}
}
