package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
)

// PgListener subscribes to the store's NOTIFY channels over a dedicated
// connection. It satisfies the bridge's Listener interface; the bridge
// owns reconnection policy, the PgListener just connects, listens and
// waits.
//
// Methods are serialized by the bridge's single event loop; the mutex
// only guards Close racing a concurrent wait during shutdown.
type PgListener struct {
	url string

	mu   sync.Mutex
	conn *pgx.Conn
}

func NewPgListener(databaseURL string) *PgListener {
	return &PgListener{url: databaseURL}
}

// Connect (re-)establishes the dedicated listening connection,
// discarding any previous one.
func (l *PgListener) Connect(ctx context.Context) error {
	l.mu.Lock()
	old := l.conn
	l.conn = nil
	l.mu.Unlock()
	if old != nil && !old.IsClosed() {
		_ = old.Close(ctx)
	}

	conn, err := pgx.Connect(ctx, l.url)
	if err != nil {
		return fmt.Errorf("listener: connect: %w", err)
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	return nil
}

// Ping verifies the listening connection with a trivial round-trip.
func (l *PgListener) Ping(ctx context.Context) error {
	conn := l.current()
	if conn == nil || conn.IsClosed() {
		return fmt.Errorf("listener: not connected")
	}
	var one int
	if err := conn.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("listener: ping: %w", err)
	}
	return nil
}

// Listen registers for a notification channel.
func (l *PgListener) Listen(ctx context.Context, channel string) error {
	conn := l.current()
	if conn == nil || conn.IsClosed() {
		return fmt.Errorf("listener: not connected")
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return fmt.Errorf("listener: listen %s: %w", channel, err)
	}
	return nil
}

// WaitForNotification blocks until a notification arrives or ctx is
// done. Context deadline errors pass through unchanged so the caller
// can treat them as an idle tick.
func (l *PgListener) WaitForNotification(ctx context.Context) (channel, payload string, err error) {
	conn := l.current()
	if conn == nil || conn.IsClosed() {
		return "", "", fmt.Errorf("listener: not connected")
	}
	n, err := conn.WaitForNotification(ctx)
	if err != nil {
		return "", "", err
	}
	return n.Channel, n.Payload, nil
}

// Close tears down the listening connection.
func (l *PgListener) Close(ctx context.Context) error {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(ctx)
}

func (l *PgListener) current() *pgx.Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn
}
