package sonosws

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ========================= low-level =========================

// один открытый websocket; closed — пир начал закрытие или упал ping, нужен реконнект
type channel struct {
	conn     Conn
	wmu      sync.Mutex // сериализует запись в websocket
	closed   atomic.Bool
	pingStop chan struct{}
	stopOnce sync.Once
}

func newChannel(conn Conn) *channel {
	return &channel{conn: conn, pingStop: make(chan struct{})}
}

func (ch *channel) healthy() bool {
	return ch != nil && !ch.closed.Load()
}

func (ch *channel) markClosed() {
	ch.closed.Store(true)
}

func (ch *channel) write(data []byte, timeout time.Duration) error {
	ch.wmu.Lock()
	defer ch.wmu.Unlock()
	_ = ch.conn.SetWriteDeadline(time.Now().Add(timeout))
	return ch.conn.WriteMessage(websocket.TextMessage, data)
}

func (ch *channel) ping(timeout time.Duration) error {
	ch.wmu.Lock()
	defer ch.wmu.Unlock()
	return ch.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(timeout))
}

func (ch *channel) stopPing() {
	ch.stopOnce.Do(func() { close(ch.pingStop) })
}

// безопасно закрыть соединение
func (ch *channel) shutdown() {
	ch.markClosed()
	ch.stopPing()
	ch.wmu.Lock()
	_ = ch.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
		time.Now().Add(500*time.Millisecond))
	ch.wmu.Unlock()
	_ = ch.conn.Close()
}

// dial с заголовками протокола и разбором ошибок апгрейда
func (c *Client) dial(ctx context.Context) (Conn, error) {
	header := http.Header{}
	header.Set("X-Sonos-Api-Key", APIKey)
	header.Set("Sec-WebSocket-Protocol", SubProtocol)

	conn, resp, err := c.session.Dial(ctx, c.uri, header)
	if err == nil {
		return conn, nil
	}
	if conn != nil {
		_ = conn.Close()
	}

	if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
		if resp.StatusCode == http.StatusUnauthorized {
			c.log.Error().Err(err).Str("uri", c.uri).Msg("credentials rejected")
			return nil, &UnauthorizedError{Cause: err}
		}
		return nil, &ConnectionError{
			Message:    "unexpected response received",
			StatusCode: resp.StatusCode,
			Detail:     responseDetail(resp),
			Cause:      err,
		}
	}

	var netErr net.Error
	switch {
	case errors.Is(err, ErrSessionClosed):
		return nil, &ConnectionError{Message: "session closed", Cause: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errors.As(err, &netErr):
		return nil, &ConnectionError{Message: "connection error", Cause: err}
	default:
		return nil, &ConnectionError{Message: "unknown error", Cause: err}
	}
}

func responseDetail(resp *http.Response) string {
	if resp.Body == nil {
		return resp.Status
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if s := strings.TrimSpace(string(b)); s != "" {
		return s
	}
	return resp.Status
}

// ping каждые heartbeat; при ошибке канал помечается закрытым — следующая команда реконнектит
func (c *Client) startPing(ch *channel) {
	if c.heartbeat <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(c.heartbeat)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if err := ch.ping(c.responseTimeout); err != nil {
					c.log.Debug().Err(err).Str("uri", c.uri).Msg("keepalive ping failed")
					ch.markClosed()
					return
				}
			case <-ch.pingStop:
				return
			}
		}
	}()
}

func (c *Client) drop(ch *channel, cause error) {
	c.connMu.Lock()
	held := c.ch == ch
	if held {
		c.ch = nil
	}
	c.connMu.Unlock()

	ch.shutdown()
	if held && c.OnDisconnected != nil {
		c.OnDisconnected(cause)
	}
}
