package sonosws

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Conn — то, что нужно от *websocket.Conn.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session — транспорт, через который клиент открывает соединения.
type Session interface {
	// при отказе в апгрейде *http.Response несёт статус
	Dial(ctx context.Context, uri string, header http.Header) (Conn, *http.Response, error)
	Close() error
	Closed() bool
}

// DialerSession — Session поверх websocket.Dialer.
type DialerSession struct {
	dialer websocket.Dialer
	closed atomic.Bool
}

// NewSession — tlsConfig == nil: сертификат не проверяем (у колонок self-signed).
func NewSession(tlsConfig *tls.Config) *DialerSession {
	if tlsConfig == nil {
		tlsConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &DialerSession{
		dialer: websocket.Dialer{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: tlsConfig,
		},
	}
}

// Sec-WebSocket-Protocol переносим в Subprotocols: gorilla не принимает его заголовком.
func (s *DialerSession) Dial(ctx context.Context, uri string, header http.Header) (Conn, *http.Response, error) {
	if s.closed.Load() {
		return nil, nil, ErrSessionClosed
	}
	d := s.dialer
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	if proto := h.Values("Sec-WebSocket-Protocol"); len(proto) > 0 {
		d.Subprotocols = append([]string(nil), proto...)
		h.Del("Sec-WebSocket-Protocol")
	}
	if deadline, ok := ctx.Deadline(); ok {
		d.HandshakeTimeout = time.Until(deadline)
	}
	conn, resp, err := d.DialContext(ctx, uri, h)
	if err != nil {
		return nil, resp, err
	}
	return conn, resp, nil
}

// уже открытые каналы продолжают работать
func (s *DialerSession) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *DialerSession) Closed() bool {
	return s.closed.Load()
}
