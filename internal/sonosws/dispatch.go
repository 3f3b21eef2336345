package sonosws

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// сбой send/receive, который съедает цикл ретраев
type attemptError struct {
	reason string
	cause  error
}

func (e *attemptError) Error() string {
	if e.cause != nil {
		return e.reason + ": " + e.cause.Error()
	}
	return e.reason
}

func (e *attemptError) Unwrap() error { return e.cause }

func isTransient(err error) bool {
	var ae *attemptError
	return errors.As(err, &ae)
}

// Send — отправляет [command, options] и ждёт один ответ, при нужде реконнектит.
// Сбои send/receive ретраятся до потолка попыток, ошибки connect возвращаются как есть.
func (c *Client) Send(ctx context.Context, command, options Payload) (Response, error) {
	c.exchangeMu.Lock()
	defer c.exchangeMu.Unlock()

	name, _ := command.GetString("command")
	log := c.log.With().
		Str("request_id", uuid.NewString()).
		Str("command", name).
		Logger()

	body, err := encodeEnvelope(command, options)
	if err != nil {
		return nil, &DispatchError{Command: name, Detail: "invalid payload", Cause: err}
	}

	var (
		resp     Response
		attempts int
	)
	err = retry.Do(
		func() error {
			attempts++
			ch, err := c.ensureConnected(ctx)
			if err != nil {
				return err
			}
			r, err := c.exchange(ctx, ch, body, log)
			if err != nil {
				return err
			}
			resp = r
			return nil
		},
		retry.Attempts(uint(c.maxAttempts)),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Uint("attempt", n+1).Err(err).Msg("attempt failed")
		}),
	)

	switch {
	case err == nil:
		return resp, nil
	case ctx.Err() != nil:
		return nil, &DispatchError{Command: name, Detail: "command cancelled", Cause: ctx.Err()}
	case isTransient(err):
		log.Error().Int("attempts", attempts).Err(err).Msg("command failed")
		return nil, &DispatchError{Command: name, Attempts: attempts, Cause: err}
	default:
		var de *DispatchError
		if errors.As(err, &de) && de.Command == "" {
			de.Command = name
		}
		return nil, err
	}
}

func (c *Client) ensureConnected(ctx context.Context) (*channel, error) {
	c.connMu.Lock()
	ch := c.ch
	c.connMu.Unlock()
	if ch.healthy() {
		return ch, nil
	}
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	c.connMu.Lock()
	ch = c.ch
	c.connMu.Unlock()
	if !ch.healthy() {
		return nil, &ConnectionError{Message: "connection lost after connect"}
	}
	return ch, nil
}

// одна попытка: запись + чтение одного сообщения
func (c *Client) exchange(ctx context.Context, ch *channel, body []byte, log zerolog.Logger) (Response, error) {
	log.Debug().RawJSON("payload", body).Msg("sending command")
	if err := ch.write(body, c.responseTimeout); err != nil {
		c.drop(ch, err)
		return nil, &attemptError{reason: "send failed", cause: err}
	}

	_ = ch.conn.SetReadDeadline(time.Now().Add(c.responseTimeout))
	stop := context.AfterFunc(ctx, func() {
		_ = ch.conn.SetReadDeadline(time.Now())
	})
	mt, data, err := ch.conn.ReadMessage()
	stop()

	if err != nil {
		if ctx.Err() != nil {
			// после прерванного чтения сокет не годится
			c.drop(ch, ctx.Err())
			return nil, ctx.Err()
		}
		var closeErr *websocket.CloseError
		var netErr net.Error
		switch {
		case errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure:
			log.Debug().Int("code", closeErr.Code).Msg("websocket closing")
			ch.markClosed()
			return nil, &attemptError{reason: "websocket closed by peer", cause: err}
		case errors.As(err, &netErr) && netErr.Timeout():
			log.Warn().Dur("timeout", c.responseTimeout).Msg("timed out waiting for response")
			// после read deadline gorilla соединение не восстанавливает
			c.drop(ch, err)
			return nil, &attemptError{reason: "timeout waiting for response", cause: err}
		default:
			log.Debug().Err(err).Msg("connection reset")
			c.drop(ch, err)
			return nil, &attemptError{reason: "connection reset", cause: err}
		}
	}

	switch mt {
	case websocket.TextMessage:
	case websocket.CloseMessage:
		ch.markClosed()
		return nil, &attemptError{reason: "websocket closing"}
	default:
		log.Warn().Int("type", mt).Msg("received non-text message")
		return nil, &attemptError{reason: "unexpected message type"}
	}

	resp, err := decodeResponse(data)
	if err != nil {
		return nil, &DispatchError{Detail: "malformed response", Cause: err}
	}
	log.Debug().RawJSON("response", data).Msg("received response")
	return resp, nil
}
