package sonosws

import (
	"errors"
	"fmt"
)

// ErrWebsocket — общая база: errors.Is(err, ErrWebsocket) верно для всех ошибок пакета.
var ErrWebsocket = errors.New("sonos websocket")

var ErrSessionClosed = errors.New("session closed")

// UnauthorizedError — устройство отклонило ключ при апгрейде (HTTP 401). Не ретраится.
type UnauthorizedError struct {
	Cause error
}

func (e *UnauthorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("credentials rejected: %v", e.Cause)
	}
	return "credentials rejected"
}

func (e *UnauthorizedError) Unwrap() error        { return e.Cause }
func (e *UnauthorizedError) Is(target error) bool { return target == ErrWebsocket }

// ConnectionError — не удалось открыть канал.
// StatusCode/Detail заполнены, если на апгрейд пришёл не 101.
type ConnectionError struct {
	Message    string
	StatusCode int
	Detail     string
	Cause      error
}

func (e *ConnectionError) Error() string {
	msg := "connection failed: " + e.Message
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (http %d", e.StatusCode)
		if e.Detail != "" {
			msg += ": " + e.Detail
		}
		msg += ")"
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *ConnectionError) Unwrap() error        { return e.Cause }
func (e *ConnectionError) Is(target error) bool { return target == ErrWebsocket }

// UnsupportedError — у плеера нет нужной capability.
type UnsupportedError struct {
	Capability string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("device does not support %s", e.Capability)
}

func (e *UnsupportedError) Is(target error) bool { return target == ErrWebsocket }

// DispatchError — общая ошибка команды: кончились попытки, в ответе нет нужного
// поля или не нашёлся плеер в группах.
type DispatchError struct {
	Command  string // пусто для запроса householdId
	Attempts int    // != 0 только при исчерпании попыток
	Detail   string
	Cause    error
}

func (e *DispatchError) Error() string {
	var msg string
	switch {
	case e.Attempts > 0:
		msg = fmt.Sprintf("command %q failed after %d attempts", e.commandName(), e.Attempts)
		if e.Detail != "" {
			msg += ": " + e.Detail
		}
	case e.Detail != "":
		msg = e.Detail
	default:
		msg = "dispatch failed"
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *DispatchError) commandName() string {
	if e.Command == "" {
		return "<empty>"
	}
	return e.Command
}

func (e *DispatchError) Unwrap() error        { return e.Cause }
func (e *DispatchError) Is(target error) bool { return target == ErrWebsocket }

func newDispatchError(detail string) error {
	return &DispatchError{Detail: detail}
}
