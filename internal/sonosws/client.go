package sonosws

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	// заголовок X-Sonos-Api-Key
	APIKey      = "123e4567-e89b-12d3-a456-426655440000"
	SubProtocol = "v1.api.smartspeaker.audio"

	DefaultPort            = 1443
	DefaultConnectTimeout  = 3 * time.Second
	DefaultResponseTimeout = 3 * time.Second
	DefaultHeartbeat       = 15 * time.Second
	// попыток send/receive на одну команду
	MaxAttempts = 3

	CapabilityAudioClip = "AUDIO_CLIP"

	defaultAppName = "Sonos Websocket"
	defaultAppID   = "com.jjlawren.sonos_websocket"
)

// Client — одно websocket-соединение с одной колонкой.
type Client struct {
	host       string
	uri        string
	session    Session
	ownSession bool
	log        zerolog.Logger

	port            int
	connectTimeout  time.Duration
	responseTimeout time.Duration
	heartbeat       time.Duration
	retryDelay      time.Duration
	maxAttempts     int
	appName         string
	appID           string

	// connMu держим только на проверку/подмену ch, сам dial идёт через dialGroup.
	// gen растёт на каждом Close: dial, начатый до Close, свой канал не ставит.
	connMu    sync.Mutex
	ch        *channel
	gen       uint64
	dialGroup singleflight.Group

	exchangeMu sync.Mutex // одна команда в полёте

	idMu        sync.Mutex
	householdID string
	playerID    string

	// "События", выставлять до первого использования
	OnConnected    func()
	OnDisconnected func(error)
}

type Option func(*Client)

// WithPlayerID — известный id плеера, getGroups не понадобится.
func WithPlayerID(id string) Option {
	return func(c *Client) { c.playerID = id }
}

func WithHouseholdID(id string) Option {
	return func(c *Client) { c.householdID = id }
}

// WithSession — чужая сессия, Close её не закрывает.
func WithSession(s Session) Option {
	return func(c *Client) {
		if s != nil {
			c.session = s
			c.ownSession = false
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithPort(port int) Option {
	return func(c *Client) {
		if port > 0 {
			c.port = port
		}
	}
}

func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.connectTimeout = d
		}
	}
}

// WithResponseTimeout — таймаут на одну попытку send/receive.
func WithResponseTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.responseTimeout = d
		}
	}
}

// WithMaxAttempts — потолок попыток; n < 1 игнорируется.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n >= 1 {
			c.maxAttempts = n
		}
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.retryDelay = d
		}
	}
}

// WithHeartbeat — период ping; 0 выключает.
func WithHeartbeat(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.heartbeat = d
		}
	}
}

// WithAppIdentity — name/appId для loadAudioClip.
func WithAppIdentity(name, appID string) Option {
	return func(c *Client) {
		if name != "" {
			c.appName = name
		}
		if appID != "" {
			c.appID = appID
		}
	}
}

// New — клиент для колонки host. Соединение откроется на Connect или первой команде.
func New(host string, opts ...Option) *Client {
	c := &Client{
		host:            host,
		log:             zerolog.Nop(),
		port:            DefaultPort,
		connectTimeout:  DefaultConnectTimeout,
		responseTimeout: DefaultResponseTimeout,
		heartbeat:       DefaultHeartbeat,
		maxAttempts:     MaxAttempts,
		appName:         defaultAppName,
		appID:           defaultAppID,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.session == nil {
		c.session = NewSession(nil)
		c.ownSession = true
	}
	c.uri = fmt.Sprintf("wss://%s/websocket/api", net.JoinHostPort(host, strconv.Itoa(c.port)))
	return c
}

// URI — wss://host:port/websocket/api
func (c *Client) URI() string { return c.uri }

func (c *Client) Host() string { return c.host }

func (c *Client) IsConnected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.ch.healthy()
}

// CachedIDs — закешированные householdId/playerId, без сети.
func (c *Client) CachedIDs() (householdID, playerID string) {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	return c.householdID, c.playerID
}

// Connect — открывает websocket. При живом канале ничего не делает,
// параллельные вызовы делят один dial. Ошибки здесь не ретраятся.
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	if c.ch.healthy() {
		c.connMu.Unlock()
		c.log.Warn().Str("uri", c.uri).Msg("websocket is already connected")
		return nil
	}
	c.connMu.Unlock()

	// dial переживает отменённого ждущего, ограничен connectTimeout
	res := c.dialGroup.DoChan("connect", func() (any, error) {
		return nil, c.connect(context.WithoutCancel(ctx))
	})
	select {
	case r := <-res:
		return r.Err
	case <-ctx.Done():
		return &ConnectionError{Message: "connect cancelled", Cause: ctx.Err()}
	}
}

func (c *Client) connect(ctx context.Context) error {
	c.connMu.Lock()
	healthy := c.ch.healthy()
	gen := c.gen
	c.connMu.Unlock()
	if healthy {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	c.log.Debug().Str("uri", c.uri).Msg("connecting")
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	ch := newChannel(conn)
	c.connMu.Lock()
	if c.gen != gen {
		c.connMu.Unlock()
		ch.shutdown()
		c.log.Debug().Str("uri", c.uri).Msg("client closed during dial")
		return &ConnectionError{Message: "client closed while connecting"}
	}
	old := c.ch
	c.ch = ch
	c.connMu.Unlock()
	if old != nil {
		old.shutdown()
	}
	c.startPing(ch)

	c.log.Info().Str("uri", c.uri).Msg("websocket connected")
	if c.OnConnected != nil {
		c.OnConnected()
	}
	return nil
}

// Close — закрывает канал и свою сессию (чужую не трогает). Можно звать повторно.
func (c *Client) Close() error {
	c.connMu.Lock()
	ch := c.ch
	c.ch = nil
	c.gen++
	c.connMu.Unlock()

	if ch != nil {
		ch.shutdown()
		c.log.Debug().Str("uri", c.uri).Msg("websocket closed")
		if c.OnDisconnected != nil {
			c.OnDisconnected(nil)
		}
	}
	if c.ownSession && !c.session.Closed() {
		if err := c.session.Close(); err != nil {
			return &ConnectionError{Message: "closing session", Cause: err}
		}
	}
	return nil
}
