package sonosws

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// reply — как фейковая колонка отвечает на один запрос
type reply struct {
	json   any    // JSON текстовым фреймом
	raw    string // текст как есть
	binary []byte
	close  bool // close-фрейм и обрыв
	drop   bool // обрыв без фрейма
	silent bool // читаем дальше, не отвечаем
}

// fakeDevice — TLS websocket-сервер с протоколом конвертов
type fakeDevice struct {
	srv  *httptest.Server
	host string
	port int

	handle func(n int, req []any) reply

	reject      atomic.Int32 // != 0: отказ в апгрейде с этим статусом
	dials       atomic.Int32
	pings       atomic.Int32
	open        atomic.Int32 // открытые сейчас соединения
	served      atomic.Int32 // всего апгрейдов
	subprotocol atomic.Value

	mu       sync.Mutex
	requests [][]any
	conns    []*websocket.Conn
}

func newFakeDevice(t *testing.T, handle func(n int, req []any) reply) *fakeDevice {
	t.Helper()
	d := &fakeDevice{handle: handle}
	up := websocket.Upgrader{Subprotocols: []string{SubProtocol}}

	d.srv = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.dials.Add(1)
		if code := d.reject.Load(); code != 0 {
			http.Error(w, "rejected by device", int(code))
			return
		}
		if r.Header.Get("X-Sonos-Api-Key") != APIKey {
			http.Error(w, "missing api key", http.StatusForbidden)
			return
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		d.open.Add(1)
		defer d.open.Add(-1)
		d.served.Add(1)
		d.mu.Lock()
		d.conns = append(d.conns, conn)
		d.mu.Unlock()
		d.subprotocol.Store(conn.Subprotocol())
		conn.SetPingHandler(func(data string) error {
			d.pings.Add(1)
			return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		})

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req []any
			_ = json.Unmarshal(data, &req)

			d.mu.Lock()
			d.requests = append(d.requests, req)
			n := len(d.requests)
			d.mu.Unlock()

			rep := d.handle(n, req)
			switch {
			case rep.drop:
				return
			case rep.close:
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
				return
			case rep.silent:
			case rep.binary != nil:
				_ = conn.WriteMessage(websocket.BinaryMessage, rep.binary)
			case rep.raw != "":
				_ = conn.WriteMessage(websocket.TextMessage, []byte(rep.raw))
			default:
				_ = conn.WriteJSON(rep.json)
			}
		}
	}))
	t.Cleanup(d.srv.Close)

	u, err := url.Parse(d.srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatal(err)
	}
	d.host = host
	d.port, _ = strconv.Atoi(port)
	return d
}

// клиент на эту колонку с короткими таймаутами
func (d *fakeDevice) client(t *testing.T, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithPort(d.port),
		WithHeartbeat(0),
		WithConnectTimeout(time.Second),
		WithResponseTimeout(150 * time.Millisecond),
	}
	c := New(d.host, append(base, opts...)...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (d *fakeDevice) requestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

func (d *fakeDevice) request(i int) []any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests[i]
}

// hangUp рвёт все соединения без close-фрейма
func (d *fakeDevice) hangUp() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, conn := range d.conns {
		_ = conn.Close()
	}
	d.conns = nil
}

// ждём cond до двух секунд
func eventually(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
	return true
}

func ok(int, []any) reply {
	return reply{json: []any{map[string]any{"success": true}, map[string]any{}}}
}
