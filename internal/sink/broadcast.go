package sink

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

// Message is the JSON pushed to WebSocket clients. Seq increases by one per
// segment for the life of the daemon, across capture restarts.
type Message struct {
	Seq        uint64 `json:"seq"`
	Original   string `json:"original"`
	Translated string `json:"translated"`
	Final      bool   `json:"final"`
	Timestamp  string `json:"timestamp"`
}

func messageFor(r Result) Message {
	return Message{
		Seq:        r.Seq,
		Original:   r.Original,
		Translated: r.Translated,
		Final:      r.Final,
		Timestamp:  r.Timestamp.Format("2006-01-02 15:04:05"),
	}
}

const clientBuffer = 16

type client struct {
	conn *websocket.Conn
	send chan Message
}

// Broadcast pushes results to every connected WebSocket client. Clients that
// fall behind by more than a small buffer are disconnected.
type Broadcast struct {
	path         string
	writeTimeout time.Duration
	logger       *logrus.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	srv     *http.Server
	ln      net.Listener
}

// NewBroadcast returns a broadcaster serving WebSocket upgrades on path.
func NewBroadcast(path string, writeTimeout time.Duration, logger *logrus.Logger) *Broadcast {
	if path == "" {
		path = "/ws"
	}
	if writeTimeout <= 0 {
		writeTimeout = time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Broadcast{
		path:         path,
		writeTimeout: writeTimeout,
		logger:       logger,
		clients:      map[*client]struct{}{},
	}
}

// Listen starts serving on addr.
func (b *Broadcast) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle(b.path, b)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	b.mu.Lock()
	b.ln, b.srv = ln, srv
	b.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.logger.Errorf("broadcast server: %v", err)
		}
	}()
	b.logger.Infof("broadcasting subtitles on ws://%s%s", ln.Addr(), b.path)
	return nil
}

// Addr returns the listening address, or "" before Listen.
func (b *Broadcast) Addr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ln == nil {
		return ""
	}
	return b.ln.Addr().String()
}

// Clients returns the number of connected clients.
func (b *Broadcast) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// ServeHTTP upgrades the request and streams results until the client leaves.
func (b *Broadcast) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Subtitle overlays are loaded from file:// pages and OBS browser sources.
		InsecureSkipVerify: true,
	})
	if err != nil {
		b.logger.Debugf("websocket accept: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan Message, clientBuffer)}
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
	b.logger.Infof("subtitle client connected from %s", r.RemoteAddr)

	defer func() {
		b.mu.Lock()
		b.removeLocked(c)
		b.mu.Unlock()
	}()

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "closing")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, b.writeTimeout)
			err := wsjson.Write(wctx, conn, msg)
			cancel()
			if err != nil {
				b.logger.Debugf("websocket write: %v", err)
				return
			}
		}
	}
}

// removeLocked drops c and closes its queue. b.mu must be held.
func (b *Broadcast) removeLocked(c *client) {
	if _, ok := b.clients[c]; !ok {
		return
	}
	delete(b.clients, c)
	close(c.send)
}

func (b *Broadcast) OnResult(_ context.Context, r Result) error {
	msg := messageFor(r)
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		select {
		case c.send <- msg:
		default:
			b.logger.Warn("subtitle client too slow, disconnecting")
			b.removeLocked(c)
		}
	}
	return nil
}

// Close disconnects all clients and stops the server.
func (b *Broadcast) Close() error {
	b.mu.Lock()
	for c := range b.clients {
		b.removeLocked(c)
	}
	srv := b.srv
	b.srv, b.ln = nil, nil
	b.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
