package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"agentkernel.ai/internal/observerproto"
	"agentkernel.ai/internal/protocol"
)

type subscriber struct {
	out      chan []byte
	personas map[string]bool
}

func (s *subscriber) wants(persona string) bool {
	return len(s.personas) == 0 || s.personas[persona]
}

// Server streams telemetry records to websocket observers. Slow observers
// lose records rather than stall the kernel.
type Server struct {
	runID string
	log   *log.Logger

	// AllowRemote admits non-loopback clients.
	AllowRemote bool
	QueueSize   int

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	dropped  atomic.Uint64

	mu     sync.RWMutex
	subs   map[string]*subscriber
	tick   uint64
	states map[string]string
}

func NewServer(runID string, logger *log.Logger) *Server {
	return &Server{
		runID:     runID,
		log:       logger,
		QueueSize: 256,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		subs:   map[string]*subscriber{},
		states: map[string]string{},
	}
}

func (s *Server) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

func (s *Server) Dropped() uint64 { return s.dropped.Load() }

// WriteTelemetry fans rec out to every interested subscriber.
func (s *Server) WriteTelemetry(rec protocol.TelemetryRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Tick > s.tick {
		s.tick = rec.Tick
	}
	if rec.Persona != "" && rec.To != "" {
		s.states[rec.Persona] = rec.To
	}
	for _, sub := range s.subs {
		if !sub.wants(rec.Persona) {
			continue
		}
		select {
		case sub.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
	return nil
}

// Bootstrap reports the latest tick and persona states seen on the stream.
func (s *Server) Bootstrap() observerproto.BootstrapResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	states := make(map[string]string, len(s.states))
	for k, v := range s.states {
		states[k] = v
	}
	return observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		RunID:           s.runID,
		Tick:            s.tick,
		States:          states,
		Subscribers:     len(s.subs),
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(s.Bootstrap())
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sub, ok := s.handshake(conn)
		if !ok {
			return
		}

		sid := fmt.Sprintf("S%d", s.nextID.Add(1))
		if err := writeJSON(conn, observerproto.WelcomeMsg{Type: observerproto.TypeWelcome, ProtocolVersion: observerproto.Version, RunID: s.runID, SessionID: sid}); err != nil {
			return
		}

		s.mu.Lock()
		s.subs[sid] = sub
		s.mu.Unlock()
		if s.log != nil {
			s.log.Printf("observer %s subscribed personas=%v", sid, keys(sub.personas))
		}
		defer func() {
			s.mu.Lock()
			delete(s.subs, sid)
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-sub.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop: only used to notice the client going away.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (*subscriber, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, false
	}
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil || sub.Type != observerproto.TypeSubscribe {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
		return nil, false
	}
	if sub.ProtocolVersion != observerproto.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocolVersion"), time.Now().Add(time.Second))
		return nil, false
	}
	q := s.QueueSize
	if q <= 0 {
		q = 256
	}
	out := &subscriber{out: make(chan []byte, q), personas: map[string]bool{}}
	for _, p := range sub.Personas {
		if p = strings.TrimSpace(p); p != "" {
			out.personas[p] = true
		}
	}
	return out, true
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
