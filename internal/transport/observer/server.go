package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"voxelflow/internal/observerproto"
	"voxelflow/internal/sim/engine"
	"voxelflow/internal/sim/grid"
	"voxelflow/internal/sim/model"
)

type Server struct {
	eng *engine.Engine
	log *log.Logger

	// AllowRemote lifts the loopback-only restriction.
	AllowRemote bool

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu       sync.Mutex
	sessions map[string]*session

	dropped atomic.Uint64
}

type session struct {
	id  string
	out chan []byte

	mu  sync.Mutex
	sub observerproto.SubscribeMsg
}

func (s *session) subscription() observerproto.SubscribeMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub
}

func (s *session) setSubscription(sub observerproto.SubscribeMsg) {
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
}

func NewServer(e *engine.Engine, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		eng:      e,
		log:      logger,
		sessions: map[string]*session{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Sessions is the number of connected observers.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Dropped counts slices not delivered because a session queue was full.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) allowed(r *http.Request) bool {
	return s.AllowRemote || isLoopbackRemote(r.RemoteAddr)
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		d := s.eng.Dims()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			Name:            s.eng.Name(),
			Tick:            s.eng.Tick(),
			Ready:           s.eng.Ready(),
			Kernel:          s.eng.KernelName(),
			TickRateHz:      s.eng.Tuning().TickRateHz,
			Dims:            [3]int{d.X, d.Y, d.Z},
			Fields:          observerproto.Fields,
		}
		for _, k := range model.SourceKinds() {
			resp.SourceKinds = append(resp.SourceKinds, k.String())
		}
		for _, k := range model.FanKinds() {
			resp.FanKinds = append(resp.FanKinds, k.String())
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, err := s.parseSubscribe(msg)
		if err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()), time.Now().Add(time.Second))
			return
		}

		sess := &session{
			id:  fmt.Sprintf("O%d", s.nextID.Add(1)),
			out: make(chan []byte, 16),
			sub: sub,
		}
		s.mu.Lock()
		s.sessions[sess.id] = sess
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.sessions, sess.id)
			s.mu.Unlock()
		}()
		s.log.Printf("observer %s joined: field=%s axis=%s index=%d", sess.id, sub.Field, sub.Axis, sub.Index)

		s.push(sess)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			sub, err := s.parseSubscribe(msg)
			if err != nil {
				continue
			}
			sess.setSubscription(sub)
			s.push(sess)
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		s.log.Printf("observer %s left", sess.id)
	}
}

func (s *Server) parseSubscribe(msg []byte) (observerproto.SubscribeMsg, error) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, fmt.Errorf("bad subscribe")
	}
	if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
		return sub, fmt.Errorf("expected SUBSCRIBE")
	}
	if err := normalizeSubscribe(&sub, s.eng.Dims()); err != nil {
		return sub, err
	}
	return sub, nil
}

// WriteStep implements engine.StepSink: every session gets the slice it
// subscribed to. Sessions sharing a subscription share one encoded frame.
func (s *Server) WriteStep(r engine.StepReport) error {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	if len(sessions) == 0 {
		return nil
	}

	frames := map[observerproto.SubscribeMsg][]byte{}
	err := s.eng.View(func(st *grid.Store) {
		for _, sess := range sessions {
			sub := sess.subscription()
			if _, ok := frames[sub]; ok {
				continue
			}
			b, err := json.Marshal(buildSlice(st, sub, r.Tick))
			if err != nil {
				continue
			}
			frames[sub] = b
		}
	})
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		if b, ok := frames[sess.subscription()]; ok {
			s.send(sess, b)
		}
	}
	return nil
}

// push sends the current slice to one session, if the engine has state.
func (s *Server) push(sess *session) {
	sub := sess.subscription()
	var b []byte
	_ = s.eng.View(func(st *grid.Store) {
		b, _ = json.Marshal(buildSlice(st, sub, s.eng.Tick()))
	})
	if b != nil {
		s.send(sess, b)
	}
}

func (s *Server) send(sess *session, b []byte) {
	select {
	case sess.out <- b:
	default:
		s.dropped.Add(1)
	}
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
