// Package ws streams run progress to websocket subscribers.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxelsmith.ai/internal/progress"
	"voxelsmith.ai/internal/protocol"
)

// Path is where cmd/voxelize mounts the hub.
const Path = "/v1/progress"

type subscriber struct {
	runID string
	out   chan []byte
}

// Hub fans PROGRESS and DONE messages out to every connected subscriber.
// Slow subscribers lose messages rather than stall a run.
type Hub struct {
	log *log.Logger

	upgrader websocket.Upgrader

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	active map[string]struct{}

	dropped atomic.Uint64
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		subs:   map[*subscriber]struct{}{},
		active: map[string]struct{}{},
	}
}

func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sub := h.handshake(conn)
		if sub == nil {
			return
		}
		defer h.unsubscribe(sub)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sub.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop: clients only talk during the handshake, reading keeps
		// close frames and pings flowing.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(10 * time.Minute))
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handshake(conn *websocket.Conn) *subscriber {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		h.reject(conn, protocol.ErrProtoBadRequest, "expected HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		h.reject(conn, protocol.ErrProtoBadRequest, "bad HELLO")
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		h.reject(conn, protocol.ErrProtoVersion, "bad protocol_version")
		return nil
	}

	sub := &subscriber{runID: hello.RunID, out: make(chan []byte, 64)}
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       uuid.NewString(),
		ActiveRuns:      h.ActiveRuns(),
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	if h.log != nil {
		name := hello.ClientName
		if name == "" {
			name = "client"
		}
		h.log.Printf("progress subscriber %s joined (session %s)", name, welcome.SessionID)
	}
	return sub
}

func (h *Hub) reject(conn *websocket.Conn, code, message string) {
	_ = writeJSON(conn, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message), time.Now().Add(time.Second))
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped counts messages skipped because a subscriber queue was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (h *Hub) ActiveRuns() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.active))
	for id := range h.active {
		out = append(out, id)
	}
	return out
}

func (h *Hub) broadcast(runID string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if sub.runID != "" && sub.runID != runID {
			continue
		}
		select {
		case sub.out <- b:
		default:
			h.dropped.Add(1)
		}
	}
}

// StartRun registers runID and returns the reporter its stages should use.
// Messages are only sent when the whole-percent value of a stage changes.
func (h *Hub) StartRun(runID string) progress.Reporter {
	h.mu.Lock()
	h.active[runID] = struct{}{}
	h.mu.Unlock()

	var mu sync.Mutex
	last := map[string]int{}
	return progress.Func(func(stage string, done, total int) {
		msg := protocol.NewProgress(runID, stage, done, total)
		mu.Lock()
		prev, seen := last[stage]
		if seen && prev == msg.Percent {
			mu.Unlock()
			return
		}
		last[stage] = msg.Percent
		mu.Unlock()
		h.broadcast(runID, msg)
	})
}

// FinishRun sends the DONE message and forgets the run.
func (h *Hub) FinishRun(done protocol.DoneMsg) {
	done.Type = protocol.TypeDone
	done.ProtocolVersion = protocol.Version
	h.mu.Lock()
	delete(h.active, done.RunID)
	h.mu.Unlock()
	h.broadcast(done.RunID, done)
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
