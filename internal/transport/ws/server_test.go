package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxelsmith.ai/internal/protocol"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + Path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn, v any) protocol.BaseMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	base, err := protocol.DecodeBase(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v != nil {
		if err := json.Unmarshal(b, v); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
	}
	return base
}

func waitSubscribers(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for h.Subscribers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers = %d, want %d", h.Subscribers(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_StreamsProgressAndDone(t *testing.T) {
	h := NewHub(nil)
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	if err := conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version}); err != nil {
		t.Fatalf("hello: %v", err)
	}
	var welcome protocol.WelcomeMsg
	if base := readMsg(t, conn, &welcome); base.Type != protocol.TypeWelcome || welcome.SessionID == "" {
		t.Fatalf("welcome: %+v", welcome)
	}
	waitSubscribers(t, h, 1)

	rep := h.StartRun("run-1")
	if runs := h.ActiveRuns(); len(runs) != 1 || runs[0] != "run-1" {
		t.Fatalf("active runs: %v", runs)
	}
	rep.Progress("rasterize", 1, 4)
	rep.Progress("rasterize", 1, 4) // same percent, suppressed
	rep.Progress("rasterize", 4, 4)
	h.FinishRun(protocol.DoneMsg{RunID: "run-1", Status: protocol.StatusOK, Blocks: 9})

	var p1, p2 protocol.ProgressMsg
	readMsg(t, conn, &p1)
	readMsg(t, conn, &p2)
	if p1.Percent != 25 || p2.Percent != 100 || p1.Stage != "rasterize" {
		t.Fatalf("progress: %+v %+v", p1, p2)
	}
	var done protocol.DoneMsg
	if base := readMsg(t, conn, &done); base.Type != protocol.TypeDone || done.Blocks != 9 || done.ProtocolVersion != protocol.Version {
		t.Fatalf("done: %+v", done)
	}
	if len(h.ActiveRuns()) != 0 {
		t.Fatalf("run still active")
	}
}

func TestHub_FiltersByRunID(t *testing.T) {
	h := NewHub(nil)
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	_ = conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, RunID: "mine"})
	readMsg(t, conn, nil)
	waitSubscribers(t, h, 1)

	h.StartRun("other").Progress("assign", 1, 2)
	h.StartRun("mine").Progress("assign", 1, 2)

	var p protocol.ProgressMsg
	readMsg(t, conn, &p)
	if p.RunID != "mine" {
		t.Fatalf("received message for %s", p.RunID)
	}
}

func TestHub_RejectsBadHandshake(t *testing.T) {
	h := NewHub(nil)
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	_ = conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: "0.1"})
	var em protocol.ErrorMsg
	if base := readMsg(t, conn, &em); base.Type != protocol.TypeError || em.Code != protocol.ErrProtoVersion {
		t.Fatalf("error: %+v", em)
	}
	if h.Subscribers() != 0 {
		t.Fatalf("rejected client subscribed")
	}
}
