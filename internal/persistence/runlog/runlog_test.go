package runlog

import (
	"testing"
	"time"
)

func TestWriter_AppendAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

	w := NewWriter(dir, "runs")
	if err := w.Write(Event{Time: day, RunID: "a", Stage: "rasterize", Kind: KindStart}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Write(Event{Time: day.Add(time.Minute), RunID: "a", Stage: "rasterize", Kind: KindFinish, DurationMS: 60000}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	w2 := NewWriter(dir, "runs")
	if err := w2.Write(Event{Time: day.Add(2 * time.Minute), RunID: "b", Stage: "assign", Kind: KindWarning, Detail: map[string]any{"count": 3}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = w2.Close()

	events, err := ReadEvents(w.PathForDay("2024-03-09"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[1].DurationMS != 60000 || events[2].RunID != "b" || events[2].Detail["count"] != float64(3) {
		t.Fatalf("events: %+v", events)
	}
}

func TestWriter_RotatesByDay(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "runs")
	defer w.Close()
	d1 := time.Date(2024, 3, 9, 23, 59, 0, 0, time.UTC)
	_ = w.Write(Event{Time: d1, RunID: "a", Kind: KindStart})
	_ = w.Write(Event{Time: d1.Add(2 * time.Minute), RunID: "a", Kind: KindFinish})
	_ = w.Close()

	for _, day := range []string{"2024-03-09", "2024-03-10"} {
		events, err := ReadEvents(w.PathForDay(day))
		if err != nil || len(events) != 1 {
			t.Fatalf("%s: events=%d err=%v", day, len(events), err)
		}
	}
}

func TestWriter_NilDiscards(t *testing.T) {
	var w *Writer
	if err := w.Write(Event{Kind: KindStart}); err != nil {
		t.Fatalf("nil writer: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
