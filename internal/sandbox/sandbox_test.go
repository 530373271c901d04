package sandbox

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sandbox.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

const rawMessage = "From: news@flash.test\r\n" +
	"To: reader@example.com\r\n" +
	"Subject: =?utf-8?q?Caf=C3=A9_digest?=\r\n" +
	"\r\n" +
	"body\r\n"

func TestTransportCaptures(t *testing.T) {
	s := openTestStorage(t)
	tr := NewTransport(s, nil)
	ctx := context.Background()

	if err := tr.Deliver(ctx, "news@flash.test", []string{"reader@example.com"}, []byte(rawMessage)); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	msgs, err := s.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("List() returned %d messages, want 1", len(msgs))
	}
	if msgs[0].Subject != "Café digest" {
		t.Errorf("Subject = %q", msgs[0].Subject)
	}
	if msgs[0].Data != nil {
		t.Error("List() should not return raw data")
	}

	full, err := s.Get(ctx, msgs[0].ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(full.Data) != rawMessage {
		t.Error("Get() should return the raw message")
	}
}

func TestTransportSimulatedFailure(t *testing.T) {
	s := openTestStorage(t)
	tr := NewTransport(s, nil)
	tr.SetFailureRate(1)

	err := tr.Deliver(context.Background(), "news@flash.test", []string{"reader@example.com"}, []byte(rawMessage))
	var simErr *SimulatedError
	if !errors.As(err, &simErr) {
		t.Fatalf("Deliver() error = %v, want SimulatedError", err)
	}

	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 1 || stats.Failed != 1 {
		t.Errorf("Stats() = %+v, want 1 total / 1 failed", stats)
	}
}

func TestTransportConcurrentDeliver(t *testing.T) {
	s := openTestStorage(t)
	tr := NewTransport(s, nil)
	tr.SetFailureRate(0.5)

	const n = 20
	var failed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := tr.Deliver(context.Background(), "news@flash.test", []string{"reader@example.com"}, []byte(rawMessage))
			var simErr *SimulatedError
			if errors.As(err, &simErr) {
				failed.Add(1)
			} else if err != nil {
				t.Errorf("Deliver() error = %v", err)
			}
		}()
	}
	wg.Wait()

	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != n {
		t.Errorf("Stats().Total = %d, want %d", stats.Total, n)
	}
	if stats.Failed != int64(failed.Load()) {
		t.Errorf("Stats().Failed = %d, want %d", stats.Failed, failed.Load())
	}
}

func TestStorageListFilterAndClear(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	now := time.Now()
	msgs := []*Message{
		{ID: "old", To: []string{"a@x.com"}, CapturedAt: now.Add(-2 * time.Hour)},
		{ID: "mid", To: []string{"b@x.com"}, CapturedAt: now.Add(-time.Hour)},
		{ID: "new", To: []string{"a@x.com"}, CapturedAt: now},
	}
	for _, m := range msgs {
		if err := s.Save(ctx, m); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	list, err := s.List(ctx, ListFilter{Recipient: "a@x.com"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != "new" || list[1].ID != "old" {
		t.Errorf("List(a@x.com) = %v", list)
	}

	page, _ := s.List(ctx, ListFilter{Limit: 1, Offset: 1})
	if len(page) != 1 || page[0].ID != "mid" {
		t.Errorf("List(limit 1, offset 1) = %v", page)
	}

	n, err := s.Clear(ctx, 90*time.Minute)
	if err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Clear(90m) removed %d, want 1", n)
	}

	n, err = s.Clear(ctx, 0)
	if err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Clear(0) removed %d, want 2", n)
	}

	if m, _ := s.Get(ctx, "new"); m != nil {
		t.Error("message should be gone after Clear(0)")
	}
}
