package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	kit "dropwatch/internal/transport"
	logx "dropwatch/pkg/logx"
)

type fakeAdapter struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return kit.MessageRef{}, f.err
	}
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) SendPhoto(ctx context.Context, to kit.ChatTarget, url string, caption string) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}

func (f *fakeAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	return nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	return nil
}

func TestDeliverSendsAndRecords(t *testing.T) {
	ad := &fakeAdapter{}
	s := New(Config{RatePerSec: 100}, ad, logx.Nop())

	if err := s.Deliver(context.Background(), 7, "hello"); err != nil {
		t.Fatal(err)
	}
	if len(ad.sent) != 1 || ad.sent[0] != "hello" {
		t.Fatalf("sent = %v", ad.sent)
	}

	recs := s.Recent(0)
	if len(recs) != 1 || recs[0].ChatID != 7 || recs[0].Err != "" {
		t.Fatalf("recs = %+v", recs)
	}
}

func TestDeliverRecordsFailures(t *testing.T) {
	ad := &fakeAdapter{err: errors.New("blocked by user")}
	s := New(Config{RatePerSec: 100}, ad, logx.Nop())

	if err := s.Deliver(context.Background(), 7, "hello"); err == nil {
		t.Fatal("expected error")
	}
	recs := s.Recent(1)
	if len(recs) != 1 || recs[0].Err == "" {
		t.Fatalf("recs = %+v", recs)
	}
}

func TestDeliverHonorsCancelledContext(t *testing.T) {
	ad := &fakeAdapter{}
	s := New(Config{RatePerSec: 1}, ad, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// The limiter wait fails fast on a dead context; nothing is sent.
	_ = s.Deliver(ctx, 7, "first") // may consume the initial burst token
	if err := s.Deliver(ctx, 7, "second"); err == nil {
		t.Fatal("expected context error")
	}
}

func TestRecentBounds(t *testing.T) {
	ad := &fakeAdapter{}
	s := New(Config{RatePerSec: 1000}, ad, logx.Nop())
	for i := 0; i < 5; i++ {
		_ = s.Deliver(context.Background(), int64(i), "x")
	}
	if got := s.Recent(2); len(got) != 2 || got[1].ChatID != 4 {
		t.Fatalf("Recent(2) = %+v", got)
	}
	if got := s.Recent(100); len(got) != 5 {
		t.Fatalf("Recent(100) = %+v", got)
	}
}
