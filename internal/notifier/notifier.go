// Package notifier delivers outbound messages through the transport adapter.
//
// Delivery is fire-and-forget from the caller's point of view: failures are
// logged and recorded in the history ring, never propagated back into
// watch-list or ledger state.
package notifier

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	kit "dropwatch/internal/transport"
	logx "dropwatch/pkg/logx"
)

const historyCap = 300

type Config struct {
	// RatePerSec caps outbound messages across all users (default 3).
	RatePerSec int
}

type Record struct {
	ChatID int64
	Text   string
	SentAt time.Time
	Err    string
}

type Service struct {
	adapter kit.Adapter
	log     logx.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	history []Record
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Service {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 3
	}
	return &Service{
		adapter: adapter,
		log:     log,
		// Token bucket: burst = rate per sec, so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// Deliver sends text to the chat, honoring the global rate limit.
// The returned error is informational; callers must not let it alter state.
func (s *Service) Deliver(ctx context.Context, chatID int64, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		s.record(chatID, text, err)
		return err
	}

	_, err := s.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, &kit.SendOptions{DisablePreview: true})
	if err != nil {
		s.log.Warn("notification send failed", logx.Int64("chat_id", chatID), logx.Err(err))
	} else {
		s.log.Debug("notification sent", logx.Int64("chat_id", chatID))
	}
	s.record(chatID, text, err)
	return err
}

func (s *Service) record(chatID int64, text string, err error) {
	r := Record{ChatID: chatID, Text: text, SentAt: time.Now()}
	if err != nil {
		r.Err = err.Error()
	}
	s.mu.Lock()
	s.history = append(s.history, r)
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	s.mu.Unlock()
}

// Recent returns up to n most recent delivery records, newest last.
func (s *Service) Recent(n int) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.history) {
		n = len(s.history)
	}
	out := make([]Record, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}
