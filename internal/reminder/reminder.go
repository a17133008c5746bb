package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"draqua/backend/internal/domain"
	"draqua/backend/internal/metrics"
)

const (
	DefaultInterval = 60 * time.Second

	daysPerMonth = 30
)

// Derive computes the reminder set from scratch. Only each customer's most
// recent purchase counts; elapsed days are converted to months by dividing
// by 30.
func Derive(customers []domain.Customer, now time.Time) []domain.Reminder {
	reminders := make([]domain.Reminder, 0)
	for _, customer := range customers {
		last, ok := customer.LastPurchase()
		if !ok {
			continue
		}

		months := now.Sub(last.Date).Hours() / 24 / daysPerMonth
		switch {
		case months >= 2:
			reminders = append(reminders, domain.Reminder{
				CustomerID:   customer.ID,
				CustomerName: customer.Name,
				Kind:         domain.ReminderFilterReplacement,
				Message:      fmt.Sprintf("%s - 2 month filter replacement due", customer.Name),
			})
		case months >= 1:
			reminders = append(reminders, domain.Reminder{
				CustomerID:   customer.ID,
				CustomerName: customer.Name,
				Kind:         domain.ReminderServiceCheck,
				Message:      fmt.Sprintf("%s - 1 month service check due", customer.Name),
			})
		}
	}
	return reminders
}

// Scheduler recomputes reminders on a fixed interval and whenever Refresh is
// called. Current returns the last computed set.
type Scheduler struct {
	source   func() []domain.Customer
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu          sync.RWMutex
	current     []domain.Reminder
	generatedAt time.Time

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewScheduler(source func() []domain.Customer, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		source:   source,
		interval: interval,
		now:      time.Now,
		logger:   logger,
		metrics:  m,
	}
}

// Start computes the set once and then keeps it fresh until Stop is called
// or ctx is cancelled. Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.Refresh()
	go s.loop(ctx, s.done)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh()
		}
	}
}

// Stop tears the ticker down and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.lifecycle.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.lifecycle.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Refresh recomputes the reminder set from the current customers.
func (s *Scheduler) Refresh() {
	now := s.now()
	reminders := Derive(s.source(), now)

	s.mu.Lock()
	s.current = reminders
	s.generatedAt = now
	s.mu.Unlock()

	counts := map[string]int{
		string(domain.ReminderServiceCheck):      0,
		string(domain.ReminderFilterReplacement): 0,
	}
	for _, r := range reminders {
		counts[string(r.Kind)]++
	}
	s.metrics.SetReminders(counts)
	s.logger.Debug("reminders refreshed", "count", len(reminders))
}

func (s *Scheduler) Current() domain.ReminderResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Reminder, len(s.current))
	copy(out, s.current)

	resp := domain.ReminderResponse{Reminders: out}
	if !s.generatedAt.IsZero() {
		resp.GeneratedAt = s.generatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
