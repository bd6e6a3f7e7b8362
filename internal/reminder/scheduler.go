package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/cadence/internal/model"
	"github.com/dukerupert/cadence/internal/push"
	"github.com/dukerupert/cadence/internal/recurrence"
	"github.com/dukerupert/cadence/internal/store"
	"github.com/dukerupert/cadence/internal/websocket"
)

// DefaultInterval is how often the scheduler scans for due reminders.
const DefaultInterval = 60 * time.Second

// Stores groups the tables the scheduler reads and writes.
type Stores struct {
	Tasks         *store.TaskStore
	Events        *store.EventStore
	Notifications *store.NotificationStore
	Settings      *store.SettingsStore
	Push          *store.PushStore
	// Users resolves recipient addresses for email delivery.
	Users *store.UserStore
}

// Mailer delivers a notification by email.
type Mailer interface {
	SendReminder(ctx context.Context, toEmail, toName string, n model.Notification) error
}

// Scheduler periodically runs Check against the database, stores the new
// notifications and delivers them live and over web push.
type Scheduler struct {
	mu       sync.RWMutex
	stores   Stores
	hub      *websocket.Hub
	pushSvc  *push.Service
	mailer   Mailer
	interval time.Duration
	loc      *time.Location
	logger   *slog.Logger
	now      func() time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewScheduler creates a reminder scheduler. hub and pushSvc are optional.
// Recurring events are expanded in loc, which defaults to UTC.
func NewScheduler(stores Stores, hub *websocket.Hub, pushSvc *push.Service, interval time.Duration, loc *time.Location, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		stores:   stores,
		hub:      hub,
		pushSvc:  pushSvc,
		interval: interval,
		loc:      loc,
		logger:   logger,
		now:      time.Now,
	}
}

// SetMailer enables email delivery of notifications addressed to a user
// with an email address. It must be called before Start.
func (s *Scheduler) SetMailer(m Mailer) {
	s.mailer = m
}

// Start runs a scan immediately and then on every tick until ctx is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	created, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("reminder scan", "error", err)
		return
	}
	if len(created) > 0 {
		s.logger.Info("reminders emitted", "count", len(created))
	}
}

// RunOnce performs a single scan and returns the notifications it stored.
func (s *Scheduler) RunOnce(ctx context.Context) ([]model.Notification, error) {
	now := s.now()

	prefs, err := s.stores.Settings.ReminderPreferences()
	if err != nil {
		return nil, fmt.Errorf("load reminder preferences: %w", err)
	}
	tasks, err := s.stores.Tasks.ListIncomplete()
	if err != nil {
		return nil, err
	}

	rangeStart, rangeEnd := Lookahead(now, prefs)
	events, err := s.stores.Events.ListByDateRange(rangeStart, rangeEnd)
	if err != nil {
		return nil, err
	}
	recurring, err := s.stores.Events.ListRecurring(rangeEnd)
	if err != nil {
		return nil, err
	}
	events = append(events, recurring...)
	for _, e := range recurring {
		if _, err := recurrence.Parse(e.RecurrenceRule); err != nil {
			s.logger.Warn("invalid recurrence rule, treating event as single", "event_id", e.ID, "rule", e.RecurrenceRule, "error", err)
		}
	}

	existing, err := s.stores.Notifications.ListUnread()
	if err != nil {
		return nil, err
	}

	var created []model.Notification
	for _, n := range Check(now, tasks, events, existing, prefs, s.loc) {
		stored, err := s.stores.Notifications.Insert(n)
		if err != nil {
			return created, err
		}
		if stored == nil {
			// raced with another writer
			continue
		}
		created = append(created, *stored)
		s.deliver(ctx, *stored)
	}
	return created, nil
}

func (s *Scheduler) deliver(ctx context.Context, n model.Notification) {
	if s.hub != nil {
		msg := websocket.NewMessage("notification", "created", n.ID, map[string]any{"notification": n})
		if n.UserID != nil {
			s.hub.SendToUser(*n.UserID, msg)
		} else {
			s.hub.Broadcast(msg)
		}
	}

	s.sendEmail(ctx, n)

	if s.pushSvc == nil || s.stores.Push == nil {
		return
	}

	var subs []model.PushSubscription
	var err error
	if n.UserID != nil {
		subs, err = s.stores.Push.ListByUser(*n.UserID)
	} else {
		subs, err = s.stores.Push.ListAll()
	}
	if err != nil {
		s.logger.Error("list push subscriptions", "notification_id", n.ID, "error", err)
		return
	}

	payload := push.PayloadFor(n)
	for _, sub := range subs {
		if ctx.Err() != nil {
			return
		}
		if err := s.pushSvc.Send(&sub, payload); err != nil {
			if errors.Is(err, push.ErrExpired) {
				if err := s.stores.Push.DeleteByEndpoint(sub.Endpoint); err != nil {
					s.logger.Error("delete expired subscription", "subscription_id", sub.ID, "error", err)
				}
				continue
			}
			s.logger.Warn("send push", "subscription_id", sub.ID, "error", err)
		}
	}
}

// sendEmail mails notifications addressed to a single user. Unaddressed
// notifications are left to the websocket and push channels.
func (s *Scheduler) sendEmail(ctx context.Context, n model.Notification) {
	if s.mailer == nil || s.stores.Users == nil || n.UserID == nil {
		return
	}
	user, err := s.stores.Users.GetByID(*n.UserID)
	if err != nil {
		s.logger.Error("load reminder recipient", "notification_id", n.ID, "error", err)
		return
	}
	if user == nil || user.Email == "" {
		return
	}
	if err := s.mailer.SendReminder(ctx, user.Email, user.Name, n); err != nil {
		s.logger.Warn("send reminder email", "notification_id", n.ID, "user_id", user.ID, "error", err)
	}
}
