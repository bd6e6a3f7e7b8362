package reminder

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/cadence/internal/database"
	"github.com/dukerupert/cadence/internal/model"
	"github.com/dukerupert/cadence/internal/push"
	"github.com/dukerupert/cadence/internal/store"
	"github.com/dukerupert/cadence/internal/websocket"
)

type fixture struct {
	stores Stores
	users  *store.UserStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return fixture{
		stores: Stores{
			Tasks:         store.NewTaskStore(db),
			Events:        store.NewEventStore(db),
			Notifications: store.NewNotificationStore(db),
			Settings:      store.NewSettingsStore(db),
			Push:          store.NewPushStore(db),
			Users:         store.NewUserStore(db),
		},
		users: store.NewUserStore(db),
	}
}

func (f fixture) seed(t *testing.T) *model.User {
	t.Helper()
	alice, err := f.users.Create("Alice", "alice@example.com", "#3b82f6")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := f.stores.Tasks.Create(model.Task{Title: "Report", DueDate: now.Add(-time.Hour), AssigneeID: &alice.ID}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := f.stores.Tasks.Create(model.Task{Title: "Archived", DueDate: now.Add(-time.Hour), Completed: true}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := f.stores.Events.Create(model.CalendarEvent{
		Title: "Standup", StartTime: now.Add(30 * time.Minute), EndTime: now.Add(45 * time.Minute), OwnerID: &alice.ID,
	}); err != nil {
		t.Fatalf("create event: %v", err)
	}
	return alice
}

func newTestScheduler(f fixture, pushSvc *push.Service, interval time.Duration) *Scheduler {
	s := NewScheduler(f.stores, websocket.NewHub(slog.Default()), pushSvc, interval, time.UTC, slog.Default())
	s.now = func() time.Time { return now }
	return s
}

func TestRunOnce(t *testing.T) {
	f := newFixture(t)
	alice := f.seed(t)
	s := newTestScheduler(f, nil, 0)

	created, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created %d notifications, want 2: %+v", len(created), created)
	}
	for _, n := range created {
		if n.ID == 0 {
			t.Error("stored notification has no id")
		}
		if n.UserID == nil || *n.UserID != alice.ID {
			t.Errorf("notification %q not addressed to alice", n.Title)
		}
	}
	if created[0].Type != model.NotifTypeOverdue || created[1].Type != model.NotifTypeEventReminder {
		t.Errorf("types = %s, %s", created[0].Type, created[1].Type)
	}
	if created[1].ReminderTime != 30 {
		t.Errorf("reminder time = %d, want 30", created[1].ReminderTime)
	}

	again, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second run created %d notifications, want 0", len(again))
	}
}

func TestRunOnceAfterRead(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	s := newTestScheduler(f, nil, 0)

	created, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if err := f.stores.Notifications.MarkRead(created[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	again, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(again) != 1 || again[0].Type != model.NotifTypeOverdue {
		t.Errorf("after read got %+v, want one overdue notification", again)
	}
}

func TestRunOnceUsesStoredPreferences(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	if err := f.stores.Settings.SetReminderPreferences(model.ReminderPreferences{UpcomingReminderHours: 24, EventReminderTimes: []int{10}}); err != nil {
		t.Fatalf("set prefs: %v", err)
	}
	s := newTestScheduler(f, nil, 0)

	created, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(created) != 1 || created[0].Type != model.NotifTypeOverdue {
		t.Errorf("got %+v, want only the overdue notification", created)
	}
}

func TestRunOnceRemovesExpiredSubscriptions(t *testing.T) {
	f := newFixture(t)
	alice := f.seed(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	p256dh, auth := browserKeys(t)
	if _, err := f.stores.Push.CreateSubscription(alice.ID, srv.URL, p256dh, auth, "laptop"); err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	pub, priv, err := push.GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("vapid keys: %v", err)
	}
	s := newTestScheduler(f, push.NewService(pub, priv, ""), 0)

	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	subs, err := f.stores.Push.ListByUser(alice.ID)
	if err != nil {
		t.Fatalf("list subscriptions: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("expired subscription still present: %+v", subs)
	}
}

type sentMail struct {
	to, name string
	n        model.Notification
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *fakeMailer) SendReminder(_ context.Context, toEmail, toName string, n model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: toEmail, name: toName, n: n})
	return nil
}

func TestRunOnceSendsEmail(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	if _, err := f.stores.Tasks.Create(model.Task{Title: "Unassigned", DueDate: now.Add(-2 * time.Hour)}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	s := newTestScheduler(f, nil, 0)
	mailer := &fakeMailer{}
	s.SetMailer(mailer)

	created, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("created %d notifications, want 3", len(created))
	}
	if len(mailer.sent) != 2 {
		t.Fatalf("sent %d emails, want 2 (unaddressed skipped)", len(mailer.sent))
	}
	for _, m := range mailer.sent {
		if m.to != "alice@example.com" || m.name != "Alice" {
			t.Errorf("mail to %q (%q), want alice", m.to, m.name)
		}
	}
}

func TestRunOnceExpandsInLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	f := newFixture(t)
	start := time.Date(2026, 10, 5, 20, 0, 0, 0, ny)
	if _, err := f.stores.Events.Create(model.CalendarEvent{
		Title: "Review", StartTime: start, EndTime: start.Add(time.Hour), RecurrenceRule: "FREQ=WEEKLY;BYDAY=MO",
	}); err != nil {
		t.Fatalf("create event: %v", err)
	}

	s := NewScheduler(f.stores, nil, nil, 0, ny, slog.Default())

	s.now = func() time.Time { return time.Date(2026, 10, 11, 19, 30, 0, 0, ny) }
	created, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("sunday created %d notifications, want 0: %+v", len(created), created)
	}

	s.now = func() time.Time { return time.Date(2026, 10, 12, 19, 30, 0, 0, ny) }
	created, err = s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("monday created %d notifications, want 1: %+v", len(created), created)
	}
	want := time.Date(2026, 10, 12, 20, 0, 0, 0, ny)
	if occ := created[0].OccurrenceStart; occ == nil || !occ.Equal(want) {
		t.Errorf("occurrence start = %v, want %v", occ, want)
	}
	if created[0].ReminderTime != 30 {
		t.Errorf("reminder time = %d, want 30", created[0].ReminderTime)
	}
}

func TestRunOnceLogsInvalidRule(t *testing.T) {
	f := newFixture(t)
	if _, err := f.stores.Events.Create(model.CalendarEvent{
		Title: "Ping", StartTime: now.Add(15 * time.Minute), EndTime: now.Add(20 * time.Minute), RecurrenceRule: "FREQ=HOURLY",
	}); err != nil {
		t.Fatalf("create event: %v", err)
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil)).With("component", "reminder")
	s := NewScheduler(f.stores, nil, nil, 0, time.UTC, logger)
	s.now = func() time.Time { return now }

	created, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(created) != 1 || created[0].ReminderTime != 15 {
		t.Fatalf("created = %+v, want a single 15 minute reminder", created)
	}
	out := buf.String()
	if !strings.Contains(out, "invalid recurrence rule") || !strings.Contains(out, "component=reminder") {
		t.Errorf("log output = %q, want invalid rule warning from the reminder component", out)
	}
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	s := newTestScheduler(f, nil, 10*time.Millisecond)

	s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for {
		count, err := f.stores.Notifications.UnreadCount(nil)
		if err != nil {
			t.Fatalf("unread count: %v", err)
		}
		if count == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("unread count = %d, want 2", count)
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.Stop()
	// Stop is safe to call twice
	s.Stop()
}

func browserKeys(t *testing.T) (p256dh, auth string) {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("auth secret: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()), base64.RawURLEncoding.EncodeToString(secret)
}
