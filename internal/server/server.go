package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/cadence/internal/config"
	"github.com/dukerupert/cadence/internal/email"
	"github.com/dukerupert/cadence/internal/handler"
	"github.com/dukerupert/cadence/internal/middleware"
	"github.com/dukerupert/cadence/internal/push"
	"github.com/dukerupert/cadence/internal/reminder"
	"github.com/dukerupert/cadence/internal/store"
	ws "github.com/dukerupert/cadence/internal/websocket"
)

// Per-client limits for feed token checks and forced reminder runs.
const (
	feedRequestsPerMinute = 30
	runRequestsPerMinute  = 6
)

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	userH         *handler.UserHandler
	taskH         *handler.TaskHandler
	calendarEvtH  *handler.CalendarEventHandler
	notificationH *handler.NotificationHandler
	reminderH     *handler.ReminderHandler
	allocationH   *handler.AllocationHandler
	feedH         *handler.FeedHandler
	pushH         *handler.PushHandler
	notifications *store.NotificationStore
	scheduler     *reminder.Scheduler
	feedLimiter   *middleware.RateLimiter
	runLimiter    *middleware.RateLimiter
	logger        *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	loc := cfg.Location()

	userStore := store.NewUserStore(db)
	taskStore := store.NewTaskStore(db)
	eventStore := store.NewEventStore(db)
	notificationStore := store.NewNotificationStore(db)
	settingsStore := store.NewSettingsStore(db)
	pushStore := store.NewPushStore(db)

	// Push is optional; without a VAPID key pair reminders are delivered
	// over the websocket only.
	var pushSvc *push.Service
	var pushH *handler.PushHandler
	if cfg.Push.Enabled() {
		pushSvc = push.NewService(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Push.Subscriber)
		pushH = handler.NewPushHandler(pushStore, userStore, pushSvc, logger.With("component", "push_handler"))
	}

	scheduler := reminder.NewScheduler(reminder.Stores{
		Tasks:         taskStore,
		Events:        eventStore,
		Notifications: notificationStore,
		Settings:      settingsStore,
		Push:          pushStore,
		Users:         userStore,
	}, hub, pushSvc, cfg.Reminder.Interval, loc, logger.With("component", "reminder"))
	if cfg.Email.Enabled() {
		scheduler.SetMailer(email.NewClient(cfg.Email.PostmarkToken, cfg.Email.From, cfg.BaseURL))
	}

	return &Server{
		db:            db,
		hub:           hub,
		userH:         handler.NewUserHandler(userStore, cfg.BaseURL, logger.With("component", "user")),
		taskH:         handler.NewTaskHandler(taskStore, userStore, hub, loc, logger.With("component", "task")),
		calendarEvtH:  handler.NewCalendarEventHandler(eventStore, userStore, hub, loc, logger.With("component", "calendar")),
		notificationH: handler.NewNotificationHandler(notificationStore, hub, logger.With("component", "notification")),
		reminderH:     handler.NewReminderHandler(settingsStore, scheduler, logger.With("component", "reminder_handler")),
		allocationH:   handler.NewAllocationHandler(taskStore, userStore, loc, logger.With("component", "allocation")),
		feedH:         handler.NewFeedHandler(userStore, taskStore, eventStore, settingsStore, loc, logger.With("component", "feed")),
		pushH:         pushH,
		notifications: notificationStore,
		scheduler:     scheduler,
		feedLimiter:   middleware.NewRateLimiter(feedRequestsPerMinute, time.Minute),
		runLimiter:    middleware.NewRateLimiter(runRequestsPerMinute, time.Minute),
		logger:        logger,
	}
}

// Scheduler returns the reminder scheduler so the caller controls its lifetime.
func (s *Server) Scheduler() *reminder.Scheduler {
	return s.scheduler
}

// NotificationStore returns the notification store for cleanup tasks.
func (s *Server) NotificationStore() *store.NotificationStore {
	return s.notifications
}

// Hub returns the websocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	// Users
	mux.HandleFunc("GET /api/users", s.userH.List)
	mux.HandleFunc("POST /api/users", s.userH.Create)
	mux.HandleFunc("GET /api/users/{id}", s.userH.Get)
	mux.HandleFunc("PUT /api/users/{id}", s.userH.Update)
	mux.HandleFunc("DELETE /api/users/{id}", s.userH.Delete)
	mux.HandleFunc("POST /api/users/{id}/feed-token", s.userH.FeedToken)

	// Tasks
	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.HandleFunc("POST /api/tasks", s.taskH.Create)
	mux.HandleFunc("GET /api/tasks/{id}", s.taskH.Get)
	mux.HandleFunc("PUT /api/tasks/{id}", s.taskH.Update)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.taskH.Delete)
	mux.HandleFunc("POST /api/tasks/{id}/toggle", s.taskH.Toggle)
	mux.HandleFunc("PUT /api/tasks/{id}/priority", s.taskH.SetPriority)

	// Calendar events
	mux.HandleFunc("GET /api/events", s.calendarEvtH.List)
	mux.HandleFunc("POST /api/events", s.calendarEvtH.Create)
	mux.HandleFunc("POST /api/events/import", s.calendarEvtH.Import)
	mux.HandleFunc("GET /api/events/{id}", s.calendarEvtH.Get)
	mux.HandleFunc("PUT /api/events/{id}", s.calendarEvtH.Update)
	mux.HandleFunc("DELETE /api/events/{id}", s.calendarEvtH.Delete)

	// Notifications
	mux.HandleFunc("GET /api/notifications", s.notificationH.List)
	mux.HandleFunc("GET /api/notifications/unread-count", s.notificationH.UnreadCount)
	mux.HandleFunc("POST /api/notifications/read-all", s.notificationH.MarkAllRead)
	mux.HandleFunc("POST /api/notifications/{id}/read", s.notificationH.MarkRead)
	mux.HandleFunc("DELETE /api/notifications/{id}", s.notificationH.Delete)

	// Reminders
	mux.HandleFunc("GET /api/settings/reminders", s.reminderH.GetPreferences)
	mux.HandleFunc("PUT /api/settings/reminders", s.reminderH.UpdatePreferences)
	mux.Handle("POST /api/reminders/run", s.runLimiter.Middleware(http.HandlerFunc(s.reminderH.Run)))

	// Allocation report
	mux.HandleFunc("GET /api/allocation", s.allocationH.Get)

	// Push notifications
	if s.pushH != nil {
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
	}

	// Calendar subscription feed
	mux.Handle("GET /feeds/{user}/calendar.ics", s.feedLimiter.Middleware(http.HandlerFunc(s.feedH.Calendar)))

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))

	httpLogger := s.logger.With("component", "http")
	return middleware.RequestLogger(httpLogger)(middleware.Recoverer(httpLogger)(mux))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check ping", "error", err)
		status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}
