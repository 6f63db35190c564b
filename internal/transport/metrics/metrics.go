package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/frahmantamala/access-management/internal/core/events"
	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "access_management"

// Metrics owns a private registry so tests can build as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	Registrations *prometheus.CounterVec
	Logins        *prometheus.CounterVec
	Logouts       prometheus.Counter
	UsersRemoved  *prometheus.CounterVec
	AuthzDenials  *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Completed registrations by assigned role.",
		}, []string{"role"}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome and reason.",
		}, []string{"outcome", "reason"}),
		Logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logouts_total",
			Help:      "Sessions ended by logout.",
		}),
		UsersRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "users_removed_total",
			Help:      "Accounts deleted or deactivated.",
		}, []string{"kind"}),
		AuthzDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorization_denials_total",
			Help:      "Requests refused by a permission gate.",
		}, []string{"resource", "action"}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.Registrations,
		m.Logins,
		m.Logouts,
		m.UsersRemoved,
		m.AuthzDenials,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// Middleware records request count and latency keyed by the chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routePattern(r)
		m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordDenial implements the authenticator's denial hook.
func (m *Metrics) RecordDenial(resource, action string) {
	if m == nil {
		return
	}
	m.AuthzDenials.WithLabelValues(resource, action).Inc()
}

// Subscribe wires the auth event counters onto bus.
func (m *Metrics) Subscribe(bus *events.EventBus, logger *slog.Logger) {
	bus.Subscribe(events.EventTypeUserRegistered, m.onUserRegistered)
	bus.Subscribe(events.EventTypeLoginSucceeded, m.onLoginSucceeded)
	bus.Subscribe(events.EventTypeLoginFailed, m.onLoginFailed)
	bus.Subscribe(events.EventTypeLoggedOut, m.onLoggedOut)
	bus.Subscribe(events.EventTypeUserRemoved, m.onUserRemoved)

	logger.Info("metrics event handlers registered",
		"handlers", []string{
			events.EventTypeUserRegistered,
			events.EventTypeLoginSucceeded,
			events.EventTypeLoginFailed,
			events.EventTypeLoggedOut,
			events.EventTypeUserRemoved,
		})
}

func (m *Metrics) onUserRegistered(_ context.Context, event events.Event) error {
	e, ok := event.(*events.UserRegisteredEvent)
	if !ok {
		return fmt.Errorf("expected UserRegisteredEvent, got %T", event)
	}
	m.Registrations.WithLabelValues(e.Role).Inc()
	return nil
}

func (m *Metrics) onLoginSucceeded(_ context.Context, event events.Event) error {
	if _, ok := event.(*events.LoginSucceededEvent); !ok {
		return fmt.Errorf("expected LoginSucceededEvent, got %T", event)
	}
	m.Logins.WithLabelValues("success", "").Inc()
	return nil
}

func (m *Metrics) onLoginFailed(_ context.Context, event events.Event) error {
	e, ok := event.(*events.LoginFailedEvent)
	if !ok {
		return fmt.Errorf("expected LoginFailedEvent, got %T", event)
	}
	m.Logins.WithLabelValues("failure", e.Reason).Inc()
	return nil
}

func (m *Metrics) onLoggedOut(_ context.Context, event events.Event) error {
	if _, ok := event.(*events.LoggedOutEvent); !ok {
		return fmt.Errorf("expected LoggedOutEvent, got %T", event)
	}
	m.Logouts.Inc()
	return nil
}

func (m *Metrics) onUserRemoved(_ context.Context, event events.Event) error {
	e, ok := event.(*events.UserRemovedEvent)
	if !ok {
		return fmt.Errorf("expected UserRemovedEvent, got %T", event)
	}
	kind := "deactivated"
	if e.Deleted {
		kind = "deleted"
	}
	m.UsersRemoved.WithLabelValues(kind).Inc()
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
