// Package http exposes the billing service as a JSON API. Every /api
// route is scoped to the organization named by the X-Organization-ID
// header; reports, health and metrics live beside it.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"syndic/internal/log"
	"syndic/internal/metrics"
	"syndic/internal/repo"
	"syndic/internal/services"
)

type Server struct {
	http.Server

	store    repo.Store
	payments *services.PaymentService
	reports  *services.ReportService
	detector *services.AlertDetector

	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, store repo.Store, payments *services.PaymentService, reports *services.ReportService, detector *services.AlertDetector) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		store:       store,
		payments:    payments,
		reports:     reports,
		detector:    detector,
		rateLimiter: newRateLimiter(),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/organizations", s.wrap("/api/organizations", s.handleCreateOrganization))
	mux.HandleFunc("GET /api/organizations", s.wrap("/api/organizations", s.handleListOrganizations))
	mux.HandleFunc("GET /api/organizations/{id}", s.wrap("/api/organizations/{id}", s.handleGetOrganization))

	mux.HandleFunc("POST /api/blocks", s.wrap("/api/blocks", s.handleCreateBlock))
	mux.HandleFunc("GET /api/blocks", s.wrap("/api/blocks", s.handleListBlocks))

	mux.HandleFunc("POST /api/apartments", s.wrap("/api/apartments", s.handleCreateApartment))
	mux.HandleFunc("GET /api/apartments", s.wrap("/api/apartments", s.handleListApartments))
	mux.HandleFunc("PUT /api/apartments/{id}", s.wrap("/api/apartments/{id}", s.handleUpdateApartment))
	mux.HandleFunc("DELETE /api/apartments/{id}", s.wrap("/api/apartments/{id}", s.handleDeleteApartment))
	mux.HandleFunc("GET /api/apartments/{id}/billing", s.wrap("/api/apartments/{id}/billing", s.handleBillingStatus))

	mux.HandleFunc("POST /api/payments", s.wrap("/api/payments", s.handleAllocatePayment))
	mux.HandleFunc("GET /api/payments", s.wrap("/api/payments", s.handleListPayments))
	mux.HandleFunc("PUT /api/payments/{id}", s.wrap("/api/payments/{id}", s.handleUpdatePayment))
	mux.HandleFunc("DELETE /api/payments/{id}", s.wrap("/api/payments/{id}", s.handleDeletePayment))

	mux.HandleFunc("POST /api/expenses", s.wrap("/api/expenses", s.handleCreateExpense))
	mux.HandleFunc("GET /api/expenses", s.wrap("/api/expenses", s.handleListExpenses))
	mux.HandleFunc("PUT /api/expenses/{id}", s.wrap("/api/expenses/{id}", s.handleUpdateExpense))
	mux.HandleFunc("DELETE /api/expenses/{id}", s.wrap("/api/expenses/{id}", s.handleDeleteExpense))

	mux.HandleFunc("GET /api/alerts", s.wrap("/api/alerts", s.handleListAlerts))
	mux.HandleFunc("POST /api/alerts/scan", s.wrap("/api/alerts/scan", s.handleScanAlerts))
	mux.HandleFunc("POST /api/alerts/{id}/sent", s.wrap("/api/alerts/{id}/sent", s.handleMarkAlertSent))

	mux.HandleFunc("GET /api/reports/treasury", s.wrap("/api/reports/treasury", s.handleTreasuryReport))
	mux.HandleFunc("GET /api/reports/coverage", s.wrap("/api/reports/coverage", s.handleCoverageReport))
	mux.HandleFunc("GET /api/dashboard", s.wrap("/api/dashboard", s.handleDashboard))

	return s
}

// wrap adds security headers, rate limiting, request tracing and latency
// metrics around a handler.
func (s *Server) wrap(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldClientIP, clientIP,
			log.FieldUserAgent, r.Header.Get("User-Agent"))

		// Mutations are rate limited per client.
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldComponent, log.ComponentRateLimit)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		metrics.HTTPDuration.WithLabelValues(route, strconv.Itoa(rw.statusCode)).Observe(duration.Seconds())
		slog.InfoContext(ctx, "Request completed",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, duration.Milliseconds(),
			log.FieldClientIP, clientIP)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Shutdown stops the server and its background cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
