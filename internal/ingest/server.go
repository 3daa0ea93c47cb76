// Package ingest serves the affiliate click-callback endpoints.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MICROWAVE-web/KazikPartnerStats/internal/storage"
)

var (
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_events_total",
			Help: "Total number of recorded tracking events",
		},
		[]string{"type"},
	)

	ingestErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "affiliate_ingest_errors_total",
			Help: "Total number of failed event inserts",
		},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "affiliate_ingest_duration_seconds",
			Help:    "Click-callback request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(eventsTotal, ingestErrors, requestDuration)
}

// Server receives registration and first-deposit click callbacks and
// records them as events.
type Server struct {
	storage      *storage.Storage
	resolveAlias func(int64) int64
	log          *slog.Logger

	server *http.Server
}

// NewServer creates a new ingest server. resolveAlias remaps inbound
// affiliate ids; pass an identity func when no aliases are configured.
func NewServer(store *storage.Storage, resolveAlias func(int64) int64, log *slog.Logger) *Server {
	return &Server{
		storage:      store,
		resolveAlias: resolveAlias,
		log:          log,
	}
}

// Start starts the ingest server and blocks until it stops. Cancelling ctx
// shuts it down gracefully.
func (s *Server) Start(ctx context.Context, host string, port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.log.Info("starting ingest server", "addr", s.server.Addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	return s.server.ListenAndServe()
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/{affiliate}/registration", s.eventHandler(storage.EventRegistration))
	mux.HandleFunc("/{affiliate}/firstdep", s.eventHandler(storage.EventFirstDep))
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) eventHandler(eventType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		affiliateID, err := strconv.ParseInt(r.PathValue("affiliate"), 10, 64)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		affiliateID = s.resolveAlias(affiliateID)

		playerID := param(r, "player_id")
		btag := param(r, "btag")
		campaignID := param(r, "campaign_id")

		if err := s.storage.RecordEvent(affiliateID, eventType, playerID, btag, campaignID); err != nil {
			ingestErrors.Inc()
			s.log.Error("record event",
				"affiliate_id", affiliateID,
				"type", eventType,
				"error", err,
			)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		eventsTotal.WithLabelValues(eventType).Inc()
		requestDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())

		s.log.Debug("event recorded",
			"affiliate_id", affiliateID,
			"type", eventType,
			"btag", btag,
			"campaign_id", campaignID,
		)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// param reads a request parameter from the query string first and the form
// body second. Missing params come back empty and mean "untagged".
func param(r *http.Request, key string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return r.PostFormValue(key)
}
