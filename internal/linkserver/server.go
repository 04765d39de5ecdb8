// Package linkserver serves card share links over HTTP.
//
//	GET  /healthz
//	GET  /share?type=card&data=...     decode a link and preview its cards
//	GET  /share/export?ids=1,2         build a link for stored cards
//	POST /share/import                 {"url": "..."} merge a link's cards
package linkserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gregLibert/cardshare/pkg/card"
	"github.com/gregLibert/cardshare/pkg/link"
	"github.com/gregLibert/cardshare/pkg/transfer"
)

const (
	maxImportBody   = 64 << 10
	requestIDHeader = "X-Request-Id"
)

// Store is what the server needs from the card store.
type Store interface {
	card.Store
	Filter(ids []int64) []card.PersonalCard
}

type Options struct {
	// Base is the URL links are built on, e.g. https://cardshare.app/share.
	Base              string
	CorsOrigins       []string
	RequestsPerMinute int
}

type Server struct {
	store Store
	codec *transfer.Codec
	opts  Options
	log   zerolog.Logger
}

func New(store Store, catalog card.Catalog, opts Options, log zerolog.Logger) *Server {
	return &Server{
		store: store,
		codec: transfer.NewCodec(catalog),
		opts:  opts,
		log:   log,
	}
}

// Handler returns the router with logging, CORS and per-IP rate limiting.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.cors().Handler)
	if s.opts.RequestsPerMinute > 0 {
		r.Use(httprate.LimitByIP(s.opts.RequestsPerMinute, time.Minute))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/share", func(r chi.Router) {
		r.Get("/", s.preview)
		r.Get("/export", s.export)
		r.Post("/import", s.importLink)
	})
	return r
}

func (s *Server) cors() *cors.Cors {
	origins := s.opts.CorsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})
}

type cardView struct {
	ID         int64   `json:"id"`
	Provider   string  `json:"provider"`
	Name       *string `json:"name,omitempty"`
	CardNumber string  `json:"cardNumber"`
	Custom     bool    `json:"custom,omitempty"`
}

func viewOf(cards []card.PersonalCard) []cardView {
	out := make([]cardView, 0, len(cards))
	for _, c := range cards {
		out = append(out, cardView{
			ID:         c.ID,
			Provider:   c.Provider,
			Name:       c.Name,
			CardNumber: c.CardNumber,
			Custom:     c.IsCustom(),
		})
	}
	return out
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	cards, err := link.Decode(r.URL, s.codec)
	if err != nil {
		s.linkError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cards": viewOf(cards)})
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	cards := s.store.List()
	if raw := r.URL.Query().Get("ids"); raw != "" {
		ids, err := parseIDs(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		cards = s.store.Filter(ids)
	}

	url, err := link.Export(s.opts.Base, s.codec, cards)
	if err != nil {
		s.log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("export failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "export failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"link": url, "cards": len(cards)})
}

type importRequest struct {
	URL string `json:"url"`
}

type importResponse struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

func (s *Server) importLink(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxImportBody))
	if err := dec.Decode(&req); err != nil || req.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "body must be {\"url\": \"...\"}"})
		return
	}

	cards, err := link.DecodeString(req.URL, s.codec)
	if err != nil {
		s.linkError(w, r, err)
		return
	}

	added, skipped, err := s.store.Merge(cards)
	if err != nil {
		s.log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("merge failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "could not save cards"})
		return
	}
	s.log.Info().Int("imported", added).Int("skipped", skipped).Msg("link imported")
	writeJSON(w, http.StatusOK, importResponse{Imported: added, Skipped: skipped})
}

func (s *Server) linkError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Error: err.Error()}
	if kind, ok := transfer.KindOf(err); ok {
		body.Kind = kind.String()
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, link.ErrNotALink):
		status = http.StatusBadRequest
	case errors.Is(err, link.ErrIncompatible):
		status = http.StatusUnprocessableEntity
	}
	s.log.Debug().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Int("status", status).Msg("link rejected")
	writeJSON(w, status, body)
}

func parseIDs(raw string) ([]int64, error) {
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid card id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestID keeps an incoming X-Request-Id or mints a UUID, and stores it
// where middleware.GetReqID finds it.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLogger logs one line per request, escalating to warn and error for
// 4xx and 5xx.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()
				event := log.Info()
				if status >= 500 {
					event = log.Error()
				} else if status >= 400 {
					event = log.Warn()
				}
				event.
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", status).
					Dur("duration", time.Since(start)).
					Str("client_ip", r.RemoteAddr).
					Int("bytes", ww.BytesWritten()).
					Str("request_id", middleware.GetReqID(r.Context())).
					Msg("http_request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
