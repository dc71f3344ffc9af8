package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"geolayers/internal/feed"
)

var tracer = otel.Tracer("geolayers/devserver")

func Register(ctx context.Context, store *Store, sessionToken string) *chi.Mux {
	log := logging.GetFromContext(ctx)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api/v0", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(requireSession(sessionToken))

			r.Get("/projects/{id}", getProjectHandler(log, store))
			r.Get("/layers/{id}/features", getFeaturesHandler(log, store))
		})

		r.Route("/public", func(r chi.Router) {
			r.Use(allowOrigin)

			r.Get("/projects/{hash}", getPublicProjectHandler(log, store))
			r.Get("/layers/{id}/features", getPublicFeaturesHandler(log, store))
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r
}

func requireSession(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// allowOrigin echoes the origin of public requests so embedding pages can read them.
func allowOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		next.ServeHTTP(w, r)
	})
}

func getProjectHandler(log *slog.Logger, store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "get-project")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, _, logger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		id := chi.URLParam(r, "id")

		p, err := store.Project(id)
		if err != nil {
			logger.Debug("project not found", "id", id)
			writeError(w, err)
			return
		}

		writeJSON(w, "application/json", p)
	}
}

func getPublicProjectHandler(log *slog.Logger, store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "get-public-project")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, _, logger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		p, err := store.PublicProject(chi.URLParam(r, "hash"))
		if err != nil {
			logger.Debug("public project not found")
			writeError(w, err)
			return
		}

		writeJSON(w, "application/json", p)
	}
}

func getFeaturesHandler(log *slog.Logger, store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "get-features")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, _, logger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		layerID, cursor, err := chunkParams(r)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		span.SetAttributes(attribute.Int("layer_id", layerID), attribute.Int("chunk", cursor))

		chunk, err := store.Chunk(layerID, cursor)
		if err != nil {
			logger.Debug("chunk not served", "layer_id", layerID, "chunk", cursor, "err", err.Error())
			writeError(w, err)
			return
		}

		writeJSON(w, "application/geo+json", chunk)
	}
}

func getPublicFeaturesHandler(log *slog.Logger, store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "get-public-features")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, _, logger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		layerID, cursor, err := chunkParams(r)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		span.SetAttributes(attribute.Int("layer_id", layerID), attribute.Int("chunk", cursor))

		chunk, err := store.PublicChunk(layerID, cursor, r.URL.Query().Get("token"))
		if err != nil {
			logger.Debug("public chunk not served", "layer_id", layerID, "chunk", cursor, "origin", r.Header.Get("Origin"), "err", err.Error())
			writeError(w, err)
			return
		}

		writeJSON(w, "application/geo+json", chunk)
	}
}

func chunkParams(r *http.Request) (int, int, error) {
	layerID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		return 0, 0, err
	}

	cursor := feed.FirstCursor
	if c := r.URL.Query().Get("chunk"); c != "" {
		cursor, err = strconv.Atoi(c)
		if err != nil {
			return 0, 0, err
		}
	}

	return layerID, cursor, nil
}

func writeJSON(w http.ResponseWriter, contentType string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, ErrForbidden):
		w.WriteHeader(http.StatusForbidden)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}
