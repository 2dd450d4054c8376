package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"detectd/internal/manager"
	"detectd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Descriptors() []types.DetectorDescriptor
	Status() types.StatusResponse
	Ready() bool
	Load(ctx context.Context, id string, opts manager.LoadOptions) (manager.Handle, error)
	Unload(ctx context.Context, id string) error
	Analyze(ctx context.Context, img types.Image, ids []string, opts manager.AnalyzeOptions) (types.AggregatedResult, error)
}

// CacheService exposes the artifact cache's admin surface.
type CacheService interface {
	Stats(ctx context.Context) types.CacheStats
	Clear(ctx context.Context)
}

func NewMux(svc Service, cache CacheService) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/detectors", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.DetectorsResponse{Detectors: svc.Descriptors()})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Post("/detectors/{id}/load", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		force := r.URL.Query().Get("force") == "1" || strings.EqualFold(r.URL.Query().Get("force"), "true")
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		h, err := svc.Load(ctx, id, manager.LoadOptions{Force: force})
		if err != nil {
			switch {
			case manager.IsNotFound(err):
				writeJSONError(w, http.StatusNotFound, err.Error())
			case manager.IsConcurrentLoad(err):
				incrementLoadConflict(id)
				writeJSONError(w, http.StatusConflict, err.Error())
			case manager.IsLoadFailed(err):
				writeJSONError(w, http.StatusBadGateway, err.Error())
			default:
				writeJSONError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":             h.ID,
			"state":          "ready",
			"loaded_at_unix": h.LoadedAt.Unix(),
		})
	})

	r.Post("/detectors/{id}/unload", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if err := svc.Unload(ctx, id); err != nil {
			if manager.IsNotFound(err) {
				writeJSONError(w, http.StatusNotFound, err.Error())
				return
			}
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "state": "unloaded"})
	})

	r.Post("/analyze", handleAnalyze(svc))

	r.Get("/cache/stats", func(w http.ResponseWriter, r *http.Request) {
		if cache == nil {
			writeJSONError(w, http.StatusNotFound, "artifact cache disabled")
			return
		}
		writeJSON(w, http.StatusOK, cache.Stats(r.Context()))
	})

	r.Delete("/cache", func(w http.ResponseWriter, r *http.Request) {
		if cache == nil {
			writeJSONError(w, http.StatusNotFound, "artifact cache disabled")
			return
		}
		cache.Clear(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// decodeAnalyzeRequest accepts either a JSON payload with a base64 image or
// a multipart upload with the raw image in the "image" field.
func decodeAnalyzeRequest(w http.ResponseWriter, r *http.Request) (types.AnalyzeRequest, types.Image, bool) {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	switch {
	case strings.HasPrefix(ct, "application/json"):
		var req types.AnalyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			// MaxBytesReader errors land here as well; 400 avoids leaking limits.
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return req, types.Image{}, false
		}
		if strings.TrimSpace(req.ImageBase64) == "" {
			writeJSONError(w, http.StatusBadRequest, "image_base64 is required")
			return req, types.Image{}, false
		}
		data, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "image_base64 is not valid base64")
			return req, types.Image{}, false
		}
		return req, types.Image{Data: data, MIME: req.MIME}, true

	case strings.HasPrefix(ct, "multipart/form-data"):
		file, hdr, err := r.FormFile("image")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "multipart field 'image' is required")
			return types.AnalyzeRequest{}, types.Image{}, false
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "failed to read image upload")
			return types.AnalyzeRequest{}, types.Image{}, false
		}
		var req types.AnalyzeRequest
		if v := r.FormValue("detectors"); v != "" {
			for _, id := range strings.Split(v, ",") {
				if id = strings.TrimSpace(id); id != "" {
					req.Detectors = append(req.Detectors, id)
				}
			}
		}
		if v := r.FormValue("parallel"); v != "" {
			par := v == "1" || strings.EqualFold(v, "true")
			req.Parallel = &par
		}
		if v := r.FormValue("timeout_ms"); v != "" {
			if n, aerr := strconv.Atoi(v); aerr == nil {
				req.TimeoutMs = n
			}
		}
		if v := r.FormValue("max_concurrency"); v != "" {
			if n, aerr := strconv.Atoi(v); aerr == nil {
				req.MaxConcurrency = n
			}
		}
		return req, types.Image{Data: data, MIME: hdr.Header.Get("Content-Type")}, true

	default:
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json or multipart/form-data")
		return types.AnalyzeRequest{}, types.Image{}, false
	}
}

func handleAnalyze(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, img, ok := decodeAnalyzeRequest(w, r)
		if !ok {
			return
		}

		opts := manager.AnalyzeOptions{
			Sequential:     req.Parallel != nil && !*req.Parallel,
			MaxConcurrency: req.MaxConcurrency,
		}
		if req.TimeoutMs > 0 {
			opts.Timeout = time.Duration(req.TimeoutMs) * time.Millisecond
		}

		lvl := requestLogLevel(r)
		start := time.Now()
		if lvl >= LevelInfo && zlog != nil {
			z := zlog.Info().Str("path", r.URL.Path).Int("detectors", len(req.Detectors))
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				z = z.Str("request_id", rid)
			}
			z.Msg("analyze start")
		}

		// Join server base context with request context so shutdown cancels work too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		agg, err := svc.Analyze(ctx, img, req.Detectors, opts)
		if err != nil {
			// Client disconnect or shutdown: nothing useful to write.
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status := http.StatusInternalServerError
			switch {
			case manager.IsNotFound(err):
				status = http.StatusNotFound
			case manager.IsNoValidResults(err):
				status = http.StatusBadGateway
			default:
				if he, ok := err.(HTTPError); ok {
					status = he.StatusCode()
				}
			}
			writeJSONError(w, status, err.Error())
			if lvl >= LevelInfo && zlog != nil {
				z := zlog.Info().Int("status", status).Dur("dur", time.Since(start))
				if rid := middleware.GetReqID(r.Context()); rid != "" {
					z = z.Str("request_id", rid)
				}
				z.Err(err).Msg("analyze end")
			}
			return
		}
		observeVerdict(string(agg.Verdict))
		writeJSON(w, http.StatusOK, agg)
		if lvl >= LevelInfo && zlog != nil {
			z := zlog.Info().Int("status", 200).Str("verdict", string(agg.Verdict)).Dur("dur", time.Since(start))
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				z = z.Str("request_id", rid)
			}
			z.Msg("analyze end")
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && zlog != nil {
		zlog.Error().Err(err).Msg("encode response")
	}
}
