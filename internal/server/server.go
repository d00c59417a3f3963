package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pavel-fokin/media-replace/internal/fs"
	"github.com/pavel-fokin/media-replace/internal/imaging"
	"github.com/pavel-fokin/media-replace/internal/media"
	"github.com/pavel-fokin/media-replace/internal/metrics"
	"github.com/pavel-fokin/media-replace/internal/nonce"
)

type Config struct {
	Addr              string     `env:"MEDIA_REPLACE_ADDR" envDefault:":8080"`
	AdminToken        string     `env:"MEDIA_REPLACE_ADMIN_TOKEN,required"`
	DataDir           string     `env:"MEDIA_REPLACE_DATA_DIR,required"`
	HmacKey           string     `env:"MEDIA_REPLACE_HMAC_KEY,required"`
	DBPath            string     `env:"MEDIA_REPLACE_DB_PATH,required"`
	MaxSize           int64      `env:"MEDIA_REPLACE_MAX_SIZE" envDefault:"67108864"`
	BaseURL           string     `env:"MEDIA_REPLACE_BASE_URL" envDefault:"/uploads"`
	EnforceDimensions bool       `env:"MEDIA_REPLACE_ENFORCE_DIMENSIONS" envDefault:"true"`
	RelaxedRecords    []int64    `env:"MEDIA_REPLACE_RELAXED_RECORDS" envSeparator:","`
	BigImageThreshold int        `env:"MEDIA_REPLACE_BIG_IMAGE_THRESHOLD" envDefault:"2560"`
	JPEGQuality       int        `env:"MEDIA_REPLACE_JPEG_QUALITY" envDefault:"82"`
	LogLevel          slog.Level `env:"MEDIA_REPLACE_LOG_LEVEL" envDefault:"info"`
}

// New wires the media service over repo and returns the HTTP server. The
// caller owns repo and closes it after the server has shut down.
func New(cfg *Config, repo media.Repository) *http.Server {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	storage, err := fs.NewStorage(cfg.DataDir, cfg.BaseURL)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		panic(fmt.Sprintf("Failed to initialize storage: %v", err))
	}
	tmpDir, err := storage.TempDir()
	if err != nil {
		slog.Error("Failed to initialize temp directory", "error", err)
		panic(fmt.Sprintf("Failed to initialize temp directory: %v", err))
	}

	mediaService := media.NewService(
		repo,
		storage,
		imaging.NewGenerator(imaging.DefaultSizes, cfg.BigImageThreshold, cfg.JPEGQuality),
		imaging.Prober{},
		tokenAuthorizer{token: cfg.AdminToken},
		media.Options{
			EnforceDimensions: cfg.EnforceDimensions,
			Policy:            media.NewExemptPolicy(cfg.RelaxedRecords),
			Observers: []media.Observer{
				media.ObserverFunc(metrics.ReplacedObserver()),
			},
		},
	)
	signer := nonce.NewSigner(cfg.HmacKey, 12*time.Hour)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	if strings.HasPrefix(cfg.BaseURL, "/") {
		prefix := strings.TrimSuffix(cfg.BaseURL, "/")
		mux.Handle("GET "+prefix+"/", serveUploads(prefix, storage.DataDir()))
	}
	mux.HandleFunc("POST /v1/media", auth(cfg.AdminToken, uploadMedia(cfg, mediaService, tmpDir)))
	mux.HandleFunc("GET /v1/media", auth(cfg.AdminToken, listMedia(mediaService)))
	mux.HandleFunc("GET /v1/media/{id}", auth(cfg.AdminToken, getMedia(mediaService, signer)))
	mux.HandleFunc("POST /v1/media/{id}/replace", replaceMedia(cfg, mediaService, signer, tmpDir))

	handler := loggingMiddleware(limitBody(mux, cfg.MaxSize))

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// serveUploads serves the data directory, hiding the upload spool.
func serveUploads(prefix, dataDir string) http.Handler {
	files := http.StripPrefix(prefix, http.FileServer(http.Dir(dataDir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/.tmp") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func uploadMedia(cfg *Config, mediaService *media.Service, tmpDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			if isTooLarge(err) {
				http.Error(w, "Request entity too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "Failed to parse multipart form", http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()

		upload, cleanup, err := receiveUpload(r, "file", tmpDir)
		if err != nil {
			http.Error(w, "No file provided", http.StatusBadRequest)
			return
		}
		defer cleanup()

		record, err := mediaService.Ingest(r.Context(), callerFrom(r), upload)
		if err != nil {
			metrics.IngestsTotal.WithLabelValues(media.KindOf(err).String()).Inc()
			slog.Error("Ingest failed", "error", err, "filename", upload.DeclaredFilename)
			http.Error(w, failureReason(err), failureStatus(err))
			return
		}
		metrics.IngestsTotal.WithLabelValues("success").Inc()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(mediaResponse{Record: record, URL: mediaService.URL(record)}); err != nil {
			slog.Error("Failed to encode response", "error", err)
		}
	}
}

func listMedia(mediaService *media.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := mediaService.List(r.Context())
		if err != nil {
			slog.Error("List media failed", "error", err)
			http.Error(w, "Failed to list media", http.StatusInternalServerError)
			return
		}

		result := make([]mediaResponse, 0, len(records))
		for _, record := range records {
			result = append(result, mediaResponse{Record: record, URL: mediaService.URL(record)})
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(result); err != nil {
			slog.Error("Failed to encode media list", "error", err)
		}
	}
}

func getMedia(mediaService *media.Service, signer *nonce.Signer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(r.PathValue("id"))
		if !ok {
			http.Error(w, "Invalid attachment ID.", http.StatusBadRequest)
			return
		}

		record, err := mediaService.Get(r.Context(), id)
		if err != nil {
			slog.Error("Get media failed", "error", err, "record_id", id)
			http.Error(w, failureReason(err), failureStatus(err))
			return
		}

		resp := mediaResponse{Record: record, URL: mediaService.URL(record)}
		if mediaService.Authorize(r.Context(), callerFrom(r), id) == nil {
			resp.Nonce = signer.Create(replaceAction, id)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Error("Failed to encode media", "error", err)
		}
	}
}

type mediaResponse struct {
	*media.Record
	URL   string `json:"url"`
	Nonce string `json:"nonce,omitempty"`
}

type tokenAuthorizer struct {
	token string
}

func (a tokenAuthorizer) CanEdit(_ context.Context, caller media.Caller, _ int64) bool {
	return a.token != "" && subtle.ConstantTimeCompare([]byte(caller.Token), []byte(a.token)) == 1
}

// callerFrom reads the bearer token. A header without the Bearer scheme
// yields an anonymous caller, as it does in auth.
func callerFrom(r *http.Request) media.Caller {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return media.Caller{}
	}
	return media.Caller{Token: token}
}

func auth(token string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	}
}

func limitBody(next http.Handler, maxSize int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxSize)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests with structured logging and records
// request metrics by route pattern
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestsTotal.WithLabelValues(r.Method, route, fmt.Sprintf("%d", wrapped.statusCode)).Inc()
		metrics.RequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())

		slog.Info("HTTP request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"query", r.URL.RawQuery,
			"status", wrapped.statusCode,
			"duration_ms", duration.Milliseconds(),
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
