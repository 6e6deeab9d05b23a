package localdev

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/persondetect/detect-console/internal/models"
)

const maxUploadBytes = 32 << 20

// Server serves the detection REST API under /api and stored images under /uploads/.
type Server struct {
	store     *Store
	detector  Detector
	uploadDir string
	logger    *slog.Logger
}

// NewServer constructs a Server writing images to uploadDir.
func NewServer(store *Store, detector Detector, uploadDir string, logger *slog.Logger) (*Server, error) {
	if store == nil {
		return nil, errors.New("localdev: store is required")
	}
	if detector == nil {
		detector = HashDetector{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("localdev: create upload dir: %w", err)
	}
	return &Server{store: store, detector: detector, uploadDir: uploadDir, logger: logger}, nil
}

// Handler returns the routed, request-logging handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /api/upload/", s.handleUpload)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /api/detections", s.handleList)
	mux.HandleFunc("DELETE /api/detections/{id}", s.handleDelete)
	mux.HandleFunc("GET /api/images/{path...}", s.handleImage)
	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploadDir))))
	return logRequests(s.logger, mux)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeValidation(w, fieldError{Loc: []string{"body", "file"}, Msg: "Field required", Type: "missing"})
		return
	}
	defer file.Close()

	if !strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
		writeDetail(w, http.StatusBadRequest, "File must be an image")
		return
	}
	contents, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Could not read upload")
		return
	}

	name := uuid.NewString()
	original := "original_" + name + ".jpg"
	detected := "detected_" + name + ".jpg"
	if err := os.WriteFile(filepath.Join(s.uploadDir, original), contents, 0o644); err != nil {
		s.fail(w, "store original image", err)
		return
	}

	start := time.Now()
	result, err := s.detector.Detect(contents)
	if err != nil {
		s.fail(w, "detect people", err)
		return
	}
	if err := os.WriteFile(filepath.Join(s.uploadDir, detected), result.Annotated, 0o644); err != nil {
		s.fail(w, "store detected image", err)
		return
	}

	d, err := s.store.Insert(r.Context(), Detection{
		NumPeople:         result.NumPeople,
		OriginalImagePath: original,
		DetectedImagePath: detected,
		ConfidenceScore:   result.Confidence,
		ProcessingTime:    time.Since(start).Seconds(),
	})
	if err != nil {
		s.fail(w, "save detection", err)
		return
	}
	s.logger.Info("detection stored", slog.Int64("id", d.ID), slog.Int("people", d.NumPeople), slog.String("file", header.Filename))
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var errs []fieldError
	skip := intParam(q.Get("skip"), "skip", 0, 0, &errs)
	limit := intParam(q.Get("limit"), "limit", models.PageSize, 1, &errs)

	var filter models.FilterCriteria
	if raw := q.Get("min_people"); raw != "" {
		filter.MinPeople = models.IntPtr(intParam(raw, "min_people", 0, 0, &errs))
	}
	if raw := q.Get("max_people"); raw != "" {
		filter.MaxPeople = models.IntPtr(intParam(raw, "max_people", 0, 0, &errs))
	}
	if raw := q.Get("min_confidence"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		switch {
		case err != nil || math.IsNaN(v):
			errs = append(errs, queryError("min_confidence", "Input should be a valid number", "float_parsing"))
		case v < 0:
			errs = append(errs, queryError("min_confidence", "Input should be greater than or equal to 0", "greater_than_equal"))
		case v > 1:
			errs = append(errs, queryError("min_confidence", "Input should be less than or equal to 1", "less_than_equal"))
		}
		filter.MinConfidence = models.FloatPtr(v)
	}
	if len(errs) > 0 {
		writeValidation(w, errs...)
		return
	}

	items, total, err := s.store.List(r.Context(), filter, skip, limit)
	if err != nil {
		s.fail(w, "list detections", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total, "items": items})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeValidation(w, fieldError{Loc: []string{"path", "detection_id"}, Msg: "Input should be a valid integer", Type: "int_parsing"})
		return
	}
	d, err := s.store.Delete(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "Detection not found")
		return
	}
	if err != nil {
		s.fail(w, "delete detection", err)
		return
	}
	for _, name := range []string{d.OriginalImagePath, d.DetectedImagePath} {
		if err := os.Remove(filepath.Join(s.uploadDir, filepath.Base(name))); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove image", slog.String("file", name), slog.Any("error", err))
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Detection deleted successfully"})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(filepath.Clean("/" + r.PathValue("path")))
	full := filepath.Join(s.uploadDir, name)
	if _, err := os.Stat(full); err != nil {
		writeDetail(w, http.StatusNotFound, "Image not found")
		return
	}
	http.ServeFile(w, r, full)
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	s.logger.Error("request failed", slog.String("op", op), slog.Any("error", err))
	writeDetail(w, http.StatusInternalServerError, err.Error())
}

type fieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func queryError(name, msg, typ string) fieldError {
	return fieldError{Loc: []string{"query", name}, Msg: msg, Type: typ}
}

func intParam(raw, name string, def, minimum int, errs *[]fieldError) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, queryError(name, "Input should be a valid integer", "int_parsing"))
		return def
	}
	if v < minimum {
		*errs = append(*errs, queryError(name, fmt.Sprintf("Input should be greater than or equal to %d", minimum), "greater_than_equal"))
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Warn("encode response", slog.Any("error", err))
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeValidation(w http.ResponseWriter, errs ...fieldError) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string][]fieldError{"detail": errs})
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
