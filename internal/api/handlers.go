// Package api exposes the evaluation service over HTTP and, separately,
// as MCP tools. Handlers stay thin: validation and scheduling live in the
// eval service, stage math in the pipeline.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hanifmn/cveval/internal/docstore"
	"github.com/hanifmn/cveval/internal/eval"
	"github.com/hanifmn/cveval/internal/storage"
)

const maxUploadSize = 10 << 20 // 10MB per document

// Deps carries the collaborators the HTTP layer needs.
type Deps struct {
	Service *eval.Service
	Docs    docstore.Store
}

// NewHandler builds the HTTP router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/upload", handleUpload(deps))
	r.Post("/evaluate", handleEvaluate(deps))
	r.Get("/result/{id}", handleResult(deps))
	r.Get("/health", handleHealth())

	return r
}

// UploadResponse returns the opaque ids later referenced by /evaluate.
type UploadResponse struct {
	CVID     string `json:"cv_id,omitempty"`
	ReportID string `json:"report_id,omitempty"`
}

func handleUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 2*maxUploadSize)
		if err := r.ParseMultipartForm(2 * maxUploadSize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}

		var resp UploadResponse
		cvID, err := saveFormFile(deps.Docs, r, "cv")
		if err != nil && !errors.Is(err, http.ErrMissingFile) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "cv: %v", err)
			return
		}
		resp.CVID = cvID

		reportID, err := saveFormFile(deps.Docs, r, "report")
		if err != nil && !errors.Is(err, http.ErrMissingFile) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "report: %v", err)
			return
		}
		resp.ReportID = reportID

		if resp.CVID == "" && resp.ReportID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "provide at least one of the cv or report form files")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func saveFormFile(docs docstore.Store, r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", err
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
	if err != nil {
		return "", fmt.Errorf("reading upload: %w", err)
	}
	if len(content) == 0 {
		return "", fmt.Errorf("uploaded file is empty")
	}
	return docs.Save(content, header.Filename)
}

func handleEvaluate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		defer r.Body.Close()

		var req eval.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		job, err := deps.Service.Submit(req)
		var verr *eval.ValidationError
		if errors.As(err, &verr) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", verr)
			return
		}
		if errors.Is(err, docstore.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to submit evaluation: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"id":     job.ID,
			"status": string(job.Status),
		})
	}
}

// ResultPayload is the completed-evaluation body nested under "result".
type ResultPayload struct {
	CVMatchRate     float64 `json:"cv_match_rate"`
	CVFeedback      string  `json:"cv_feedback"`
	ProjectScore    float64 `json:"project_score"`
	ProjectFeedback string  `json:"project_feedback"`
	OverallSummary  string  `json:"overall_summary"`
	Partial         bool    `json:"partial,omitempty"`
}

// ResultResponse is the polling envelope for GET /result/{id}.
type ResultResponse struct {
	ID     string         `json:"id"`
	Status string         `json:"status"`
	Stage  string         `json:"stage,omitempty"`
	Error  string         `json:"error,omitempty"`
	Result *ResultPayload `json:"result,omitempty"`
}

func handleResult(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		job, res, err := deps.Service.Poll(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no evaluation job with id %s", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load job: %v", err)
			return
		}

		resp := ResultResponse{
			ID:     job.ID,
			Status: string(job.Status),
			Stage:  string(job.Stage),
			Error:  job.ErrorMessage,
		}
		if job.Status == storage.StatusCompleted && res != nil {
			resp.Result = &ResultPayload{
				CVMatchRate:     res.CVMatchRate,
				CVFeedback:      res.CVFeedback,
				ProjectScore:    res.ProjectScore,
				ProjectFeedback: res.ProjectFeedback,
				OverallSummary:  res.OverallSummary,
				Partial:         res.Partial,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
