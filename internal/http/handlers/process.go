package handlers

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/iago/licitacao-pipeline/internal/domain"
	"github.com/iago/licitacao-pipeline/internal/extractor"
	"github.com/iago/licitacao-pipeline/internal/pipeline"
	"github.com/iago/licitacao-pipeline/internal/queue"
)

const (
	multipartMemory   = 32 << 20
	multipartOverhead = 1 << 20
	minIdempotencyKey = 16
	maxIdempotencyKey = 128
	maxTagLength      = 64
	minYear           = 1900
	maxYear           = 2100
)

type submitResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SubmitDocument accepts a multipart upload with the PDF in the "file" field
// and optional ano, uasg, numero_pregao and callback_url fields.
func (api *API) SubmitDocument(w http.ResponseWriter, r *http.Request) {
	logger := api.requestLogger(r)

	r.Body = http.MaxBytesReader(w, r.Body, api.limits.MaxFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "file exceeds the maximum size")
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid_request", "multipart form is required")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "file field is required")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		writeError(w, r, http.StatusUnsupportedMediaType, "unsupported_media_type", "only PDF files are supported")
		return
	}

	content, err := io.ReadAll(io.LimitReader(file, api.limits.MaxFileSize+1))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "failed to read file")
		return
	}
	if int64(len(content)) > api.limits.MaxFileSize {
		writeError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "file exceeds the maximum size")
		return
	}
	if len(content) == 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "file is empty")
		return
	}

	pages, err := extractor.InspectPDF(content, api.limits.MaxPages)
	if err != nil {
		if errors.Is(err, extractor.ErrTooManyPages) {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "document has too many pages")
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid_request", "file is not a readable PDF")
		return
	}

	pc, message := processingContext(r, header.Filename)
	if message != "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", message)
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	var payloadHash uint64
	if idempotencyKey != "" {
		if len(idempotencyKey) < minIdempotencyKey || len(idempotencyKey) > maxIdempotencyKey {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "Idempotency-Key must have between 16 and 128 characters")
			return
		}
		payloadHash = hashSubmission(content, pc)
		if entry, owned := api.idempotency.Reserve(idempotencyKey, payloadHash); !owned {
			switch {
			case entry.PayloadHash != payloadHash:
				writeError(w, r, http.StatusConflict, "idempotency_conflict", "Idempotency-Key already used with different payload")
			case entry.TaskID == "":
				w.Header().Set("Retry-After", "1")
				writeError(w, r, http.StatusConflict, "idempotency_in_progress", "a request with this Idempotency-Key is still being processed")
			default:
				writeAccepted(w, entry.TaskID)
			}
			return
		}
	}

	taskID, err := api.processor.Submit(r.Context(), content, pc)
	if err != nil {
		if idempotencyKey != "" {
			api.idempotency.Release(idempotencyKey)
		}
		if errors.Is(err, queue.ErrQueueFull) {
			w.Header().Set("Retry-After", "5")
			writeError(w, r, http.StatusServiceUnavailable, "queue_full", "processing queue is full, try again later")
			return
		}
		logger.Error().Err(err).Msg("submit document")
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to start processing")
		return
	}
	if idempotencyKey != "" {
		api.idempotency.Complete(idempotencyKey, taskID)
	}

	logger.Info().
		Str("task_id", taskID).
		Str("filename", pc.FileName).
		Int("pages", pages).
		Msg("document accepted")
	writeAccepted(w, taskID)
}

func writeAccepted(w http.ResponseWriter, taskID string) {
	w.Header().Set("Location", "/api/v1/process/"+taskID+"/status")
	writeJSON(w, http.StatusAccepted, submitResponse{
		TaskID:  taskID,
		Status:  string(domain.TaskStatusProcessing),
		Message: "Document processing started",
	})
}

// processingContext reads the optional form fields. A non-empty message
// describes the first invalid field.
func processingContext(r *http.Request, fileName string) (domain.ProcessingContext, string) {
	pc := domain.ProcessingContext{
		FileName:     filepath.Base(fileName),
		UASG:         strings.TrimSpace(r.FormValue("uasg")),
		TenderNumber: strings.TrimSpace(r.FormValue("numero_pregao")),
		CallbackURL:  strings.TrimSpace(r.FormValue("callback_url")),
	}

	if raw := strings.TrimSpace(r.FormValue("ano")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year < minYear || year > maxYear {
			return pc, "ano must be a valid year"
		}
		pc.Year = year
	}
	if len(pc.UASG) > maxTagLength {
		return pc, "uasg is too long"
	}
	if len(pc.TenderNumber) > maxTagLength {
		return pc, "numero_pregao is too long"
	}
	if pc.CallbackURL != "" {
		parsed, err := url.Parse(pc.CallbackURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return pc, "callback_url must be an absolute http or https URL"
		}
	}
	return pc, ""
}

func (api *API) TaskStatus(w http.ResponseWriter, r *http.Request) {
	state, err := api.processor.GetStatus(r.Context(), r.PathValue("task_id"))
	if err != nil {
		api.writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (api *API) TaskResult(w http.ResponseWriter, r *http.Request) {
	result, err := api.processor.GetResult(r.Context(), r.PathValue("task_id"))
	if err != nil {
		api.writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (api *API) TaskQuality(w http.ResponseWriter, r *http.Request) {
	report, err := api.processor.GetQuality(r.Context(), r.PathValue("task_id"))
	if err != nil {
		api.writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (api *API) writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "task not found")
	case errors.Is(err, pipeline.ErrNotReady):
		writeError(w, r, http.StatusConflict, "not_ready", "task has not completed")
	case errors.Is(err, pipeline.ErrResultGone):
		writeError(w, r, http.StatusGone, "result_expired", "task result is no longer available")
	default:
		api.requestLogger(r).Error().Err(err).Msg("task lookup")
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load task")
	}
}

func (api *API) ListTasks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	pageSize, _ := strconv.Atoi(query.Get("page_size"))
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	filter := domain.TaskListFilter{
		UASG:     strings.TrimSpace(query.Get("uasg")),
		Page:     page,
		PageSize: pageSize,
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status := domain.TaskStatus(raw)
		switch status {
		case domain.TaskStatusPending, domain.TaskStatusProcessing, domain.TaskStatusCompleted, domain.TaskStatusFailed:
			filter.Status = status
		default:
			writeError(w, r, http.StatusBadRequest, "invalid_request", "status must be pending, processing, completed or failed")
			return
		}
	}
	if raw := strings.TrimSpace(query.Get("ano")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "ano must be a number")
			return
		}
		filter.Year = year
	}

	items, total, err := api.processor.ListTasks(r.Context(), filter)
	if err != nil {
		api.requestLogger(r).Error().Err(err).Msg("list tasks")
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to list tasks")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":     items,
		"page":      page,
		"page_size": pageSize,
		"total":     total,
		"has_next":  page*pageSize < total,
	})
}
