package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/bobarin/adshot/internal/credits"
	"github.com/bobarin/adshot/internal/db"
	"github.com/bobarin/adshot/internal/generator"
	"github.com/bobarin/adshot/internal/models"
	"github.com/bobarin/adshot/internal/queue"
	"github.com/bobarin/adshot/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxUploadBytes = 32 << 20 // 32 MB across both source photos

type Handler struct {
	db        *db.DB
	queue     *queue.Queue
	ledger    *credits.Ledger
	generator *generator.Generator
}

func NewHandler(database *db.DB, q *queue.Queue, ledger *credits.Ledger, gen *generator.Generator) *Handler {
	return &Handler{
		db:        database,
		queue:     q,
		ledger:    ledger,
		generator: gen,
	}
}

// GetUser handles GET /api/user — the caller's profile and credit balances,
// with the daily balance refreshed if a new calendar day has started.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.ledger.ResetIfNewDay(r.Context(), UserID(r))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "User not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}

	respondJSON(w, http.StatusOK, models.UserResponse{User: *user})
}

// CreateProject handles POST /api/project — runs the image phase on two
// uploaded photos. The phase keeps running even if the client disconnects:
// credits are committed once the debit happens.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	files := r.MultipartForm.File["images"]
	if len(files) < 2 {
		respondError(w, http.StatusBadRequest, "Please upload at least 2 images")
		return
	}

	sources := make([]services.SourceImage, 0, len(files))
	for _, header := range files {
		file, err := header.Open()
		if err != nil {
			respondError(w, http.StatusBadRequest, "Failed to read uploaded image")
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			respondError(w, http.StatusBadRequest, "Failed to read uploaded image")
			return
		}

		mimeType := header.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = http.DetectContentType(data)
		}
		sources = append(sources, services.SourceImage{Data: data, MIMEType: mimeType})
	}

	targetLength := 0
	if v := r.FormValue("targetLength"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			targetLength = parsed
		}
	}

	req := generator.ImageRequest{
		Name:               r.FormValue("name"),
		ProductName:        r.FormValue("productName"),
		ProductDescription: r.FormValue("productDescription"),
		UserPrompt:         r.FormValue("userPrompt"),
		AspectRatio:        r.FormValue("aspectRatio"),
		TargetLength:       targetLength,
		Sources:            sources,
	}

	project, err := h.generator.RunImagePhase(context.WithoutCancel(r.Context()), UserID(r), req)
	if err != nil {
		respondPhaseError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, models.CreateProjectResponse{ProjectID: project.ID})
}

// CreateVideo handles POST /api/project/{id}/video — validates the video
// phase's preconditions and queues it for a worker. The client polls the
// project for progress.
func (h *Handler) CreateVideo(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}

	// Read-only preflight; the worker re-validates atomically before any
	// mutation, so a stale answer here costs one queued no-op at worst.
	if _, err := h.generator.ValidateVideoRequest(r.Context(), UserID(r), projectID); err != nil {
		respondPhaseError(w, err)
		return
	}

	// Balance preflight, also read-only: the debit itself happens in the
	// worker, but an obviously broke caller should hear it now, not via the
	// project row after polling.
	user, err := h.ledger.ResetIfNewDay(r.Context(), UserID(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to check credits")
		return
	}
	if user.Credits < credits.VideoCost || user.DailyCredits < credits.VideoCost {
		respondPhaseError(w, &generator.Error{
			Kind:    generator.KindInsufficientCredits,
			Message: "not enough credits or daily limit reached",
		})
		return
	}

	if err := h.queue.EnqueueGenerateVideo(r.Context(), projectID, UserID(r)); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to queue video generation")
		return
	}

	respondJSON(w, http.StatusAccepted, models.CreateVideoResponse{ProjectID: projectID, Queued: true})
}

// GetProject handles GET /api/project/{id}
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}

	project, err := h.db.GetProjectForUser(r.Context(), projectID, UserID(r))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Project not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to load project")
		return
	}

	respondJSON(w, http.StatusOK, project)
}

// ListProjects handles GET /api/project — the caller's projects.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.db.ListUserProjects(r.Context(), UserID(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list projects")
		return
	}

	respondJSON(w, http.StatusOK, models.ListProjectsResponse{Projects: projects})
}

// ListPublishedProjects handles GET /api/project/published — the community feed.
func (h *Handler) ListPublishedProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.db.ListPublishedProjects(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list published projects")
		return
	}

	respondJSON(w, http.StatusOK, models.ListProjectsResponse{Projects: projects})
}

// TogglePublish handles POST /api/project/{id}/publish
func (h *Handler) TogglePublish(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}

	project, err := h.generator.TogglePublish(r.Context(), UserID(r), projectID)
	if err != nil {
		respondPhaseError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, project)
}

// DeleteProject handles DELETE /api/project/{id}
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}

	if err := h.generator.DeleteProject(r.Context(), UserID(r), projectID); err != nil {
		respondPhaseError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Project deleted"})
}

// Health check — reports the video queue backlog when a queue is attached.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	if h.queue != nil {
		if depth, err := h.queue.GetQueueLength(r.Context(), queue.QueueGenerateVideo); err == nil {
			status["queued_videos"] = depth
		}
	}
	respondJSON(w, http.StatusOK, status)
}

// respondPhaseError maps the orchestrator's error kinds onto HTTP statuses.
func respondPhaseError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch generator.KindOf(err) {
	case generator.KindInvalidInput, generator.KindInvalidState:
		status = http.StatusBadRequest
	case generator.KindInsufficientCredits:
		status = http.StatusPaymentRequired
	case generator.KindNotFound:
		status = http.StatusNotFound
	case generator.KindConflict:
		status = http.StatusConflict
	case generator.KindTimedOut:
		status = http.StatusGatewayTimeout
	}

	message := err.Error()
	var phaseErr *generator.Error
	if errors.As(err, &phaseErr) {
		message = phaseErr.Message
	}

	respondJSON(w, status, map[string]any{
		"error": message,
		"kind":  string(generator.KindOf(err)),
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
