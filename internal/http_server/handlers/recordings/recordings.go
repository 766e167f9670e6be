// Package recordings is the recording-metadata CRUD surface. Every
// handler is owner-scoped: a recording that exists but belongs to
// someone else is indistinguishable from an absent one.
package recordings

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"voicescribe/internal/http_server/middleware/authn"
	resp "voicescribe/internal/lib/api/response"
	sl "voicescribe/internal/lib/logger"
	"voicescribe/internal/models"
	"voicescribe/internal/storage"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// AudioStore holds the raw audio blobs behind the metadata rows.
type AudioStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	PresignGet(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

const maxAudioBytes = 64 << 20

type CreateRequest struct {
	Title       string  `json:"title" validate:"required"`
	DurationSec float64 `json:"duration_sec"`
}

type RecordingResponse struct {
	resp.Response
	Recording models.Recording `json:"recording"`
}

type ListResponse struct {
	resp.Response
	Recordings []models.Recording `json:"recordings"`
}

type AudioURLResponse struct {
	resp.Response
	URL string `json:"url"`
}

type Handlers struct {
	log   *slog.Logger
	repo  storage.RecordingRepository
	audio AudioStore
}

func New(log *slog.Logger, repo storage.RecordingRepository, audio AudioStore) *Handlers {
	return &Handlers{
		log:   log,
		repo:  repo,
		audio: audio,
	}
}

func (h *Handlers) Create(validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.recordings.Create"

		log := h.logger(r, op)

		userID, _ := authn.UserID(r.Context())

		var req CreateRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("failed to decode request", resp.CodeValidation))

			return
		}

		if err := validate.Struct(req); err != nil {
			var validateErr validator.ValidationErrors
			if errors.As(err, &validateErr) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.ValidationError(validateErr))

				return
			}
		}

		rec := models.Recording{
			ID:          uuid.New(),
			UserID:      userID,
			Title:       req.Title,
			DurationSec: req.DurationSec,
		}

		if err := h.repo.SaveRecording(r.Context(), &rec); err != nil {
			log.Error("failed to save recording", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("internal error", resp.CodeInternal))

			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, RecordingResponse{Response: resp.OK(), Recording: rec})
	}
}

func (h *Handlers) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.recordings.List"

		log := h.logger(r, op)

		userID, _ := authn.UserID(r.Context())

		recs, err := h.repo.RecordingsByUser(r.Context(), userID)
		if err != nil {
			log.Error("failed to list recordings", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("internal error", resp.CodeInternal))

			return
		}

		if recs == nil {
			recs = []models.Recording{}
		}

		render.JSON(w, r, ListResponse{Response: resp.OK(), Recordings: recs})
	}
}

func (h *Handlers) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.recordings.Get"

		rec, ok := h.ownedRecording(w, r, op)
		if !ok {
			return
		}

		render.JSON(w, r, RecordingResponse{Response: resp.OK(), Recording: rec})
	}
}

func (h *Handlers) Delete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.recordings.Delete"

		log := h.logger(r, op)

		rec, ok := h.ownedRecording(w, r, op)
		if !ok {
			return
		}

		if err := h.repo.DeleteRecording(r.Context(), rec.ID); err != nil {
			log.Error("failed to delete recording", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("internal error", resp.CodeInternal))

			return
		}

		if rec.AudioKey != "" {
			if err := h.audio.Delete(r.Context(), rec.AudioKey); err != nil {
				log.Warn("failed to delete audio object", sl.Err(err))
			}
		}

		render.JSON(w, r, resp.OK())
	}
}

// UploadAudio stores the raw audio blob and remembers its object key.
func (h *Handlers) UploadAudio() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.recordings.UploadAudio"

		log := h.logger(r, op)

		rec, ok := h.ownedRecording(w, r, op)
		if !ok {
			return
		}

		contentType := r.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		key := "recordings/" + rec.ID.String()
		body := http.MaxBytesReader(w, r.Body, maxAudioBytes)

		if err := h.audio.Put(r.Context(), key, body, contentType); err != nil {
			log.Error("failed to store audio", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("internal error", resp.CodeInternal))

			return
		}

		rec.AudioKey = key
		rec.UpdatedAt = time.Now()

		if err := h.repo.UpdateRecording(r.Context(), &rec); err != nil {
			log.Error("failed to update recording", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("internal error", resp.CodeInternal))

			return
		}

		render.JSON(w, r, RecordingResponse{Response: resp.OK(), Recording: rec})
	}
}

// AudioURL answers with a presigned download link for the blob.
func (h *Handlers) AudioURL() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.recordings.AudioURL"

		log := h.logger(r, op)

		rec, ok := h.ownedRecording(w, r, op)
		if !ok {
			return
		}

		if rec.AudioKey == "" {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, resp.Error("recording has no audio", resp.CodeRecordingNotFound))

			return
		}

		url, err := h.audio.PresignGet(r.Context(), rec.AudioKey)
		if err != nil {
			log.Error("failed to presign audio url", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("internal error", resp.CodeInternal))

			return
		}

		render.JSON(w, r, AudioURLResponse{Response: resp.OK(), URL: url})
	}
}

func (h *Handlers) ownedRecording(w http.ResponseWriter, r *http.Request, op string) (models.Recording, bool) {
	log := h.logger(r, op)

	userID, _ := authn.UserID(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, resp.Error("invalid recording id", resp.CodeValidation))

		return models.Recording{}, false
	}

	rec, err := h.repo.RecordingByID(r.Context(), id)
	if err != nil {
		if !errors.Is(err, storage.ErrRecordingNotFound) {
			log.Error("failed to load recording", sl.Err(err))
		}

		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, resp.Error("recording not found", resp.CodeRecordingNotFound))

		return models.Recording{}, false
	}

	if rec.UserID != userID {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, resp.Error("recording not found", resp.CodeRecordingNotFound))

		return models.Recording{}, false
	}

	return rec, true
}

func (h *Handlers) logger(r *http.Request, op string) *slog.Logger {
	return h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}
