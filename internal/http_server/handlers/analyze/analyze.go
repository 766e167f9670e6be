package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	resp "voicescribe/internal/lib/api/response"
	sl "voicescribe/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

// Analyzer turns a transcript into a structured analysis document.
type Analyzer interface {
	Analyze(ctx context.Context, transcript, scenario string) (json.RawMessage, error)
}

type Request struct {
	Text     string `json:"text" validate:"required"`
	Scenario string `json:"scenario"`
}

type Response struct {
	resp.Response
	Analysis json.RawMessage `json:"analysis"`
}

// New proxies a transcript to the language-model provider.
func New(log *slog.Logger, validate *validator.Validate, analyzer Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.analyze.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

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

		analysis, err := analyzer.Analyze(r.Context(), req.Text, req.Scenario)
		if err != nil {
			log.Error("analysis failed", sl.Err(err))

			render.Status(r, http.StatusBadGateway)
			render.JSON(w, r, resp.Error("analysis provider error", resp.CodeInternal))

			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Analysis: analysis,
		})
	}
}
