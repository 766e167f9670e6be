package transcribe

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	resp "voicescribe/internal/lib/api/response"
	sl "voicescribe/internal/lib/logger"
	"voicescribe/internal/clients/speech"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

// Transcriber converts uploaded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (speech.Result, error)
}

const maxUploadBytes = 64 << 20

type Response struct {
	resp.Response
	Text        string  `json:"text"`
	DurationSec float64 `json:"duration_sec"`
}

// New proxies a multipart audio upload to the speech-to-text provider.
func New(log *slog.Logger, transcriber Transcriber) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.transcribe.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

		file, header, err := r.FormFile("audio")
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("audio file required", resp.CodeValidation))

			return
		}
		defer file.Close()

		result, err := transcriber.Transcribe(r.Context(), file, header.Filename)
		if err != nil {
			log.Error("transcription failed", sl.Err(err))

			render.Status(r, http.StatusBadGateway)
			render.JSON(w, r, resp.Error("transcription provider error", resp.CodeInternal))

			return
		}

		render.JSON(w, r, Response{
			Response:    resp.OK(),
			Text:        result.Text,
			DurationSec: result.DurationSec,
		})
	}
}
