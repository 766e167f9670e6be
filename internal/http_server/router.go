// Package httpserver assembles the HTTP surface: public auth routes,
// the protected API behind the bearer middleware, and metrics.
package httpserver

import (
	"log/slog"
	"time"

	"voicescribe/internal/auth"
	"voicescribe/internal/http_server/handlers/analyze"
	"voicescribe/internal/http_server/handlers/login"
	"voicescribe/internal/http_server/handlers/logout"
	"voicescribe/internal/http_server/handlers/me"
	"voicescribe/internal/http_server/handlers/recordings"
	"voicescribe/internal/http_server/handlers/refresh"
	"voicescribe/internal/http_server/handlers/register"
	"voicescribe/internal/http_server/handlers/transcribe"
	"voicescribe/internal/http_server/handlers/verify"
	"voicescribe/internal/http_server/middleware/authn"
	"voicescribe/internal/http_server/middleware/ratelimit"
	"voicescribe/internal/lib/verification"
	"voicescribe/internal/storage"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Deps struct {
	Log         *slog.Logger
	Auth        *auth.Auth
	Recordings  storage.RecordingRepository
	Audio       recordings.AudioStore
	Transcriber transcribe.Transcriber
	Analyzer    analyze.Analyzer
	Publisher   verification.Publisher

	BaseURL            string
	SecureCookies      bool
	VerificationTTL    time.Duration
	VerificationSecret string
}

func NewRouter(deps Deps) *chi.Mux {
	validate := validator.New()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/auth", func(r chi.Router) {
		r.With(ratelimit.Register()).Post("/register",
			register.New(deps.Log, validate, deps.Auth, deps.Publisher, register.Config{
				VerificationTTL:    deps.VerificationTTL,
				VerificationSecret: deps.VerificationSecret,
				BaseURL:            deps.BaseURL,
				SecureCookies:      deps.SecureCookies,
			}),
		)
		r.With(ratelimit.Login()).Post("/login",
			login.New(deps.Log, validate, deps.Auth, deps.SecureCookies),
		)
		r.With(ratelimit.Refresh()).Post("/refresh",
			refresh.New(deps.Log, deps.Auth, deps.SecureCookies),
		)
		r.With(ratelimit.Logout()).Post("/logout",
			logout.New(deps.Log, deps.Auth, deps.SecureCookies),
		)
		r.With(ratelimit.Verify()).Get("/verify",
			verify.New(deps.Log, deps.Auth),
		)

		r.Group(func(r chi.Router) {
			r.Use(authn.New(deps.Log, deps.Auth.Secret()))
			r.Get("/me", me.New(deps.Log, deps.Auth))
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(authn.New(deps.Log, deps.Auth.Secret()))

		recHandlers := recordings.New(deps.Log, deps.Recordings, deps.Audio)

		r.Route("/recordings", func(r chi.Router) {
			r.Post("/", recHandlers.Create(validate))
			r.Get("/", recHandlers.List())
			r.Get("/{id}", recHandlers.Get())
			r.Delete("/{id}", recHandlers.Delete())
			r.Put("/{id}/audio", recHandlers.UploadAudio())
			r.Get("/{id}/audio", recHandlers.AudioURL())
		})

		r.With(ratelimit.Transcribe()).Post("/transcribe",
			transcribe.New(deps.Log, deps.Transcriber),
		)
		r.Post("/analyze",
			analyze.New(deps.Log, validate, deps.Analyzer),
		)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
