package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"exam-service/internal/app"
	"exam-service/internal/auth"
	"exam-service/internal/domain"
	"exam-service/internal/logger"
	"exam-service/internal/metrics"
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// IdentityProvider issues tokens for credentials.
type IdentityProvider interface {
	TokenVerifier
	Login(ctx context.Context, login, password string) (auth.Session, error)
}

type RouterConfig struct {
	Service     *app.ExamService
	Identity    IdentityProvider
	Metrics     *metrics.Metrics
	Log         *logger.Logger
	CORSOrigins []string
	LoginRate   float64 // logins per second per client
	LoginBurst  int
}

// NewRouter wires every HTTP endpoint of the service.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Log == nil {
		cfg.Log = logger.NewNop()
	}
	if cfg.LoginRate <= 0 {
		cfg.LoginRate = 1
	}
	h := &handlers{service: cfg.Service, identity: cfg.Identity, log: cfg.Log}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	ws := newReportFeedHandler(cfg.Service, cfg.Metrics, cfg.Log, origins)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	limiter := newIPLimiter(cfg.LoginRate, cfg.LoginBurst)
	r.With(limiter.middleware).Post("/v1/auth/login", h.login)

	r.Route("/v1/exams", func(r chi.Router) {
		r.Use(authenticate(cfg.Identity, cfg.Log))
		// long-lived connection; the timeout below applies to the other routes only
		r.With(requireRole(domain.RoleInstructor, cfg.Log)).Get("/{id}/report/live", ws.ServeWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Get("/", h.listExams)
			r.Get("/{id}", h.getExam)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(domain.RoleInstructor, cfg.Log))
				r.Post("/", h.createExam)
				r.Delete("/{id}", h.deleteExam)
				r.Put("/{id}/active", h.setActive)
				r.Get("/{id}/report", h.report)
				r.Get("/{id}/report.txt", h.exportReport)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireRole(domain.RoleStudent, cfg.Log))
				r.Post("/{id}/submissions", h.submit)
				r.Get("/{id}/submissions/me", h.mySubmission)
			})
		})
	})
	return r
}
