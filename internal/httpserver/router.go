package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"geomon/internal/audit"
	"geomon/internal/auth"
	"geomon/internal/email"
	"geomon/internal/httpserver/handlers"
)

func NewRouter(db *gorm.DB, lg *zap.SugaredLogger, mail email.Sender) http.Handler {
	rec := audit.NewRecorder(db, lg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Logger)

	r.Post("/v1/auth/register", handlers.Register(db, lg, rec, mail))
	r.Post("/v1/auth/login", handlers.Login(db, lg, rec))
	r.Post("/v1/auth/refresh", handlers.Refresh(db, lg))
	r.Get("/v1/auth/verify-email", handlers.VerifyEmail(db, lg, rec, mail))
	r.Post("/v1/auth/forgot-password", handlers.ForgotPassword(db, lg, rec, mail))
	r.Post("/v1/auth/reset-password", handlers.ResetPassword(db, lg, rec))
	r.Post("/v1/auth/resend-verification", handlers.ResendVerification(db, lg, mail))

	r.Group(func(protected chi.Router) {
		protected.Use(auth.JWTAuth(db))
		protected.Get("/v1/auth/me", handlers.Me())
		protected.Post("/v1/auth/verify-token", handlers.VerifyToken())
		protected.Post("/v1/auth/logout", handlers.Logout(db, lg, rec))
		protected.Get("/v1/logs", handlers.AuditLogs(db, lg))
		protected.Get("/v1/projects", handlers.ListProjects(db, lg))
		protected.Get("/v1/geology/ege", handlers.ListGeologyEges(db, lg))

		protected.Group(func(admin chi.Router) {
			admin.Use(auth.RequireRole(auth.RoleAdmin))
			admin.Get("/v1/admin/users", handlers.ListUsers(db, lg))
			admin.Post("/v1/admin/users", handlers.AdminCreateUser(db, lg, rec, mail))
			admin.Patch("/v1/admin/users/{id}", handlers.AdminUpdateUser(db, lg, rec))
			admin.Delete("/v1/admin/users/{id}", handlers.AdminDeleteUser(db, lg, rec))
			admin.Post("/v1/projects", handlers.CreateProject(db, lg, rec))
			admin.Patch("/v1/projects/{id}", handlers.UpdateProject(db, lg, rec))
			admin.Delete("/v1/projects/{id}", handlers.DeleteProject(db, lg, rec))
			admin.Post("/v1/projects/{id}/permissions", handlers.GrantProjectPermission(db, lg, rec))
			admin.Post("/v1/geology/ege", handlers.CreateGeologyEge(db, lg, rec))
			admin.Put("/v1/geology/ege/{id}", handlers.UpdateGeologyEge(db, lg, rec))
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}
