package handlers

import (
	"net/http"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"geomon/internal/auth"
	"geomon/internal/models"
)

// AuditLogs returns recent audit entries. Regular users see their own;
// administrators can pass ?all=1 for everyone and ?category= to filter.
func AuditLogs(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := auth.UserFromContext(r.Context())
		q := db.Order("created_at desc").Limit(200)
		if r.URL.Query().Get("all") == "1" && auth.HasPermission(u.Role, auth.RoleAdmin) {
			if c := r.URL.Query().Get("category"); c != "" {
				q = q.Where("category = ?", c)
			}
		} else {
			q = q.Where("user_id = ?", u.ID)
		}
		var logs []models.AuditLog
		_ = q.Find(&logs).Error
		respondJSON(w, http.StatusOK, logs)
	}
}
