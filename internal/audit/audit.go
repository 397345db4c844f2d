// Package audit records sensitive actions. Writes are strictly
// best-effort: a failed insert is logged and swallowed so it can never
// break the operation being audited.
package audit

import (
	"net"
	"net/http"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"geomon/internal/models"
)

const (
	CategoryUser    = "user"
	CategoryAdmin   = "admin"
	CategoryProject = "project"

	StatusSuccess = "success"
	StatusError   = "error"
)

type Recorder struct {
	db *gorm.DB
	lg *zap.SugaredLogger
}

func NewRecorder(db *gorm.DB, lg *zap.SugaredLogger) *Recorder {
	return &Recorder{db: db, lg: lg}
}

// Entry describes one audited action. Optional string fields use "" for
// absent; Request is nil when no HTTP context is available.
type Entry struct {
	UserID       *uint
	ProjectID    *uint
	Category     string
	ActionType   string
	ActionName   string
	ResourceType string
	ResourceID   string
	Details      map[string]any
	Request      *http.Request
	Status       string
	ErrorMessage string
}

// Record persists one AuditLog row in its own transaction and mirrors it
// to the structured log (info for success, warn for error status). It
// never returns an error to the caller.
func (r *Recorder) Record(e Entry) {
	if e.Status == "" {
		e.Status = StatusSuccess
	}
	row := models.AuditLog{
		UserID:       e.UserID,
		ProjectID:    e.ProjectID,
		Category:     e.Category,
		ActionType:   e.ActionType,
		ActionName:   e.ActionName,
		ResourceType: optional(e.ResourceType),
		ResourceID:   optional(e.ResourceID),
		Status:       e.Status,
		ErrorMessage: optional(e.ErrorMessage),
	}
	if e.Details != nil {
		if b, err := models.NewJSONB(e.Details); err == nil {
			row.Details = b
		} else {
			r.lg.Errorw("audit details marshal failed", "error", err, "action_type", e.ActionType)
		}
	}
	if e.Request != nil {
		host := e.Request.RemoteAddr
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		row.IPAddress = optional(host)
		row.UserAgent = optional(e.Request.UserAgent())
		row.RequestMethod = optional(e.Request.Method)
		row.RequestPath = optional(e.Request.URL.Path)
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
	if err != nil {
		r.lg.Errorw("audit log write failed", "error", err, "action_type", e.ActionType)
		return
	}

	kv := []any{
		"action_type", e.ActionType,
		"action_name", e.ActionName,
		"category", e.Category,
		"status", e.Status,
	}
	if e.UserID != nil {
		kv = append(kv, "user_id", *e.UserID)
	}
	if e.Details != nil {
		kv = append(kv, "details", e.Details)
	}
	if e.ErrorMessage != "" {
		kv = append(kv, "error", e.ErrorMessage)
	}
	if e.Status == StatusSuccess {
		r.lg.Infow("audit", kv...)
	} else {
		r.lg.Warnw("audit", kv...)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
