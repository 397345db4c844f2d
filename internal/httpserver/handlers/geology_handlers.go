package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"geomon/internal/audit"
	"geomon/internal/auth"
	"geomon/internal/models"
)

// ListGeologyEges returns the global engineering-geology element catalog.
func ListGeologyEges(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := db.Order("code asc")
		if r.URL.Query().Get("active") == "1" {
			q = q.Where("is_active = ?", true)
		}
		var list []models.GeologyEge
		if err := q.Find(&list).Error; err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

func CreateGeologyEge(db *gorm.DB, lg *zap.SugaredLogger, rec *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ege models.GeologyEge
		if err := json.NewDecoder(r.Body).Decode(&ege); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if ege.Code == "" || ege.Name == "" {
			http.Error(w, "code and name required", http.StatusBadRequest)
			return
		}
		ege.ID = 0
		if err := db.Create(&ege).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				http.Error(w, "ege code already exists", http.StatusConflict)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		actor := auth.UserFromContext(r.Context())
		rec.Record(audit.Entry{
			UserID:       &actor.ID,
			Category:     audit.CategoryAdmin,
			ActionType:   "admin.geology.create",
			ActionName:   fmt.Sprintf("EGE catalog entry created %s", ege.Code),
			ResourceType: "geology_ege",
			ResourceID:   strconv.FormatUint(uint64(ege.ID), 10),
			Details:      map[string]any{"code": ege.Code, "name": ege.Name},
			Request:      r,
		})
		respondJSON(w, http.StatusCreated, ege)
	}
}

func UpdateGeologyEge(db *gorm.DB, lg *zap.SugaredLogger, rec *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid ege id", http.StatusBadRequest)
			return
		}
		var ege models.GeologyEge
		if err := db.First(&ege, id).Error; err != nil {
			http.Error(w, "ege not found", http.StatusNotFound)
			return
		}
		var patch models.GeologyEge
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		patch.ID = ege.ID
		patch.CreatedAt = ege.CreatedAt
		if err := db.Save(&patch).Error; err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		actor := auth.UserFromContext(r.Context())
		rec.Record(audit.Entry{
			UserID:       &actor.ID,
			Category:     audit.CategoryAdmin,
			ActionType:   "admin.geology.update",
			ActionName:   fmt.Sprintf("EGE catalog entry updated %s", patch.Code),
			ResourceType: "geology_ege",
			ResourceID:   strconv.FormatUint(id, 10),
			Request:      r,
		})
		respondJSON(w, http.StatusOK, patch)
	}
}
