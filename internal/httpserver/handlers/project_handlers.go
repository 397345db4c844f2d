package handlers

import (
	"encoding/json"
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

func ListProjects(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var list []models.Project
		if err := db.Order("display_order asc, id asc").Find(&list).Error; err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

type projectReq struct {
	Name                   string  `json:"name"`
	DBHost                 string  `json:"db_host"`
	DBPort                 int     `json:"db_port"`
	DBName                 string  `json:"db_name"`
	DBUser                 string  `json:"db_user"`
	DBPassword             string  `json:"db_password"`
	ConnectionType         string  `json:"connection_type,omitempty"`
	Description            *string `json:"description,omitempty"`
	DisplayOrder           int     `json:"display_order,omitempty"`
	NorthAzimuthCorrection float64 `json:"north_azimuth_correction,omitempty"`
}

func CreateProject(db *gorm.DB, lg *zap.SugaredLogger, rec *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req projectReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Name == "" || req.DBHost == "" || req.DBName == "" || req.DBUser == "" {
			http.Error(w, "name and db connection fields required", http.StatusBadRequest)
			return
		}
		if req.DBPort == 0 {
			req.DBPort = 5432
		}
		if req.ConnectionType == "" {
			req.ConnectionType = "direct"
		}
		p := models.Project{
			Name:                   req.Name,
			DBHost:                 req.DBHost,
			DBPort:                 req.DBPort,
			DBName:                 req.DBName,
			DBUser:                 req.DBUser,
			DBPassword:             req.DBPassword,
			ConnectionType:         req.ConnectionType,
			IsActive:               true,
			ConnectionStatus:       "unknown",
			Description:            req.Description,
			DisplayOrder:           req.DisplayOrder,
			NorthAzimuthCorrection: req.NorthAzimuthCorrection,
		}
		if err := db.Create(&p).Error; err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		actor := auth.UserFromContext(r.Context())
		rec.Record(audit.Entry{
			UserID:       &actor.ID,
			ProjectID:    &p.ID,
			Category:     audit.CategoryProject,
			ActionType:   "project.create",
			ActionName:   fmt.Sprintf("Project created %s", p.Name),
			ResourceType: "project",
			ResourceID:   strconv.FormatUint(uint64(p.ID), 10),
			Details:      map[string]any{"name": p.Name, "db_host": p.DBHost},
			Request:      r,
		})
		respondJSON(w, http.StatusCreated, p)
	}
}

type projectUpdateReq struct {
	Name                   *string  `json:"name,omitempty"`
	DBHost                 *string  `json:"db_host,omitempty"`
	DBPort                 *int     `json:"db_port,omitempty"`
	DBName                 *string  `json:"db_name,omitempty"`
	DBUser                 *string  `json:"db_user,omitempty"`
	DBPassword             *string  `json:"db_password,omitempty"`
	IsActive               *bool    `json:"is_active,omitempty"`
	Description            *string  `json:"description,omitempty"`
	DisplayOrder           *int     `json:"display_order,omitempty"`
	NorthAzimuthCorrection *float64 `json:"north_azimuth_correction,omitempty"`
}

func UpdateProject(db *gorm.DB, lg *zap.SugaredLogger, rec *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid project id", http.StatusBadRequest)
			return
		}
		var req projectUpdateReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var p models.Project
		if err := db.First(&p, id).Error; err != nil {
			http.Error(w, "project not found", http.StatusNotFound)
			return
		}

		updates := map[string]any{}
		if req.Name != nil {
			updates["name"] = *req.Name
		}
		if req.DBHost != nil {
			updates["db_host"] = *req.DBHost
		}
		if req.DBPort != nil {
			updates["db_port"] = *req.DBPort
		}
		if req.DBName != nil {
			updates["db_name"] = *req.DBName
		}
		if req.DBUser != nil {
			updates["db_user"] = *req.DBUser
		}
		if req.DBPassword != nil {
			updates["db_password"] = *req.DBPassword
		}
		if req.IsActive != nil {
			updates["is_active"] = *req.IsActive
		}
		if req.Description != nil {
			updates["description"] = *req.Description
		}
		if req.DisplayOrder != nil {
			updates["display_order"] = *req.DisplayOrder
		}
		if req.NorthAzimuthCorrection != nil {
			updates["north_azimuth_correction"] = *req.NorthAzimuthCorrection
		}
		if len(updates) > 0 {
			if err := db.Model(&p).Updates(updates).Error; err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}

		actor := auth.UserFromContext(r.Context())
		rec.Record(audit.Entry{
			UserID:       &actor.ID,
			ProjectID:    &p.ID,
			Category:     audit.CategoryProject,
			ActionType:   "project.update",
			ActionName:   fmt.Sprintf("Project updated %s", p.Name),
			ResourceType: "project",
			ResourceID:   strconv.FormatUint(id, 10),
			Details:      map[string]any{"fields": fieldNames(updates)},
			Request:      r,
		})
		respondJSON(w, http.StatusOK, p)
	}
}

func DeleteProject(db *gorm.DB, lg *zap.SugaredLogger, rec *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid project id", http.StatusBadRequest)
			return
		}
		var p models.Project
		if err := db.First(&p, id).Error; err != nil {
			http.Error(w, "project not found", http.StatusNotFound)
			return
		}
		if err := db.Delete(&models.Project{}, id).Error; err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_ = db.Where("project_id = ?", id).Delete(&models.ProjectPermission{}).Error

		actor := auth.UserFromContext(r.Context())
		pid := uint(id)
		rec.Record(audit.Entry{
			UserID:       &actor.ID,
			ProjectID:    &pid,
			Category:     audit.CategoryProject,
			ActionType:   "project.delete",
			ActionName:   fmt.Sprintf("Project deleted %s", p.Name),
			ResourceType: "project",
			ResourceID:   strconv.FormatUint(id, 10),
			Request:      r,
		})
		respondJSON(w, http.StatusOK, messageResponse{Message: "project deleted", Success: true})
	}
}

type grantPermissionReq struct {
	UserID uint   `json:"user_id"`
	Role   string `json:"role"`
}

var projectRoles = map[string]bool{
	"operator":  true,
	"manager":   true,
	"viewer":    true,
	"no_access": true,
}

// GrantProjectPermission upserts the per-project role of a user.
func GrantProjectPermission(db *gorm.DB, lg *zap.SugaredLogger, rec *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid project id", http.StatusBadRequest)
			return
		}
		var req grantPermissionReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !projectRoles[req.Role] {
			http.Error(w, "unknown project role", http.StatusBadRequest)
			return
		}
		var p models.Project
		if err := db.First(&p, id).Error; err != nil {
			http.Error(w, "project not found", http.StatusNotFound)
			return
		}

		var perm models.ProjectPermission
		err = db.Where("user_id = ? AND project_id = ?", req.UserID, id).First(&perm).Error
		if err == nil {
			if err := db.Model(&perm).Update("role", req.Role).Error; err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		} else {
			perm = models.ProjectPermission{UserID: req.UserID, ProjectID: uint(id), Role: req.Role}
			if err := db.Create(&perm).Error; err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}

		actor := auth.UserFromContext(r.Context())
		pid := uint(id)
		rec.Record(audit.Entry{
			UserID:       &actor.ID,
			ProjectID:    &pid,
			Category:     audit.CategoryProject,
			ActionType:   "project.permission.grant",
			ActionName:   fmt.Sprintf("Permission %s granted on project %s", req.Role, p.Name),
			ResourceType: "permission",
			ResourceID:   strconv.FormatUint(uint64(perm.ID), 10),
			Details:      map[string]any{"user_id": req.UserID, "role": req.Role},
			Request:      r,
		})
		respondJSON(w, http.StatusOK, perm)
	}
}
