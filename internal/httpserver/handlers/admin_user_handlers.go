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
	"geomon/internal/email"
	"geomon/internal/models"
	"geomon/internal/users"
)

func ListUsers(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var list []models.User
		if err := db.Order("created_at desc").Find(&list).Error; err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

type adminCreateUserReq struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	Role      string  `json:"role,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

// AdminCreateUser creates an account on behalf of a user. The account
// arrives pre-verified and the chosen password is emailed to its owner.
func AdminCreateUser(db *gorm.DB, lg *zap.SugaredLogger, rec *audit.Recorder, mail email.Sender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req adminCreateUserReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Email == "" || req.Password == "" {
			http.Error(w, "email and password required", http.StatusBadRequest)
			return
		}
		if req.Role == "" {
			req.Role = auth.RoleUser
		}
		if auth.RoleLevel(req.Role) == 0 {
			http.Error(w, "unknown role", http.StatusBadRequest)
			return
		}
		existing, err := users.FindByEmail(db, req.Email)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if existing != nil {
			http.Error(w, "user with this email already exists", http.StatusConflict)
			return
		}
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			http.Error(w, "hash error", http.StatusInternalServerError)
			return
		}
		u := models.User{
			Email:          req.Email,
			HashedPassword: hash,
			Role:           req.Role,
			IsActive:       true,
			IsVerified:     true,
			FirstName:      req.FirstName,
			LastName:       req.LastName,
		}
		if err := db.Create(&u).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				http.Error(w, "user with this email already exists", http.StatusConflict)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		if !mail.SendNewUserCredentials(u.Email, req.Password, u.FullName()) {
			lg.Warnw("credentials email not sent", "email", u.Email)
		}

		actor := auth.UserFromContext(r.Context())
		rec.Record(audit.Entry{
			UserID:       &actor.ID,
			Category:     audit.CategoryAdmin,
			ActionType:   "admin.user.create",
			ActionName:   fmt.Sprintf("User created %s", u.Email),
			ResourceType: "user",
			ResourceID:   strconv.FormatUint(uint64(u.ID), 10),
			Details:      map[string]any{"email": u.Email, "role": u.Role},
			Request:      r,
		})
		respondJSON(w, http.StatusCreated, u)
	}
}

type adminUpdateUserReq struct {
	Email      *string `json:"email,omitempty"`
	Role       *string `json:"role,omitempty"`
	IsActive   *bool   `json:"is_active,omitempty"`
	IsVerified *bool   `json:"is_verified,omitempty"`
	Password   *string `json:"password,omitempty"`
	FirstName  *string `json:"first_name,omitempty"`
	LastName   *string `json:"last_name,omitempty"`
}

func AdminUpdateUser(db *gorm.DB, lg *zap.SugaredLogger, rec *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid user id", http.StatusBadRequest)
			return
		}
		var req adminUpdateUserReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		u, err := users.FindByID(db, uint(id))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if u == nil {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}

		updates := map[string]any{}
		if req.Email != nil {
			updates["email"] = *req.Email
		}
		if req.Role != nil {
			if auth.RoleLevel(*req.Role) == 0 {
				http.Error(w, "unknown role", http.StatusBadRequest)
				return
			}
			updates["role"] = *req.Role
		}
		if req.IsActive != nil {
			updates["is_active"] = *req.IsActive
		}
		if req.IsVerified != nil {
			updates["is_verified"] = *req.IsVerified
		}
		if req.FirstName != nil {
			updates["first_name"] = *req.FirstName
		}
		if req.LastName != nil {
			updates["last_name"] = *req.LastName
		}
		if req.Password != nil {
			hash, err := auth.HashPassword(*req.Password)
			if err != nil {
				http.Error(w, "hash error", http.StatusInternalServerError)
				return
			}
			updates["hashed_password"] = hash
		}
		if len(updates) > 0 {
			if err := db.Model(u).Updates(updates).Error; err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}

		actor := auth.UserFromContext(r.Context())
		rec.Record(audit.Entry{
			UserID:       &actor.ID,
			Category:     audit.CategoryAdmin,
			ActionType:   "admin.user.update",
			ActionName:   fmt.Sprintf("User updated %s", u.Email),
			ResourceType: "user",
			ResourceID:   strconv.FormatUint(id, 10),
			Details:      map[string]any{"fields": fieldNames(updates)},
			Request:      r,
		})
		respondJSON(w, http.StatusOK, u)
	}
}

func AdminDeleteUser(db *gorm.DB, lg *zap.SugaredLogger, rec *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid user id", http.StatusBadRequest)
			return
		}
		u, err := users.FindByID(db, uint(id))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if u == nil {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		if err := db.Delete(&models.User{}, id).Error; err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		actor := auth.UserFromContext(r.Context())
		rec.Record(audit.Entry{
			UserID:       &actor.ID,
			Category:     audit.CategoryAdmin,
			ActionType:   "admin.user.delete",
			ActionName:   fmt.Sprintf("User deleted %s", u.Email),
			ResourceType: "user",
			ResourceID:   strconv.FormatUint(id, 10),
			Details:      map[string]any{"email": u.Email},
			Request:      r,
		})
		respondJSON(w, http.StatusOK, messageResponse{Message: "user deleted", Success: true})
	}
}

func fieldNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	return names
}
