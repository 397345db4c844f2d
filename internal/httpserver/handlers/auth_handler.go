package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"geomon/internal/audit"
	"geomon/internal/auth"
	"geomon/internal/email"
	"geomon/internal/users"
)

type registerReq struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

func Register(db *gorm.DB, lg *zap.SugaredLogger, rec *audit.Recorder, mail email.Sender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.Email = strings.TrimSpace(req.Email)
		if req.Email == "" || req.Password == "" {
			http.Error(w, "email and password required", http.StatusBadRequest)
			return
		}

		u, err := users.Create(db, req.Email, req.Password, req.FirstName, req.LastName)
		if err != nil {
			if errors.Is(err, users.ErrEmailTaken) {
				lg.Warnw("registration attempt with existing email", "email", req.Email)
				http.Error(w, "user with this email already exists", http.StatusConflict)
				return
			}
			lg.Errorw("registration failed", "email", req.Email, "error", err)
			http.Error(w, "could not create user", http.StatusInternalServerError)
			return
		}

		// Verification email is best-effort: registration stands even if
		// the send fails.
		token, err := auth.SignVerification(u.Email)
		if err != nil {
			lg.Errorw("verification token issue failed", "email", u.Email, "error", err)
		} else if !mail.SendVerification(u.Email, token, u.FullName()) {
			lg.Warnw("verification email not sent", "email", u.Email)
		}

		rec.Record(audit.Entry{
			UserID:       &u.ID,
			Category:     audit.CategoryUser,
			ActionType:   "user.auth.register",
			ActionName:   fmt.Sprintf("User registration %s", u.Email),
			ResourceType: "user",
			ResourceID:   strconv.FormatUint(uint64(u.ID), 10),
			Details:      map[string]any{"email": u.Email},
			Request:      r,
		})

		lg.Infow("user registered, awaiting email verification", "email", u.Email, "user_id", u.ID)
		respondJSON(w, http.StatusCreated, authResponse{User: *u, Tokens: emptyTokenResponse()})
	}
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func Login(db *gorm.DB, lg *zap.SugaredLogger, rec *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		u, failure := users.Authenticate(db, req.Email, req.Password)
		if failure != users.AuthOK {
			// The audit trail keeps the precise reason; the caller gets a
			// generic message, except for unverified email which is
			// deliberately explicit.
			var actorID *uint
			if existing, _ := users.FindByEmail(db, req.Email); existing != nil {
				actorID = &existing.ID
			}
			lg.Warnw("login failed", "email", req.Email, "reason", failure.String())
			rec.Record(audit.Entry{
				UserID:       actorID,
				Category:     audit.CategoryUser,
				ActionType:   "user.auth.login",
				ActionName:   fmt.Sprintf("Failed login attempt %s", req.Email),
				ResourceType: "user",
				Details:      map[string]any{"email": req.Email, "reason": failure.String()},
				Request:      r,
				Status:       audit.StatusError,
				ErrorMessage: failure.String(),
			})
			if failure == users.AuthUnverified {
				http.Error(w, "email not confirmed", http.StatusForbidden)
				return
			}
			http.Error(w, "invalid email or password", http.StatusUnauthorized)
			return
		}

		access, err := auth.SignAccess(u.ID, u.Email, u.Role)
		if err != nil {
			http.Error(w, "token error", http.StatusInternalServerError)
			return
		}
		refresh, err := auth.SignRefresh(u.ID, u.Email, u.Role)
		if err != nil {
			http.Error(w, "token error", http.StatusInternalServerError)
			return
		}

		lg.Infow("user logged in", "email", u.Email, "user_id", u.ID)
		rec.Record(audit.Entry{
			UserID:       &u.ID,
			Category:     audit.CategoryUser,
			ActionType:   "user.auth.login",
			ActionName:   fmt.Sprintf("Login %s", u.Email),
			ResourceType: "user",
			ResourceID:   strconv.FormatUint(uint64(u.ID), 10),
			Details:      map[string]any{"email": u.Email, "role": u.Role},
			Request:      r,
		})
		respondJSON(w, http.StatusOK, authResponse{User: *u, Tokens: newTokenResponse(access, refresh)})
	}
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh rotates the token pair. The old refresh token is not tracked
// or revoked; there is no revocation store.
func Refresh(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		claims, err := auth.VerifyIdentity(req.RefreshToken, auth.TokenRefresh)
		if err != nil {
			http.Error(w, "invalid refresh token", http.StatusUnauthorized)
			return
		}
		u, err := users.FindByID(db, claims.UserID)
		if err != nil || u == nil || !u.IsActive {
			http.Error(w, "user not found or deactivated", http.StatusUnauthorized)
			return
		}
		access, err := auth.SignAccess(u.ID, u.Email, u.Role)
		if err != nil {
			http.Error(w, "token error", http.StatusInternalServerError)
			return
		}
		refresh, err := auth.SignRefresh(u.ID, u.Email, u.Role)
		if err != nil {
			http.Error(w, "token error", http.StatusInternalServerError)
			return
		}
		lg.Infow("tokens refreshed", "user_id", u.ID, "email", u.Email)
		respondJSON(w, http.StatusOK, newTokenResponse(access, refresh))
	}
}

// Logout only records the event. Issued tokens stay valid until expiry;
// there is no blacklist.
func Logout(db *gorm.DB, lg *zap.SugaredLogger, rec *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := auth.UserFromContext(r.Context())
		lg.Infow("user logged out", "user_id", u.ID, "email", u.Email)
		rec.Record(audit.Entry{
			UserID:       &u.ID,
			Category:     audit.CategoryUser,
			ActionType:   "user.auth.logout",
			ActionName:   fmt.Sprintf("Logout %s", u.Email),
			ResourceType: "user",
			ResourceID:   strconv.FormatUint(uint64(u.ID), 10),
			Details:      map[string]any{"email": u.Email},
			Request:      r,
		})
		respondJSON(w, http.StatusOK, messageResponse{Message: "logged out", Success: true})
	}
}

func Me() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := auth.UserFromContext(r.Context())
		respondJSON(w, http.StatusOK, u)
	}
}

// VerifyToken lets the frontend check that its access token still works.
func VerifyToken() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, messageResponse{Message: "token is valid", Success: true})
	}
}

func VerifyEmail(db *gorm.DB, lg *zap.SugaredLogger, rec *audit.Recorder, mail email.Sender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, err := auth.VerifyEmailToken(r.URL.Query().Get("token"), auth.TokenVerification)
		if err != nil {
			lg.Warnw("invalid verification token")
			http.Error(w, "invalid or expired verification token", http.StatusBadRequest)
			return
		}
		u, err := users.FindByEmail(db, addr)
		if err != nil || u == nil {
			lg.Warnw("user not found for verification", "email", addr)
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		if u.IsVerified {
			respondJSON(w, http.StatusOK, messageResponse{Message: "email already confirmed", Success: true})
			return
		}
		if err := users.MarkVerified(db, u); err != nil {
			lg.Errorw("email verification failed", "email", addr, "error", err)
			http.Error(w, "could not verify email", http.StatusInternalServerError)
			return
		}
		if !mail.SendWelcome(u.Email, u.FullName()) {
			lg.Warnw("welcome email not sent", "email", u.Email)
		}
		lg.Infow("email verified", "email", addr, "user_id", u.ID)
		rec.Record(audit.Entry{
			UserID:       &u.ID,
			Category:     audit.CategoryUser,
			ActionType:   "user.auth.verify_email",
			ActionName:   fmt.Sprintf("Email confirmed %s", u.Email),
			ResourceType: "user",
			ResourceID:   strconv.FormatUint(uint64(u.ID), 10),
			Details:      map[string]any{"email": u.Email},
			Request:      r,
		})
		respondJSON(w, http.StatusOK, messageResponse{Message: "email confirmed", Success: true})
	}
}

type emailReq struct {
	Email string `json:"email"`
}

// forgotPasswordMessage is returned whether or not the account exists.
const forgotPasswordMessage = "if an account with this email exists, an email with instructions will be sent"

func ForgotPassword(db *gorm.DB, lg *zap.SugaredLogger, rec *audit.Recorder, mail email.Sender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req emailReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		u, err := users.FindByEmail(db, req.Email)
		if err != nil || u == nil {
			lg.Warnw("password reset requested for unknown email", "email", req.Email)
			respondJSON(w, http.StatusOK, messageResponse{Message: forgotPasswordMessage, Success: true})
			return
		}
		token, err := auth.SignPasswordReset(u.Email)
		if err != nil {
			lg.Errorw("password reset token issue failed", "email", u.Email, "error", err)
			respondJSON(w, http.StatusOK, messageResponse{Message: forgotPasswordMessage, Success: true})
			return
		}
		if mail.SendPasswordReset(u.Email, token, u.FullName()) {
			rec.Record(audit.Entry{
				UserID:       &u.ID,
				Category:     audit.CategoryUser,
				ActionType:   "user.auth.forgot_password",
				ActionName:   fmt.Sprintf("Password reset requested %s", u.Email),
				ResourceType: "user",
				ResourceID:   strconv.FormatUint(uint64(u.ID), 10),
				Details:      map[string]any{"email": u.Email},
				Request:      r,
			})
		} else {
			lg.Errorw("password reset email not sent", "email", u.Email)
		}
		respondJSON(w, http.StatusOK, messageResponse{Message: forgotPasswordMessage, Success: true})
	}
}

type resetPasswordReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func ResetPassword(db *gorm.DB, lg *zap.SugaredLogger, rec *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resetPasswordReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		addr, err := auth.VerifyEmailToken(req.Token, auth.TokenPasswordReset)
		if err != nil {
			lg.Warnw("invalid password reset token")
			http.Error(w, "invalid or expired password reset token", http.StatusBadRequest)
			return
		}
		u, err := users.FindByEmail(db, addr)
		if err != nil || u == nil {
			lg.Warnw("user not found for password reset", "email", addr)
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		if err := users.SetPassword(db, u, req.NewPassword); err != nil {
			lg.Errorw("password reset failed", "email", addr, "error", err)
			http.Error(w, "could not reset password", http.StatusInternalServerError)
			return
		}
		lg.Infow("password reset", "email", addr, "user_id", u.ID)
		rec.Record(audit.Entry{
			UserID:       &u.ID,
			Category:     audit.CategoryUser,
			ActionType:   "user.auth.reset_password",
			ActionName:   fmt.Sprintf("Password reset %s", u.Email),
			ResourceType: "user",
			ResourceID:   strconv.FormatUint(uint64(u.ID), 10),
			Details:      map[string]any{"email": u.Email},
			Request:      r,
		})
		respondJSON(w, http.StatusOK, messageResponse{Message: "password changed", Success: true})
	}
}

func ResendVerification(db *gorm.DB, lg *zap.SugaredLogger, mail email.Sender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req emailReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		u, err := users.FindByEmail(db, req.Email)
		if err != nil || u == nil {
			lg.Warnw("verification resend requested for unknown email", "email", req.Email)
			respondJSON(w, http.StatusOK, messageResponse{
				Message: "if an unverified account with this email exists, an email will be sent",
				Success: true,
			})
			return
		}
		if u.IsVerified {
			respondJSON(w, http.StatusOK, messageResponse{Message: "email already confirmed", Success: true})
			return
		}
		token, err := auth.SignVerification(u.Email)
		if err != nil {
			lg.Errorw("verification token issue failed", "email", u.Email, "error", err)
			http.Error(w, "could not issue verification token", http.StatusInternalServerError)
			return
		}
		if !mail.SendVerification(u.Email, token, u.FullName()) {
			lg.Errorw("verification email resend failed", "email", u.Email)
		}
		respondJSON(w, http.StatusOK, messageResponse{Message: "verification email sent again", Success: true})
	}
}
