package handlers

import (
	"encoding/json"
	"net/http"

	"geomon/internal/auth"
	"geomon/internal/models"
)

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

func newTokenResponse(access, refresh string) tokenResponse {
	return tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(auth.AccessTokenTTL.Seconds()),
	}
}

// emptyTokenResponse signals "registered but not yet authenticated".
func emptyTokenResponse() tokenResponse {
	return tokenResponse{TokenType: "bearer"}
}

type authResponse struct {
	User   models.User   `json:"user"`
	Tokens tokenResponse `json:"tokens"`
}

type messageResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}
