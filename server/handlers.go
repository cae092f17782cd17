package server

import (
	"encoding/json"
	"net/http"

	"github.com/avasquez-dev/go-token-service/token"
	"github.com/avasquez-dev/go-token-service/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// RegisterHandler creates a new user in the directory.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
			writeError(w, http.StatusBadRequest, "username and password are required")
			return
		}

		if err := users.ValidatePasswordStrength(req.Password); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		user, err := s.registrar.Create(r.Context(), req.Username, req.Password)
		if err != nil {
			if errors.Is(err, users.ErrUsernameTaken) {
				writeError(w, http.StatusConflict, "username already taken")
				return
			}
			log.Error().Err(err).Msg("register failed")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		writeJSON(w, http.StatusCreated, user)
	}
}

// LoginHandler authenticates credentials and issues a token pair.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "username and password are required")
			return
		}

		pair, err := s.tokens.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			if errors.Is(err, users.ErrInvalidCredentials) {
				writeError(w, http.StatusUnauthorized, "invalid credentials")
				return
			}
			log.Error().Err(err).Msg("login failed")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		writeTokenPair(w, pair)
	}
}

// RefreshHandler exchanges a refresh token for a new token pair. Any
// rejection is reported with the same message, regardless of cause.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
			writeError(w, http.StatusBadRequest, "refresh_token is required")
			return
		}

		pair, err := s.tokens.RotateRefreshToken(r.Context(), req.RefreshToken)
		if err != nil {
			if errors.Is(err, token.ErrInvalidRefreshToken) {
				writeError(w, http.StatusUnauthorized, "invalid refresh token")
				return
			}
			log.Error().Err(err).Msg("refresh failed")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		writeTokenPair(w, pair)
	}
}

// LogoutHandler ends sessions. With a refresh_token in the body it revokes
// that single session; with ?all=true and a bearer access token it revokes
// every session of the calling subject.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("all") == "true" {
			s.logoutAll(w, r)
			return
		}

		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
			writeError(w, http.StatusBadRequest, "refresh_token is required")
			return
		}

		err := s.tokens.Logout(r.Context(), req.RefreshToken)
		switch {
		case err == nil:
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, token.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "session not found")
		case errors.Is(err, token.ErrInvalidRefreshToken):
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
		default:
			log.Error().Err(err).Msg("logout failed")
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
	}
}

func (s *Server) logoutAll(w http.ResponseWriter, r *http.Request) {
	raw, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	count, err := s.tokens.LogoutAll(r.Context(), raw)
	if err != nil {
		if errors.Is(err, token.ErrInvalidAccessToken) {
			writeError(w, http.StatusUnauthorized, "invalid access token")
			return
		}
		log.Error().Err(err).Msg("logout all failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"revoked": count})
}

// ProtectedHandler is a minimal resource endpoint guarded by
// RequireAccessToken; it echoes the verified subject back.
func (s *Server) ProtectedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"subject":      claims.SubjectID,
			"display_name": claims.DisplayName,
		})
	}
}

func writeTokenPair(w http.ResponseWriter, pair *token.TokenPair) {
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(pair.AccessClaims.ExpiresAt.Sub(pair.AccessClaims.IssuedAt).Seconds()),
		RefreshToken: pair.RefreshToken,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
