package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/example/authgate/internal/auth"
)

// userPublic is the outward shape of a user; the password hash never leaves
// the server.
type userPublic struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      auth.Role `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func publicUser(u *auth.User) userPublic {
	return userPublic{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

// HandleRegister creates a new user. Registration is admin-initiated; the
// route is guarded by JWTAuth + RequireAdmin.
// POST /api/v1/auth/register
func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string    `json:"username"`
		Email    string    `json:"email"`
		Password string    `json:"password"`
		Role     auth.Role `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if in.Role == "" {
		in.Role = auth.RoleUser
	}

	user, err := a.Auth.Register(in.Username, in.Email, in.Password, in.Role)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, publicUser(user))
}

// HandleLogin exchanges a username and password for a token pair.
// POST /api/v1/auth/login
func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if in.Username == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Username and password are required")
		return
	}

	user, pair, err := a.Auth.Login(in.Username, in.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":         publicUser(user),
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// HandleRefresh exchanges a valid refresh token for a fresh token pair.
// POST /api/v1/auth/refresh
func (a *App) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if in.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Refresh token is required")
		return
	}

	pair, err := a.Auth.Refresh(in.RefreshToken)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// HandleTokenValidate verifies a presented access token and returns its
// claims.
// GET /api/v1/auth/validate
func (a *App) HandleTokenValidate(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		tokenStr = bearerToken(r)
	}
	if tokenStr == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Token is required")
		return
	}

	claims, err := a.Auth.VerifyAccessToken(tokenStr)
	if err != nil {
		writeAuthError(w, auth.ErrAuthenticationFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":     true,
		"sub":       claims.Subject,
		"username":  claims.Username,
		"email":     claims.Email,
		"role":      claims.Role,
		"expiresAt": claims.ExpiresAt.Unix(),
	})
}

// HandleMe returns the authenticated user.
// GET /api/v1/users/me
func (a *App) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := a.currentUser(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, publicUser(user))
}

// currentUser resolves the request's user record from either the JWT claims
// (JWTAuth routes) or the API-key context (APIKeyAuth routes).
func (a *App) currentUser(r *http.Request) (*auth.User, error) {
	if u := userFrom(r.Context()); u != nil {
		return u, nil
	}
	claims := claimsFrom(r.Context())
	if claims == nil {
		return nil, auth.ErrAuthenticationFailed
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, auth.ErrAuthenticationFailed
	}
	user, err := a.Store.FindUserByID(id)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, auth.ErrAuthenticationFailed
		}
		return nil, err
	}
	return user, nil
}
