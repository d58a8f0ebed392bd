package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/authgate/internal/auth"
)

// apiKeyPublic is the outward shape of an API key record. Neither the hash
// nor the plaintext secret is included; the prefix is safe to show.
type apiKeyPublic struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"keyPrefix"`
	Revoked    bool       `json:"revoked"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func publicAPIKey(k *auth.APIKey) apiKeyPublic {
	return apiKeyPublic{
		ID:         k.ID,
		Name:       k.Name,
		KeyPrefix:  k.KeyPrefix,
		Revoked:    k.Revoked,
		ExpiresAt:  k.ExpiresAt,
		LastUsedAt: k.LastUsedAt,
		CreatedAt:  k.CreatedAt,
	}
}

// HandleCreateAPIKey creates a key for the authenticated user. The response
// carries the plaintext secret; it is shown exactly once and never again.
// POST /api/v1/apikeys
func (a *App) HandleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	user, err := a.currentUser(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	var in struct {
		Name          string `json:"name"`
		ExpiresInDays *int   `json:"expiresInDays"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	var expiresAt *time.Time
	if in.ExpiresInDays != nil {
		if *in.ExpiresInDays <= 0 {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "expiresInDays must be positive")
			return
		}
		t := time.Now().Add(time.Duration(*in.ExpiresInDays) * 24 * time.Hour)
		expiresAt = &t
	}

	key, plaintext, err := a.Auth.CreateAPIKey(user.ID, in.Name, expiresAt)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	resp := struct {
		apiKeyPublic
		Key string `json:"key"`
	}{publicAPIKey(key), plaintext}
	writeJSON(w, http.StatusCreated, resp)
}

// HandleListAPIKeys lists the authenticated user's keys (metadata only).
// GET /api/v1/apikeys
func (a *App) HandleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	user, err := a.currentUser(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	keys, err := a.Auth.ListAPIKeys(user.ID)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	out := make([]apiKeyPublic, 0, len(keys))
	for _, k := range keys {
		out = append(out, publicAPIKey(k))
	}
	writeJSON(w, http.StatusOK, out)
}

func apiKeyID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil
}

// HandleRevokeAPIKey marks one of the user's keys revoked.
// POST /api/v1/apikeys/{id}/revoke
func (a *App) HandleRevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	user, err := a.currentUser(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	id, ok := apiKeyID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid key id")
		return
	}

	if err := a.Auth.RevokeAPIKey(id, user.ID); err != nil {
		writeAuthError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]bool{"revoked": true})
}

// HandleDeleteAPIKey permanently removes one of the user's keys.
// DELETE /api/v1/apikeys/{id}
func (a *App) HandleDeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	user, err := a.currentUser(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	id, ok := apiKeyID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid key id")
		return
	}

	if err := a.Auth.DeleteAPIKey(id, user.ID); err != nil {
		writeAuthError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]bool{"deleted": true})
}

// HandleWhoAmI reports the user resolved from a presented API key; it exists
// so programmatic clients can verify a key end to end.
// GET /api/v1/whoami
func (a *App) HandleWhoAmI(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key required")
		return
	}
	writeJSON(w, http.StatusOK, publicUser(user))
}
