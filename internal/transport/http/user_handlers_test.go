package http

import (
	"net/http"
	"testing"
)

func TestUserSearch(t *testing.T) {
	env := newTestEnv(t)

	aliceToken, _ := env.registerUser(t, "alice")
	_, bobID := env.registerUser(t, "bob")

	var user UserResponse
	status := env.doJSON(t, http.MethodGet, "/api/users/search?username=bob", aliceToken, nil, &user)
	if status != http.StatusOK {
		t.Fatalf("search: status %d", status)
	}
	if user.ID != string(bobID) || user.Username != "bob" {
		t.Fatalf("unexpected user: %+v", user)
	}

	// Exact match only.
	status = env.doJSON(t, http.MethodGet, "/api/users/search?username=bo", aliceToken, nil, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for partial name, got %d", status)
	}

	status = env.doJSON(t, http.MethodGet, "/api/users/search?username=", aliceToken, nil, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty query, got %d", status)
	}
}
