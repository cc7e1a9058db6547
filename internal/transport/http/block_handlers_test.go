package http

import (
	"net/http"
	"testing"
)

func TestBlockLifecycle(t *testing.T) {
	env := newTestEnv(t)

	aliceToken, aliceID := env.registerUser(t, "alice")
	_, bobID := env.registerUser(t, "bob")

	status := env.doJSON(t, http.MethodPost, "/api/blocks/"+string(bobID), aliceToken, nil, nil)
	if status != http.StatusNoContent {
		t.Fatalf("block: status %d", status)
	}

	var list BlockedListResponse
	if status := env.doJSON(t, http.MethodGet, "/api/blocks", aliceToken, nil, &list); status != http.StatusOK {
		t.Fatalf("list blocks: status %d", status)
	}
	if len(list.Blocked) != 1 || list.Blocked[0] != string(bobID) {
		t.Fatalf("unexpected blocked list: %+v", list)
	}

	status = env.doJSON(t, http.MethodDelete, "/api/blocks/"+string(bobID), aliceToken, nil, nil)
	if status != http.StatusNoContent {
		t.Fatalf("unblock: status %d", status)
	}
	status = env.doJSON(t, http.MethodDelete, "/api/blocks/"+string(bobID), aliceToken, nil, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 on repeated unblock, got %d", status)
	}

	// Validation paths.
	status = env.doJSON(t, http.MethodPost, "/api/blocks/"+string(aliceID), aliceToken, nil, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for self-block, got %d", status)
	}
	status = env.doJSON(t, http.MethodPost, "/api/blocks/missing", aliceToken, nil, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown target, got %d", status)
	}
}
