package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chatsync/internal/auth"
	"chatsync/internal/block"
	"chatsync/internal/config"
	"chatsync/internal/docstore"
	"chatsync/internal/docstore/sqlite"
	"chatsync/internal/send"
	"chatsync/internal/subscribe"
	"chatsync/internal/upload"
)

// testEnv wires a full server over an in-memory store for handler tests.
type testEnv struct {
	ts       *httptest.Server
	store    docstore.Store
	registry *block.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	registry := block.New(st, &logger)
	pipeline := send.New(st, registry, upload.Disabled{}, &logger)
	subscriber := subscribe.New(st, &logger)
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})

	srv := NewServer(st, pipeline, registry, subscriber, authService, config.Default(), &logger)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, store: st, registry: registry}
}

// registerUser registers a user through the API and returns their token and id.
func (e *testEnv) registerUser(t *testing.T, username string) (token string, id docstore.UserID) {
	t.Helper()

	var resp AuthResponse
	status := e.doJSON(t, http.MethodPost, "/api/register", "", map[string]string{
		"username": username,
		"password": "password123",
	}, &resp)
	if status != http.StatusCreated {
		t.Fatalf("register %s: status %d", username, status)
	}

	user, err := e.store.GetUserByUsername(context.Background(), username)
	if err != nil {
		t.Fatalf("lookup %s: %v", username, err)
	}
	return resp.Token, user.ID
}

// createConversation opens a conversation between the token's owner and peer.
func (e *testEnv) createConversation(t *testing.T, token string, peer docstore.UserID) docstore.ConversationID {
	t.Helper()

	var resp ConversationResponse
	status := e.doJSON(t, http.MethodPost, "/api/conversations", token, map[string]string{
		"peer_id": string(peer),
	}, &resp)
	if status != http.StatusCreated {
		t.Fatalf("create conversation: status %d", status)
	}
	return docstore.ConversationID(resp.ID)
}

// doJSON issues a request with an optional JSON body and decodes the response
// into out when it is non-nil. Returns the response status code.
func (e *testEnv) doJSON(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}
