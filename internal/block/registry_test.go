package block

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"chatsync/internal/docstore"
	"chatsync/internal/docstore/sqlite"
)

func newTestRegistry(t *testing.T) (*Registry, docstore.Store) {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	return New(st, &logger), st
}

func mustCreateUser(t *testing.T, st docstore.Store, username string) docstore.UserID {
	t.Helper()

	user, err := st.CreateUser(context.Background(), username, "hash")
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user.ID
}

func TestBlockAndUnblock(t *testing.T) {
	reg, st := newTestRegistry(t)
	ctx := context.Background()

	alice := mustCreateUser(t, st, "alice")
	bob := mustCreateUser(t, st, "bob")

	if err := reg.Block(ctx, alice, bob); err != nil {
		t.Fatalf("block: %v", err)
	}
	// Idempotent.
	if err := reg.Block(ctx, alice, bob); err != nil {
		t.Fatalf("repeat block: %v", err)
	}

	blocked, err := reg.IsBlocked(ctx, alice, bob)
	if err != nil || !blocked {
		t.Fatalf("expected alice to block bob, got blocked=%v err=%v", blocked, err)
	}
	blocked, err = reg.IsBlocked(ctx, bob, alice)
	if err != nil || blocked {
		t.Fatalf("expected directional block only, got blocked=%v err=%v", blocked, err)
	}

	list, err := reg.ListBlocked(ctx, alice)
	if err != nil {
		t.Fatalf("list blocked: %v", err)
	}
	if len(list) != 1 || list[0] != bob {
		t.Fatalf("unexpected blocked list: %v", list)
	}

	if err := reg.Unblock(ctx, alice, bob); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	if err := reg.Unblock(ctx, alice, bob); !errors.Is(err, ErrNotBlocked) {
		t.Fatalf("expected ErrNotBlocked, got %v", err)
	}
}

func TestBlockValidation(t *testing.T) {
	reg, st := newTestRegistry(t)
	ctx := context.Background()

	alice := mustCreateUser(t, st, "alice")

	if err := reg.Block(ctx, alice, alice); !errors.Is(err, ErrCannotBlockSelf) {
		t.Fatalf("expected ErrCannotBlockSelf, got %v", err)
	}
	if err := reg.Block(ctx, alice, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestEitherBlocked(t *testing.T) {
	reg, st := newTestRegistry(t)
	ctx := context.Background()

	alice := mustCreateUser(t, st, "alice")
	bob := mustCreateUser(t, st, "bob")

	blocked, err := reg.EitherBlocked(ctx, alice, bob)
	if err != nil || blocked {
		t.Fatalf("expected no block, got blocked=%v err=%v", blocked, err)
	}

	if err := reg.Block(ctx, bob, alice); err != nil {
		t.Fatalf("block: %v", err)
	}

	// The gate fires regardless of which side placed the block.
	blocked, err = reg.EitherBlocked(ctx, alice, bob)
	if err != nil || !blocked {
		t.Fatalf("expected block alice<->bob, got blocked=%v err=%v", blocked, err)
	}
	blocked, err = reg.EitherBlocked(ctx, bob, alice)
	if err != nil || !blocked {
		t.Fatalf("expected block bob<->alice, got blocked=%v err=%v", blocked, err)
	}
}
