package block

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"chatsync/internal/docstore"
)

// Common errors for block operations.
var (
	ErrCannotBlockSelf = errors.New("cannot block yourself")
	ErrNotBlocked      = errors.New("user is not blocked")
	ErrUserNotFound    = errors.New("user not found")
)

// Registry answers whether a pair of users block each other and manages the
// underlying block relations. The check is advisory: it gates sends on the
// client path but is not enforced at the store write boundary.
type Registry struct {
	store interface {
		docstore.UserStore
		docstore.BlockStore
	}
	log *zerolog.Logger
}

// New creates a block registry over the given store.
func New(st docstore.Store, logger *zerolog.Logger) *Registry {
	return &Registry{store: st, log: logger}
}

// IsBlocked reports whether blocker blocks blocked (directional).
func (r *Registry) IsBlocked(ctx context.Context, blocker, blocked docstore.UserID) (bool, error) {
	return r.store.HasBlock(ctx, blocker, blocked)
}

// EitherBlocked reports whether a blocks b or b blocks a. This is the
// bidirectional gate applied before a send is permitted.
func (r *Registry) EitherBlocked(ctx context.Context, a, b docstore.UserID) (bool, error) {
	blocked, err := r.store.HasBlock(ctx, a, b)
	if err != nil {
		return false, fmt.Errorf("check block %s->%s: %w", a, b, err)
	}
	if blocked {
		return true, nil
	}
	blocked, err = r.store.HasBlock(ctx, b, a)
	if err != nil {
		return false, fmt.Errorf("check block %s->%s: %w", b, a, err)
	}
	return blocked, nil
}

// Block records that blocker blocks target. Idempotent.
func (r *Registry) Block(ctx context.Context, blocker, target docstore.UserID) error {
	if blocker == target {
		return ErrCannotBlockSelf
	}

	if _, err := r.store.GetUserByID(ctx, target); err != nil {
		return ErrUserNotFound
	}

	if err := r.store.CreateBlock(ctx, blocker, target); err != nil {
		return fmt.Errorf("create block: %w", err)
	}

	r.log.Info().
		Str("blocker_id", string(blocker)).
		Str("blocked_id", string(target)).
		Msg("user blocked")
	return nil
}

// Unblock removes a previously recorded block.
func (r *Registry) Unblock(ctx context.Context, blocker, target docstore.UserID) error {
	removed, err := r.store.DeleteBlock(ctx, blocker, target)
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	if !removed {
		return ErrNotBlocked
	}

	r.log.Info().
		Str("blocker_id", string(blocker)).
		Str("blocked_id", string(target)).
		Msg("user unblocked")
	return nil
}

// ListBlocked returns all users blocked by the given user.
func (r *Registry) ListBlocked(ctx context.Context, blocker docstore.UserID) ([]docstore.UserID, error) {
	blocked, err := r.store.ListBlocked(ctx, blocker)
	if err != nil {
		return nil, fmt.Errorf("list blocked: %w", err)
	}
	return blocked, nil
}
