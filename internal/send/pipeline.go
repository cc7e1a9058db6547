package send

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatsync/internal/block"
	"chatsync/internal/docstore"
	"chatsync/internal/upload"
)

// Errors returned by Send, one per failure class. Gating errors are reported
// before any side effect; ErrUploadFailed and ErrAppendFailed abort with no
// effect beyond the already-completed steps; ErrFanOutPartial is a degraded
// success, the message is durably recorded.
var (
	ErrBlocked       = errors.New("send blocked between participants")
	ErrEmptyMessage  = errors.New("message text is empty")
	ErrUploadFailed  = errors.New("attachment upload failed")
	ErrAppendFailed  = errors.New("message append failed")
	ErrFanOutPartial = errors.New("summary fan-out incomplete")
)

// Wire codes for the error taxonomy.
const (
	CodeBlocked       = "blocked"
	CodeEmptyMessage  = "empty_message"
	CodeUploadFailed  = "upload_failed"
	CodeAppendFailed  = "append_failed"
	CodeFanOutPartial = "fanout_failed"
)

// ErrorCode maps a Send error to its wire code, or "" for unknown errors.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrBlocked):
		return CodeBlocked
	case errors.Is(err, ErrEmptyMessage):
		return CodeEmptyMessage
	case errors.Is(err, ErrUploadFailed):
		return CodeUploadFailed
	case errors.Is(err, ErrAppendFailed):
		return CodeAppendFailed
	case errors.Is(err, ErrFanOutPartial):
		return CodeFanOutPartial
	default:
		return ""
	}
}

// Request describes one outgoing message.
type Request struct {
	ConversationID docstore.ConversationID
	SenderID       docstore.UserID
	RecipientID    docstore.UserID
	Text           string

	// Attachment, when non-nil, is uploaded before the append and its URL
	// recorded on the message. An attachment alone cannot be sent: Text must
	// still be non-empty.
	Attachment     io.Reader
	AttachmentType string
}

// FanOutStatus records the outcome of one summary write.
type FanOutStatus struct {
	UserID docstore.UserID
	Err    error
}

// Result reports what a send actually did. It is non-nil whenever the message
// was appended, including degraded success where fan-out partially failed.
type Result struct {
	Message docstore.Message

	// IdempotencyKey is derived from (conversation, sender, createdAt) so a
	// higher layer can retry summary fan-out without re-sending the message.
	IdempotencyKey string

	// FanOut holds one entry per participant, sender first.
	FanOut []FanOutStatus
}

// Pipeline orchestrates one outgoing message:
// gate, optional upload, log append, summary fan-out.
type Pipeline struct {
	conversations docstore.ConversationStore
	index         docstore.ChatIndexStore
	blocks        *block.Registry
	uploader      upload.Uploader
	log           *zerolog.Logger

	now func() time.Time
}

// New creates a send pipeline over the given collaborators.
func New(st docstore.Store, blocks *block.Registry, uploader upload.Uploader, logger *zerolog.Logger) *Pipeline {
	return &Pipeline{
		conversations: st,
		index:         st,
		blocks:        blocks,
		uploader:      uploader,
		log:           logger,
		now:           time.Now,
	}
}

// Send runs the full pipeline. The append and the two summary writes are
// three independent writes, not a transaction: once the append succeeds the
// message is never rolled back, and fan-out failure must not trigger a
// re-send (the log performs no deduplication).
func (p *Pipeline) Send(ctx context.Context, req Request) (*Result, error) {
	if err := p.gate(ctx, req); err != nil {
		return nil, err
	}

	imageURL, err := p.uploadAttachment(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := p.appendMessage(ctx, req, imageURL)
	if err != nil {
		return nil, err
	}

	p.fanOut(ctx, req, result)

	for _, st := range result.FanOut {
		if st.Err != nil {
			return result, fmt.Errorf("%w: %v", ErrFanOutPartial, st.Err)
		}
	}
	return result, nil
}

// gate rejects the send before any side effect occurs.
func (p *Pipeline) gate(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	blocked, err := p.blocks.EitherBlocked(ctx, req.SenderID, req.RecipientID)
	if err != nil {
		return fmt.Errorf("block check: %w", err)
	}
	if blocked {
		return ErrBlocked
	}

	// Whitespace-only text is rejected even when an attachment is present.
	if strings.TrimSpace(req.Text) == "" {
		return ErrEmptyMessage
	}

	return nil
}

func (p *Pipeline) uploadAttachment(ctx context.Context, req Request) (string, error) {
	if req.Attachment == nil {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := fmt.Sprintf("attachments/%s/%s", req.ConversationID, uuid.NewString())
	url, err := p.uploader.Upload(ctx, key, req.Attachment, req.AttachmentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return url, nil
}

func (p *Pipeline) appendMessage(ctx context.Context, req Request, imageURL string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msg := docstore.Message{
		ID:        uuid.NewString(),
		SenderID:  req.SenderID,
		Text:      req.Text,
		ImageURL:  imageURL,
		CreatedAt: p.now().UTC(),
	}
	if err := p.conversations.AppendMessage(ctx, req.ConversationID, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}

	return &Result{
		Message:        msg,
		IdempotencyKey: fmt.Sprintf("%s:%s:%d", req.ConversationID, req.SenderID, msg.CreatedAt.UnixNano()),
	}, nil
}

// fanOut updates both participants' summaries, sender first. Each write is
// independent: one failing does not roll back the other or the append.
func (p *Pipeline) fanOut(ctx context.Context, req Request, result *Result) {
	for _, userID := range []docstore.UserID{req.SenderID, req.RecipientID} {
		err := p.updateSummary(ctx, userID, req)
		if err != nil {
			p.log.Warn().
				Err(err).
				Str("conversation_id", string(req.ConversationID)).
				Str("user_id", string(userID)).
				Str("idempotency_key", result.IdempotencyKey).
				Msg("summary fan-out failed; message is already durable")
		}
		result.FanOut = append(result.FanOut, FanOutStatus{UserID: userID, Err: err})
	}
}

// updateSummary is the read-modify-write the design note flags as
// lost-update-prone under concurrent senders: the last writer wins on the
// same (user, chat) pair. It stays behind ChatIndexStore so an atomic merge
// or versioned write can replace it without touching the pipeline.
func (p *Pipeline) updateSummary(ctx context.Context, userID docstore.UserID, req Request) error {
	sum, err := p.index.GetSummary(ctx, userID, req.ConversationID)
	if err != nil {
		if !errors.Is(err, docstore.ErrSummaryNotFound) {
			return fmt.Errorf("read summary: %w", err)
		}
		// Lazily created on first fan-out write.
		sum = &docstore.ChatSummary{ChatID: req.ConversationID}
	}

	sum.LastMessage = req.Text
	sum.IsSeen = userID == req.SenderID
	sum.UpdatedAt = p.now().UTC()

	if err := p.index.PutSummary(ctx, userID, *sum); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
