package send

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chatsync/internal/block"
	"chatsync/internal/docstore"
	"chatsync/internal/docstore/sqlite"
	"chatsync/internal/upload"
)

type fixture struct {
	pipeline *Pipeline
	store    docstore.Store
	registry *block.Registry

	alice docstore.UserID
	bob   docstore.UserID
	conv  docstore.ConversationID
}

func newFixture(t *testing.T, uploader upload.Uploader) *fixture {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	alice, err := st.CreateUser(ctx, "alice", "hash")
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := st.CreateUser(ctx, "bob", "hash")
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	conv, err := st.CreateConversation(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	logger := zerolog.Nop()
	registry := block.New(st, &logger)
	return &fixture{
		pipeline: New(st, registry, uploader, &logger),
		store:    st,
		registry: registry,
		alice:    alice.ID,
		bob:      bob.ID,
		conv:     conv.ID,
	}
}

func (f *fixture) request(text string) Request {
	return Request{
		ConversationID: f.conv,
		SenderID:       f.alice,
		RecipientID:    f.bob,
		Text:           text,
	}
}

func (f *fixture) messageCount(t *testing.T) int {
	t.Helper()

	conv, err := f.store.GetConversation(context.Background(), f.conv)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	return len(conv.Messages)
}

func (f *fixture) assertNoMutation(t *testing.T) {
	t.Helper()

	if n := f.messageCount(t); n != 0 {
		t.Fatalf("expected no messages, got %d", n)
	}
	for _, userID := range []docstore.UserID{f.alice, f.bob} {
		if _, err := f.store.GetSummary(context.Background(), userID, f.conv); !errors.Is(err, docstore.ErrSummaryNotFound) {
			t.Fatalf("expected no summary for %s, got err=%v", userID, err)
		}
	}
}

type fakeUploader struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (u *fakeUploader) Upload(_ context.Context, key string, _ io.Reader, _ string) (string, error) {
	u.mu.Lock()
	u.calls++
	u.mu.Unlock()
	if u.err != nil {
		return "", u.err
	}
	return "https://cdn.example/" + key, nil
}

func (u *fakeUploader) callCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

func TestSendHappyPath(t *testing.T) {
	f := newFixture(t, upload.Disabled{})
	ctx := context.Background()

	result, err := f.pipeline.Send(ctx, f.request("hello bob"))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.Message.Text != "hello bob" || result.Message.SenderID != f.alice {
		t.Fatalf("unexpected message: %+v", result.Message)
	}
	if result.IdempotencyKey == "" {
		t.Fatalf("expected idempotency key")
	}
	if len(result.FanOut) != 2 || result.FanOut[0].UserID != f.alice || result.FanOut[1].UserID != f.bob {
		t.Fatalf("unexpected fan-out order: %+v", result.FanOut)
	}
	for _, st := range result.FanOut {
		if st.Err != nil {
			t.Fatalf("fan-out for %s failed: %v", st.UserID, st.Err)
		}
	}

	if n := f.messageCount(t); n != 1 {
		t.Fatalf("expected 1 message, got %d", n)
	}

	// Sender's entry is seen, recipient's is not.
	sum, err := f.store.GetSummary(ctx, f.alice, f.conv)
	if err != nil || !sum.IsSeen || sum.LastMessage != "hello bob" {
		t.Fatalf("sender summary: %+v err=%v", sum, err)
	}
	sum, err = f.store.GetSummary(ctx, f.bob, f.conv)
	if err != nil || sum.IsSeen || sum.LastMessage != "hello bob" {
		t.Fatalf("recipient summary: %+v err=%v", sum, err)
	}
}

func TestSendRejectsEmptyText(t *testing.T) {
	uploader := &fakeUploader{}
	f := newFixture(t, uploader)
	ctx := context.Background()

	for _, text := range []string{"", "   ", "\n\t"} {
		req := f.request(text)
		req.Attachment = strings.NewReader("image-bytes")
		req.AttachmentType = "image/png"

		result, err := f.pipeline.Send(ctx, req)
		if !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("text %q: expected ErrEmptyMessage, got %v", text, err)
		}
		if result != nil {
			t.Fatalf("text %q: expected nil result", text)
		}
	}

	// The gate fires before the upload step.
	if n := uploader.callCount(); n != 0 {
		t.Fatalf("expected no uploads, got %d", n)
	}
	f.assertNoMutation(t)
}

func TestSendRejectsBlockedPair(t *testing.T) {
	f := newFixture(t, upload.Disabled{})
	ctx := context.Background()

	// The recipient blocking the sender is enough to stop the send.
	if err := f.registry.Block(ctx, f.bob, f.alice); err != nil {
		t.Fatalf("block: %v", err)
	}

	result, err := f.pipeline.Send(ctx, f.request("hello"))
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil result")
	}
	f.assertNoMutation(t)

	// And the other direction.
	if err := f.registry.Unblock(ctx, f.bob, f.alice); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	if err := f.registry.Block(ctx, f.alice, f.bob); err != nil {
		t.Fatalf("block: %v", err)
	}
	if _, err := f.pipeline.Send(ctx, f.request("hello")); !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
	f.assertNoMutation(t)
}

func TestSendUploadsAttachment(t *testing.T) {
	uploader := &fakeUploader{}
	f := newFixture(t, uploader)

	req := f.request("look at this")
	req.Attachment = strings.NewReader("image-bytes")
	req.AttachmentType = "image/png"

	result, err := f.pipeline.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if uploader.callCount() != 1 {
		t.Fatalf("expected one upload, got %d", uploader.callCount())
	}
	if !strings.HasPrefix(result.Message.ImageURL, "https://cdn.example/attachments/"+string(f.conv)+"/") {
		t.Fatalf("unexpected image url: %q", result.Message.ImageURL)
	}

	conv, err := f.store.GetConversation(context.Background(), f.conv)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if conv.Messages[0].ImageURL != result.Message.ImageURL {
		t.Fatalf("stored message lost its image url: %+v", conv.Messages[0])
	}
}

func TestSendUploadFailureLeavesNoTrace(t *testing.T) {
	uploader := &fakeUploader{err: errors.New("bucket offline")}
	f := newFixture(t, uploader)

	req := f.request("with image")
	req.Attachment = strings.NewReader("image-bytes")
	req.AttachmentType = "image/png"

	result, err := f.pipeline.Send(context.Background(), req)
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("expected ErrUploadFailed, got %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil result")
	}
	f.assertNoMutation(t)
}

func TestSendAppendFailure(t *testing.T) {
	f := newFixture(t, upload.Disabled{})

	req := f.request("hello")
	req.ConversationID = "ghost"

	result, err := f.pipeline.Send(context.Background(), req)
	if !errors.Is(err, ErrAppendFailed) {
		t.Fatalf("expected ErrAppendFailed, got %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil result")
	}
	f.assertNoMutation(t)
}

// failingIndex fails summary writes for one user while delegating everything
// else to the real store.
type failingIndex struct {
	docstore.Store
	failFor docstore.UserID
}

func (f *failingIndex) PutSummary(ctx context.Context, userID docstore.UserID, sum docstore.ChatSummary) error {
	if userID == f.failFor {
		return errors.New("summary write refused")
	}
	return f.Store.PutSummary(ctx, userID, sum)
}

func TestSendFanOutPartialIsDegradedSuccess(t *testing.T) {
	f := newFixture(t, upload.Disabled{})
	ctx := context.Background()

	logger := zerolog.Nop()
	wrapped := &failingIndex{Store: f.store, failFor: f.bob}
	pipeline := New(wrapped, f.registry, upload.Disabled{}, &logger)

	result, err := pipeline.Send(ctx, f.request("hello"))
	if !errors.Is(err, ErrFanOutPartial) {
		t.Fatalf("expected ErrFanOutPartial, got %v", err)
	}
	if result == nil {
		t.Fatalf("degraded success must still return the result")
	}

	// The message is durable despite the partial fan-out.
	if n := f.messageCount(t); n != 1 {
		t.Fatalf("expected 1 message, got %d", n)
	}

	// Sender's summary landed, recipient's did not.
	if _, err := f.store.GetSummary(ctx, f.alice, f.conv); err != nil {
		t.Fatalf("sender summary: %v", err)
	}
	if _, err := f.store.GetSummary(ctx, f.bob, f.conv); !errors.Is(err, docstore.ErrSummaryNotFound) {
		t.Fatalf("expected missing recipient summary, got err=%v", err)
	}

	if result.FanOut[0].Err != nil {
		t.Fatalf("sender fan-out should succeed: %v", result.FanOut[0].Err)
	}
	if result.FanOut[1].Err == nil {
		t.Fatalf("recipient fan-out should fail")
	}
}

func TestSendCancelledContext(t *testing.T) {
	f := newFixture(t, upload.Disabled{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.pipeline.Send(ctx, f.request("hello"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil result")
	}
	f.assertNoMutation(t)
}

func TestConcurrentSendsAllAppend(t *testing.T) {
	f := newFixture(t, upload.Disabled{})
	ctx := context.Background()

	const senders = 10
	var wg sync.WaitGroup
	errs := make([]error, senders)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.pipeline.Send(ctx, f.request(fmt.Sprintf("msg %d", i)))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if n := f.messageCount(t); n != senders {
		t.Fatalf("expected %d messages, got %d", senders, n)
	}

	// Summaries exist for both participants; the last writer won.
	for _, userID := range []docstore.UserID{f.alice, f.bob} {
		if _, err := f.store.GetSummary(ctx, userID, f.conv); err != nil {
			t.Fatalf("summary for %s: %v", userID, err)
		}
	}
}

func TestSendMessageTimestampsAdvance(t *testing.T) {
	f := newFixture(t, upload.Disabled{})
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	f.pipeline.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	first, err := f.pipeline.Send(ctx, f.request("one"))
	if err != nil {
		t.Fatalf("first send: %v", err)
	}
	second, err := f.pipeline.Send(ctx, f.request("two"))
	if err != nil {
		t.Fatalf("second send: %v", err)
	}

	if !second.Message.CreatedAt.After(first.Message.CreatedAt) {
		t.Fatalf("timestamps did not advance: %v then %v", first.Message.CreatedAt, second.Message.CreatedAt)
	}
	if first.IdempotencyKey == second.IdempotencyKey {
		t.Fatalf("idempotency keys should differ")
	}
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrBlocked, CodeBlocked},
		{ErrEmptyMessage, CodeEmptyMessage},
		{fmt.Errorf("%w: detail", ErrUploadFailed), CodeUploadFailed},
		{fmt.Errorf("%w: detail", ErrAppendFailed), CodeAppendFailed},
		{fmt.Errorf("%w: detail", ErrFanOutPartial), CodeFanOutPartial},
		{errors.New("something else"), ""},
	}
	for _, tc := range cases {
		if got := ErrorCode(tc.err); got != tc.want {
			t.Fatalf("ErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
