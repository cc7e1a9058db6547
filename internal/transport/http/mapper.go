package http

import (
	"github.com/samber/lo"

	"chatsync/internal/docstore"
	"chatsync/internal/send"
)

// MessageResponse represents one log entry in API responses.
type MessageResponse struct {
	ID        string `json:"id"`
	SenderID  string `json:"sender_id"`
	Text      string `json:"text"`
	ImageURL  string `json:"image_url,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// ConversationResponse is a full conversation snapshot.
type ConversationResponse struct {
	ID           string            `json:"id"`
	Participants []string          `json:"participants"`
	Messages     []MessageResponse `json:"messages"`
}

// SummaryResponse represents one conversation-list entry.
type SummaryResponse struct {
	ChatID      string `json:"chat_id"`
	LastMessage string `json:"last_message"`
	IsSeen      bool   `json:"is_seen"`
	UpdatedAt   int64  `json:"updated_at"`
}

// FanOutResponse reports one summary write of a send.
type FanOutResponse struct {
	UserID string `json:"user_id"`
	Error  string `json:"error,omitempty"`
}

// SendResponse is the send endpoint response body.
type SendResponse struct {
	Message        MessageResponse  `json:"message"`
	IdempotencyKey string           `json:"idempotency_key"`
	FanOut         []FanOutResponse `json:"fan_out"`
	Degraded       bool             `json:"degraded"`
}

func messageToResponse(m docstore.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		SenderID:  string(m.SenderID),
		Text:      m.Text,
		ImageURL:  m.ImageURL,
		CreatedAt: m.CreatedAt.UnixMilli(),
	}
}

func conversationToResponse(conv *docstore.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:           string(conv.ID),
		Participants: []string{string(conv.Participants[0]), string(conv.Participants[1])},
		Messages:     lo.Map(conv.Messages, func(m docstore.Message, _ int) MessageResponse { return messageToResponse(m) }),
	}
}

func summariesToResponse(summaries []*docstore.ChatSummary) []SummaryResponse {
	return lo.Map(summaries, func(s *docstore.ChatSummary, _ int) SummaryResponse {
		return SummaryResponse{
			ChatID:      string(s.ChatID),
			LastMessage: s.LastMessage,
			IsSeen:      s.IsSeen,
			UpdatedAt:   s.UpdatedAt.UnixMilli(),
		}
	})
}

func sendResultToResponse(result *send.Result, degraded bool) SendResponse {
	return SendResponse{
		Message:        messageToResponse(result.Message),
		IdempotencyKey: result.IdempotencyKey,
		FanOut: lo.Map(result.FanOut, func(st send.FanOutStatus, _ int) FanOutResponse {
			resp := FanOutResponse{UserID: string(st.UserID)}
			if st.Err != nil {
				resp.Error = st.Err.Error()
			}
			return resp
		}),
		Degraded: degraded,
	}
}
