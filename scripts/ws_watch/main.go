// Command ws_watch is a small smoke client: it subscribes to one conversation
// over the WebSocket endpoint and prints every snapshot it receives.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

type snapshotEvent struct {
	Type         string `json:"type"`
	Conversation struct {
		ID       string `json:"id"`
		Messages []struct {
			SenderID  string `json:"sender_id"`
			Text      string `json:"text"`
			ImageURL  string `json:"image_url"`
			CreatedAt int64  `json:"created_at"`
		} `json:"messages"`
	} `json:"conversation"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_watch: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	conversation := flag.String("conversation", "", "conversation id to watch")
	token := flag.String("token", "", "JWT from /api/login or /api/guest")
	timeout := flag.Duration("timeout", time.Minute, "total timeout for the run")
	flag.Parse()

	if *conversation == "" || *token == "" {
		return fmt.Errorf("both -conversation and -token are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	url := fmt.Sprintf("%s?conversation=%s&token=%s", *addr, *conversation, *token)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	for {
		var event snapshotEvent
		if err := wsjson.Read(ctx, conn, &event); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		fmt.Printf("snapshot: %d message(s)\n", len(event.Conversation.Messages))
		for _, m := range event.Conversation.Messages {
			ts := time.UnixMilli(m.CreatedAt).Format(time.TimeOnly)
			if m.ImageURL != "" {
				fmt.Printf("  [%s] %s: %s (image: %s)\n", ts, m.SenderID, m.Text, m.ImageURL)
			} else {
				fmt.Printf("  [%s] %s: %s\n", ts, m.SenderID, m.Text)
			}
		}
	}
}
