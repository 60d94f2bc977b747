package server

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mikeboe/deep-research/pkg/research"
)

// ResearchRequest accepts a direct topic, a single message, or a chat
// message list whose last user message is the topic.
type ResearchRequest struct {
	Topic    string        `json:"topic"`
	Message  string        `json:"message"`
	Messages []ChatMessage `json:"messages"`
}

type ChatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Text returns the message content. Content may be a plain string or a list
// of {"type":"text","text":...} parts.
func (m ChatMessage) Text() string {
	if len(m.Content) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(m.Content, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return ""
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Type == "" || p.Type == "text" {
			if t := strings.TrimSpace(p.Text); t != "" {
				texts = append(texts, t)
			}
		}
	}
	return strings.Join(texts, "\n")
}

func (r ResearchRequest) ResolveTopic() (string, error) {
	if topic := strings.TrimSpace(r.Topic); topic != "" {
		return topic, nil
	}
	if message := strings.TrimSpace(r.Message); message != "" {
		return message, nil
	}
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if !strings.EqualFold(r.Messages[i].Role, "user") {
			continue
		}
		if topic := r.Messages[i].Text(); topic != "" {
			return topic, nil
		}
		return "", fmt.Errorf("%w: last user message is empty", research.ErrMalformedInput)
	}
	return "", fmt.Errorf("%w: provide a topic, a message or a messages list with a user message", research.ErrMalformedInput)
}
