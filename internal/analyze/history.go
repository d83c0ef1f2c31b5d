package analyze

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"supportbot/internal/domain"
)

// historyFile is the on-disk shape of an exported channel history.
type historyFile struct {
	ExportDate   time.Time         `json:"export_date"`
	MessageCount int               `json:"message_count"`
	Messages     []exportedMessage `json:"messages"`
}

type exportedMessage struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	AuthorID  string    `json:"author_id"`
	IsBot     bool      `json:"is_bot"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SaveHistory writes messages (oldest first) to path, overwriting any
// previous export.
func SaveHistory(path string, msgs []domain.Message) error {
	out := historyFile{
		ExportDate:   time.Now(),
		MessageCount: len(msgs),
		Messages:     make([]exportedMessage, len(msgs)),
	}
	for i, m := range msgs {
		out.Messages[i] = exportedMessage{
			ID:        m.ID,
			Author:    m.AuthorName,
			AuthorID:  m.AuthorID,
			IsBot:     m.Bot,
			Content:   m.Content,
			Timestamp: m.Timestamp,
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

// LoadHistory reads a previously exported channel history.
func LoadHistory(path string) ([]domain.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var f historyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", path, err)
	}

	msgs := make([]domain.Message, len(f.Messages))
	for i, m := range f.Messages {
		msgs[i] = domain.Message{
			ID:         m.ID,
			AuthorID:   m.AuthorID,
			AuthorName: m.Author,
			Content:    m.Content,
			Timestamp:  m.Timestamp,
			Bot:        m.IsBot,
		}
	}
	return msgs, nil
}
