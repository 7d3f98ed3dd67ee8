// Package export renders a conversation log as a plain-text transcript.
package export

import (
	"fmt"
	"strings"

	"github.com/aimessenger/aimessenger/internal/storage"
)

// Transcript formats the finished messages of a log as
// "[timestamp] Sender: content" blocks separated by blank lines. Typing
// placeholders are skipped; the user renders as "You", the AI as the
// persona's display name.
func Transcript(messages []storage.Message, personaName string) string {
	if personaName == "" {
		personaName = "AI"
	}

	blocks := make([]string, 0, len(messages))
	for _, m := range messages {
		if m.IsTyping {
			continue
		}
		sender := personaName
		if m.Sender == storage.SenderUser {
			sender = "You"
		}
		stamp := m.CreatedAt.Format("2006-01-02 15:04:05")
		blocks = append(blocks, fmt.Sprintf("[%s] %s: %s", stamp, sender, m.Content))
	}
	return strings.Join(blocks, "\n\n")
}
