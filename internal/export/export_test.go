package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aimessenger/aimessenger/internal/storage"
)

func TestTranscript(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	msgs := []storage.Message{
		{Sender: storage.SenderUser, Content: "hello", CreatedAt: at},
		{Sender: storage.SenderAI, IsTyping: true, CreatedAt: at.Add(time.Second)},
		{Sender: storage.SenderAI, Content: "hi there", CreatedAt: at.Add(2 * time.Second)},
	}

	got := Transcript(msgs, "Nova")
	want := "[2026-03-14 09:26:53] You: hello\n\n[2026-03-14 09:26:55] Nova: hi there"
	assert.Equal(t, want, got)
}

func TestTranscriptEmptyLog(t *testing.T) {
	assert.Empty(t, Transcript(nil, "Nova"))
}

func TestTranscriptDefaultsPersonaName(t *testing.T) {
	msgs := []storage.Message{
		{Sender: storage.SenderAI, Content: "hi", CreatedAt: time.Unix(0, 0).UTC()},
	}
	assert.Contains(t, Transcript(msgs, ""), "] AI: hi")
}
