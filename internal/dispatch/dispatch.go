// Package dispatch turns a user message into a provider round trip. Each
// conversation has its own FIFO queue, so overlapping sends to the same
// persona resolve strictly in order while different conversations proceed
// in parallel.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/aimessenger/aimessenger/internal/catalog"
	"github.com/aimessenger/aimessenger/internal/conversation"
	"github.com/aimessenger/aimessenger/internal/provider"
	"github.com/aimessenger/aimessenger/internal/settings"
	"github.com/aimessenger/aimessenger/internal/storage"
)

var (
	// ErrEmptyContent is returned when the message is empty after trimming.
	ErrEmptyContent = errors.New("message content is empty")
	// ErrNoConversation is returned when the target conversation does not exist.
	ErrNoConversation = errors.New("no such conversation")
)

const chatTimeout = 60 * time.Second

// Pipeline routes user turns to the persona's provider and resolves the
// reply back into the conversation log.
type Pipeline struct {
	conversations *conversation.Store
	catalog       *catalog.Catalog
	settings      *settings.Store
	registry      *provider.Registry

	mu     sync.Mutex
	queues map[string]*turnQueue
	wg     sync.WaitGroup
}

type turn struct {
	content  string
	appended bool // user message already written to the log
}

type turnQueue struct {
	pending []turn
	running bool
}

// NewPipeline wires the dispatch pipeline.
func NewPipeline(conversations *conversation.Store, cat *catalog.Catalog, st *settings.Store, registry *provider.Registry) *Pipeline {
	return &Pipeline{
		conversations: conversations,
		catalog:       cat,
		settings:      st,
		registry:      registry,
		queues:        make(map[string]*turnQueue),
	}
}

// Send accepts a user turn. When the conversation is idle the user message
// is appended before Send returns; when a previous turn is still pending the
// whole turn (user message included) is queued behind it, so the log always
// reads user, reply, user, reply in send order. The AI reply (or a readable
// failure message) lands asynchronously as a resolved typing placeholder.
func (p *Pipeline) Send(conversationID, content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ErrEmptyContent
	}
	if _, err := p.conversations.Get(conversationID); err != nil {
		return fmt.Errorf("%w: %s", ErrNoConversation, conversationID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	q := p.queues[conversationID]
	if q == nil {
		q = &turnQueue{}
		p.queues[conversationID] = q
	}

	t := turn{content: trimmed}
	if !q.running {
		if _, err := p.conversations.AppendMessage(conversationID, storage.SenderUser, trimmed); err != nil {
			return err
		}
		t.appended = true
	}

	q.pending = append(q.pending, t)
	if !q.running {
		q.running = true
		p.wg.Add(1)
		go p.drain(conversationID, q)
	}
	return nil
}

// Wait blocks until every queued turn has resolved.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) drain(conversationID string, q *turnQueue) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			p.mu.Unlock()
			return
		}
		t := q.pending[0]
		q.pending = q.pending[1:]
		p.mu.Unlock()

		p.runTurn(conversationID, t)
	}
}

// runTurn owns one queued user message: user append (if still deferred),
// placeholder in, provider call, placeholder resolved. The placeholder only
// appears once the turn actually starts, so a conversation never shows more
// than one pending reply.
func (p *Pipeline) runTurn(conversationID string, t turn) {
	if !t.appended {
		if _, err := p.conversations.AppendMessage(conversationID, storage.SenderUser, t.content); err != nil {
			log.Printf("[Dispatch] Dropping queued turn for %s: %v", conversationID, err)
			return
		}
	}

	placeholder, err := p.conversations.AppendTyping(conversationID)
	if err != nil {
		// conversation gone mid-queue, nothing left to answer into
		log.Printf("[Dispatch] Dropping turn for %s: %v", conversationID, err)
		return
	}

	reply, err := p.complete(conversationID, t.content)
	if err != nil {
		log.Printf("[Dispatch] Turn failed for %s: %v", conversationID, err)
		reply = failureText(err)
	}

	if err := p.conversations.ResolveTyping(conversationID, placeholder.ID, reply); err != nil {
		log.Printf("[Dispatch] Resolve failed for %s: %v", conversationID, err)
		return
	}

	if p.conversations.ActiveConversation() != conversationID {
		p.conversations.IncrementUnread(conversationID)
	}
}

// complete performs the provider round trip for one turn. Settings are read
// here, when the turn starts, so credential edits apply to every turn that
// has not yet gone out.
func (p *Pipeline) complete(conversationID, content string) (string, error) {
	conv, err := p.conversations.Get(conversationID)
	if err != nil {
		return "", err
	}
	persona, err := p.catalog.Get(conv.ModelID)
	if err != nil {
		return "", fmt.Errorf("persona %s: %w", conv.ModelID, err)
	}

	cfg := p.settings.Get().ProviderConfig()
	if persona.APIModel != "" {
		cfg.Model = persona.APIModel
	}

	prov, err := p.registry.Resolve(persona.Provider, cfg)
	if err != nil {
		return "", err
	}

	turns, err := p.history(conversationID, persona.Personality, content)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), chatTimeout)
	defer cancel()
	return prov.Chat(ctx, turns)
}

// history rebuilds the full conversation as provider turns. The trailing
// typing placeholder and the just-appended user message are folded in so
// the provider sees the log up to and including the current question.
func (p *Pipeline) history(conversationID, personality, latest string) ([]provider.Turn, error) {
	msgs, err := p.conversations.Messages(conversationID)
	if err != nil {
		return nil, err
	}

	turns := make([]provider.Turn, 0, len(msgs)+1)
	if personality != "" {
		turns = append(turns, provider.Turn{Role: provider.RoleSystem, Content: personality})
	}
	for _, m := range msgs {
		if m.IsTyping {
			continue
		}
		role := provider.RoleAssistant
		if m.Sender == storage.SenderUser {
			role = provider.RoleUser
		}
		turns = append(turns, provider.Turn{Role: role, Content: m.Content})
	}

	// Send() already appended the user message, but guard against a log
	// read that raced ahead of it.
	if len(turns) == 0 || turns[len(turns)-1].Content != latest || turns[len(turns)-1].Role != provider.RoleUser {
		turns = append(turns, provider.Turn{Role: provider.RoleUser, Content: latest})
	}
	return turns, nil
}

// failureText maps a provider failure to the message shown in the chat.
func failureText(err error) string {
	var cfgErr *provider.ConfigError
	var authErr *provider.AuthError
	var netErr *provider.NetworkError

	switch {
	case errors.As(err, &cfgErr):
		return fmt.Sprintf("The %s provider is not configured. Add your %s in Settings and try again.", cfgErr.Provider, cfgErr.Field)
	case errors.As(err, &authErr):
		return fmt.Sprintf("The %s provider rejected your credentials. Check your API key in Settings.", authErr.Provider)
	case errors.As(err, &netErr):
		if errors.Is(err, context.DeadlineExceeded) {
			return "The model took too long to respond. Please try again."
		}
		return fmt.Sprintf("Could not reach the %s provider. Check your connection and try again.", netErr.Provider)
	default:
		return "Sorry, something went wrong while generating a reply. Please try again."
	}
}
