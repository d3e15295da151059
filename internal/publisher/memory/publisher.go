// Package memory records run events in memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/lead-enrichment/internal/publisher"
)

// Publisher stores encoded events for inspection. A bounded Publisher keeps
// only the most recent messages.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
	limit    int
	seq      int
}

// Message captures one publish call as it would go on the wire.
type Message struct {
	ID         string
	Topic      string
	Data       []byte
	Attributes map[string]string
}

// New returns a memory Publisher that keeps every message.
func New() *Publisher {
	return &Publisher{}
}

// NewBounded returns a memory Publisher that keeps at most limit messages,
// dropping the oldest first. A limit <= 0 keeps everything.
func NewBounded(limit int) *Publisher {
	return &Publisher{limit: limit}
}

// Publish encodes payload and records it.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, attrs, err := publisher.Encode(payload)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	id := fmt.Sprintf("memory-%d", p.seq)
	if p.limit > 0 && len(p.messages) >= p.limit {
		p.messages = p.messages[len(p.messages)-p.limit+1:]
	}
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Data: data, Attributes: attrs})
	return id, nil
}

// Messages returns the recorded publishes, optionally limited to topic.
func (p *Publisher) Messages(topic string) []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, 0, len(p.messages))
	for _, m := range p.messages {
		if topic == "" || m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}
