// Package memory contains an in-memory publisher for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/article-scraper/internal/scraper"
)

// Publisher stores published events for inspection.
type Publisher struct {
	mu     sync.RWMutex
	events []scraper.ScrapedEvent
	err    error
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes every subsequent Publish return err. Pass nil to recover.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Publish records the event and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, event scraper.ScrapedEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, event)
	return fmt.Sprintf("memory-%d", len(p.events)), nil
}

// Events returns the recorded events.
func (p *Publisher) Events() []scraper.ScrapedEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]scraper.ScrapedEvent, len(p.events))
	copy(out, p.events)
	return out
}
