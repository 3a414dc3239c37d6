package test

import (
	"context"
	"sync"

	"github.com/polkiloo/orderpay/internal/domain/model"
)

// PublisherStub records published order events.
type PublisherStub struct {
	mu     sync.Mutex
	Events []model.OrderEvent
	Err    error
}

// Publish stores event unless Err is set.
func (p *PublisherStub) Publish(ctx context.Context, event model.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Events = append(p.Events, event)
	return nil
}

// Types lists recorded event types in publish order.
func (p *PublisherStub) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.Events))
	for _, e := range p.Events {
		types = append(types, e.Type)
	}
	return types
}
