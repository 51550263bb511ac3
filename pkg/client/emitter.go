package client

import (
	"sync"

	"github.com/aretw0/headless/pkg/ports"
)

// Emitter is an embeddable listener registry for ports.EventClient implementations.
// Events are delivered synchronously, in registration order, on the caller's goroutine.
type Emitter struct {
	mu        sync.RWMutex
	listeners []ports.EventListener
}

// Subscribe registers l. It satisfies the Subscribe method of ports.EventClient.
func (e *Emitter) Subscribe(l ports.EventListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// EmitMessage delivers a message event.
func (e *Emitter) EmitMessage(text string) {
	for _, l := range e.snapshot() {
		if l.OnMessage != nil {
			l.OnMessage(text)
		}
	}
}

// EmitTyping delivers a typing event.
func (e *Emitter) EmitTyping(typing bool) {
	for _, l := range e.snapshot() {
		if l.OnTyping != nil {
			l.OnTyping(typing)
		}
	}
}

// EmitClose delivers a close event.
func (e *Emitter) EmitClose() {
	for _, l := range e.snapshot() {
		if l.OnClose != nil {
			l.OnClose()
		}
	}
}

func (e *Emitter) snapshot() []ports.EventListener {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]ports.EventListener(nil), e.listeners...)
}
