package domain

import "sync"

// PresenceRegistry tracks which advisors are online and which are
// currently serving a session. Advisors never seen before count as
// online and free.
type PresenceRegistry struct {
	mu      sync.RWMutex
	offline map[string]bool
	busy    map[string]bool

	onFreed   func(advisorID string)
	onOffline func(advisorID string)
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		offline: make(map[string]bool),
		busy:    make(map[string]bool),
	}
}

// OnFreed registers the callback fired when a busy advisor becomes
// free. Must be set before events flow.
func (p *PresenceRegistry) OnFreed(fn func(advisorID string)) {
	p.onFreed = fn
}

// OnOffline registers the callback fired when an advisor goes offline.
func (p *PresenceRegistry) OnOffline(fn func(advisorID string)) {
	p.onOffline = fn
}

func (p *PresenceRegistry) IsOnline(advisorID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.offline[advisorID]
}

func (p *PresenceRegistry) IsBusy(advisorID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.busy[advisorID]
}

func (p *PresenceRegistry) SetOnline(advisorID string) {
	p.mu.Lock()
	delete(p.offline, advisorID)
	p.mu.Unlock()
}

func (p *PresenceRegistry) SetOffline(advisorID string) {
	p.mu.Lock()
	p.offline[advisorID] = true
	delete(p.busy, advisorID)
	p.mu.Unlock()
	if p.onOffline != nil {
		p.onOffline(advisorID)
	}
}

// TryReserve atomically claims a free, online advisor. Returns false
// when the advisor is already serving someone.
func (p *PresenceRegistry) TryReserve(advisorID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.offline[advisorID] || p.busy[advisorID] {
		return false
	}
	p.busy[advisorID] = true
	return true
}

func (p *PresenceRegistry) SetBusy(advisorID string) {
	p.mu.Lock()
	p.busy[advisorID] = true
	p.mu.Unlock()
}

// SetFree clears the busy flag and, if the advisor was busy, fires the
// freed callback so the queue can promote its head ticket.
func (p *PresenceRegistry) SetFree(advisorID string) {
	p.mu.Lock()
	wasBusy := p.busy[advisorID]
	delete(p.busy, advisorID)
	offline := p.offline[advisorID]
	p.mu.Unlock()
	if wasBusy && !offline && p.onFreed != nil {
		p.onFreed(advisorID)
	}
}
