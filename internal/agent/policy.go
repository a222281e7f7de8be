package agent

import (
	"sort"
	"strings"
	"sync"
)

// InteractionPolicy limits how often the same address is attacked and
// keeps the set of handshakes known to have been captured.
type InteractionPolicy struct {
	mu sync.Mutex

	max        int
	history    map[string]int
	handshakes map[string]struct{}
}

// NewInteractionPolicy allows up to max-1 repeat interactions after the
// first one.
func NewInteractionPolicy(max int) *InteractionPolicy {
	return &InteractionPolicy{
		max:        max,
		history:    make(map[string]int),
		handshakes: make(map[string]struct{}),
	}
}

// AddHandshake records key ("<station> -> <ap>") and reports whether it
// is new.
func (p *InteractionPolicy) AddHandshake(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.handshakes[key]; ok {
		return false
	}
	p.handshakes[key] = struct{}{}
	return true
}

// HasHandshake reports whether any recorded key mentions addr.
func (p *InteractionPolicy) HasHandshake(addr string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasHandshakeLocked(addr)
}

func (p *InteractionPolicy) hasHandshakeLocked(addr string) bool {
	addr = strings.ToLower(addr)
	for key := range p.handshakes {
		if strings.Contains(strings.ToLower(key), addr) {
			return true
		}
	}
	return false
}

// ShouldInteract reports whether who may be attacked again. Addresses we
// hold a handshake for are never attacked. The first sighting is always
// allowed; after that each call counts and is allowed while the count
// stays under the limit.
func (p *InteractionPolicy) ShouldInteract(who string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.hasHandshakeLocked(who) {
		return false
	}
	n, seen := p.history[who]
	if !seen {
		p.history[who] = 1
		return true
	}
	n++
	p.history[who] = n
	return n < p.max
}

// Handshakes returns the number of distinct handshakes recorded.
func (p *InteractionPolicy) Handshakes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handshakes)
}

// PolicyState is the persistable part of an InteractionPolicy.
type PolicyState struct {
	History    map[string]int `json:"history"`
	Handshakes []string       `json:"handshakes"`
}

// State returns a copy of the interaction counts and handshake keys.
func (p *InteractionPolicy) State() PolicyState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := PolicyState{
		History:    make(map[string]int, len(p.history)),
		Handshakes: make([]string, 0, len(p.handshakes)),
	}
	for who, n := range p.history {
		st.History[who] = n
	}
	for key := range p.handshakes {
		st.Handshakes = append(st.Handshakes, key)
	}
	sort.Strings(st.Handshakes)
	return st
}

// Restore merges st into the policy. Counts already higher are kept.
func (p *InteractionPolicy) Restore(st PolicyState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for who, n := range st.History {
		if n > p.history[who] {
			p.history[who] = n
		}
	}
	for _, key := range st.Handshakes {
		p.handshakes[key] = struct{}{}
	}
}
