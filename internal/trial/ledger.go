package trial

import "sync"

// Ledger holds one fitness sample per artifact identity for the trial in
// flight. Recording overwrites any stale sample for the key; Take consumes a
// sample exactly once. The coordinator resets it at evaluation start and
// drains it after every trial, so samples never leak across generations.
type Ledger struct {
	mu      sync.Mutex
	samples map[string]float64
}

func NewLedger() *Ledger {
	return &Ledger{samples: make(map[string]float64)}
}

func (l *Ledger) Record(artifactID string, fitness float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.samples[artifactID] = fitness
}

func (l *Ledger) Take(artifactID string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fitness, ok := l.samples[artifactID]
	if ok {
		delete(l.samples, artifactID)
	}
	return fitness, ok
}

func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.samples = make(map[string]float64)
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.samples)
}
