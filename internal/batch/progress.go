package batch

import (
	"sync"
	"time"
)

// Progress tracks a batch run. It is safe for concurrent use.
type Progress struct {
	mu sync.RWMutex

	totalItems       int
	processedItems   int
	totalBatches     int
	processedBatches int
	startTime        time.Time
}

// ProgressSnapshot is a point-in-time copy of a Progress.
type ProgressSnapshot struct {
	TotalItems       int
	ProcessedItems   int
	TotalBatches     int
	ProcessedBatches int
	PercentComplete  float64
	Elapsed          time.Duration
}

// NewProgress creates a tracker for totalItems split over totalBatches.
func NewProgress(totalItems, totalBatches int) *Progress {
	return &Progress{
		totalItems:   totalItems,
		totalBatches: totalBatches,
		startTime:    time.Now(),
	}
}

// AddProcessed records one finished batch of n items.
func (p *Progress) AddProcessed(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processedItems += n
	p.processedBatches++
}

// IsComplete reports whether every item has been processed.
func (p *Progress) IsComplete() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.processedItems >= p.totalItems
}

// EstimatedTimeRemaining extrapolates from the average time per item so
// far. It is 0 before the first batch finishes.
func (p *Progress) EstimatedTimeRemaining() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.processedItems == 0 {
		return 0
	}
	perItem := time.Since(p.startTime) / time.Duration(p.processedItems)
	return perItem * time.Duration(p.totalItems-p.processedItems)
}

// Snapshot returns the current state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var pct float64
	if p.totalItems > 0 {
		pct = float64(p.processedItems) / float64(p.totalItems) * 100
	}
	return ProgressSnapshot{
		TotalItems:       p.totalItems,
		ProcessedItems:   p.processedItems,
		TotalBatches:     p.totalBatches,
		ProcessedBatches: p.processedBatches,
		PercentComplete:  pct,
		Elapsed:          time.Since(p.startTime),
	}
}
