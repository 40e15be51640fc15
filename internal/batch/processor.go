// Package batch splits work into fixed-size batches and runs them
// sequentially or with bounded concurrency. The cache warm-up path uses it
// to pre-populate entries from a list of queries.
package batch

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Default batch processing configuration.
const (
	// DefaultBatchSize is the default number of items per batch.
	DefaultBatchSize = 25

	// MinBatchSize is the minimum allowed batch size.
	MinBatchSize = 1

	// MaxBatchSize is the maximum allowed batch size.
	MaxBatchSize = 1000
)

// Common batch processing errors.
var (
	ErrInvalidBatchSize = errors.New("batch size must be between 1 and 1000")
	ErrNilCallback      = errors.New("batch callback cannot be nil")
	ErrEmptyItems       = errors.New("items slice cannot be empty")
)

// Callback processes one batch. batchIndex is 0-based.
type Callback[T any] func(ctx context.Context, batch []T, batchIndex int) error

// ProgressCallback is invoked after each successful batch.
type ProgressCallback func(progress *Progress)

// Processor runs a callback over items in fixed-size batches.
type Processor[T any] struct {
	batchSize  int
	onProgress ProgressCallback
}

// NewProcessor creates a processor with the given batch size.
func NewProcessor[T any](batchSize int) (*Processor[T], error) {
	if batchSize < MinBatchSize || batchSize > MaxBatchSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, batchSize)
	}
	return &Processor[T]{batchSize: batchSize}, nil
}

// WithProgressCallback sets a progress callback for the processor.
func (p *Processor[T]) WithProgressCallback(callback ProgressCallback) *Processor[T] {
	p.onProgress = callback
	return p
}

// BatchSize returns the configured batch size.
func (p *Processor[T]) BatchSize() int {
	return p.batchSize
}

// Process runs the batches one after another and stops on the first error.
func (p *Processor[T]) Process(ctx context.Context, items []T, callback Callback[T]) error {
	if err := validate(items, callback); err != nil {
		return err
	}

	bounds := p.Batches(len(items))
	progress := NewProgress(len(items), len(bounds))

	for i, b := range bounds {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := items[b[0]:b[1]]
		if err := callback(ctx, batch, i); err != nil {
			return fmt.Errorf("batch %d failed: %w", i, err)
		}
		p.report(progress, len(batch))
	}
	return nil
}

// ProcessConcurrent runs up to maxConcurrency batches at a time. Every
// batch is attempted; the failures are joined into the returned error.
func (p *Processor[T]) ProcessConcurrent(
	ctx context.Context,
	items []T,
	callback Callback[T],
	maxConcurrency int,
) error {
	if err := validate(items, callback); err != nil {
		return err
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	bounds := p.Batches(len(items))
	progress := NewProgress(len(items), len(bounds))
	errs := make([]error, len(bounds))

	var g errgroup.Group
	g.SetLimit(maxConcurrency)
	for i, b := range bounds {
		if ctx.Err() != nil {
			break
		}
		batch := items[b[0]:b[1]]
		g.Go(func() error {
			if err := callback(ctx, batch, i); err != nil {
				errs[i] = fmt.Errorf("batch %d failed: %w", i, err)
				return nil
			}
			p.report(progress, len(batch))
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// Batches returns the [start, end) index pairs covering totalItems.
func (p *Processor[T]) Batches(totalItems int) [][2]int {
	var out [][2]int
	for start := 0; start < totalItems; start += p.batchSize {
		out = append(out, [2]int{start, min(start+p.batchSize, totalItems)})
	}
	return out
}

func (p *Processor[T]) report(progress *Progress, n int) {
	progress.AddProcessed(n)
	if p.onProgress != nil {
		p.onProgress(progress)
	}
}

func validate[T any](items []T, callback Callback[T]) error {
	if len(items) == 0 {
		return ErrEmptyItems
	}
	if callback == nil {
		return ErrNilCallback
	}
	return nil
}
