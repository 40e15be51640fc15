package batch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/rshade/scoutcache/internal/cache"
)

// ErrMalformedLine is returned by ParseQueries for lines it cannot parse.
var ErrMalformedLine = errors.New("malformed warm-up line")

// ParseQueries reads one query per line in the form
// query<TAB>scope<TAB>limit. Scope and limit are optional and default to
// cache.DefaultScope and cache.DefaultLimit. Blank lines and lines starting
// with # are skipped.
func ParseQueries(r io.Reader) ([]cache.Query, error) {
	var queries []cache.Query
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) > 3 {
			return nil, fmt.Errorf("%w: line %d has %d fields", ErrMalformedLine, lineNo, len(fields))
		}

		q := cache.Query{Text: fields[0], Scope: cache.DefaultScope, Limit: cache.DefaultLimit}
		if len(fields) > 1 && strings.TrimSpace(fields[1]) != "" {
			q.Scope = strings.TrimSpace(fields[1])
		}
		if len(fields) > 2 && strings.TrimSpace(fields[2]) != "" {
			limit, err := strconv.Atoi(strings.TrimSpace(fields[2]))
			if err != nil || limit < 1 {
				return nil, fmt.Errorf("%w: line %d: invalid limit %q", ErrMalformedLine, lineNo, fields[2])
			}
			q.Limit = limit
		}
		queries = append(queries, q)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read warm-up queries: %w", err)
	}
	return queries, nil
}

// WarmOptions tunes a warm-up run.
type WarmOptions struct {
	// BatchSize is the number of queries per batch. Zero uses DefaultBatchSize.
	BatchSize int

	// Concurrency bounds how many batches run at once. Values below 2 run
	// sequentially.
	Concurrency int

	// OnProgress is called after each batch.
	OnProgress ProgressCallback

	Logger zerolog.Logger
}

// WarmResult counts the outcome of a warm-up run.
type WarmResult struct {
	Total  int `json:"total"`
	Hits   int `json:"hits"`
	Misses int `json:"misses"`
	Failed int `json:"failed"`
}

// Warm looks up every query through c so that fresh entries exist on disk
// afterwards. Already-fresh entries count as hits. Lookup failures are
// counted and joined into the returned error; the run continues past them.
func Warm(ctx context.Context, c *cache.Cache, queries []cache.Query, opts WarmOptions) (WarmResult, error) {
	result := WarmResult{Total: len(queries)}
	if len(queries) == 0 {
		return result, nil
	}

	size := opts.BatchSize
	if size == 0 {
		size = DefaultBatchSize
	}
	proc, err := NewProcessor[cache.Query](size)
	if err != nil {
		return result, err
	}
	proc.WithProgressCallback(opts.OnProgress)
	opts.Logger.Debug().
		Str("operation", "warm").
		Int("queries", len(queries)).
		Int("batch_size", proc.BatchSize()).
		Int("batches", len(proc.Batches(len(queries)))).
		Int("concurrency", max(opts.Concurrency, 1)).
		Msg("warm-up started")

	var hits, misses, failed atomic.Int64
	callback := func(ctx context.Context, batch []cache.Query, batchIndex int) error {
		var errs []error
		for _, q := range batch {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			res, lookupErr := c.Lookup(ctx, q)
			if lookupErr != nil {
				failed.Add(1)
				opts.Logger.Warn().Err(lookupErr).
					Str("operation", "warm").
					Int("batch", batchIndex).
					Str("query", q.Text).
					Str("scope", q.Scope).
					Msg("warm-up lookup failed")
				errs = append(errs, fmt.Errorf("query %q in %q: %w", q.Text, q.Scope, lookupErr))
				continue
			}
			if res.Hit {
				hits.Add(1)
			} else {
				misses.Add(1)
			}
		}
		return errors.Join(errs...)
	}

	if opts.Concurrency > 1 {
		err = proc.ProcessConcurrent(ctx, queries, callback, opts.Concurrency)
	} else {
		err = processAll(ctx, proc, queries, callback)
	}

	result.Hits = int(hits.Load())
	result.Misses = int(misses.Load())
	result.Failed = int(failed.Load())
	return result, err
}

// processAll runs batches sequentially but, unlike Process, keeps going
// after a failed batch.
func processAll(ctx context.Context, proc *Processor[cache.Query], queries []cache.Query, callback Callback[cache.Query]) error {
	var errs []error
	err := proc.Process(ctx, queries, func(ctx context.Context, batch []cache.Query, batchIndex int) error {
		if err := callback(ctx, batch, batchIndex); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			errs = append(errs, fmt.Errorf("batch %d failed: %w", batchIndex, err))
		}
		return nil
	})
	if err != nil {
		return err
	}
	return errors.Join(errs...)
}
