package queue

import (
	"context"
	"fmt"
	"sort"
)

// ListPending returns the keys currently stored for operation, or for every
// operation when operation is empty. Each call runs a fresh scan. The store
// gives no ordering and may repeat keys between batches, so the result is
// de-duplicated and sorted by natural order of the full key, which matches
// sequence order within an operation.
func (q *Queue) ListPending(ctx context.Context, operation string) ([]Key, error) {
	if err := q.ensure(); err != nil {
		return nil, err
	}
	pattern, batch := namespacePattern(q.opts.Namespace), q.opts.ScanBatchAll
	if operation != "" {
		pattern, batch = operationPattern(q.opts.Namespace, operation), q.opts.ScanBatch
	}

	seen := make(map[string]struct{})
	keys := []Key{}
	err := q.scan(ctx, pattern, batch, func(batchKeys []string) error {
		for _, k := range batchKeys {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			op, _, ok := Key(k).Parts(q.opts.Namespace)
			if !ok || (operation != "" && op != operation) {
				continue
			}
			keys = append(keys, Key(k))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(keys, func(i, j int) bool { return naturalLess(string(keys[i]), string(keys[j])) })
	return keys, nil
}

// Operations returns the distinct operations that have pending envelopes.
func (q *Queue) Operations(ctx context.Context) ([]string, error) {
	keys, err := q.ListPending(ctx, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	ops := []string{}
	for _, k := range keys {
		op, _, _ := k.Parts(q.opts.Namespace)
		if _, ok := seen[op]; ok {
			continue
		}
		seen[op] = struct{}{}
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops, nil
}

// scan drives a cursor scan to completion, handing each batch to fn.
func (q *Queue) scan(ctx context.Context, pattern string, batch int64, fn func([]string) error) error {
	var cursor uint64
	for {
		keys, next, err := q.store.Scan(ctx, cursor, pattern, batch)
		if err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
