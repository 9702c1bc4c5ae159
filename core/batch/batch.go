// Package batch fans a batch of items out across goroutines while keeping
// the items that share a key in their original order.
package batch

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Group is the ordered run of items sharing one key.
type Group[T any] struct {
	Key   string
	Items []T
}

// GroupBy partitions items by key. Groups appear in order of first occurrence
// and items keep their relative order inside a group.
func GroupBy[T any](items []T, key func(T) string) []Group[T] {
	index := make(map[string]int, len(items))
	var groups []Group[T]
	for _, it := range items {
		k := key(it)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group[T]{Key: k})
		}
		groups[i].Items = append(groups[i].Items, it)
	}
	return groups
}

// Run calls fn for every item. Items with the same key run sequentially in
// input order; distinct keys run concurrently, at most limit groups at a time
// (limit <= 0 means unbounded). A failing item does not stop its group or
// other groups; Run returns the first group's joined errors once all finish.
func Run[T any](ctx context.Context, items []T, key func(T) string, limit int, fn func(context.Context, T) error) error {
	if len(items) == 0 {
		return nil
	}
	groups := GroupBy(items, key)

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, grp := range groups {
		g.Go(func() error {
			var errs []error
			for _, it := range grp.Items {
				if err := ctx.Err(); err != nil {
					errs = append(errs, err)
					break
				}
				if err := fn(ctx, it); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		})
	}
	return g.Wait()
}
