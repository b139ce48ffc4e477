package shared

import (
	"context"
	"sort"
)

// KeyedLocker provides mutual exclusion per key with a bounded wait.
// Acquire returns a ResourceBusy DomainError when the wait times out.
type KeyedLocker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// AcquireAll locks every distinct key in sorted order so that two callers
// locking overlapping sets cannot deadlock. On failure, already-held keys are
// released before returning.
func AcquireAll(ctx context.Context, locker KeyedLocker, keys ...string) (func(), error) {
	sorted := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	releases := make([]func(), 0, len(sorted))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, key := range sorted {
		release, err := locker.Acquire(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}
