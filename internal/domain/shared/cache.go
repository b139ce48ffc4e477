package shared

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// CacheScope is the shop/category boundary used for coarse invalidation.
type CacheScope struct {
	All        bool        `json:"all,omitempty"`
	Shops      []uuid.UUID `json:"shops,omitempty"`
	Categories []uuid.UUID `json:"categories,omitempty"`
}

// AllScope covers every cached entry
func AllScope() CacheScope {
	return CacheScope{All: true}
}

// ShopScope covers entries that may include listings of the given shops
func ShopScope(ids ...uuid.UUID) CacheScope {
	return CacheScope{Shops: dedupeIDs(ids)}
}

// CategoryScope covers entries that may include listings in the given categories
func CategoryScope(ids ...uuid.UUID) CacheScope {
	return CacheScope{Categories: dedupeIDs(ids)}
}

// Merge returns the union of two scopes
func (s CacheScope) Merge(other CacheScope) CacheScope {
	return CacheScope{
		All:        s.All || other.All,
		Shops:      dedupeIDs(append(append([]uuid.UUID{}, s.Shops...), other.Shops...)),
		Categories: dedupeIDs(append(append([]uuid.UUID{}, s.Categories...), other.Categories...)),
	}
}

// IsEmpty reports whether the scope covers nothing
func (s CacheScope) IsEmpty() bool {
	return !s.All && len(s.Shops) == 0 && len(s.Categories) == 0
}

func (s CacheScope) String() string {
	if s.All {
		return "all"
	}
	parts := make([]string, 0, len(s.Shops)+len(s.Categories))
	for _, id := range s.Shops {
		parts = append(parts, "shop:"+id.String())
	}
	for _, id := range s.Categories {
		parts = append(parts, "category:"+id.String())
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// CacheKey describes the shape of a cached read query. Two keys with the same
// shape always render the same String().
type CacheKey struct {
	Name       string
	ShopID     *uuid.UUID
	CategoryID *uuid.UUID
	Params     map[string]string
}

func (k CacheKey) String() string {
	var b strings.Builder
	b.WriteString(k.Name)
	b.WriteString("|shop=")
	if k.ShopID != nil {
		b.WriteString(k.ShopID.String())
	}
	b.WriteString("|category=")
	if k.CategoryID != nil {
		b.WriteString(k.CategoryID.String())
	}
	names := make([]string, 0, len(k.Params))
	for name := range k.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteString("|")
		b.WriteString(name)
		b.WriteString("=")
		b.WriteString(k.Params[name])
	}
	return b.String()
}

// Overlaps reports whether an entry stored under k may contain data covered by
// scope. A key without a shop (or category) filter spans every shop (or
// category), so it overlaps any shop (or category) in the scope.
func (k CacheKey) Overlaps(scope CacheScope) bool {
	if scope.All {
		return true
	}
	for _, id := range scope.Shops {
		if k.ShopID == nil || *k.ShopID == id {
			return true
		}
	}
	for _, id := range scope.Categories {
		if k.CategoryID == nil || *k.CategoryID == id {
			return true
		}
	}
	return false
}

// CacheInvalidator drops cached reads. Callers invoke it only after the
// mutation that made the entries stale has committed.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, scope CacheScope)
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
