package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/catalog"
)

// ParameterResolver maps raw attribute names to parameter ids, creating
// parameters that do not exist yet. A resolver is used for a single reconcile
// run and remembers every name it has resolved.
type ParameterResolver struct {
	repo     catalog.ParameterRepository
	resolved map[string]uuid.UUID
	created  int
}

// NewParameterResolver creates a resolver over repo. Pass the repository of
// the surrounding transaction.
func NewParameterResolver(repo catalog.ParameterRepository) *ParameterResolver {
	return &ParameterResolver{
		repo:     repo,
		resolved: make(map[string]uuid.UUID),
	}
}

// Resolve returns normalized name → parameter id for every raw name.
// Missing parameters are created in normalized-name order; a concurrent
// creator of the same name wins and its row is used.
func (r *ParameterResolver) Resolve(ctx context.Context, rawNames []string) (map[string]uuid.UUID, error) {
	raw := make(map[string]string, len(rawNames))
	for _, name := range rawNames {
		normalized := catalog.NormalizeParameterName(name)
		if normalized == "" {
			continue
		}
		if _, ok := raw[normalized]; !ok {
			raw[normalized] = name
		}
	}

	pending := make([]string, 0, len(raw))
	for normalized := range raw {
		if _, ok := r.resolved[normalized]; !ok {
			pending = append(pending, normalized)
		}
	}
	sort.Strings(pending)

	if len(pending) > 0 {
		if err := r.load(ctx, pending); err != nil {
			return nil, err
		}
		for _, normalized := range pending {
			if _, ok := r.resolved[normalized]; ok {
				continue
			}
			if err := r.create(ctx, raw[normalized]); err != nil {
				return nil, err
			}
		}
	}

	out := make(map[string]uuid.UUID, len(raw))
	for normalized := range raw {
		out[normalized] = r.resolved[normalized]
	}
	return out, nil
}

// ID returns the resolved id of a raw name
func (r *ParameterResolver) ID(rawName string) (uuid.UUID, bool) {
	id, ok := r.resolved[catalog.NormalizeParameterName(rawName)]
	return id, ok
}

// Created returns how many parameters this resolver inserted
func (r *ParameterResolver) Created() int {
	return r.created
}

func (r *ParameterResolver) load(ctx context.Context, names []string) error {
	params, err := r.repo.FindByNormalizedNames(ctx, names)
	if err != nil {
		return fmt.Errorf("load parameters: %w", err)
	}
	for _, p := range params {
		r.resolved[p.NormalizedName] = p.ID
	}
	return nil
}

func (r *ParameterResolver) create(ctx context.Context, rawName string) error {
	param, err := catalog.NewParameter(rawName)
	if err != nil {
		return err
	}
	inserted, err := r.repo.Insert(ctx, param)
	if err != nil {
		return fmt.Errorf("create parameter %q: %w", param.Name, err)
	}
	if inserted {
		r.created++
		r.resolved[param.NormalizedName] = param.ID
		return nil
	}

	if err := r.load(ctx, []string{param.NormalizedName}); err != nil {
		return err
	}
	if _, ok := r.resolved[param.NormalizedName]; !ok {
		return fmt.Errorf("parameter %q vanished after conflicting insert", param.Name)
	}
	return nil
}
