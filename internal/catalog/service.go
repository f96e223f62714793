package catalog

import (
	"context"
	"strconv"

	"github.com/cellarkeep/cellarkeep/internal/shared"
)

// Service exposes cached product reference lookups.
type Service struct {
	repo  Repository
	cache *Cache
}

// NewService builds Service. A nil cache falls through to the repository.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// Refs resolves product reference data for the given ids. Missing products
// are simply absent from the result; callers decide how to render them.
func (s *Service) Refs(ctx context.Context, ids []int64) (map[int64]ProductRef, error) {
	refs := make(map[int64]ProductRef, len(ids))
	for _, id := range ids {
		key, err := s.cache.BuildKey(ctx, "catalog", "ref", strconv.FormatInt(id, 10))
		if err != nil {
			return nil, shared.Wrap(shared.KindPersistence, "could not load product data", err)
		}
		var ref ProductRef
		err = s.cache.FetchJSON(ctx, key, &ref, func(ctx context.Context) (any, error) {
			r, ok, err := s.repo.GetRef(ctx, id)
			if err != nil {
				return nil, err
			}
			if !ok {
				// Cache the absence too; zero ID marks "not in catalog".
				return ProductRef{}, nil
			}
			return r, nil
		})
		if err != nil {
			return nil, shared.Wrap(shared.KindPersistence, "could not load product data", err)
		}
		if ref.ID == 0 {
			continue
		}
		refs[id] = ref
	}
	return refs, nil
}

// Exists reports whether the product is present in the catalog.
func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	ok, err := s.repo.Exists(ctx, id)
	if err != nil {
		return false, shared.Wrap(shared.KindPersistence, "could not check product", err)
	}
	return ok, nil
}

// OptionsForSelect lists products for dropdowns, cached per search term.
func (s *Service) OptionsForSelect(ctx context.Context, search string, limit int) ([]Option, error) {
	key, err := s.cache.BuildKey(ctx, "catalog", "options", search, strconv.Itoa(limit))
	if err != nil {
		return nil, shared.Wrap(shared.KindPersistence, "could not load products", err)
	}
	var options []Option
	err = s.cache.FetchJSON(ctx, key, &options, func(ctx context.Context) (any, error) {
		return s.repo.ListOptions(ctx, search, limit)
	})
	if err != nil {
		return nil, shared.Wrap(shared.KindPersistence, "could not load products", err)
	}
	return options, nil
}

// Invalidate drops every cached product entry.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
