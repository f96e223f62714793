package warehouses

import (
	"context"
	"errors"

	"github.com/cellarkeep/cellarkeep/internal/shared"
)

// Service coordinates warehouse directory operations.
type Service struct {
	repo Repository
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns warehouses sorted by name.
func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Warehouse, int, error) {
	list, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, 0, shared.Wrap(shared.KindPersistence, "could not load warehouses", err)
	}
	return list, total, nil
}

// Get fetches a single warehouse.
func (s *Service) Get(ctx context.Context, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, shared.E(shared.KindValidation, "invalid warehouse id")
	}
	w, err := s.repo.Get(ctx, id)
	if err != nil {
		return Warehouse{}, classify(err, "could not load warehouse")
	}
	return w, nil
}

// Create registers a new warehouse.
func (s *Service) Create(ctx context.Context, w Warehouse) (Warehouse, error) {
	if err := s.validate(w); err != nil {
		return Warehouse{}, err
	}
	created, err := s.repo.Create(ctx, w, foldName(w.Name))
	if err != nil {
		return Warehouse{}, classify(err, "could not create warehouse")
	}
	return created, nil
}

// Update changes name and location.
func (s *Service) Update(ctx context.Context, id int64, w Warehouse) error {
	if id <= 0 {
		return shared.E(shared.KindValidation, "invalid warehouse id")
	}
	if err := s.validate(w); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, w, foldName(w.Name)); err != nil {
		return classify(err, "could not update warehouse")
	}
	return nil
}

// Delete removes an empty warehouse. Warehouses with stock or movement
// history are refused.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.E(shared.KindValidation, "invalid warehouse id")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return classify(err, "could not delete warehouse")
	}
	return nil
}

// OthersForSelect lists every warehouse except the given one, for transfer
// destination pickers.
func (s *Service) OthersForSelect(ctx context.Context, excludeID int64) ([]Option, error) {
	if excludeID <= 0 {
		return nil, shared.E(shared.KindValidation, "invalid warehouse id")
	}
	options, err := s.repo.OthersForSelect(ctx, excludeID)
	if err != nil {
		return nil, shared.Wrap(shared.KindPersistence, "could not load warehouses", err)
	}
	return options, nil
}

func classify(err error, fallback string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return shared.Wrap(shared.KindNotFound, "warehouse not found", err)
	case errors.Is(err, ErrDuplicateName):
		return shared.Wrap(shared.KindDuplicate, "a warehouse with this name already exists", err)
	case errors.Is(err, ErrHasStock):
		return shared.Wrap(shared.KindConflict, "warehouse still holds stock and cannot be deleted", err)
	case errors.Is(err, ErrHasMovements):
		return shared.Wrap(shared.KindConflict, "warehouse has stock movement history and cannot be deleted", err)
	default:
		return shared.Wrap(shared.KindPersistence, fallback, err)
	}
}
