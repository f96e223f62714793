package warehouses

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/cellarkeep/cellarkeep/internal/shared"
)

const (
	maxNameLen     = 120
	maxLocationLen = 255
)

var nameFolder = cases.Fold()

func (s *Service) validate(w Warehouse) error {
	name := strings.TrimSpace(w.Name)
	if name == "" {
		return shared.E(shared.KindValidation, "warehouse name is required")
	}
	if len(name) > maxNameLen {
		return shared.E(shared.KindValidation, "warehouse name is too long")
	}
	if len(w.Location) > maxLocationLen {
		return shared.E(shared.KindValidation, "warehouse location is too long")
	}
	return nil
}

// foldName normalises a warehouse name for case-insensitive uniqueness.
// The folded form is stored next to the display name and carries the
// unique index.
func foldName(name string) string {
	return nameFolder.String(strings.TrimSpace(name))
}
