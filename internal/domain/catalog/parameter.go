package catalog

import (
	"strings"
	"unicode/utf8"

	"github.com/procurement/backend/internal/domain/shared"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Parameter is a global attribute name such as "Color" or "Screen size".
// Parameters are deduplicated by NormalizedName; Name keeps the casing of the
// first price list that introduced the parameter and never changes.
type Parameter struct {
	shared.BaseEntity
	Name           string `gorm:"type:varchar(100);not null"`
	NormalizedName string `gorm:"type:varchar(100);not null;uniqueIndex"`
}

// TableName returns the table name for GORM
func (Parameter) TableName() string {
	return "parameters"
}

// NewParameter creates a parameter from a raw attribute name
func NewParameter(rawName string) (*Parameter, error) {
	display := CleanParameterName(rawName)
	if display == "" {
		return nil, shared.NewValidationError("INVALID_PARAMETER", "Parameter name cannot be empty")
	}
	if utf8.RuneCountInString(display) > 100 {
		return nil, shared.NewValidationError("INVALID_PARAMETER", "Parameter name cannot exceed 100 characters")
	}
	return &Parameter{
		BaseEntity:     shared.NewBaseEntity(),
		Name:           display,
		NormalizedName: NormalizeParameterName(rawName),
	}, nil
}

// CleanParameterName applies NFKC, trims and collapses whitespace runs while
// keeping the original casing.
func CleanParameterName(raw string) string {
	return collapseSpaces(norm.NFKC.String(raw))
}

// NormalizeParameterName returns the canonical identity of a raw attribute
// name. Names that differ only in case, surrounding or repeated whitespace, or
// Unicode compatibility forms normalize to the same string.
func NormalizeParameterName(raw string) string {
	return cases.Fold().String(CleanParameterName(raw))
}

// CleanParameterValue applies NFKC, trims and collapses whitespace runs. Case
// is preserved.
func CleanParameterValue(raw string) string {
	return collapseSpaces(norm.NFKC.String(raw))
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
