package catalog

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PriceList is a partner's full current catalog for its shop. Reconciling a
// price list replaces everything the shop listed before.
type PriceList struct {
	Shop       string              `json:"shop" validate:"required,max=100"`
	Categories []PriceListCategory `json:"categories" validate:"required,dive"`
	Goods      []PriceListItem     `json:"goods" validate:"required,dive"`
}

// PriceListCategory is a category declared by a price list
type PriceListCategory struct {
	ID   int64  `json:"id" validate:"required,gt=0"`
	Name string `json:"name" validate:"required,max=100"`
}

// PriceListItem is one product offer in a price list
type PriceListItem struct {
	ID         int64             `json:"id" validate:"required,gt=0"`
	Category   int64             `json:"category" validate:"required,gt=0"`
	Model      string            `json:"model" validate:"required,max=80"`
	Name       string            `json:"name" validate:"required,max=200"`
	Price      *decimal.Decimal  `json:"price" validate:"required"`
	PriceRRC   *decimal.Decimal  `json:"price_rrc" validate:"required"`
	Quantity   *int              `json:"quantity" validate:"required,min=0"`
	Parameters map[string]string `json:"parameters"`
}

// Terms returns the listing terms of the item. Call only on a validated item.
func (i PriceListItem) Terms() ListingTerms {
	return ListingTerms{
		ExternalID: i.ID,
		Price:      *i.Price,
		PriceRRC:   *i.PriceRRC,
		Quantity:   *i.Quantity,
	}
}

// DocumentError names the entry and field of a price list that could not be
// accepted. Index is -1 for top-level fields.
type DocumentError struct {
	Section string
	Index   int
	Field   string
	Reason  string
	Kind    shared.ErrorKind
}

// Path renders the location of the error, e.g. goods[3].price
func (e *DocumentError) Path() string {
	if e.Section == "" {
		return e.Field
	}
	if e.Field == "" {
		return fmt.Sprintf("%s[%d]", e.Section, e.Index)
	}
	return fmt.Sprintf("%s[%d].%s", e.Section, e.Index, e.Field)
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path(), e.Reason)
}

// Unwrap exposes the error kind to shared.KindOf
func (e *DocumentError) Unwrap() error {
	if e.Kind == shared.KindNotFound {
		return shared.NewDomainError(shared.KindNotFound, "UNRESOLVED_REFERENCE", e.Error())
	}
	return shared.NewValidationError("INVALID_DOCUMENT", e.Error())
}

// NewDocumentError creates a validation DocumentError
func NewDocumentError(section string, index int, field, reason string) *DocumentError {
	return &DocumentError{Section: section, Index: index, Field: field, Reason: reason, Kind: shared.KindValidation}
}

var (
	documentValidator     *validator.Validate
	documentValidatorOnce sync.Once
	namespaceIndex        = regexp.MustCompile(`^([a-z_]+)\[(\d+)\]\.?(.*)$`)
)

func getDocumentValidator() *validator.Validate {
	documentValidatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		documentValidator = v
	})
	return documentValidator
}

// Validate checks the structure of the price list and the rules a single
// document must satisfy on its own: no duplicate category ids, no duplicate
// models, non-negative prices and unambiguous parameter names. The first
// problem found is returned as a *DocumentError.
func (p *PriceList) Validate() error {
	if err := getDocumentValidator().Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldErrorToDocumentError(verrs[0])
		}
		return NewDocumentError("", -1, "document", err.Error())
	}

	seenCategories := make(map[int64]int, len(p.Categories))
	for i, c := range p.Categories {
		if first, dup := seenCategories[c.ID]; dup {
			return NewDocumentError("categories", i, "id",
				fmt.Sprintf("duplicate category id %d (first declared at categories[%d])", c.ID, first))
		}
		seenCategories[c.ID] = i
	}

	seenModels := make(map[string]int, len(p.Goods))
	for i, item := range p.Goods {
		if first, dup := seenModels[item.Model]; dup {
			return NewDocumentError("goods", i, "model",
				fmt.Sprintf("duplicate model %q (first listed at goods[%d])", item.Model, first))
		}
		seenModels[item.Model] = i

		if item.Price.IsNegative() {
			return NewDocumentError("goods", i, "price", "must not be negative")
		}
		if item.PriceRRC.IsNegative() {
			return NewDocumentError("goods", i, "price_rrc", "must not be negative")
		}

		seenParams := make(map[string]string, len(item.Parameters))
		for raw := range item.Parameters {
			normalized := NormalizeParameterName(raw)
			if normalized == "" {
				return NewDocumentError("goods", i, "parameters", "parameter name cannot be empty")
			}
			if other, dup := seenParams[normalized]; dup {
				return NewDocumentError("goods", i, "parameters",
					fmt.Sprintf("parameters %q and %q name the same attribute", other, raw))
			}
			seenParams[normalized] = raw
		}
	}
	return nil
}

func fieldErrorToDocumentError(fe validator.FieldError) *DocumentError {
	ns := fe.Namespace()
	if dot := strings.Index(ns, "."); dot >= 0 {
		ns = ns[dot+1:]
	}
	reason := describeTag(fe)
	if m := namespaceIndex.FindStringSubmatch(ns); m != nil {
		idx, _ := strconv.Atoi(m[2])
		return NewDocumentError(m[1], idx, m[3], reason)
	}
	return NewDocumentError("", -1, ns, reason)
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed on the '" + fe.Tag() + "' rule"
	}
}
