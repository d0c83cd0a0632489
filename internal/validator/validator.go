// Package validator validates record fields before they reach the local
// store, and registers the same rules with Gin's binding engine for the
// gateway.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	apperrors "ledgersync/internal/errors"
	"ledgersync/internal/models"
	"ledgersync/internal/remote"
)

var (
	std     *validator.Validate
	stdOnce sync.Once
)

// Get returns the shared validator instance.
func Get() *validator.Validate {
	stdOnce.Do(func() {
		std = validator.New(validator.WithRequiredStructEnabled())
		configure(std)
	})
	return std
}

// Register registers the custom rules with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		configure(v)
	}
}

func configure(v *validator.Validate) {
	// Amounts are compared as numbers so tags like gt=0 apply to them.
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	_ = v.RegisterValidation("collection", validateCollection)
	_ = v.RegisterValidation("category_type", validateCategoryType)
}

func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		return d.InexactFloat64()
	}
	return nil
}

func validateCollection(fl validator.FieldLevel) bool {
	return IsCollection(fl.Field().String())
}

// IsCollection reports whether name is a remote collection: a record kind
// or the seed marker collection.
func IsCollection(name string) bool {
	return models.Kind(name).Valid() || name == remote.SeedCollection
}

func validateCategoryType(fl validator.FieldLevel) bool {
	switch models.CategoryType(fl.Field().String()) {
	case models.CategoryTypeIncome, models.CategoryTypeExpense:
		return true
	}
	return false
}

// Struct validates s and converts failures into an INVALID_INPUT AppError
// naming the offending fields.
func Struct(s interface{}) error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Wrap(apperrors.ErrInvalidInput, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid input: "+strings.Join(msgs, ", "))
}
