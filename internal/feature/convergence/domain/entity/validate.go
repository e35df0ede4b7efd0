package entity

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"signal_backend/internal/feature/convergence/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// integrityError converts a validator failure into a DataIntegrityError for the given collection.
func integrityError(collection string, id int64, index int, err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return &domain.DataIntegrityError{Collection: collection, ID: id, Index: index, Reason: err.Error()}
	}
	fe := ves[0]
	var reason string
	switch fe.Tag() {
	case "gtefield":
		reason = fmt.Sprintf("%s %v is before %s", fe.Field(), fe.Value(), fe.Param())
	case "oneof":
		reason = fmt.Sprintf("%s %q is not one of [%s]", fe.Field(), fe.Value(), fe.Param())
	default:
		reason = fmt.Sprintf("%s %v fails %s %s", fe.Field(), fe.Value(), fe.Tag(), fe.Param())
	}
	return &domain.DataIntegrityError{Collection: collection, ID: id, Index: index, Reason: reason}
}
