package services

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrCodeInvalid            = errors.New("code does not exist or was already used")
	ErrCodeExists             = errors.New("code already exists")
	ErrTooManyAttempts        = errors.New("too many redemption attempts")
	ErrUserNotFound           = errors.New("user not found")
	ErrForbidden              = errors.New("operation not allowed for this user")
	ErrTicketNotFound         = errors.New("ticket not found")
	ErrTicketClosed           = errors.New("ticket is closed")
	ErrSignatureMismatch      = errors.New("signature does not match the contractant name")
	ErrNotACancellationTicket = errors.New("ticket is not a cancellation ticket")
	ErrContractNotFound       = errors.New("contract not found")
	ErrNotAContract           = errors.New("message is not a contract")
	ErrContractNotPending     = errors.New("contract is no longer pending")
	ErrCancellationNotFound   = errors.New("cancellation request not found")
	ErrCancellationNotPending = errors.New("cancellation is no longer pending")
	ErrConfirmationMismatch   = errors.New("confirmation text does not match")
	ErrToolNotFound           = errors.New("tool not found")
	ErrToolURLMissing         = errors.New("tool has no download url")
	ErrLessonNotFound         = errors.New("lesson not found")
	ErrAccessDenied           = errors.New("plan does not grant access")
	ErrPaymentNotConfigured   = errors.New("payment gateway not configured")
)

// ValidationError carries field level messages for rejected input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// UpstreamError is a non-2xx answer from an external API.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Message)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := jsonName(fld.Tag.Get("json")); name != "" {
			return name
		}
		return fld.Name
	})
	return v
}

// validateStruct runs the validator and converts its report into a
// ValidationError.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = describe(fe)
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must have at most %s characters", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "email":
		return "must be a valid email"
	}
	return "is invalid"
}

func jsonName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	return name
}
