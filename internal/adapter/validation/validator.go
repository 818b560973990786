// Package validation wraps go-playground/validator with the naming and custom
// tags used across the service (config, inbound DTOs, websocket frames).
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
)

const (
	// identityTag accepts non-blank strings without control characters.
	identityTag = "identity"
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Default returns the process-wide validator. validator.Validate caches struct
// metadata and is safe for concurrent use.
func Default() *validator.Validate {
	once.Do(func() {
		instance = New()
	})
	return instance
}

// New builds a validator that reports fields by their wire names.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Use JSON (or mapstructure) tag names for errors instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, key := range []string{"json", "mapstructure"} {
			name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	_ = v.RegisterValidation(identityTag, identityValidation)

	return v
}

func identityValidation(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if strings.TrimSpace(s) == "" {
		return false
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// Flatten turns validator.ValidationErrors into one joined error with a line per field.
// Other errors are returned unchanged.
func Flatten(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fmt.Errorf("%s: failed on '%s'", fieldPath(fe), describe(fe)))
	}
	return errors.Join(errs...)
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	// Drop the root struct name: "Config.queue.overflow" -> "queue.overflow".
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}
