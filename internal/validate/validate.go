// Package validate holds the named field rules applied to menu input before
// it is sanitised.
package validate

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"navtree/api/internal/sanitize"
)

// Rule tags usable in `validate:"..."` struct tags.
const (
	MenuNameFormat  = "menu_name"
	RouteNameFormat = "route_name"
)

var (
	menuNamePattern  = regexp.MustCompile(`^[\p{L}\p{N}\s\-_.!@#%]+$`)
	routeNamePattern = regexp.MustCompile(`^[a-z0-9._-]+$`)
)

// Validator wraps a validator/v10 instance with the menu rules registered.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation(MenuNameFormat, validMenuName)
	_ = v.RegisterValidation(RouteNameFormat, validRouteName)
	return &Validator{v: v}
}

// validMenuName checks the text a reader would see; markup is removed later
// by the sanitiser and is not itself a violation. A name that is nothing but
// markup or blanks fails, since it would be stored empty.
func validMenuName(fl validator.FieldLevel) bool {
	text := strings.TrimSpace(sanitize.StripTags(fl.Field().String()))
	return text != "" && menuNamePattern.MatchString(text)
}

func validRouteName(fl validator.FieldLevel) bool {
	value := strings.ToLower(strings.TrimSpace(fl.Field().String()))
	if value == "" {
		return true
	}
	return routeNamePattern.MatchString(value)
}

// Struct validates s and returns field errors keyed by JSON field name.
// A nil map means s is valid.
func (v *Validator) Struct(s any) (map[string]string, error) {
	err := v.v.Struct(s)
	if err == nil {
		return nil, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, err
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = message(fe)
	}
	return details, nil
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case MenuNameFormat:
		return "may only contain letters, numbers, spaces and - _ . ! @ # %"
	case RouteNameFormat:
		return "may only contain a-z, 0-9, dot, dash and underscore"
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}
