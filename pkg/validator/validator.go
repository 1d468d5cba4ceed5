package validator

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	playground "github.com/go-playground/validator/v10"
)

var (
	phonePattern      = regexp.MustCompile(`^[0-9]{7,15}$`)
	alphaSpacePattern = regexp.MustCompile(`^[a-zA-Z\s]+$`)
)

// FieldError is a single failed rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s failed %s", e.Field, e.Rule)
}

// Validator wraps go-playground/validator with the salon's custom rules.
type Validator struct {
	v *playground.Validate
}

// Option registers extra rules at construction.
type Option func(*playground.Validate) error

// WithRule registers a custom tag.
func WithRule(tag string, fn playground.Func) Option {
	return func(v *playground.Validate) error {
		return v.RegisterValidation(tag, fn)
	}
}

func New(opts ...Option) (*Validator, error) {
	v := playground.New(playground.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return strings.ToLower(fld.Name)
		}
		return name
	})

	builtins := map[string]playground.Func{
		"phone":      matchString(phonePattern),
		"alphaspace": matchString(alphaSpacePattern),
		"notsunday":  notSunday,
	}
	for tag, fn := range builtins {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return nil, err
		}
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}
	return &Validator{v: v}, nil
}

// MustNew panics on a bad rule registration.
func MustNew(opts ...Option) *Validator {
	v, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return v
}

// Var checks a single value against tag and reports the first failing rule.
func (v *Validator) Var(field string, value interface{}, tag string) error {
	if err := v.v.Var(value, tag); err != nil {
		return first(field, err)
	}
	return nil
}

// Struct validates obj and reports the first failing field.
func (v *Validator) Struct(obj interface{}) error {
	if err := v.v.Struct(obj); err != nil {
		return first("", err)
	}
	return nil
}

// Fields validates obj and returns every failing field in declaration order.
// The error is only set when obj cannot be validated at all.
func (v *Validator) Fields(obj interface{}) ([]FieldError, error) {
	err := v.v.Struct(obj)
	if err == nil {
		return nil, nil
	}
	errs, ok := err.(playground.ValidationErrors)
	if !ok {
		return nil, err
	}
	out := make([]FieldError, 0, len(errs))
	for _, e := range errs {
		out = append(out, FieldError{Field: e.Field(), Rule: e.Tag()})
	}
	return out, nil
}

func first(field string, err error) error {
	if errs, ok := err.(playground.ValidationErrors); ok && len(errs) > 0 {
		name := errs[0].Field()
		if name == "" {
			name = field
		}
		return FieldError{Field: name, Rule: errs[0].Tag()}
	}
	return err
}

func matchString(re *regexp.Regexp) playground.Func {
	return func(fl playground.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

func notSunday(fl playground.FieldLevel) bool {
	t, ok := fl.Field().Interface().(time.Time)
	if !ok {
		return false
	}
	return t.Weekday() != time.Sunday
}
