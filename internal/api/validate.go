package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"

	"github.com/ashureev/tranquili/internal/domain"
)

// maxRequestBodySize bounds JSON request bodies (64KB).
const maxRequestBodySize = 64 << 10

// Validator validates request bodies and renders English field messages.
type Validator struct {
	validate *validator.Validate
	trans    ut.Translator
}

// NewValidator builds a validator that names fields by their json tag and
// understands the mood tag.
func NewValidator() (*Validator, error) {
	validate := validator.New()

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ := uni.GetTranslator("en")
	if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, fmt.Errorf("failed to register default translations: %w", err)
	}

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := validate.RegisterValidation("mood", isMood); err != nil {
		return nil, fmt.Errorf("failed to register mood validation: %w", err)
	}
	moods := make([]string, 0, len(domain.Moods()))
	for _, m := range domain.Moods() {
		moods = append(moods, string(m))
	}
	if err := validate.RegisterTranslation("mood", trans, func(ut ut.Translator) error {
		return ut.Add("mood", "{0} must be one of: "+strings.Join(moods, ", "), true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("mood", fe.Field())
		return t
	}); err != nil {
		return nil, fmt.Errorf("failed to register mood translation: %w", err)
	}

	return &Validator{validate: validate, trans: trans}, nil
}

func isMood(fl validator.FieldLevel) bool {
	return domain.Mood(fl.Field().String()).Valid()
}

// ValidationError carries translated messages per field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, msg := range e.Fields {
		parts = append(parts, msg)
	}
	return strings.Join(parts, "; ")
}

// Struct validates v. A failed validation returns *ValidationError.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Translate(v.trans)
	}
	return &ValidationError{Fields: fields}
}

// decodeAndValidate reads a JSON body into dst and validates it. It writes
// the error response itself and returns false on failure.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			JSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": verr.Fields,
			})
			return false
		}
		Error(w, http.StatusInternalServerError, "failed to validate request")
		return false
	}
	return true
}
