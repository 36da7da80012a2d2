package usecase

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/example/forum-auth/internal/domain"
)

type PasswordRegistration struct {
	Handle       string `json:"handle" validate:"required,max=150,startsnotwith=kakao_"`
	Nickname     string `json:"nickname" validate:"required,max=100"`
	Email        string `json:"email" validate:"required,email,max=254"`
	Password     string `json:"password" validate:"required,max=128"`
	FavoriteRace string `json:"favorite_race" validate:"omitempty,race"`
}

type KakaoRegistration struct {
	AccessToken  string `json:"access_token" validate:"required"`
	Nickname     string `json:"nickname" validate:"required,max=100"`
	FavoriteRace string `json:"favorite_race" validate:"omitempty,race"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("race", func(fl validator.FieldLevel) bool {
		value := domain.Race(fl.Field().String())
		for _, r := range domain.Races {
			if r == value {
				return true
			}
		}
		return false
	}); err != nil {
		panic(err)
	}
	return v
}

// validateInput runs struct tags and folds every failure into one *domain.ValidationError.
func validateInput(v *validator.Validate, in interface{}) error {
	err := v.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = reasonFor(fe)
	}
	return &domain.ValidationError{Fields: fields}
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "enter a valid email address"
	case "startsnotwith":
		return "the " + fe.Param() + " prefix is reserved"
	case "race":
		names := make([]string, len(domain.Races))
		for i, r := range domain.Races {
			names[i] = string(r)
		}
		return "must be one of: " + strings.Join(names, ", ")
	case "max":
		return "ensure this field has no more than " + fe.Param() + " characters"
	default:
		return "invalid value"
	}
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }
