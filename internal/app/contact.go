package app

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"moai/api/internal/email"
	"moai/api/internal/logging"
	"moai/api/internal/translate"
)

type ContactInput struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email,max=320"`
	Subject string `json:"subject" validate:"required,max=200"`
	Message string `json:"message" validate:"required,max=5000"`
}

type TranslateInput struct {
	Text       string `json:"text"`
	TargetLang string `json:"targetLang"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldErrors flattens validator output to field -> failed rule.
func fieldErrors(err error) map[string]string {
	fields := map[string]string{}
	var invalid validator.ValidationErrors
	if errors.As(err, &invalid) {
		for _, fe := range invalid {
			fields[fe.Field()] = fe.Tag()
		}
	}
	return fields
}

// SendContactEmail forwards a contact form to the site inbox and sends the
// sender a confirmation. It returns the provider message ids.
func (s *Service) SendContactEmail(ctx context.Context, input ContactInput) ([]string, error) {
	input = ContactInput{
		Name:    strings.TrimSpace(input.Name),
		Email:   strings.TrimSpace(input.Email),
		Subject: strings.TrimSpace(input.Subject),
		Message: strings.TrimSpace(input.Message),
	}
	if err := validate.StructCtx(ctx, input); err != nil {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Missing or invalid fields", map[string]any{"fields": fieldErrors(err)})
	}
	if !s.EmailConfigured() {
		return nil, domainError(http.StatusServiceUnavailable, "EMAIL_UNAVAILABLE", "Email is not configured", nil)
	}

	ids, err := s.email.SendContact(email.ContactData{
		Name:    input.Name,
		Email:   input.Email,
		Subject: input.Subject,
		Message: input.Message,
	})
	if err != nil {
		if errors.Is(err, email.ErrNotConfigured) {
			return nil, domainError(http.StatusServiceUnavailable, "EMAIL_UNAVAILABLE", "Email is not configured", nil)
		}
		logging.Logger.WithFields(logrus.Fields{"sent": len(ids), "error": err}).Error("send contact email")
		return nil, domainError(http.StatusInternalServerError, "EMAIL_FAILED", "Failed to send email", map[string]any{"error": err.Error()})
	}
	return ids, nil
}

// Translate passes blank text through untouched.
func (s *Service) Translate(ctx context.Context, input TranslateInput) (string, error) {
	if strings.TrimSpace(input.Text) == "" {
		return input.Text, nil
	}
	target := strings.TrimSpace(input.TargetLang)
	if target == "" {
		return "", domainError(http.StatusBadRequest, "VALIDATION_ERROR", "targetLang is required", map[string]any{"fields": map[string]string{"targetLang": "required"}})
	}
	translated, err := s.translator.Translate(ctx, input.Text, target)
	if err != nil {
		if errors.Is(err, translate.ErrNotConfigured) {
			return "", domainError(http.StatusServiceUnavailable, "TRANSLATE_UNAVAILABLE", "Translation is not configured", nil)
		}
		logging.Logger.WithFields(logrus.Fields{"target": target, "error": err}).Warn("translate")
		return "", domainError(http.StatusInternalServerError, "TRANSLATION_FAILED", "Translation failed", map[string]any{"error": err.Error()})
	}
	return translated, nil
}
