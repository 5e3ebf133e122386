package alerts

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "alertdash/internal/errors"
	"alertdash/internal/models"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("alert_type", func(fl validator.FieldLevel) bool {
		return models.AlertType(fl.Field().String()).Valid()
	})
}

// NormalizeCreate trims the input and zeroes the threshold of crossover
// rules, which ignore it.
func NormalizeCreate(in models.CreateAlertInput) models.CreateAlertInput {
	in.Ticker = strings.TrimSpace(in.Ticker)
	in.AlertType = models.AlertType(strings.ToUpper(strings.TrimSpace(string(in.AlertType))))
	if in.AlertType.IsCrossover() {
		in.ThresholdValue = 0
	}
	if in.Message != nil && strings.TrimSpace(*in.Message) == "" {
		in.Message = nil
	}
	return in
}

// ValidateCreate checks a create request. Failures unwrap to
// errors.ErrInvalidAlert.
func ValidateCreate(in models.CreateAlertInput) error {
	if math.IsNaN(in.ThresholdValue) || math.IsInf(in.ThresholdValue, 0) {
		return apperrors.NewValidationError("threshold_value", in.ThresholdValue, "must be a finite number")
	}

	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return apperrors.NewValidationError(fieldName(e.Field()), e.Value(), ruleMessage(e))
	}
	return apperrors.Wrap(apperrors.ErrInvalidAlert, err.Error())
}

func fieldName(structField string) string {
	switch structField {
	case "Ticker":
		return "ticker"
	case "AlertType":
		return "alert_type"
	case "ThresholdValue":
		return "threshold_value"
	case "Message":
		return "message"
	}
	return strings.ToLower(structField)
}

func ruleMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "alert_type":
		return "must be one of " + joinTypes()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "max":
		return "must be at most " + e.Param() + " characters"
	}
	return fmt.Sprintf("failed %s validation", e.Tag())
}

func joinTypes() string {
	names := make([]string, len(models.AlertTypes))
	for i, t := range models.AlertTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
