package reports

import (
	"errors"

	"github.com/go-playground/validator/v10"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain/ageing"
)

var validate = validator.New()

var (
	ageingFields     = []string{"Granularity", "AgeRanges", "CutoffDate"}
	balanceFields    = []string{"Granularity", "PeriodStart", "PeriodEnd", "Periodicity"}
	crossCheckFields = []string{"Granularity", "CutoffDate"}
)

// validateConfig checks only the fields the report mode reads.
func validateConfig(cfg *Config, fields []string) error {
	err := validate.StructPartial(cfg, fields...)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.NewInternal(err)
	}
	appErr := apperror.NewValidation("invalid report configuration")
	for _, fe := range verrs {
		appErr.WithDetail(fe.Field(), fe.Tag())
	}
	return appErr
}

func validateAgeing(cfg *Config) error {
	if err := validateConfig(cfg, ageingFields); err != nil {
		return err
	}
	return ageing.ValidateBoundaries(cfg.AgeRanges)
}

func validateBalance(cfg *Config) error {
	return validateConfig(cfg, balanceFields)
}
