package handler

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/progress-ledger/internal/domain/progress"
)

// RegisterValidators adds the custom binding tags used by the request DTOs.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding validator engine %T", binding.Validator.Engine())
	}
	return v.RegisterValidation("isodate", isISODate)
}

// isISODate accepts YYYY-MM-DD calendar dates.
func isISODate(fl validator.FieldLevel) bool {
	_, err := progress.ParseDate(fl.Field().String())
	return err == nil
}
