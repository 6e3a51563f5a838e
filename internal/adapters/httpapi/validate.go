package httpapi

import (
	"regexp"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	caseCodePattern = regexp.MustCompile(`^[A-Z]\d{4}[A-Z]?$`)
	registerOnce    sync.Once
)

// registerValidators adds the casecode validator to gin's validator engine.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("casecode", func(fl validator.FieldLevel) bool {
			return caseCodePattern.MatchString(fl.Field().String())
		})
	})
}
