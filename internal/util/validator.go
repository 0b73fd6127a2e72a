package util

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators 注册自定义校验标签：timeofday（HH:MM:SS）、questiontype
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	if err := v.RegisterValidation("timeofday", func(fl validator.FieldLevel) bool {
		_, err := ParseTimeOfDay(fl.Field().String())
		return err == nil
	}); err != nil {
		return err
	}
	return v.RegisterValidation("questiontype", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "MULTIPLE_CHOICE" || s == "OPEN_TEXT"
	})
}
