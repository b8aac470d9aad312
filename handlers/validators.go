package handlers

import (
	"regexp"
	"unicode"

	"Storefront/otp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	usernamePattern = regexp.MustCompile("^[a-zA-Z0-9_-]+$")
	emailPattern    = regexp.MustCompile("^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\\.[a-zA-Z0-9-.]+$")
)

// 檢查使用者名稱是否合法
func ValidateUsername(username string) bool {
	if len(username) < 8 || len(username) > 20 {
		return false
	}
	return usernamePattern.MatchString(username)
}

// 檢查信箱是否合法
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// 檢查密碼是否合法
func ValidatePassword(password string) bool {
	if len(password) < 8 || len(password) > 50 {
		return false
	}

	var isUpper, isLower, isNumber, isSpecial, isSpace bool
	for _, s := range password {
		switch {
		case unicode.IsSpace(s):
			isSpace = true
		case unicode.IsUpper(s):
			isUpper = true
		case unicode.IsLower(s):
			isLower = true
		case unicode.IsDigit(s):
			isNumber = true
		case unicode.IsPunct(s) || unicode.IsSymbol(s):
			isSpecial = true
		}
	}

	return isUpper && isLower && isNumber && isSpecial && !isSpace
}

// RegisterValidators adds the phone, otpcode and currency binding tags to
// gin's validator. supported reports whether a currency code is enabled.
func RegisterValidators(supported func(code string) bool) error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return registerOn(v, supported)
}

func registerOn(v *validator.Validate, supported func(code string) bool) error {
	if err := v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		_, err := otp.NormalizePhone(fl.Field().String())
		return err == nil
	}); err != nil {
		return err
	}
	if err := v.RegisterValidation("otpcode", func(fl validator.FieldLevel) bool {
		return otp.ValidCode(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		return supported(fl.Field().String())
	})
}
