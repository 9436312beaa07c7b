package validate

import (
	"reflect"
	"regexp"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
)

// wallet addresses are 0x-prefixed hex, up to 32 bytes
var walletAddressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{1,64}$`)

// SanitizationPolicy is a policy for sanitizing user input
var SanitizationPolicy = bluemonday.UGCPolicy()

func RegisterCustomValidators(v *validator.Validate) {
	v.RegisterValidation("wallet_address", WalletAddressValidator)
	v.RegisterValidation("nonnegative_price", PriceValidator)
	v.RegisterValidation("max_string_length", MaxStringLengthValidator)
	v.RegisterAlias("nft_title", "max_string_length=200")
	v.RegisterAlias("nft_description", "max_string_length=2000")
	v.RegisterAlias("nft_category", "max_string_length=100")

	v.RegisterCustomTypeFunc(decimalValuer, decimal.Decimal{}, decimal.NullDecimal{})
}

// WalletAddressValidator validates a hex wallet address
func WalletAddressValidator(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	return walletAddressRegex.MatchString(addr)
}

// PriceValidator validates that a decimal price is non-negative
func PriceValidator(fl validator.FieldLevel) bool {
	switch f := fl.Field().Interface().(type) {
	case float64:
		return f >= 0
	case string:
		d, err := decimal.NewFromString(f)
		return err == nil && !d.IsNegative()
	}
	return false
}

// MaxStringLengthValidator validates that a string is less than or equal to a given maximum length
func MaxStringLengthValidator(fl validator.FieldLevel) bool {
	stringLength := len(fl.Field().String())
	maxLength, err := strconv.Atoi(fl.Param())
	if err != nil {
		panic(err)
	}
	return stringLength <= maxLength
}

// decimalValuer lets the validator see decimal fields as floats
func decimalValuer(field reflect.Value) interface{} {
	switch d := field.Interface().(type) {
	case decimal.Decimal:
		f, _ := d.Float64()
		return f
	case decimal.NullDecimal:
		if !d.Valid {
			return nil
		}
		f, _ := d.Decimal.Float64()
		return f
	}
	return nil
}
