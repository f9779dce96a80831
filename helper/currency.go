package helper

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ISO 4217 currencies whose minor unit is not two digits.
var currencyExponent = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"IDR": 0,
	"BHD": 3,
	"KWD": 3,
	"JOD": 3,
}

var currencySymbol = map[string]string{
	"GBP": "£",
	"EUR": "€",
	"USD": "$",
}

// FormatAmount renders an amount in minor units, e.g. FormatAmount(100, "GBP") == "£1.00".
func FormatAmount(minor int64, currency string) string {
	currency = strings.ToUpper(currency)
	exp, ok := currencyExponent[currency]
	if !ok {
		exp = 2
	}
	value := decimal.New(minor, -exp).StringFixed(exp)
	if symbol, ok := currencySymbol[currency]; ok {
		return symbol + value
	}
	return fmt.Sprintf("%s %s", value, currency)
}
