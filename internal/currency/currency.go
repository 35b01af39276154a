package currency

import (
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownCurrency = errors.New("unknown ISO 4217 currency code")
	ErrNegativeAmount  = errors.New("amount must not be negative")
	ErrAmountOverflow  = errors.New("amount exceeds minor unit range")
)

// Lookup answers the two questions the payment core asks about a currency.
type Lookup interface {
	IsValidISO4217(code string) bool
	MinorUnitExponent(code string) (int, bool)
}

// Table is an in-memory ISO 4217 table of circulating currencies.
// Fund codes, precious metals and the test/no-currency codes (XTS, XXX) are
// deliberately absent: a card gateway cannot charge them.
type Table struct {
	exponents map[string]int
}

func NewTable() *Table {
	return &Table{exponents: iso4217}
}

func (t *Table) IsValidISO4217(code string) bool {
	_, ok := t.exponents[Normalize(code)]
	return ok
}

func (t *Table) MinorUnitExponent(code string) (int, bool) {
	exp, ok := t.exponents[Normalize(code)]
	return exp, ok
}

// Normalize upper-cases and trims a currency code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ToMinorUnits converts amount into an integer count of minor units,
// rounding half away from zero at the currency's exponent.
func ToMinorUnits(amount decimal.Decimal, exponent int) (int64, error) {
	if amount.Sign() < 0 {
		return 0, ErrNegativeAmount
	}

	shifted := amount.Shift(int32(exponent)).Round(0)
	if shifted.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, ErrAmountOverflow
	}

	return shifted.IntPart(), nil
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(minor int64, exponent int) decimal.Decimal {
	return decimal.New(minor, -int32(exponent))
}

var iso4217 = buildTable()

func buildTable() map[string]int {
	table := make(map[string]int, 170)

	zero := []string{
		"BIF", "CLP", "DJF", "GNF", "ISK", "JPY", "KMF", "KRW", "PYG",
		"RWF", "UGX", "VND", "VUV", "XAF", "XOF", "XPF",
	}
	three := []string{"BHD", "IQD", "JOD", "KWD", "LYD", "OMR", "TND"}
	two := []string{
		"AED", "AFN", "ALL", "AMD", "ANG", "AOA", "ARS", "AUD", "AWG", "AZN",
		"BAM", "BBD", "BDT", "BGN", "BMD", "BND", "BOB", "BRL", "BSD", "BTN",
		"BWP", "BYN", "BZD", "CAD", "CDF", "CHF", "CNY", "COP", "CRC", "CUP",
		"CVE", "CZK", "DKK", "DOP", "DZD", "EGP", "ERN", "ETB", "EUR", "FJD",
		"FKP", "GBP", "GEL", "GHS", "GIP", "GMD", "GTQ", "GYD", "HKD", "HNL",
		"HTG", "HUF", "IDR", "ILS", "INR", "IRR", "JMD", "KES", "KGS", "KHR",
		"KPW", "KYD", "KZT", "LAK", "LBP", "LKR", "LRD", "LSL", "MAD", "MDL",
		"MGA", "MKD", "MMK", "MNT", "MOP", "MRU", "MUR", "MVR", "MWK", "MXN",
		"MYR", "MZN", "NAD", "NGN", "NIO", "NOK", "NPR", "NZD", "PAB", "PEN",
		"PGK", "PHP", "PKR", "PLN", "QAR", "RON", "RSD", "RUB", "SAR", "SBD",
		"SCR", "SDG", "SEK", "SGD", "SHP", "SLE", "SOS", "SRD", "SSP", "STN",
		"SVC", "SYP", "SZL", "THB", "TJS", "TMT", "TOP", "TRY", "TTD", "TWD",
		"TZS", "UAH", "USD", "UYU", "UZS", "VES", "WST", "XCD", "XCG", "YER",
		"ZAR", "ZMW", "ZWG",
	}

	for _, c := range zero {
		table[c] = 0
	}
	for _, c := range two {
		table[c] = 2
	}
	for _, c := range three {
		table[c] = 3
	}
	return table
}
