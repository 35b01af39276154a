package payment

import "strings"

// Reepay payment method identifiers accepted by the session API.
const (
	// Cards
	MethodCard       = "card"
	MethodDankort    = "dankort"
	MethodVisa       = "visa"
	MethodVisaElec   = "visa_elec"
	MethodMastercard = "mc"
	MethodAmex       = "amex"
	MethodMaestro    = "maestro"
	MethodDiners     = "diners"

	// Wallets
	MethodMobilePay   = "mobilepay"
	MethodVipps       = "vipps"
	MethodSwish       = "swish"
	MethodApplePay    = "applepay"
	MethodGooglePay   = "googlepay"
	MethodPayPal      = "paypal"
	MethodMobilePaySu = "mobilepay_subscriptions"

	// Invoice / buy now pay later
	MethodViaBill      = "viabill"
	MethodResursBank   = "resurs"
	MethodKlarnaPayNow = "klarna_pay_now"
	MethodKlarnaLater  = "klarna_pay_later"
	MethodAnydayLater  = "anyday"
)

var knownMethods = map[string]struct{}{
	MethodCard: {}, MethodDankort: {}, MethodVisa: {}, MethodVisaElec: {},
	MethodMastercard: {}, MethodAmex: {}, MethodMaestro: {}, MethodDiners: {},
	MethodMobilePay: {}, MethodVipps: {}, MethodSwish: {}, MethodApplePay: {},
	MethodGooglePay: {}, MethodPayPal: {}, MethodMobilePaySu: {},
	MethodViaBill: {}, MethodResursBank: {}, MethodKlarnaPayNow: {},
	MethodKlarnaLater: {}, MethodAnydayLater: {},
}

// NormalizePaymentMethods trims, lower-cases and de-duplicates methods,
// dropping blanks. Identifiers this package does not know are still passed
// on and reported in unknown.
func NormalizePaymentMethods(methods []string) (cleaned []string, unknown []string) {
	seen := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		m = strings.ToLower(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		cleaned = append(cleaned, m)

		if _, ok := knownMethods[m]; !ok {
			unknown = append(unknown, m)
		}
	}
	return cleaned, unknown
}
