package gateway

import "github.com/eventtix/tix-mercadopago/internal/tix"

// supportedCurrencies are the settlement currencies MercadoPago accepts
// for this integration.
var supportedCurrencies = []tix.Currency{
	{Code: "ARS", Label: "Argentine peso", Format: "ARS %s"},
	{Code: "BRL", Label: "Brazilian real", Format: "R$ %s"},
	{Code: "COP", Label: "Colombian peso", Format: "COP %s"},
	{Code: "MXN", Label: "Mexican peso", Format: "MXN %s"},
	{Code: "VEF", Label: "Venezuelan bolívar", Format: "Bs %s"},
}

// CurrencySupported reports whether checkout can proceed in the given currency.
func CurrencySupported(code string) bool {
	for _, c := range supportedCurrencies {
		if c.Code == code {
			return true
		}
	}
	return false
}

// ContributeCurrencies registers the gateway's currencies with the
// platform registry.
func ContributeCurrencies(reg *tix.Registry) {
	for _, c := range supportedCurrencies {
		reg.Register(c)
	}
}
