package mercadopago

// BackURLs are the buyer-facing URLs the gateway redirects back to after
// the hosted checkout completes, fails or stays pending.
type BackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

// Item is a single line on a checkout preference.
type Item struct {
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	CurrencyID  string  `json:"currency_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	CategoryID  string  `json:"category_id"`
}

// ExcludedPaymentType identifies a payment type the checkout must not offer.
type ExcludedPaymentType struct {
	ID string `json:"id"`
}

// PaymentMethods carries payment method restrictions for a preference.
type PaymentMethods struct {
	ExcludedPaymentTypes []ExcludedPaymentType `json:"excluded_payment_types,omitempty"`
}

// Preference is the hosted-checkout session descriptor created before
// redirecting the buyer.
type Preference struct {
	BackURLs          BackURLs        `json:"back_urls"`
	ExternalReference string          `json:"external_reference"`
	NotificationURL   string          `json:"notification_url"`
	Items             []Item          `json:"items"`
	PaymentMethods    *PaymentMethods `json:"payment_methods,omitempty"`
}

// Collection is the authoritative payment record attached to a notification.
type Collection struct {
	ID                int64  `json:"id"`
	Status            string `json:"status"`
	ExternalReference string `json:"external_reference"`
}

// Notification is the gateway's collection-notification response.
type Notification struct {
	Collection Collection `json:"collection"`
}
