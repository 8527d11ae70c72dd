package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/eventtix/tix-mercadopago/internal/mercadopago"
	"github.com/eventtix/tix-mercadopago/internal/obs"
	"github.com/eventtix/tix-mercadopago/internal/tix"
)

// MethodID identifies this gateway in callback requests.
const MethodID = "mercadopago"

// Query parameters carried on return/cancel URLs.
const (
	ParamAction = "tix_action"
	ParamToken  = "tix_payment_token"
	ParamMethod = "tix_payment_method"

	ActionReturn = "payment_return"
	ActionCancel = "payment_cancel"
)

// DefaultExcludedPaymentTypes are payment types without synchronous
// confirmation; the checkout cannot wait on offline settlement.
var DefaultExcludedPaymentTypes = []string{"ticket", "atm", "bank_transfer"}

// Gateway abstracts the MercadoPago operations the addon needs.
type Gateway interface {
	CreatePreference(ctx context.Context, pref mercadopago.Preference) (string, error)
	GetNotification(ctx context.Context, collectionID string) (mercadopago.Notification, error)
}

// Addon integrates MercadoPago's hosted checkout into the ticketing
// platform: it builds and submits checkout preferences, verifies IPN
// notifications against the gateway and applies canonical statuses to
// orders through the platform interfaces.
type Addon struct {
	Settings   Settings
	MP         Gateway
	Orders     tix.OrderStore
	Attendees  tix.AttendeeStore
	Results    tix.ResultApplier
	Replay     ReplayGuard
	ReplayTTL  time.Duration
	Logger     zerolog.Logger
	TicketsURL string
	EventName  string
	Currency   string

	// Category overrides the preference item category, default "tickets".
	Category string
	// ExcludedPaymentTypes overrides DefaultExcludedPaymentTypes.
	ExcludedPaymentTypes []string
	// PreferenceFilter, when set, may rewrite the preference before submission.
	PreferenceFilter func(pref mercadopago.Preference, order tix.Order) mercadopago.Preference
}

// Checkout builds and submits a checkout preference for the order behind
// the payment token. It returns the gateway redirect URL on success. A
// redirect is only ever returned when the gateway confirmed creation; any
// failure after the currency gate marks the order failed.
func (a *Addon) Checkout(ctx context.Context, token string) (string, error) {
	ctx, span := otel.Tracer("gateway.Addon").Start(ctx, "Addon.Checkout")
	defer span.End()

	token = strings.TrimSpace(token)
	if token == "" {
		countCheckout("missing_token")
		return "", ErrMissingToken
	}
	span.SetAttributes(attribute.String("payment.token", token))

	if !CurrencySupported(a.Currency) {
		countCheckout("unsupported_currency")
		return "", fmt.Errorf("%w: %s", ErrUnsupportedCurrency, a.Currency)
	}

	order, err := a.Orders.GetOrder(ctx, token)
	if err != nil {
		countCheckout("order_not_found")
		return "", fmt.Errorf("gateway: resolve order: %w", err)
	}

	pref := a.buildPreference(order)
	redirect, err := a.MP.CreatePreference(ctx, pref)
	if err != nil {
		span.RecordError(err)
		countCheckout("failed")
		a.Logger.Warn().Err(err).Str("token", token).Msg("checkout preference creation failed")
		if applyErr := a.Results.PaymentResult(ctx, token, tix.StatusFailed); applyErr != nil {
			return "", fmt.Errorf("gateway: apply failed status: %w", applyErr)
		}
		return "", fmt.Errorf("%w: %v", ErrCheckoutCreation, err)
	}
	countCheckout("success")
	a.debugEvent().Str("token", token).Str("redirect", redirect).Msg("checkout preference created")
	return redirect, nil
}

// debugEvent honours the host's debug-log setting; operational warnings
// and errors are always logged through Logger directly.
func (a *Addon) debugEvent() *zerolog.Event {
	if !a.Settings.LogEnabled {
		nop := zerolog.Nop()
		return nop.Debug()
	}
	return a.Logger.Debug()
}

// buildPreference composes the gateway checkout payload for an order.
func (a *Addon) buildPreference(order tix.Order) mercadopago.Preference {
	description := a.EventName
	if description == "" {
		description = "Event"
	}
	for _, it := range order.Items {
		description += fmt.Sprintf(", %dx %s %s", it.Quantity, it.Name, formatAmount(it.Price))
	}

	returnURL := a.callbackURL(ActionReturn, order.Token)
	cancelURL := a.callbackURL(ActionCancel, order.Token)

	category := a.Category
	if category == "" {
		category = "tickets"
	}
	pref := mercadopago.Preference{
		BackURLs: mercadopago.BackURLs{
			Success: returnURL,
			Failure: cancelURL,
			Pending: returnURL,
		},
		ExternalReference: order.Token,
		NotificationURL:   returnURL,
		Items: []mercadopago.Item{
			{
				Quantity:    1,
				UnitPrice:   order.Total,
				CurrencyID:  a.Currency,
				Title:       a.EventName,
				Description: description,
				CategoryID:  category,
			},
		},
	}

	excluded := a.ExcludedPaymentTypes
	if excluded == nil {
		excluded = DefaultExcludedPaymentTypes
	}
	if len(excluded) > 0 {
		types := make([]mercadopago.ExcludedPaymentType, 0, len(excluded))
		for _, id := range excluded {
			types = append(types, mercadopago.ExcludedPaymentType{ID: id})
		}
		pref.PaymentMethods = &mercadopago.PaymentMethods{ExcludedPaymentTypes: types}
	}

	if a.PreferenceFilter != nil {
		pref = a.PreferenceFilter(pref, order)
	}
	return pref
}

// callbackURL points the gateway back at the host's ticket page with the
// action, token and method identifier as query parameters.
func (a *Addon) callbackURL(action, token string) string {
	u, err := url.Parse(a.TicketsURL)
	if err != nil {
		return a.TicketsURL
	}
	q := u.Query()
	q.Set(ParamAction, action)
	q.Set(ParamToken, token)
	q.Set(ParamMethod, MethodID)
	u.RawQuery = q.Encode()
	return u.String()
}

// ValidateNotification re-fetches the collection record referenced by the
// callback parameters. Callback bodies are never trusted directly: a
// missing collection_id is invalid without any network call, and anything
// but a verified HTTP 200 from the gateway is invalid.
func (a *Addon) ValidateNotification(ctx context.Context, params url.Values) (mercadopago.Notification, error) {
	var zero mercadopago.Notification
	collectionID := strings.TrimSpace(params.Get("collection_id"))
	if collectionID == "" {
		countNotification("missing_id")
		return zero, fmt.Errorf("%w: missing collection_id", ErrNotificationInvalid)
	}
	n, err := a.MP.GetNotification(ctx, collectionID)
	if err != nil {
		countNotification("invalid")
		return zero, fmt.Errorf("%w: %v", ErrNotificationInvalid, err)
	}
	countNotification("valid")
	return n, nil
}

// PaymentReturn handles the buyer's return (and the IPN callback) for an
// order. The applied status is always derived from a freshly re-fetched
// notification; an unverifiable notification resolves the order to failed
// without claiming the dedupe key, so the gateway's re-delivery of the
// same collection can still correct the order later. Only a verified,
// applied notification holds the key.
func (a *Addon) PaymentReturn(ctx context.Context, params url.Values) (tix.PaymentStatus, error) {
	ctx, span := otel.Tracer("gateway.Addon").Start(ctx, "Addon.PaymentReturn")
	defer span.End()

	token := strings.TrimSpace(params.Get(ParamToken))
	if token == "" {
		return "", ErrMissingToken
	}
	span.SetAttributes(attribute.String("payment.token", token))

	n, err := a.ValidateNotification(ctx, params)
	if err != nil {
		a.Logger.Warn().Err(err).Str("token", token).Msg("payment notification rejected")
		if applyErr := a.Results.PaymentResult(ctx, token, tix.StatusFailed); applyErr != nil {
			return "", fmt.Errorf("gateway: apply failed status: %w", applyErr)
		}
		return tix.StatusFailed, nil
	}

	key := replayKey(strings.TrimSpace(params.Get("collection_id")))
	claimed := false
	if a.Replay != nil {
		ok, err := a.Replay.Acquire(ctx, key, a.ReplayTTL)
		if err != nil {
			a.Logger.Error().Err(err).Msg("replay guard unavailable")
		} else if !ok {
			countNotification("duplicate")
			return "", fmt.Errorf("%w: collection %d", ErrDuplicateNotification, n.Collection.ID)
		} else {
			claimed = true
		}
	}

	if !KnownStatus(n.Collection.Status) {
		countNotification("unknown_status")
		a.Logger.Warn().Str("collection_status", n.Collection.Status).Msg("unrecognised collection status, treating as pending")
	}
	status := MapStatus(n.Collection.Status)
	if err := a.Results.PaymentResult(ctx, token, status); err != nil {
		if claimed {
			if relErr := a.Replay.Release(ctx, key); relErr != nil {
				a.Logger.Error().Err(relErr).Msg("release replay key")
			}
		}
		return "", fmt.Errorf("gateway: apply status %s: %w", status, err)
	}
	a.Logger.Info().Str("token", token).Str("collection_status", n.Collection.Status).Str("status", string(status)).Msg("payment return processed")
	return status, nil
}

// PaymentCancel handles the buyer cancelling at the gateway. The token
// must resolve to at least one attendee before the order is cancelled.
func (a *Addon) PaymentCancel(ctx context.Context, params url.Values) (tix.PaymentStatus, error) {
	ctx, span := otel.Tracer("gateway.Addon").Start(ctx, "Addon.PaymentCancel")
	defer span.End()

	token := strings.TrimSpace(params.Get(ParamToken))
	if token == "" {
		return "", ErrMissingToken
	}
	span.SetAttributes(attribute.String("payment.token", token))

	attendees, err := a.Attendees.FindByPaymentToken(ctx, token)
	if err != nil {
		return "", fmt.Errorf("gateway: find attendees: %w", err)
	}
	if len(attendees) == 0 {
		return "", fmt.Errorf("%w: token %s", ErrAttendeeNotFound, token)
	}

	if err := a.Results.PaymentResult(ctx, token, tix.StatusCancelled); err != nil {
		return "", fmt.Errorf("gateway: apply cancelled status: %w", err)
	}
	a.Logger.Info().Str("token", token).Msg("payment cancelled by buyer")
	return tix.StatusCancelled, nil
}

func countCheckout(result string) {
	if obs.CheckoutTotal != nil {
		obs.CheckoutTotal.WithLabelValues(result).Inc()
	}
}

func countNotification(result string) {
	if obs.NotificationTotal != nil {
		obs.NotificationTotal.WithLabelValues(result).Inc()
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// IsTerminal reports whether the error should terminate the request with a
// user-visible diagnostic instead of resolving to an order status.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrUnsupportedCurrency) ||
		errors.Is(err, ErrMissingToken) ||
		errors.Is(err, ErrAttendeeNotFound)
}
