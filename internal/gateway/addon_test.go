package gateway_test

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eventtix/tix-mercadopago/internal/gateway"
	"github.com/eventtix/tix-mercadopago/internal/mercadopago"
	"github.com/eventtix/tix-mercadopago/internal/tix"
)

type fakeGateway struct {
	prefs       []mercadopago.Preference
	redirectURL string
	prefErr     error

	notif      mercadopago.Notification
	notifErr   error
	notifCalls int
}

func (f *fakeGateway) CreatePreference(_ context.Context, pref mercadopago.Preference) (string, error) {
	f.prefs = append(f.prefs, pref)
	if f.prefErr != nil {
		return "", f.prefErr
	}
	return f.redirectURL, nil
}

func (f *fakeGateway) GetNotification(_ context.Context, _ string) (mercadopago.Notification, error) {
	f.notifCalls++
	if f.notifErr != nil {
		return mercadopago.Notification{}, f.notifErr
	}
	return f.notif, nil
}

type fakeOrders struct {
	orders map[string]tix.Order
}

func (f *fakeOrders) GetOrder(_ context.Context, token string) (tix.Order, error) {
	order, ok := f.orders[token]
	if !ok {
		return tix.Order{}, errors.New("order not found")
	}
	return order, nil
}

type fakeAttendees struct {
	byToken map[string][]tix.Attendee
}

func (f *fakeAttendees) FindByPaymentToken(_ context.Context, token string) ([]tix.Attendee, error) {
	return f.byToken[token], nil
}

type appliedResult struct {
	token  string
	status tix.PaymentStatus
}

type fakeResults struct {
	applied []appliedResult
	err     error
}

func (f *fakeResults) PaymentResult(_ context.Context, token string, status tix.PaymentStatus) error {
	if f.err != nil {
		return f.err
	}
	f.applied = append(f.applied, appliedResult{token: token, status: status})
	return nil
}

type allowAllReplay struct{ acquired []string }

func (g *allowAllReplay) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	g.acquired = append(g.acquired, key)
	return true, nil
}

func (g *allowAllReplay) Release(context.Context, string) error { return nil }

type denyReplay struct{}

func (denyReplay) Acquire(context.Context, string, time.Duration) (bool, error) {
	return false, nil
}

func (denyReplay) Release(context.Context, string) error { return nil }

// memReplay keeps claimed keys in memory, honouring Release.
type memReplay struct {
	keys     map[string]bool
	released []string
}

func newMemReplay() *memReplay { return &memReplay{keys: map[string]bool{}} }

func (m *memReplay) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memReplay) Release(_ context.Context, key string) error {
	delete(m.keys, key)
	m.released = append(m.released, key)
	return nil
}

func newAddon(mp *fakeGateway, orders *fakeOrders, attendees *fakeAttendees, results *fakeResults) *gateway.Addon {
	return &gateway.Addon{
		MP:         mp,
		Orders:     orders,
		Attendees:  attendees,
		Results:    results,
		Logger:     zerolog.Nop(),
		TicketsURL: "https://tickets.example.org/tickets",
		EventName:  "DevConf",
		Currency:   "ARS",
	}
}

func TestCheckoutBuildsPreference(t *testing.T) {
	mp := &fakeGateway{redirectURL: "https://mp.example/init"}
	orders := &fakeOrders{orders: map[string]tix.Order{
		"tok-1": {Token: "tok-1", Total: 100, Items: []tix.LineItem{{Name: "Ticket", Quantity: 1, Price: 100}}},
	}}
	results := &fakeResults{}
	addon := newAddon(mp, orders, &fakeAttendees{}, results)

	redirect, err := addon.Checkout(context.Background(), "tok-1")
	require.NoError(t, err)
	require.Equal(t, "https://mp.example/init", redirect)
	require.Empty(t, results.applied)

	require.Len(t, mp.prefs, 1)
	pref := mp.prefs[0]
	require.Equal(t, "tok-1", pref.ExternalReference)
	require.Len(t, pref.Items, 1)
	item := pref.Items[0]
	require.Equal(t, 1, item.Quantity)
	require.Equal(t, float64(100), item.UnitPrice)
	require.Equal(t, "ARS", item.CurrencyID)
	require.Equal(t, "tickets", item.CategoryID)
	require.True(t, strings.HasPrefix(item.Description, "DevConf, 1x Ticket 100"), "description %q", item.Description)

	success, err := url.Parse(pref.BackURLs.Success)
	require.NoError(t, err)
	require.Equal(t, gateway.ActionReturn, success.Query().Get(gateway.ParamAction))
	require.Equal(t, "tok-1", success.Query().Get(gateway.ParamToken))
	require.Equal(t, gateway.MethodID, success.Query().Get(gateway.ParamMethod))
	failure, err := url.Parse(pref.BackURLs.Failure)
	require.NoError(t, err)
	require.Equal(t, gateway.ActionCancel, failure.Query().Get(gateway.ParamAction))
	require.Equal(t, pref.BackURLs.Success, pref.BackURLs.Pending)
	require.Equal(t, pref.BackURLs.Success, pref.NotificationURL)

	require.NotNil(t, pref.PaymentMethods)
	require.Len(t, pref.PaymentMethods.ExcludedPaymentTypes, 3)
}

func TestCheckoutUnsupportedCurrencyNeverReachesGateway(t *testing.T) {
	mp := &fakeGateway{redirectURL: "https://mp.example/init"}
	orders := &fakeOrders{orders: map[string]tix.Order{"tok-1": {Token: "tok-1", Total: 10}}}
	results := &fakeResults{}
	addon := newAddon(mp, orders, &fakeAttendees{}, results)
	addon.Currency = "USD"

	_, err := addon.Checkout(context.Background(), "tok-1")
	require.ErrorIs(t, err, gateway.ErrUnsupportedCurrency)
	require.Empty(t, mp.prefs)
	require.Empty(t, results.applied)
}

func TestCheckoutSupportedCurrenciesProceed(t *testing.T) {
	for _, code := range []string{"ARS", "BRL", "COP", "MXN", "VEF"} {
		mp := &fakeGateway{redirectURL: "https://mp.example/init"}
		orders := &fakeOrders{orders: map[string]tix.Order{"tok-1": {Token: "tok-1", Total: 10}}}
		addon := newAddon(mp, orders, &fakeAttendees{}, &fakeResults{})
		addon.Currency = code

		_, err := addon.Checkout(context.Background(), "tok-1")
		require.NoError(t, err, "currency %s", code)
		require.Len(t, mp.prefs, 1, "currency %s", code)
	}
}

func TestCheckoutFailureMarksOrderFailed(t *testing.T) {
	mp := &fakeGateway{prefErr: errors.New("unexpected status 500")}
	orders := &fakeOrders{orders: map[string]tix.Order{"tok-1": {Token: "tok-1", Total: 10}}}
	results := &fakeResults{}
	addon := newAddon(mp, orders, &fakeAttendees{}, results)

	redirect, err := addon.Checkout(context.Background(), "tok-1")
	require.ErrorIs(t, err, gateway.ErrCheckoutCreation)
	require.Empty(t, redirect)
	require.Equal(t, []appliedResult{{token: "tok-1", status: tix.StatusFailed}}, results.applied)
}

func TestCheckoutMissingToken(t *testing.T) {
	addon := newAddon(&fakeGateway{}, &fakeOrders{}, &fakeAttendees{}, &fakeResults{})
	_, err := addon.Checkout(context.Background(), "  ")
	require.ErrorIs(t, err, gateway.ErrMissingToken)
}

func TestPreferenceFilterRewritesPayload(t *testing.T) {
	mp := &fakeGateway{redirectURL: "https://mp.example/init"}
	orders := &fakeOrders{orders: map[string]tix.Order{"tok-1": {Token: "tok-1", Total: 10}}}
	addon := newAddon(mp, orders, &fakeAttendees{}, &fakeResults{})
	addon.Category = "events"
	addon.ExcludedPaymentTypes = []string{}
	addon.PreferenceFilter = func(pref mercadopago.Preference, _ tix.Order) mercadopago.Preference {
		pref.Items[0].Title = "rewritten"
		return pref
	}

	_, err := addon.Checkout(context.Background(), "tok-1")
	require.NoError(t, err)
	require.Equal(t, "rewritten", mp.prefs[0].Items[0].Title)
	require.Equal(t, "events", mp.prefs[0].Items[0].CategoryID)
	require.Nil(t, mp.prefs[0].PaymentMethods)
}

func TestCheckoutDebugLogGatedBySetting(t *testing.T) {
	orders := &fakeOrders{orders: map[string]tix.Order{"tok-1": {Token: "tok-1", Total: 10}}}

	var buf bytes.Buffer
	addon := newAddon(&fakeGateway{redirectURL: "https://mp.example/init"}, orders, &fakeAttendees{}, &fakeResults{})
	addon.Logger = zerolog.New(&buf)

	_, err := addon.Checkout(context.Background(), "tok-1")
	require.NoError(t, err)
	require.Empty(t, buf.String())

	addon.Settings = gateway.Settings{LogEnabled: true}
	_, err = addon.Checkout(context.Background(), "tok-1")
	require.NoError(t, err)
	require.Contains(t, buf.String(), "checkout preference created")
}

func TestPaymentReturnApprovedAppliesCompleted(t *testing.T) {
	mp := &fakeGateway{notif: mercadopago.Notification{Collection: mercadopago.Collection{ID: 42, Status: "approved"}}}
	results := &fakeResults{}
	addon := newAddon(mp, &fakeOrders{}, &fakeAttendees{}, results)

	params := url.Values{}
	params.Set(gateway.ParamToken, "tok-9")
	params.Set("collection_id", "42")

	status, err := addon.PaymentReturn(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, tix.StatusCompleted, status)
	require.Equal(t, []appliedResult{{token: "tok-9", status: tix.StatusCompleted}}, results.applied)
}

func TestPaymentReturnMissingCollectionIDMakesNoNetworkCall(t *testing.T) {
	mp := &fakeGateway{}
	results := &fakeResults{}
	addon := newAddon(mp, &fakeOrders{}, &fakeAttendees{}, results)

	params := url.Values{}
	params.Set(gateway.ParamToken, "tok-9")

	status, err := addon.PaymentReturn(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, tix.StatusFailed, status)
	require.Zero(t, mp.notifCalls)
	require.Equal(t, []appliedResult{{token: "tok-9", status: tix.StatusFailed}}, results.applied)
}

func TestPaymentReturnUnverifiableNotificationFailsOrder(t *testing.T) {
	mp := &fakeGateway{notifErr: errors.New("unexpected status 404")}
	results := &fakeResults{}
	addon := newAddon(mp, &fakeOrders{}, &fakeAttendees{}, results)

	params := url.Values{}
	params.Set(gateway.ParamToken, "tok-9")
	params.Set("collection_id", "42")

	status, err := addon.PaymentReturn(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, tix.StatusFailed, status)
	require.Equal(t, 1, mp.notifCalls)
	require.Equal(t, []appliedResult{{token: "tok-9", status: tix.StatusFailed}}, results.applied)
}

func TestPaymentReturnMissingToken(t *testing.T) {
	addon := newAddon(&fakeGateway{}, &fakeOrders{}, &fakeAttendees{}, &fakeResults{})
	_, err := addon.PaymentReturn(context.Background(), url.Values{})
	require.ErrorIs(t, err, gateway.ErrMissingToken)
}

func TestPaymentReturnDuplicateNotification(t *testing.T) {
	mp := &fakeGateway{notif: mercadopago.Notification{Collection: mercadopago.Collection{Status: "approved"}}}
	results := &fakeResults{}
	addon := newAddon(mp, &fakeOrders{}, &fakeAttendees{}, results)
	addon.Replay = denyReplay{}
	addon.ReplayTTL = time.Minute

	params := url.Values{}
	params.Set(gateway.ParamToken, "tok-9")
	params.Set("collection_id", "42")

	_, err := addon.PaymentReturn(context.Background(), params)
	require.ErrorIs(t, err, gateway.ErrDuplicateNotification)
	require.Empty(t, results.applied)
}

func TestPaymentReturnRetryAfterTransientFailureCorrectsOrder(t *testing.T) {
	mp := &fakeGateway{notifErr: errors.New("unexpected status 502")}
	results := &fakeResults{}
	addon := newAddon(mp, &fakeOrders{}, &fakeAttendees{}, results)
	addon.Replay = newMemReplay()
	addon.ReplayTTL = time.Hour

	params := url.Values{}
	params.Set(gateway.ParamToken, "tok-9")
	params.Set("collection_id", "42")

	status, err := addon.PaymentReturn(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, tix.StatusFailed, status)

	// The gateway recovers and re-delivers the same collection.
	mp.notifErr = nil
	mp.notif = mercadopago.Notification{Collection: mercadopago.Collection{ID: 42, Status: "approved"}}

	status, err = addon.PaymentReturn(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, tix.StatusCompleted, status)
	require.Equal(t, []appliedResult{
		{token: "tok-9", status: tix.StatusFailed},
		{token: "tok-9", status: tix.StatusCompleted},
	}, results.applied)
}

func TestPaymentReturnReleasesKeyWhenApplyFails(t *testing.T) {
	mp := &fakeGateway{notif: mercadopago.Notification{Collection: mercadopago.Collection{ID: 42, Status: "approved"}}}
	results := &fakeResults{err: errors.New("database unavailable")}
	replay := newMemReplay()
	addon := newAddon(mp, &fakeOrders{}, &fakeAttendees{}, results)
	addon.Replay = replay
	addon.ReplayTTL = time.Hour

	params := url.Values{}
	params.Set(gateway.ParamToken, "tok-9")
	params.Set("collection_id", "42")

	_, err := addon.PaymentReturn(context.Background(), params)
	require.Error(t, err)
	require.Equal(t, []string{"ipn:mercadopago:42"}, replay.released)

	// A re-delivery after the store recovers applies the status.
	results.err = nil
	status, err := addon.PaymentReturn(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, tix.StatusCompleted, status)
}

func TestPaymentReturnUnknownStatusAppliesPending(t *testing.T) {
	mp := &fakeGateway{notif: mercadopago.Notification{Collection: mercadopago.Collection{ID: 42, Status: "authorized"}}}
	results := &fakeResults{}
	addon := newAddon(mp, &fakeOrders{}, &fakeAttendees{}, results)

	params := url.Values{}
	params.Set(gateway.ParamToken, "tok-9")
	params.Set("collection_id", "42")

	status, err := addon.PaymentReturn(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, tix.StatusPending, status)
}

func TestPaymentReturnClaimsReplayKey(t *testing.T) {
	mp := &fakeGateway{notif: mercadopago.Notification{Collection: mercadopago.Collection{ID: 42, Status: "approved"}}}
	replay := &allowAllReplay{}
	addon := newAddon(mp, &fakeOrders{}, &fakeAttendees{}, &fakeResults{})
	addon.Replay = replay
	addon.ReplayTTL = time.Minute

	params := url.Values{}
	params.Set(gateway.ParamToken, "tok-9")
	params.Set("collection_id", "42")

	_, err := addon.PaymentReturn(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, []string{"ipn:mercadopago:42"}, replay.acquired)
}

func TestPaymentCancelAppliesCancelled(t *testing.T) {
	attendees := &fakeAttendees{byToken: map[string][]tix.Attendee{
		"tok-3": {{ID: "a1", PaymentToken: "tok-3"}},
	}}
	results := &fakeResults{}
	addon := newAddon(&fakeGateway{}, &fakeOrders{}, attendees, results)

	params := url.Values{}
	params.Set(gateway.ParamToken, "tok-3")

	status, err := addon.PaymentCancel(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, tix.StatusCancelled, status)
	require.Equal(t, []appliedResult{{token: "tok-3", status: tix.StatusCancelled}}, results.applied)
}

func TestPaymentCancelNoAttendees(t *testing.T) {
	results := &fakeResults{}
	addon := newAddon(&fakeGateway{}, &fakeOrders{}, &fakeAttendees{}, results)

	params := url.Values{}
	params.Set(gateway.ParamToken, "tok-3")

	_, err := addon.PaymentCancel(context.Background(), params)
	require.ErrorIs(t, err, gateway.ErrAttendeeNotFound)
	require.Empty(t, results.applied)
}

func TestPaymentCancelMissingToken(t *testing.T) {
	addon := newAddon(&fakeGateway{}, &fakeOrders{}, &fakeAttendees{}, &fakeResults{})
	_, err := addon.PaymentCancel(context.Background(), url.Values{})
	require.ErrorIs(t, err, gateway.ErrMissingToken)
}
