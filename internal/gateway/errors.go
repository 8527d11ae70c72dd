package gateway

import "errors"

// Failure kinds surfaced by the addon. Gateway and transport failures are
// converted into one of these at the component boundary; raw transport
// errors never reach the host.
var (
	// ErrUnsupportedCurrency terminates a checkout before any gateway call.
	ErrUnsupportedCurrency = errors.New("gateway: selected currency is not supported by this payment method")
	// ErrMissingToken marks a callback that arrived without a payment token.
	ErrMissingToken = errors.New("gateway: missing payment token")
	// ErrAttendeeNotFound marks a cancel request whose token matches no attendees.
	ErrAttendeeNotFound = errors.New("gateway: attendees not found")
	// ErrCheckoutCreation marks a failed preference creation.
	ErrCheckoutCreation = errors.New("gateway: checkout creation failed")
	// ErrNotificationInvalid marks an IPN callback that could not be verified.
	ErrNotificationInvalid = errors.New("gateway: notification invalid")
	// ErrDuplicateNotification marks an IPN replay within the dedupe window.
	ErrDuplicateNotification = errors.New("gateway: duplicate notification")
)
