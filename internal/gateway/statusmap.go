package gateway

import (
	"strings"

	"github.com/eventtix/tix-mercadopago/internal/tix"
)

// MapStatus converts a MercadoPago collection status into the platform's
// canonical order status. Total over all inputs: unrecognised values map
// to pending so an order that may still resolve is never closed out
// prematurely.
func MapStatus(collectionStatus string) tix.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(collectionStatus)) {
	case "approved":
		return tix.StatusCompleted
	case "pending", "in_process", "in_mediation":
		return tix.StatusPending
	case "rejected", "cancelled":
		return tix.StatusCancelled
	case "refunded", "charged_back":
		return tix.StatusRefunded
	}
	return tix.StatusPending
}

// KnownStatus reports whether the collection status is one MapStatus
// recognises explicitly rather than by the pending fallback.
func KnownStatus(collectionStatus string) bool {
	switch strings.ToLower(strings.TrimSpace(collectionStatus)) {
	case "approved", "pending", "in_process", "in_mediation", "rejected", "cancelled", "refunded", "charged_back":
		return true
	}
	return false
}
