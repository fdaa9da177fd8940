package domain

// Event types raised by the checkout flow.
const (
	EventCheckoutStarted   = "checkout.started"
	EventCheckoutCompleted = "checkout.completed"
	EventCheckoutAbandoned = "checkout.abandoned"
	EventPaymentSuccess    = "payment.success"
	EventPaymentFailed     = "payment.failed"
	EventPaymentRefunded   = "payment.refunded"

	// EventWebhookTest is only ever sent by an explicit test delivery.
	EventWebhookTest = "webhook.test"
)

type EventType struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// EventCatalog lists the event types the admin screen offers. Subscriptions
// are not restricted to it.
var EventCatalog = []EventType{
	{ID: EventCheckoutStarted, Label: "Checkout started"},
	{ID: EventCheckoutCompleted, Label: "Checkout completed"},
	{ID: EventCheckoutAbandoned, Label: "Checkout abandoned"},
	{ID: EventPaymentSuccess, Label: "Payment succeeded"},
	{ID: EventPaymentFailed, Label: "Payment failed"},
	{ID: EventPaymentRefunded, Label: "Payment refunded"},
}
