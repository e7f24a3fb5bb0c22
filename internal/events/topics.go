package events

// Topic constants for checkout events.
const (
	TopicSessionStarted    = "checkout.session_started"
	TopicShippingQuoted    = "checkout.shipping_quoted"
	TopicCheckoutSubmitted = "checkout.submitted"
	TopicCheckoutFailed    = "checkout.failed"
)

// DefaultTopics returns every topic the checkout service emits.
func DefaultTopics() []string {
	return []string{
		TopicSessionStarted,
		TopicShippingQuoted,
		TopicCheckoutSubmitted,
		TopicCheckoutFailed,
	}
}
