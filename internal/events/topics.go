package events

// Topic constants for domain events emitted by the storefront.
const (
	TopicCheckoutCompleted = "checkout.completed"
	TopicStockLow          = "stock.low"
	TopicPointsAccrued     = "member.points_accrued"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicCheckoutCompleted,
		TopicStockLow,
		TopicPointsAccrued,
	}
}
