package events

// Topic constants for domain events emitted by the platform.
const (
	TopicOrderCreated   = "order.created"
	TopicOrderPaid      = "order.paid"
	TopicOrderCanceled  = "order.canceled"
	TopicOrderAdjusted  = "order.adjusted"
	TopicCouponRedeemed = "coupon.redeemed"
	TopicPaymentFailed  = "payment.failed"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderPaid,
		TopicOrderCanceled,
		TopicOrderAdjusted,
		TopicCouponRedeemed,
		TopicPaymentFailed,
	}
}
