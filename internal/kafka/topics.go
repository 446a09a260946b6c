package kafka

const (
	TopicTransactionCreated  = "loyalty.transaction-created"
	TopicSuspiciousFlag      = "loyalty.suspicious-flag"
	TopicRedemptionProcessed = "loyalty.redemption-processed"
)
