package events

// Quote lifecycle topics.
const (
	TopicQuoteSubmitted = "quote.submitted"
	TopicQuoteAssigned  = "quote.assigned"
	TopicQuoteCancelled = "quote.cancelled"
	TopicQuoteExpired   = "quote.expired"
)

// DefaultTopics lists the topics that trigger clinic or patient notifications.
func DefaultTopics() []string {
	return []string{TopicQuoteSubmitted, TopicQuoteAssigned, TopicQuoteCancelled, TopicQuoteExpired}
}
