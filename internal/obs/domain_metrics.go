package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuoteOperations counts quote mutations by operation and result.
	QuoteOperations *prometheus.CounterVec
	// PromoApplications counts promo code and offer applications by outcome.
	PromoApplications *prometheus.CounterVec
	// QuoteTransitions counts lifecycle status changes.
	QuoteTransitions *prometheus.CounterVec
	// NotificationTasks counts worker notification task outcomes.
	NotificationTasks *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers the quote collectors.
// Record helpers are no-ops until this has run.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuoteOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_operations_total",
			Help:      "Quote mutations by operation and result.",
		}, []string{"operation", "result"})
		PromoApplications = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_applications_total",
			Help:      "Promo code and special offer applications by outcome.",
		}, []string{"source", "result"})
		QuoteTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_transitions_total",
			Help:      "Quote status transitions.",
		}, []string{"from", "to"})
		NotificationTasks = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_tasks_total",
			Help:      "Quote notification task outcomes.",
		}, []string{"topic", "result"})

		for _, c := range []**prometheus.CounterVec{&QuoteOperations, &PromoApplications, &QuoteTransitions, &NotificationTasks} {
			target := c
			mustRegisterCollector(reg, *target, func(existing prometheus.Collector) {
				if v, ok := existing.(*prometheus.CounterVec); ok {
					*target = v
				}
			})
		}
	})
}

// RecordQuoteOperation increments QuoteOperations.
func RecordQuoteOperation(op, result string) {
	if QuoteOperations != nil {
		QuoteOperations.WithLabelValues(op, result).Inc()
	}
}

// RecordPromoApplication increments PromoApplications.
func RecordPromoApplication(source, result string) {
	if PromoApplications != nil {
		PromoApplications.WithLabelValues(source, result).Inc()
	}
}

// RecordQuoteTransition increments QuoteTransitions.
func RecordQuoteTransition(from, to string) {
	if QuoteTransitions != nil {
		QuoteTransitions.WithLabelValues(from, to).Inc()
	}
}

// RecordNotificationTask increments NotificationTasks.
func RecordNotificationTask(topic, result string) {
	if NotificationTasks != nil {
		NotificationTasks.WithLabelValues(topic, result).Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
}
