package metrics

import "time"

// Event names recorded by the checkout components.
const (
	EventRatesRefreshed     = "rates_refreshed"
	EventRatesFailed        = "rates_failed"
	EventWatcherPass        = "watcher_pass"
	EventBalanceCheckFailed = "balance_check_failed"
	EventPaymentDetected    = "payment_detected"
	EventTransactionSent    = "transaction_sent"
	EventTransactionFailed  = "transaction_failed"
	EventReceiptConfirmed   = "receipt_confirmed"
	EventReceiptReverted    = "receipt_reverted"
	EventNetworkSwitched    = "network_switched"
	EventOrderCompleted     = "order_completed"
	EventPaymentExpired     = "payment_expired"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
	// SetGauge records a current value such as the USD rate of an asset.
	SetGauge(name string, value float64, labels map[string]string)
}
