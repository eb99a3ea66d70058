// internal/transaction/metrics.go
package transaction

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

var (
	finalizedCounter metric.Int64Counter
	amountCounter    metric.Float64Counter
	lateFeeCounter   metric.Float64Counter
)

func init() {
	meter := otel.Meter("retailpos/transaction")
	fallback := noop.NewMeterProvider().Meter("retailpos/transaction")

	var err error
	if finalizedCounter, err = meter.Int64Counter("pos.transactions.finalized",
		metric.WithDescription("Transactions settled, by kind and mode")); err != nil {
		finalizedCounter, _ = fallback.Int64Counter("pos.transactions.finalized")
	}
	if amountCounter, err = meter.Float64Counter("pos.transactions.amount",
		metric.WithDescription("Amount charged or refunded, tax included")); err != nil {
		amountCounter, _ = fallback.Float64Counter("pos.transactions.amount")
	}
	if lateFeeCounter, err = meter.Float64Counter("pos.rentals.late_fees",
		metric.WithDescription("Late fees billed on rental check-in")); err != nil {
		lateFeeCounter, _ = fallback.Float64Counter("pos.rentals.late_fees")
	}
}
