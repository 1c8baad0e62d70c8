// Package sink forwards detection events to external destinations. The
// ledger fans each recorded event out to every configured sink; a failing
// sink never blocks or fails the request that produced the event.
package sink

import (
	"context"

	"github.com/Deva-cpp/nextbuy-shield/internal/ledger"
)

type Sink interface {
	Start(ctx context.Context) error
	Enqueue(e ledger.Event) error
	Close() error
	Name() string // Returns the sink name for metrics and logging
}
