package nragent

import (
	"context"

	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/QuatraInternational/odoo-newrelic/domain"
)

// txnAdapter narrows *newrelic.Transaction to the domain contract so the
// patchers stay testable with fakes.
type txnAdapter struct {
	txn *newrelic.Transaction
}

func (a txnAdapter) NoticeError(err error) {
	a.txn.NoticeError(err)
}

func (a txnAdapter) StartSegment(name string) domain.Segment {
	return a.txn.StartSegment(name)
}

// CurrentTransaction reports the transaction monitoring the request in ctx,
// or nil when none is active. It satisfies domain.CurrentTransaction.
func CurrentTransaction(ctx context.Context) domain.Transaction {
	txn := newrelic.FromContext(ctx)
	if txn == nil {
		return nil
	}
	return txnAdapter{txn: txn}
}
