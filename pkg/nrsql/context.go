package nrsql

import (
	"context"
	"time"
)

// contextKey is an unexported type for keys defined in this package.
type contextKey struct{}

var queryLogKey = contextKey{}

// WithQueryLog returns a new context capable of accumulating QueryInfo
// entries. The transaction middleware attaches this to the incoming request
// so queries can be aggregated per request.
func WithQueryLog(parent context.Context) context.Context {
	return context.WithValue(parent, queryLogKey, new([]*QueryInfo))
}

// QueryLogFromContext retrieves the collected queries, or nil if the context
// was not initialised via WithQueryLog.
func QueryLogFromContext(ctx context.Context) []*QueryInfo {
	p, ok := ctx.Value(queryLogKey).(*[]*QueryInfo)
	if !ok || p == nil {
		return nil
	}
	return *p
}

// recordQuery appends information about an executed SQL statement to the log
// stored in the context. It is used internally by wrapped driver components.
func recordQuery(ctx context.Context, query string, dur time.Duration) {
	p, ok := ctx.Value(queryLogKey).(*[]*QueryInfo)
	if !ok || p == nil {
		return
	}
	*p = append(*p, &QueryInfo{Query: query, Duration: dur})
}
