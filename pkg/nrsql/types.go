package nrsql

import "time"

// QueryInfo holds information about a single SQL statement executed during a
// request. It is populated by the wrapped database driver and later analysed
// by the HTTP-layer N+1 detector.
type QueryInfo struct {
	Query    string
	Duration time.Duration
}
