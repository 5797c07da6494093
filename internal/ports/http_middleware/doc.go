// Package http_middleware provides the store-facing middleware layer: it
// tracks request timing and status codes, captures 5xx responses as error
// events, and analyses the per-request SQL query log for N+1 patterns.
//
// It sits inside the transaction wrapper installed by the dispatcher patcher
// and keeps the standard func(http.Handler) http.Handler shape.
package http_middleware
