// Package nrhttp wraps the host's HTTP surfaces with agent monitoring: the
// application entry point gets a per-request transaction, the dispatchers'
// error handlers report to the active transaction, and outbound clients
// record external segments.
//
// Wrappers keep the standard func(http.Handler) http.Handler shape so they
// compose with the host's existing middleware chain.
package nrhttp
