// Package nrbus attaches background-transaction monitoring to the websocket
// bus notification dispatch, the one host code path that runs outside a web
// request.
package nrbus

import (
	"context"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/QuatraInternational/odoo-newrelic/domain"
)

const dispatchTransactionName = "Websocket/dispatch_bus_notifications"

// Patch wraps the bus dispatch routine in a background transaction. It is
// best-effort: a host without a bus, an empty dispatch binding, or a
// panicking slot implementation is logged and otherwise ignored.
func Patch(app *newrelic.Application, bus domain.BusSlot, log zerolog.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("attaching to bus dispatch failed")
		}
	}()

	if app == nil || bus == nil {
		log.Info().Msg("no bus dispatch to attach to")
		return
	}

	log.Info().Msg("attaching to bus dispatch")
	orig := bus.Dispatch()
	if orig == nil {
		log.Info().Msg("bus exposes no dispatch routine")
		return
	}

	bus.SetDispatch(func(ctx context.Context) error {
		txn := app.StartTransaction(dispatchTransactionName)
		defer txn.End()

		err := orig(newrelic.NewContext(ctx, txn))
		if err != nil {
			txn.NoticeError(err)
		}
		return err
	})
	log.Info().Msg("finished attaching to bus dispatch")
}
