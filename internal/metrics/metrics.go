package metrics

import "expvar"

var (
	StreamBatches   = expvar.NewInt("stream_batches")
	StreamErrors    = expvar.NewInt("stream_errors")
	Reconnects      = expvar.NewInt("stream_reconnects")
	StatusChecks    = expvar.NewInt("order_status_checks")
	OrdersPlaced    = expvar.NewInt("orders_placed")
	QuoteUpdates    = expvar.NewInt("quote_updates")
	EventsWritten   = expvar.NewInt("events_written")
	EventsDropped   = expvar.NewInt("events_dropped")
	JournalFailures = expvar.NewInt("journal_failures")
)
