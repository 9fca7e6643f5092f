// Package inbound routes verified platform events to per-type handlers.
//
// Events are deduplicated by ID: an event that is already processed, or
// currently being handled, is skipped. An event is only marked processed once
// its handler returns without error, so failed deliveries stay retryable.
package inbound
