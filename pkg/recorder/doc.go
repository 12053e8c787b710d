// Package recorder persists job history from registry events.
//
// A Recorder subscribes to a registry's event stream and writes job
// records, state transitions, progress and outcomes to a core.HistoryStore.
// Events of one job are applied in order; different jobs are spread over
// a small pool of workers. Storage calls are retried with exponential
// backoff.
package recorder
