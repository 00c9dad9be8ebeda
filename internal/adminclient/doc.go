// Package adminclient is a client for the notifier's admin HTTP API.
//
// Reads are retried with jittered exponential backoff on 5xx and 429.
// Lifecycle and send calls are issued once.
package adminclient
