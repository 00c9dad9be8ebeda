// Package httpapi exposes the connection manager and attendance notifier
// over HTTP.
//
// Routes under /api require a bearer token when one is configured. Status
// snapshots can be polled or streamed over a websocket.
package httpapi
