// Package connection implements the WhatsApp Connection Manager.
//
// The Connection Manager:
//   - Owns exactly one chat client at a time, replacing it wholesale on restart
//   - Drives an explicit state machine from client lifecycle events
//   - Restarts failed sessions with exponential backoff and a bounded budget
//   - Sends messages through ordered fallback strategies with bounded retries
//   - Exposes a non-blocking status snapshot for the admin surface
package connection
