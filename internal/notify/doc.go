// Package notify turns attendance events into WhatsApp messages.
//
// Notify never blocks the caller: events are queued and a small worker pool
// renders the login/logout template and hands the text to the connection
// manager. A full queue drops the event with a warning.
package notify
