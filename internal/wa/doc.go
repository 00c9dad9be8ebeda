// Package wa adapts go.mau.fi/whatsmeow to the connection.ChatClient contract.
//
// whatsmeow's own auto-reconnect is disabled; the connection manager decides
// when a session is replaced. The device store lives in sqlite3 or Postgres
// and survives process restarts, so a QR scan is only needed after logout.
package wa
