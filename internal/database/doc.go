// Package database provides PostgreSQL connection pool management.
//
// The notifier uses Postgres for the event journal. The WhatsApp session
// store may share the same server but opens its own database/sql handle.
package database
