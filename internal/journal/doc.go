// Package journal records WhatsApp lifecycle transitions, restart decisions
// and message outcomes to Postgres.
//
// Entries are buffered and written in batches. Recording never blocks: when
// the buffer is full the entry is dropped and counted.
package journal
