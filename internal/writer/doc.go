// Package writer records the live feed into TimescaleDB.
//
// The tick writer follows the store, batches every new payload and appends
// it to the live_ticks table. Inserts are append-only: a tick already stored
// for the same symbol and timestamp is skipped, never updated.
package writer
