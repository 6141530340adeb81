// Package feedstore holds the observable state of one live feed: the latest
// decoded payload, the connection status and the reconnect count.
//
// The connection controller is the only writer. Readers get copied
// snapshots, either by polling or through a subscription that delivers a
// Snapshot after every mutation.
package feedstore
