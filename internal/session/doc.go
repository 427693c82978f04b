// Package session supervises remote shell sessions: one Worker per
// session owns the connect/stream/reconnect lifecycle, and the Manager is
// the registry that creates, batches, and tears them down.
//
// Workers push bytes and state changes out through Callbacks; the consumer
// is expected to feed each session's bytes into its terminal emulator from
// a single goroutine.
package session
