// Package terminal implements a headless VT100/xterm emulator: a byte
// stream parser driving a dual-grid screen buffer with bounded scrollback.
//
// The package is deliberately free of transport and rendering concerns.
// Bytes go in through Parser.Parse, and the resulting state is queried
// through ScreenBuffer's accessors; the Version counter tells consumers
// when a re-render is worthwhile.
package terminal
