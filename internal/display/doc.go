// Package display renders the quote board to a terminal.
//
// A Board reads one snapshot per configured symbol on every refresh and
// writes a fixed-width table. Each frame is built in memory and written
// with a single call, so stopping never leaves a half-drawn frame.
package display
