// Package term holds the opaque terminal-control byte sequences the relay
// emits at defined protocol moments. None of these are interpreted; they are
// relayed or sent verbatim to watcher sockets.
package term

// ClearScreen is the ANSI sequence that clears the watcher's terminal.
func ClearScreen() []byte { return []byte("\x1b[2J") }

// ResetCursor is the ANSI sequence that moves the cursor to the home position.
func ResetCursor() []byte { return []byte("\x1b[H") }

// DisableLocalEcho asks the telnet client to let the server do the echoing
// (IAC WILL ECHO), suppressing local echo of typed bytes.
func DisableLocalEcho() []byte {
	return []byte{0xff, 0xfb, 0x01}
}

// DisableLinemode asks the telnet client to switch out of line-buffered input
// (IAC DO LINEMODE, IAC SB LINEMODE MODE 0 IAC SE) so keystrokes arrive as soon
// as they're typed.
func DisableLinemode() []byte {
	return []byte{
		0xff, 0xfd, 0x22,
		0xff, 0xfa, 0x22, 0x01, 0x00, 0xff, 0xf0,
	}
}

// Prompt is the literal prompt line shown at the bottom of the main menu.
const Prompt = "Watch which session? ('q' quits) "

// CRLF is the line terminator used throughout the watcher wire protocol.
const CRLF = "\r\n"
