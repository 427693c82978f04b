package terminal

import (
	"fmt"
	"unicode/utf8"
)

// parserState enumerates the VT parsing states.
type parserState int

const (
	stateGround parserState = iota
	stateEscape
	stateEscapeIntermediate
	stateCSIEntry
	stateCSIParam
	stateCSIIntermediate
	stateCSIIgnore
	stateOSCString
	stateDCSPassthrough
)

// Hooks carries the parser's out-of-band callbacks. All fields are
// optional; nil hooks are skipped.
type Hooks struct {
	// OnBell fires on BEL.
	OnBell func()
	// OnTitle fires on OSC 0/1/2 with the new title text.
	OnTitle func(title string)
	// OnResponse fires when the emulated terminal must answer the remote
	// side (device status, device attributes). The consumer is expected to
	// write the payload back over the session's input channel.
	OnResponse func(payload string)
}

// Parser consumes raw bytes and drives a ScreenBuffer. Malformed input is
// absorbed, never raised: unrecognized sequences fall into an ignore state
// and committed cells are never rolled back.
//
// Parser is single-writer, like the buffer it mutates.
type Parser struct {
	buf   *ScreenBuffer
	hooks Hooks

	state parserState

	params   []int
	curParam int
	private  byte
	inters   []byte

	osc []byte

	utf8Buf [utf8.UTFMax]byte
	utf8Len int
	utf8Rem int

	// Input-affecting modes the engine exposes but the buffer ignores.
	appCursorKeys  bool
	bracketedPaste bool
}

// NewParser wires a parser to a buffer.
func NewParser(buf *ScreenBuffer, hooks Hooks) *Parser {
	return &Parser{buf: buf, hooks: hooks}
}

// Reset clears all accumulated parser state without touching the buffer.
// Called when a session reconnects, so a stream that died mid-sequence
// cannot corrupt output from the fresh connection.
func (p *Parser) Reset() {
	p.state = stateGround
	p.clearSequence()
	p.osc = nil
	p.utf8Len = 0
	p.utf8Rem = 0
}

// ApplicationCursorKeys reports DECCKM.
func (p *Parser) ApplicationCursorKeys() bool {
	return p.appCursorKeys
}

// BracketedPaste reports mode 2004.
func (p *Parser) BracketedPaste() bool {
	return p.bracketedPaste
}

// Parse consumes a chunk of raw bytes. Partial escape sequences and partial
// UTF-8 runes carry over to the next call.
func (p *Parser) Parse(data []byte) {
	for _, b := range data {
		p.parseByte(b)
	}
}

func (p *Parser) parseByte(b byte) {
	switch p.state {
	case stateGround:
		p.ground(b)
	case stateEscape:
		p.escape(b)
	case stateEscapeIntermediate:
		// Charset designations and similar two-byte escapes; the final
		// byte is consumed and ignored.
		if b >= 0x30 {
			p.state = stateGround
		}
	case stateCSIEntry, stateCSIParam, stateCSIIntermediate:
		p.csi(b)
	case stateCSIIgnore:
		p.csiIgnore(b)
	case stateOSCString:
		p.oscString(b)
	case stateDCSPassthrough:
		p.dcs(b)
	}
}

func (p *Parser) ground(b byte) {
	if p.utf8Rem > 0 {
		if b&0xC0 == 0x80 {
			p.utf8Buf[p.utf8Len] = b
			p.utf8Len++
			p.utf8Rem--
			if p.utf8Rem == 0 {
				r, _ := utf8.DecodeRune(p.utf8Buf[:p.utf8Len])
				p.buf.WriteRune(r)
				p.utf8Len = 0
			}
			return
		}
		// Truncated rune; drop it and reprocess the current byte.
		p.utf8Len = 0
		p.utf8Rem = 0
	}

	switch {
	case b == 0x1B:
		p.state = stateEscape
	case b == 0x07:
		if p.hooks.OnBell != nil {
			p.hooks.OnBell()
		}
	case b == 0x08:
		p.buf.Backspace()
	case b == 0x09:
		p.buf.Tab()
	case b == 0x0A, b == 0x0B, b == 0x0C:
		p.buf.LineFeed()
	case b == 0x0D:
		p.buf.CarriageReturn()
	case b < 0x20:
		// Remaining C0 controls are ignored.
	case b == 0x7F:
		// DEL is discarded, never displayed.
	case b < 0x80:
		p.buf.WriteRune(rune(b))
	default:
		switch {
		case b&0xE0 == 0xC0:
			p.startRune(b, 1)
		case b&0xF0 == 0xE0:
			p.startRune(b, 2)
		case b&0xF8 == 0xF0:
			p.startRune(b, 3)
		default:
			// Stray continuation byte.
		}
	}
}

func (p *Parser) startRune(b byte, continuations int) {
	p.utf8Buf[0] = b
	p.utf8Len = 1
	p.utf8Rem = continuations
}

func (p *Parser) escape(b byte) {
	switch b {
	case '[':
		p.state = stateCSIEntry
		p.clearSequence()
	case ']':
		p.state = stateOSCString
		p.osc = p.osc[:0]
	case 'P':
		p.state = stateDCSPassthrough
	case '7': // DECSC
		p.buf.SaveCursor()
		p.state = stateGround
	case '8': // DECRC
		p.buf.RestoreCursor()
		p.state = stateGround
	case 'D': // IND
		p.buf.LineFeed()
		p.state = stateGround
	case 'E': // NEL
		p.buf.NextLine()
		p.state = stateGround
	case 'M': // RI
		p.buf.ReverseIndex()
		p.state = stateGround
	case 'c': // RIS
		p.buf.Reset()
		p.Reset()
	case 0x1B:
		// Restart.
	default:
		if b >= 0x20 && b <= 0x2F {
			p.state = stateEscapeIntermediate
		} else {
			p.state = stateGround
		}
	}
}

func (p *Parser) clearSequence() {
	p.params = p.params[:0]
	p.curParam = 0
	p.private = 0
	p.inters = p.inters[:0]
}

func (p *Parser) csi(b byte) {
	switch {
	case b == 0x1B:
		p.state = stateEscape
	case b == 0x18, b == 0x1A: // CAN, SUB abort
		p.state = stateGround
	case b < 0x20:
		// C0 controls execute inside a control sequence.
		p.execC0(b)
	case b >= '0' && b <= '9':
		if p.state == stateCSIIntermediate {
			p.state = stateCSIIgnore
			return
		}
		p.curParam = p.curParam*10 + int(b-'0')
		if p.curParam > 0xFFFF {
			p.curParam = 0xFFFF
		}
		p.state = stateCSIParam
	case b == ';':
		if p.state == stateCSIIntermediate {
			p.state = stateCSIIgnore
			return
		}
		p.pushParam()
		p.state = stateCSIParam
	case b == '?' || b == '>' || b == '!':
		if p.state != stateCSIEntry {
			p.state = stateCSIIgnore
			return
		}
		p.private = b
		p.state = stateCSIParam
	case b >= 0x20 && b <= 0x2F:
		p.inters = append(p.inters, b)
		p.state = stateCSIIntermediate
	case b >= 0x40 && b <= 0x7E:
		p.pushParam()
		p.dispatchCSI(b)
		p.state = stateGround
	default:
		p.state = stateCSIIgnore
	}
}

func (p *Parser) csiIgnore(b byte) {
	switch {
	case b == 0x1B:
		p.state = stateEscape
	case b == 0x18, b == 0x1A:
		p.state = stateGround
	case b >= 0x40 && b <= 0x7E:
		// Final byte of the malformed sequence; drop it silently.
		p.state = stateGround
	}
}

func (p *Parser) execC0(b byte) {
	switch b {
	case 0x07:
		if p.hooks.OnBell != nil {
			p.hooks.OnBell()
		}
	case 0x08:
		p.buf.Backspace()
	case 0x0A, 0x0B, 0x0C:
		p.buf.LineFeed()
	case 0x0D:
		p.buf.CarriageReturn()
	}
}

func (p *Parser) pushParam() {
	p.params = append(p.params, p.curParam)
	p.curParam = 0
}

// param returns the i-th parameter with per-command defaulting: a missing
// or zero field yields def.
func (p *Parser) param(i, def int) int {
	if i >= len(p.params) || p.params[i] == 0 {
		return def
	}
	return p.params[i]
}

// paramRaw returns the i-th parameter without zero-defaulting; erase
// commands treat an explicit 0 as mode 0.
func (p *Parser) paramRaw(i int) int {
	if i >= len(p.params) {
		return 0
	}
	return p.params[i]
}

func (p *Parser) dispatchCSI(final byte) {
	if len(p.inters) > 0 {
		// No intermediate-carrying sequences are supported.
		return
	}
	if p.private != 0 {
		p.dispatchPrivate(final)
		return
	}

	switch final {
	case 'A': // CUU
		p.buf.MoveCursorUp(p.param(0, 1))
	case 'B': // CUD
		p.buf.MoveCursorDown(p.param(0, 1))
	case 'C': // CUF
		p.buf.MoveCursorForward(p.param(0, 1))
	case 'D': // CUB
		p.buf.MoveCursorBack(p.param(0, 1))
	case 'E': // CNL
		p.buf.MoveCursorDown(p.param(0, 1))
		p.buf.MoveCursorToCol(0)
	case 'F': // CPL
		p.buf.MoveCursorUp(p.param(0, 1))
		p.buf.MoveCursorToCol(0)
	case 'G': // CHA
		p.buf.MoveCursorToCol(p.param(0, 1) - 1)
	case 'H', 'f': // CUP, HVP
		p.buf.MoveCursorTo(p.param(0, 1)-1, p.param(1, 1)-1)
	case 'J': // ED
		p.buf.EraseInDisplay(p.paramRaw(0))
	case 'K': // EL
		p.buf.EraseInLine(p.paramRaw(0))
	case 'L': // IL
		p.buf.InsertLines(p.param(0, 1))
	case 'M': // DL
		p.buf.DeleteLines(p.param(0, 1))
	case 'P': // DCH
		p.buf.DeleteChars(p.param(0, 1))
	case 'S': // SU
		p.buf.ScrollUp(p.param(0, 1))
	case 'T': // SD
		p.buf.ScrollDown(p.param(0, 1))
	case 'X': // ECH
		p.buf.EraseChars(p.param(0, 1))
	case '@': // ICH
		p.buf.InsertChars(p.param(0, 1))
	case 'd': // VPA
		p.buf.MoveCursorToRow(p.param(0, 1) - 1)
	case 'r': // DECSTBM
		p.buf.SetScrollRegion(p.param(0, 1)-1, p.param(1, p.buf.rows)-1)
	case 'm': // SGR
		p.applySGR()
	case 'n': // DSR
		p.deviceStatus(p.paramRaw(0))
	case 'c': // DA
		p.respond("\x1b[?6c")
	case 'h': // SM
		if p.paramRaw(0) == 4 {
			p.buf.SetInsertMode(true)
		}
	case 'l': // RM
		if p.paramRaw(0) == 4 {
			p.buf.SetInsertMode(false)
		}
	case 's': // SCOSC
		p.buf.SaveCursor()
	case 'u': // SCORC
		p.buf.RestoreCursor()
	}
}

func (p *Parser) dispatchPrivate(final byte) {
	if p.private != '?' {
		// '>' and '!' sequences (DA2, DECSTR requests) are consumed
		// without effect.
		return
	}
	set := final == 'h'
	if final != 'h' && final != 'l' {
		return
	}
	for i := range p.params {
		switch p.params[i] {
		case 1: // DECCKM
			p.appCursorKeys = set
		case 6: // DECOM
			p.buf.SetOriginMode(set)
		case 7: // DECAWM
			p.buf.SetAutoWrap(set)
		case 25: // DECTCEM
			p.buf.SetCursorVisible(set)
		case 47, 1047:
			if set {
				p.buf.EnableAlternateScreen()
			} else {
				p.buf.DisableAlternateScreen()
			}
		case 1048:
			if set {
				p.buf.SaveCursor()
			} else {
				p.buf.RestoreCursor()
			}
		case 1049:
			if set {
				p.buf.SaveCursor()
				p.buf.EnableAlternateScreen()
				p.buf.EraseInDisplay(2)
			} else {
				p.buf.DisableAlternateScreen()
				p.buf.RestoreCursor()
			}
		case 2004:
			p.bracketedPaste = set
		}
	}
}

func (p *Parser) deviceStatus(code int) {
	switch code {
	case 5: // operating status: always "OK"
		p.respond("\x1b[0n")
	case 6: // cursor position report, one-indexed
		row, col := p.buf.Cursor()
		p.respond(fmt.Sprintf("\x1b[%d;%dR", row+1, col+1))
	}
}

func (p *Parser) respond(payload string) {
	if p.hooks.OnResponse != nil {
		p.hooks.OnResponse(payload)
	}
}

// applySGR walks the accumulated codes left to right, mutating a copy of
// the current pen and committing it once.
func (p *Parser) applySGR() {
	attr := p.buf.Attributes()
	codes := p.params
	if len(codes) == 0 {
		codes = []int{0}
	}

	for i := 0; i < len(codes); i++ {
		switch c := codes[i]; {
		case c == 0:
			attr = DefaultAttributes()
		case c == 1:
			attr.Bold = true
		case c == 2:
			attr.Dim = true
		case c == 3:
			attr.Italic = true
		case c == 4:
			attr.Underline = true
		case c == 5:
			attr.Blink = true
		case c == 7:
			attr.Inverse = true
		case c == 8:
			attr.Hidden = true
		case c == 9:
			attr.Strikethrough = true
		case c == 21, c == 22:
			attr.Bold = false
			attr.Dim = false
		case c == 23:
			attr.Italic = false
		case c == 24:
			attr.Underline = false
		case c == 25:
			attr.Blink = false
		case c == 27:
			attr.Inverse = false
		case c == 28:
			attr.Hidden = false
		case c == 29:
			attr.Strikethrough = false
		case c >= 30 && c <= 37:
			attr.FG = NamedColor(c - 30)
		case c == 38:
			if color, skip, ok := p.extendedColor(codes[i+1:]); ok {
				attr.FG = color
				i += skip
			} else {
				i = len(codes)
			}
		case c == 39:
			attr.FG = DefaultColor()
		case c >= 40 && c <= 47:
			attr.BG = NamedColor(c - 40)
		case c == 48:
			if color, skip, ok := p.extendedColor(codes[i+1:]); ok {
				attr.BG = color
				i += skip
			} else {
				i = len(codes)
			}
		case c == 49:
			attr.BG = DefaultColor()
		case c >= 90 && c <= 97:
			attr.FG = NamedColor(c - 90 + 8)
		case c >= 100 && c <= 107:
			attr.BG = NamedColor(c - 100 + 8)
		}
	}
	p.buf.SetAttributes(attr)
}

// extendedColor decodes the 38/48 sub-sequence tail: mode 5 consumes one
// palette index, mode 2 three clamped RGB components. Returns the number of
// parameters consumed past the 38/48 itself.
func (p *Parser) extendedColor(rest []int) (Color, int, bool) {
	if len(rest) == 0 {
		return Color{}, 0, false
	}
	switch rest[0] {
	case 5:
		if len(rest) < 2 {
			return Color{}, 0, false
		}
		return PaletteColor(rest[1]), 2, true
	case 2:
		if len(rest) < 4 {
			return Color{}, 0, false
		}
		return RGB(clampByte(rest[1]), clampByte(rest[2]), clampByte(rest[3])), 4, true
	default:
		return Color{}, 0, false
	}
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func (p *Parser) oscString(b byte) {
	switch {
	case b == 0x07: // BEL terminator
		p.dispatchOSC()
		p.state = stateGround
	case b == 0x1B:
		// Likely ST (ESC \); the escape state consumes the backslash as
		// an unknown single and returns to ground.
		p.dispatchOSC()
		p.state = stateEscape
	case b == 0x18, b == 0x1A:
		p.state = stateGround
	default:
		if len(p.osc) < 4096 {
			p.osc = append(p.osc, b)
		}
	}
}

func (p *Parser) dispatchOSC() {
	data := p.osc
	p.osc = nil

	var cmd int
	i := 0
	for ; i < len(data) && data[i] >= '0' && data[i] <= '9'; i++ {
		cmd = cmd*10 + int(data[i]-'0')
	}
	if i >= len(data) || data[i] != ';' {
		return
	}
	payload := string(data[i+1:])

	switch cmd {
	case 0, 1, 2: // icon name and/or window title
		if p.hooks.OnTitle != nil {
			p.hooks.OnTitle(payload)
		}
	}
}

func (p *Parser) dcs(b byte) {
	switch b {
	case 0x1B:
		p.state = stateEscape
	case 0x18, 0x1A:
		p.state = stateGround
	default:
		// Passthrough content is discarded.
	}
}
