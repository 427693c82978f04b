package terminal_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shellgrid/shellgrid/internal/terminal"
)

type hookRecorder struct {
	bells     int
	titles    []string
	responses []string
}

func (h *hookRecorder) hooks() terminal.Hooks {
	return terminal.Hooks{
		OnBell:     func() { h.bells++ },
		OnTitle:    func(title string) { h.titles = append(h.titles, title) },
		OnResponse: func(payload string) { h.responses = append(h.responses, payload) },
	}
}

func newParser(cols, rows int) (*terminal.Parser, *terminal.ScreenBuffer, *hookRecorder) {
	buf := terminal.NewScreenBuffer(cols, rows, 100)
	rec := &hookRecorder{}
	return terminal.NewParser(buf, rec.hooks()), buf, rec
}

func feed(p *terminal.Parser, s string) {
	p.Parse([]byte(s))
}

func TestParserText(t *testing.T) {
	t.Run("plain text with control characters", func(t *testing.T) {
		p, buf, _ := newParser(20, 5)
		feed(p, "ab\r\ncd")
		assert.Equal(t, 'a', buf.Cell(0, 0).Rune)
		assert.Equal(t, 'b', buf.Cell(0, 1).Rune)
		assert.Equal(t, 'c', buf.Cell(1, 0).Rune)
		assert.Equal(t, 'd', buf.Cell(1, 1).Rune)
	})

	t.Run("utf8 rune split across chunks", func(t *testing.T) {
		p, buf, _ := newParser(20, 5)
		p.Parse([]byte{0xC3})
		p.Parse([]byte{0xA9}) // é
		assert.Equal(t, 'é', buf.Cell(0, 0).Rune)
	})

	t.Run("truncated utf8 rune is dropped", func(t *testing.T) {
		p, buf, _ := newParser(20, 5)
		p.Parse([]byte{0xE2, 0x82}) // first two bytes of €
		feed(p, "x")
		assert.Equal(t, 'x', buf.Cell(0, 0).Rune)
	})

	t.Run("DEL is discarded", func(t *testing.T) {
		p, buf, _ := newParser(20, 5)
		feed(p, "a\x7fb")
		assert.Equal(t, 'a', buf.Cell(0, 0).Rune)
		assert.Equal(t, 'b', buf.Cell(0, 1).Rune)
		_, col := buf.Cursor()
		assert.Equal(t, 2, col)
	})

	t.Run("bell fires the hook", func(t *testing.T) {
		p, _, rec := newParser(20, 5)
		feed(p, "a\x07b\x07")
		assert.Equal(t, 2, rec.bells)
	})
}

func TestParserSGR(t *testing.T) {
	t.Run("named red then reset", func(t *testing.T) {
		p, buf, _ := newParser(20, 5)
		feed(p, "\x1b[31mHi\x1b[0m ")

		want := terminal.Color{R: 0xCC, G: 0x00, B: 0x00}
		assert.Equal(t, want, buf.Cell(0, 0).Attr.FG)
		assert.Equal(t, want, buf.Cell(0, 1).Attr.FG)
		assert.True(t, buf.Cell(0, 2).Attr.FG.Default)
	})

	t.Run("palette foreground 38;5", func(t *testing.T) {
		p, buf, _ := newParser(20, 5)
		feed(p, "\x1b[38;5;196mx")
		assert.Equal(t, terminal.RGB(255, 0, 0), buf.Cell(0, 0).Attr.FG)

		feed(p, "\x1b[38;5;244my")
		assert.Equal(t, terminal.RGB(128, 128, 128), buf.Cell(0, 1).Attr.FG)
	})

	t.Run("truecolor background 48;2", func(t *testing.T) {
		p, buf, _ := newParser(20, 5)
		feed(p, "\x1b[48;2;12;34;56mx")
		assert.Equal(t, terminal.RGB(12, 34, 56), buf.Cell(0, 0).Attr.BG)
	})

	t.Run("attribute flags accumulate and clear", func(t *testing.T) {
		p, buf, _ := newParser(20, 5)
		feed(p, "\x1b[1;4;7ma")
		attr := buf.Cell(0, 0).Attr
		assert.True(t, attr.Bold)
		assert.True(t, attr.Underline)
		assert.True(t, attr.Inverse)

		feed(p, "\x1b[22;24;27mb")
		attr = buf.Cell(0, 1).Attr
		assert.False(t, attr.Bold)
		assert.False(t, attr.Underline)
		assert.False(t, attr.Inverse)
	})

	t.Run("empty SGR resets", func(t *testing.T) {
		p, buf, _ := newParser(20, 5)
		feed(p, "\x1b[31m\x1b[mz")
		assert.True(t, buf.Cell(0, 0).Attr.FG.Default)
	})

	t.Run("malformed extended color stops the sequence", func(t *testing.T) {
		p, buf, _ := newParser(20, 5)
		feed(p, "\x1b[38;9mx")
		assert.True(t, buf.Cell(0, 0).Attr.FG.Default)
	})

	t.Run("bright named colors", func(t *testing.T) {
		p, buf, _ := newParser(20, 5)
		feed(p, "\x1b[91mx")
		assert.Equal(t, terminal.NamedColor(9), buf.Cell(0, 0).Attr.FG)
	})
}

func TestParserCursorMovement(t *testing.T) {
	p, buf, _ := newParser(80, 24)

	feed(p, "\x1b[4;6H")
	row, col := buf.Cursor()
	assert.Equal(t, 3, row)
	assert.Equal(t, 5, col)

	feed(p, "\x1b[2A\x1b[3C")
	row, col = buf.Cursor()
	assert.Equal(t, 1, row)
	assert.Equal(t, 8, col)

	// Zero and missing parameters default to one.
	feed(p, "\x1b[0B\x1b[D")
	row, col = buf.Cursor()
	assert.Equal(t, 2, row)
	assert.Equal(t, 7, col)

	feed(p, "\x1b[H")
	row, col = buf.Cursor()
	assert.Zero(t, row)
	assert.Zero(t, col)

	feed(p, "\x1b[10G\x1b[5d")
	row, col = buf.Cursor()
	assert.Equal(t, 4, row)
	assert.Equal(t, 9, col)
}

func TestParserDeviceQueries(t *testing.T) {
	t.Run("cursor position report", func(t *testing.T) {
		p, _, rec := newParser(80, 24)
		feed(p, "\x1b[4;6H\x1b[6n")
		require.Len(t, rec.responses, 1)
		assert.Equal(t, "\x1b[4;6R", rec.responses[0])
	})

	t.Run("operating status", func(t *testing.T) {
		p, _, rec := newParser(80, 24)
		feed(p, "\x1b[5n")
		require.Len(t, rec.responses, 1)
		assert.Equal(t, "\x1b[0n", rec.responses[0])
	})

	t.Run("device attributes", func(t *testing.T) {
		p, _, rec := newParser(80, 24)
		feed(p, "\x1b[c")
		require.Len(t, rec.responses, 1)
		assert.Equal(t, "\x1b[?6c", rec.responses[0])
	})
}

func TestParserPrivateModes(t *testing.T) {
	t.Run("alternate screen 1049 round trip", func(t *testing.T) {
		p, buf, _ := newParser(40, 10)
		feed(p, "before")
		feed(p, "\x1b[3;4H")

		feed(p, "\x1b[?1049h")
		assert.True(t, buf.AlternateActive())
		row, col := buf.Cursor()
		assert.Equal(t, 2, row)
		assert.Equal(t, 3, col)
		feed(p, "\x1b[Hfullscreen app")
		assert.Equal(t, 'f', buf.Cell(0, 0).Rune)

		feed(p, "\x1b[?1049l")
		assert.False(t, buf.AlternateActive())
		assert.Equal(t, 'b', buf.Cell(0, 0).Rune)
		row, col = buf.Cursor()
		assert.Equal(t, 2, row)
		assert.Equal(t, 3, col)
	})

	t.Run("cursor visibility", func(t *testing.T) {
		p, buf, _ := newParser(40, 10)
		feed(p, "\x1b[?25l")
		assert.False(t, buf.CursorVisible())
		feed(p, "\x1b[?25h")
		assert.True(t, buf.CursorVisible())
	})

	t.Run("application cursor keys and bracketed paste", func(t *testing.T) {
		p, _, _ := newParser(40, 10)
		feed(p, "\x1b[?1h\x1b[?2004h")
		assert.True(t, p.ApplicationCursorKeys())
		assert.True(t, p.BracketedPaste())
		feed(p, "\x1b[?1l\x1b[?2004l")
		assert.False(t, p.ApplicationCursorKeys())
		assert.False(t, p.BracketedPaste())
	})

	t.Run("multiple modes in one sequence", func(t *testing.T) {
		p, buf, _ := newParser(4, 10)
		feed(p, "\x1b[?25;7l")
		assert.False(t, buf.CursorVisible())

		// Autowrap went off in the same sequence: the last column now
		// overwrites instead of wrapping.
		feed(p, "abcdef")
		row, col := buf.Cursor()
		assert.Zero(t, row)
		assert.Equal(t, 3, col)
		assert.Equal(t, 'f', buf.Cell(0, 3).Rune)
	})
}

func TestParserScrollRegion(t *testing.T) {
	p, buf, _ := newParser(80, 24)
	feed(p, "\x1b[2;5r")
	top, bottom := buf.ScrollRegion()
	assert.Equal(t, 1, top)
	assert.Equal(t, 4, bottom)

	// Bare DECSTBM resets to the full screen.
	feed(p, "\x1b[r")
	top, bottom = buf.ScrollRegion()
	assert.Equal(t, 0, top)
	assert.Equal(t, 23, bottom)
}

func TestParserMalformedInput(t *testing.T) {
	t.Run("unknown intermediate sequence is absorbed", func(t *testing.T) {
		p, buf, _ := newParser(20, 5)
		feed(p, "\x1b[1 qok")
		assert.Equal(t, 'o', buf.Cell(0, 0).Rune)
		assert.Equal(t, 'k', buf.Cell(0, 1).Rune)
	})

	t.Run("colon parameter falls into ignore", func(t *testing.T) {
		p, buf, _ := newParser(20, 5)
		feed(p, "\x1b[38:5:196mok")
		assert.Equal(t, 'o', buf.Cell(0, 0).Rune)
		assert.True(t, buf.Cell(0, 0).Attr.FG.Default)
	})

	t.Run("CAN aborts a sequence", func(t *testing.T) {
		p, buf, _ := newParser(20, 5)
		feed(p, "\x1b[12\x18ok")
		assert.Equal(t, 'o', buf.Cell(0, 0).Rune)
	})

	t.Run("C0 executes inside a control sequence", func(t *testing.T) {
		p, buf, _ := newParser(20, 5)
		feed(p, "ab\x1b[\rK")
		assert.Equal(t, ' ', buf.Cell(0, 0).Rune)
		assert.Equal(t, ' ', buf.Cell(0, 1).Rune)
	})

	t.Run("sequence split across chunks", func(t *testing.T) {
		p, buf, _ := newParser(20, 5)
		feed(p, "\x1b[3")
		feed(p, "1m")
		feed(p, "x")
		assert.Equal(t, terminal.Color{R: 0xCC}, buf.Cell(0, 0).Attr.FG)
	})

	t.Run("dcs content is discarded", func(t *testing.T) {
		p, buf, _ := newParser(20, 5)
		feed(p, "\x1bPsecret payload\x1b\\ok")
		assert.Equal(t, 'o', buf.Cell(0, 0).Rune)
	})
}

func TestParserOSC(t *testing.T) {
	t.Run("title via BEL terminator", func(t *testing.T) {
		p, _, rec := newParser(20, 5)
		feed(p, "\x1b]0;hello world\x07")
		require.Len(t, rec.titles, 1)
		assert.Equal(t, "hello world", rec.titles[0])
	})

	t.Run("title via string terminator", func(t *testing.T) {
		p, _, rec := newParser(20, 5)
		feed(p, "\x1b]2;other\x1b\\")
		require.Len(t, rec.titles, 1)
		assert.Equal(t, "other", rec.titles[0])
	})

	t.Run("unknown commands are dropped", func(t *testing.T) {
		p, _, rec := newParser(20, 5)
		feed(p, "\x1b]52;c;aGk=\x07")
		assert.Empty(t, rec.titles)
	})
}

func TestParserReset(t *testing.T) {
	t.Run("RIS restores power-on state", func(t *testing.T) {
		p, buf, _ := newParser(20, 5)
		feed(p, "\x1b[31mtext\x1b[?1049h")
		feed(p, "\x1bc")
		assert.False(t, buf.AlternateActive())
		assert.Equal(t, ' ', buf.Cell(0, 0).Rune)
		row, col := buf.Cursor()
		assert.Zero(t, row)
		assert.Zero(t, col)
	})

	t.Run("Reset drops a partial sequence", func(t *testing.T) {
		p, buf, _ := newParser(20, 5)
		feed(p, "\x1b[3")
		p.Reset()
		feed(p, "ok")
		assert.Equal(t, 'o', buf.Cell(0, 0).Rune)
		assert.Equal(t, 'k', buf.Cell(0, 1).Rune)
	})
}
