package terminal_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shellgrid/shellgrid/internal/terminal"
)

func writeString(b *terminal.ScreenBuffer, s string) {
	for _, r := range s {
		b.WriteRune(r)
	}
}

func rowText(b *terminal.ScreenBuffer, row, from, to int) string {
	var out []rune
	for c := from; c <= to; c++ {
		out = append(out, b.Cell(row, c).Rune)
	}
	return string(out)
}

func TestScreenBuffer(t *testing.T) {
	t.Run("dimensions clamp to minimum", func(t *testing.T) {
		b := terminal.NewScreenBuffer(0, -3, 100)
		cols, rows := b.Size()
		assert.Equal(t, 1, cols)
		assert.Equal(t, 1, rows)
	})

	t.Run("writes advance the cursor", func(t *testing.T) {
		b := terminal.NewScreenBuffer(80, 24, 100)
		writeString(b, "Hi")
		assert.Equal(t, 'H', b.Cell(0, 0).Rune)
		assert.Equal(t, 'i', b.Cell(0, 1).Rune)
		row, col := b.Cursor()
		assert.Equal(t, 0, row)
		assert.Equal(t, 2, col)
	})

	t.Run("pending wrap is deferred", func(t *testing.T) {
		b := terminal.NewScreenBuffer(4, 3, 100)
		writeString(b, "abcd")

		// The cursor must report the last column until the next
		// printable character arrives.
		row, col := b.Cursor()
		assert.Equal(t, 0, row)
		assert.Equal(t, 3, col)

		b.WriteRune('e')
		row, col = b.Cursor()
		assert.Equal(t, 1, row)
		assert.Equal(t, 1, col)
		assert.Equal(t, 'e', b.Cell(1, 0).Rune)
	})

	t.Run("autowrap off overwrites the last column", func(t *testing.T) {
		b := terminal.NewScreenBuffer(4, 3, 100)
		b.SetAutoWrap(false)
		writeString(b, "abcdef")
		row, col := b.Cursor()
		assert.Equal(t, 0, row)
		assert.Equal(t, 3, col)
		assert.Equal(t, 'f', b.Cell(0, 3).Rune)
	})

	t.Run("insert mode shifts the remainder right", func(t *testing.T) {
		b := terminal.NewScreenBuffer(10, 3, 100)
		writeString(b, "world")
		b.MoveCursorTo(0, 0)
		b.SetInsertMode(true)
		writeString(b, "go")
		assert.Equal(t, "goworld", rowText(b, 0, 0, 6))
	})

	t.Run("line feed scrolls at region bottom", func(t *testing.T) {
		b := terminal.NewScreenBuffer(10, 4, 100)
		b.SetScrollRegion(1, 2)
		b.MoveCursorTo(0, 0)
		writeString(b, "header")
		b.MoveCursorTo(2, 0)
		writeString(b, "last")
		b.MoveCursorTo(2, 0)
		b.LineFeed()

		// Row 0 is outside the region and must not move.
		assert.Equal(t, "header", rowText(b, 0, 0, 5))
		assert.Equal(t, "last", rowText(b, 1, 0, 3))
		assert.Equal(t, ' ', b.Cell(2, 0).Rune)
	})

	t.Run("reverse index scrolls down at region top", func(t *testing.T) {
		b := terminal.NewScreenBuffer(10, 4, 100)
		b.MoveCursorTo(0, 0)
		writeString(b, "top")
		b.ReverseIndex()
		assert.Equal(t, ' ', b.Cell(0, 0).Rune)
		assert.Equal(t, "top", rowText(b, 1, 0, 2))
	})

	t.Run("erase backfills with current attributes", func(t *testing.T) {
		b := terminal.NewScreenBuffer(10, 3, 100)
		attr := terminal.DefaultAttributes()
		attr.BG = terminal.NamedColor(4)
		b.SetAttributes(attr)
		b.EraseInLine(2)
		assert.Equal(t, terminal.NamedColor(4), b.Cell(0, 5).Attr.BG)
	})

	t.Run("scrollback retains most recent rows oldest first", func(t *testing.T) {
		b := terminal.NewScreenBuffer(8, 2, 3)
		for i := 0; i < 6; i++ {
			b.MoveCursorTo(0, 0)
			b.WriteRune(rune('0' + i))
			b.ScrollUp(1)
		}
		require.Equal(t, 3, b.ScrollbackLen())
		// Rows 0..2 were evicted past the cap; 3..5 remain in order.
		assert.Equal(t, '3', b.ScrollbackRow(0)[0].Rune)
		assert.Equal(t, '4', b.ScrollbackRow(1)[0].Rune)
		assert.Equal(t, '5', b.ScrollbackRow(2)[0].Rune)
	})

	t.Run("alternate grid does not feed scrollback", func(t *testing.T) {
		b := terminal.NewScreenBuffer(8, 2, 10)
		b.EnableAlternateScreen()
		b.ScrollUp(5)
		assert.Zero(t, b.ScrollbackLen())
		b.DisableAlternateScreen()
	})

	t.Run("erase display mode 3 clears scrollback", func(t *testing.T) {
		b := terminal.NewScreenBuffer(8, 2, 10)
		b.ScrollUp(4)
		require.Equal(t, 4, b.ScrollbackLen())
		b.EraseInDisplay(3)
		assert.Zero(t, b.ScrollbackLen())
	})

	t.Run("resize preserves the overlapping rectangle", func(t *testing.T) {
		b := terminal.NewScreenBuffer(80, 24, 100)
		b.MoveCursorTo(0, 0)
		writeString(b, "keep me")
		b.MoveCursorTo(23, 79)

		b.Resize(40, 10)
		cols, rows := b.Size()
		assert.Equal(t, 40, cols)
		assert.Equal(t, 10, rows)
		assert.Equal(t, "keep me", rowText(b, 0, 0, 6))

		row, col := b.Cursor()
		assert.Equal(t, 9, row)
		assert.Equal(t, 39, col)

		top, bottom := b.ScrollRegion()
		assert.Equal(t, 0, top)
		assert.Equal(t, 9, bottom)
	})

	t.Run("version increments on mutation", func(t *testing.T) {
		b := terminal.NewScreenBuffer(10, 3, 100)
		v := b.Version()
		b.WriteRune('x')
		assert.Greater(t, b.Version(), v)
		v = b.Version()
		b.EraseInLine(2)
		assert.Greater(t, b.Version(), v)
	})

	t.Run("origin mode clamps addressing into the region", func(t *testing.T) {
		b := terminal.NewScreenBuffer(10, 10, 100)
		b.SetScrollRegion(2, 6)
		b.SetOriginMode(true)
		b.MoveCursorTo(0, 0)
		row, _ := b.Cursor()
		assert.Equal(t, 2, row)
		b.MoveCursorTo(99, 0)
		row, _ = b.Cursor()
		assert.Equal(t, 6, row)
	})

	t.Run("insert and delete lines stay inside the region", func(t *testing.T) {
		b := terminal.NewScreenBuffer(10, 4, 100)
		for r := 0; r < 4; r++ {
			b.MoveCursorTo(r, 0)
			b.WriteRune(rune('a' + r))
		}
		b.SetScrollRegion(1, 2)
		b.MoveCursorTo(1, 0)
		b.InsertLines(1)
		assert.Equal(t, 'a', b.Cell(0, 0).Rune)
		assert.Equal(t, ' ', b.Cell(1, 0).Rune)
		assert.Equal(t, 'b', b.Cell(2, 0).Rune)
		assert.Equal(t, 'd', b.Cell(3, 0).Rune)

		b.MoveCursorTo(1, 0)
		b.DeleteLines(1)
		assert.Equal(t, 'b', b.Cell(1, 0).Rune)
		assert.Equal(t, ' ', b.Cell(2, 0).Rune)
	})

	t.Run("delete chars shifts left and backfills", func(t *testing.T) {
		b := terminal.NewScreenBuffer(6, 2, 100)
		writeString(b, "abcdef")
		b.MoveCursorTo(0, 1)
		b.DeleteChars(2)
		assert.Equal(t, "adef  ", rowText(b, 0, 0, 5))
	})
}

func TestPaletteColors(t *testing.T) {
	assert.Equal(t, terminal.RGB(255, 0, 0), terminal.PaletteColor(196))
	assert.Equal(t, terminal.RGB(128, 128, 128), terminal.PaletteColor(244))
	assert.Equal(t, terminal.NamedColor(1), terminal.PaletteColor(1))
	assert.Equal(t, terminal.RGB(0, 0, 0), terminal.PaletteColor(16))
	assert.Equal(t, terminal.RGB(255, 255, 255), terminal.PaletteColor(231))
}
