package terminal

// Color is a concrete 24-bit color. Named 16-color selections, 256-palette
// indices, and true-color SGR parameters all resolve to a Color at write
// time; Default marks the terminal's default foreground/background, which
// only the renderer can resolve.
type Color struct {
	R, G, B uint8
	Default bool
}

// RGB builds a concrete color from components.
func RGB(r, g, b uint8) Color {
	return Color{R: r, G: g, B: b}
}

// DefaultColor returns the renderer-resolved default color marker.
func DefaultColor() Color {
	return Color{Default: true}
}

// The 16 standard colors (Tango scheme, matching common xterm-256color
// renderers). Index order follows SGR 30-37 then 90-97.
var namedColors = [16]Color{
	{R: 0x00, G: 0x00, B: 0x00}, // black
	{R: 0xCC, G: 0x00, B: 0x00}, // red
	{R: 0x4E, G: 0x9A, B: 0x06}, // green
	{R: 0xC4, G: 0xA0, B: 0x00}, // yellow
	{R: 0x34, G: 0x65, B: 0xA4}, // blue
	{R: 0x75, G: 0x50, B: 0x7B}, // magenta
	{R: 0x06, G: 0x98, B: 0x9A}, // cyan
	{R: 0xD3, G: 0xD7, B: 0xCF}, // white
	{R: 0x55, G: 0x57, B: 0x53}, // bright black
	{R: 0xEF, G: 0x29, B: 0x29}, // bright red
	{R: 0x8A, G: 0xE2, B: 0x34}, // bright green
	{R: 0xFC, G: 0xE9, B: 0x4F}, // bright yellow
	{R: 0x72, G: 0x9F, B: 0xCF}, // bright blue
	{R: 0xAD, G: 0x7F, B: 0xA8}, // bright magenta
	{R: 0x34, G: 0xE2, B: 0xE2}, // bright cyan
	{R: 0xEE, G: 0xEE, B: 0xEC}, // bright white
}

// NamedColor resolves one of the 16 standard colors. Out-of-range indices
// clamp to white.
func NamedColor(n int) Color {
	if n < 0 || n >= len(namedColors) {
		return namedColors[7]
	}
	return namedColors[n]
}

// PaletteColor resolves a 256-color palette index. Indices 0-15 are the
// named colors; 16-231 form a 6x6x6 color cube and 232-255 a grayscale
// ramp, both computed rather than tabulated.
func PaletteColor(n int) Color {
	switch {
	case n < 0:
		return namedColors[0]
	case n < 16:
		return namedColors[n]
	case n < 232:
		idx := n - 16
		return Color{
			R: uint8((idx / 36) * 51),
			G: uint8(((idx % 36) / 6) * 51),
			B: uint8((idx % 6) * 51),
		}
	case n < 256:
		gray := uint8(8 + (n-232)*10)
		return Color{R: gray, G: gray, B: gray}
	default:
		return namedColors[15]
	}
}

// Attributes describes how a cell is rendered. It is a plain value type;
// SGR processing copies and mutates, so committed cells never change when
// the pen does.
type Attributes struct {
	FG            Color
	BG            Color
	Bold          bool
	Dim           bool
	Italic        bool
	Underline     bool
	Blink         bool
	Inverse       bool
	Hidden        bool
	Strikethrough bool
}

// DefaultAttributes returns the attribute record of an untouched terminal.
func DefaultAttributes() Attributes {
	return Attributes{FG: DefaultColor(), BG: DefaultColor()}
}

// Cell is one character position in the grid.
type Cell struct {
	Rune rune
	Attr Attributes
}

// blankCell returns an empty cell carrying the given attributes. Erase and
// shift operations backfill with the current pen, not the default one.
func blankCell(attr Attributes) Cell {
	return Cell{Rune: ' ', Attr: attr}
}
