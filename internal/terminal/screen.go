package terminal

// ScreenBuffer models the visible grid, cursor, scroll region, and
// scrollback of one terminal session. It keeps two grids (primary and
// alternate) with exactly one active at a time.
//
// ScreenBuffer is not internally synchronized: all mutation for a session
// must come from a single writer, normally the goroutine feeding parser
// input for that session.
type ScreenBuffer struct {
	cols, rows int

	primary   [][]Cell
	alternate [][]Cell
	altActive bool

	cursorRow     int
	cursorCol     int
	cursorVisible bool
	pendingWrap   bool

	attr Attributes

	scrollTop    int
	scrollBottom int

	originMode bool
	autoWrap   bool
	insertMode bool

	saved *savedCursor

	history *scrollback

	version uint64
}

type savedCursor struct {
	row, col    int
	attr        Attributes
	pendingWrap bool
	originMode  bool
}

// DefaultScrollbackCap bounds retained history rows unless overridden.
const DefaultScrollbackCap = 10000

// NewScreenBuffer allocates a buffer of the given size. Dimensions below
// 1x1 are clamped up; a negative scrollback cap disables history.
func NewScreenBuffer(cols, rows, scrollbackCap int) *ScreenBuffer {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	if scrollbackCap < 0 {
		scrollbackCap = 0
	}
	b := &ScreenBuffer{
		cols:          cols,
		rows:          rows,
		cursorVisible: true,
		autoWrap:      true,
		attr:          DefaultAttributes(),
		scrollBottom:  rows - 1,
		history:       newScrollback(scrollbackCap),
	}
	b.primary = newGrid(cols, rows)
	b.alternate = newGrid(cols, rows)
	return b
}

func newGrid(cols, rows int) [][]Cell {
	g := make([][]Cell, rows)
	for r := range g {
		g[r] = blankRow(cols, DefaultAttributes())
	}
	return g
}

func blankRow(cols int, attr Attributes) []Cell {
	row := make([]Cell, cols)
	for c := range row {
		row[c] = blankCell(attr)
	}
	return row
}

func (b *ScreenBuffer) active() [][]Cell {
	if b.altActive {
		return b.alternate
	}
	return b.primary
}

func (b *ScreenBuffer) touch() {
	b.version++
}

// Version returns a counter that increments on every mutation. Consumers
// compare it against the last rendered value to detect changes cheaply.
func (b *ScreenBuffer) Version() uint64 {
	return b.version
}

// Size returns the grid dimensions.
func (b *ScreenBuffer) Size() (cols, rows int) {
	return b.cols, b.rows
}

// Cell returns the cell at the given position of the active grid.
// Out-of-range positions return a default blank cell.
func (b *ScreenBuffer) Cell(row, col int) Cell {
	if row < 0 || row >= b.rows || col < 0 || col >= b.cols {
		return blankCell(DefaultAttributes())
	}
	return b.active()[row][col]
}

// Cursor returns the current cursor position, zero-indexed.
func (b *ScreenBuffer) Cursor() (row, col int) {
	return b.cursorRow, b.cursorCol
}

// CursorVisible reports the DECTCEM visibility flag.
func (b *ScreenBuffer) CursorVisible() bool {
	return b.cursorVisible
}

// AlternateActive reports whether the alternate grid is displayed.
func (b *ScreenBuffer) AlternateActive() bool {
	return b.altActive
}

// Attributes returns the current pen.
func (b *ScreenBuffer) Attributes() Attributes {
	return b.attr
}

// SetAttributes replaces the current pen. Committed cells are unaffected.
func (b *ScreenBuffer) SetAttributes(a Attributes) {
	b.attr = a
}

// ScrollRegion returns the inclusive top/bottom bounds.
func (b *ScreenBuffer) ScrollRegion() (top, bottom int) {
	return b.scrollTop, b.scrollBottom
}

// ScrollbackLen reports the number of retained history rows.
func (b *ScreenBuffer) ScrollbackLen() int {
	return b.history.len()
}

// ScrollbackRow returns the i-th history row, oldest first.
func (b *ScreenBuffer) ScrollbackRow(i int) []Cell {
	return b.history.row(i)
}

// SetAutoWrap toggles DECAWM.
func (b *ScreenBuffer) SetAutoWrap(on bool) {
	b.autoWrap = on
}

// SetOriginMode toggles DECOM. Entering or leaving origin mode homes the
// cursor, per DEC semantics.
func (b *ScreenBuffer) SetOriginMode(on bool) {
	b.originMode = on
	b.MoveCursorTo(0, 0)
}

// SetInsertMode toggles IRM.
func (b *ScreenBuffer) SetInsertMode(on bool) {
	b.insertMode = on
}

// SetCursorVisible toggles DECTCEM.
func (b *ScreenBuffer) SetCursorVisible(on bool) {
	if b.cursorVisible != on {
		b.cursorVisible = on
		b.touch()
	}
}

// WriteRune writes one printable character at the cursor, honoring pending
// wrap, insert mode, and autowrap. Writing the last column defers the wrap:
// the cursor stays put and the wrap happens before the next printable
// character, so position queries between writes see the last column.
func (b *ScreenBuffer) WriteRune(r rune) {
	if b.pendingWrap {
		b.pendingWrap = false
		if b.autoWrap {
			b.cursorCol = 0
			b.lineFeedInternal()
		}
	}

	grid := b.active()
	row := grid[b.cursorRow]

	if b.insertMode && b.cursorCol < b.cols-1 {
		copy(row[b.cursorCol+1:], row[b.cursorCol:b.cols-1])
	}
	row[b.cursorCol] = Cell{Rune: r, Attr: b.attr}

	if b.cursorCol < b.cols-1 {
		b.cursorCol++
	} else {
		b.pendingWrap = true
	}
	b.touch()
}

// CarriageReturn moves the cursor to column zero.
func (b *ScreenBuffer) CarriageReturn() {
	b.cursorCol = 0
	b.pendingWrap = false
	b.touch()
}

// Backspace moves the cursor one column left, stopping at the margin.
func (b *ScreenBuffer) Backspace() {
	if b.cursorCol > 0 {
		b.cursorCol--
	}
	b.pendingWrap = false
	b.touch()
}

// Tab advances the cursor to the next 8-column tab stop.
func (b *ScreenBuffer) Tab() {
	next := (b.cursorCol/8 + 1) * 8
	if next > b.cols-1 {
		next = b.cols - 1
	}
	b.cursorCol = next
	b.pendingWrap = false
	b.touch()
}

// LineFeed moves the cursor down one row, scrolling when at the bottom of
// the scroll region.
func (b *ScreenBuffer) LineFeed() {
	b.lineFeedInternal()
	b.touch()
}

func (b *ScreenBuffer) lineFeedInternal() {
	b.pendingWrap = false
	switch {
	case b.cursorRow == b.scrollBottom:
		b.scrollUpInternal(1)
	case b.cursorRow < b.rows-1:
		b.cursorRow++
	}
}

// ReverseIndex moves the cursor up one row, scrolling down when at the top
// of the scroll region.
func (b *ScreenBuffer) ReverseIndex() {
	b.pendingWrap = false
	switch {
	case b.cursorRow == b.scrollTop:
		b.scrollDownInternal(1)
	case b.cursorRow > 0:
		b.cursorRow--
	}
	b.touch()
}

// NextLine implements NEL: carriage return plus line feed.
func (b *ScreenBuffer) NextLine() {
	b.cursorCol = 0
	b.lineFeedInternal()
	b.touch()
}

// MoveCursorTo addresses the cursor. Under origin mode the row is relative
// to the scroll region top and clamped inside the region; otherwise it is
// clamped to the full grid.
func (b *ScreenBuffer) MoveCursorTo(row, col int) {
	if b.originMode {
		row += b.scrollTop
		row = clamp(row, b.scrollTop, b.scrollBottom)
	} else {
		row = clamp(row, 0, b.rows-1)
	}
	b.cursorRow = row
	b.cursorCol = clamp(col, 0, b.cols-1)
	b.pendingWrap = false
	b.touch()
}

// MoveCursorUp moves n rows up, stopping at the scroll region top when the
// cursor starts inside the region.
func (b *ScreenBuffer) MoveCursorUp(n int) {
	limit := 0
	if b.cursorRow >= b.scrollTop {
		limit = b.scrollTop
	}
	b.cursorRow = clamp(b.cursorRow-n, limit, b.rows-1)
	b.pendingWrap = false
	b.touch()
}

// MoveCursorDown moves n rows down, stopping at the scroll region bottom
// when the cursor starts inside the region.
func (b *ScreenBuffer) MoveCursorDown(n int) {
	limit := b.rows - 1
	if b.cursorRow <= b.scrollBottom {
		limit = b.scrollBottom
	}
	b.cursorRow = clamp(b.cursorRow+n, 0, limit)
	b.pendingWrap = false
	b.touch()
}

// MoveCursorForward moves n columns right, clamped to the last column.
func (b *ScreenBuffer) MoveCursorForward(n int) {
	b.cursorCol = clamp(b.cursorCol+n, 0, b.cols-1)
	b.pendingWrap = false
	b.touch()
}

// MoveCursorBack moves n columns left, clamped to column zero.
func (b *ScreenBuffer) MoveCursorBack(n int) {
	b.cursorCol = clamp(b.cursorCol-n, 0, b.cols-1)
	b.pendingWrap = false
	b.touch()
}

// MoveCursorToCol addresses the column only (CHA).
func (b *ScreenBuffer) MoveCursorToCol(col int) {
	b.cursorCol = clamp(col, 0, b.cols-1)
	b.pendingWrap = false
	b.touch()
}

// MoveCursorToRow addresses the row only (VPA), origin-aware.
func (b *ScreenBuffer) MoveCursorToRow(row int) {
	if b.originMode {
		row += b.scrollTop
		row = clamp(row, b.scrollTop, b.scrollBottom)
	} else {
		row = clamp(row, 0, b.rows-1)
	}
	b.cursorRow = row
	b.pendingWrap = false
	b.touch()
}

// SaveCursor records the cursor position, pen, and wrap state (DECSC).
func (b *ScreenBuffer) SaveCursor() {
	b.saved = &savedCursor{
		row:         b.cursorRow,
		col:         b.cursorCol,
		attr:        b.attr,
		pendingWrap: b.pendingWrap,
		originMode:  b.originMode,
	}
}

// RestoreCursor restores the last saved cursor state (DECRC). With no saved
// state the cursor homes with default attributes, per DEC behavior.
func (b *ScreenBuffer) RestoreCursor() {
	if b.saved == nil {
		b.cursorRow, b.cursorCol = 0, 0
		b.attr = DefaultAttributes()
		b.pendingWrap = false
		b.touch()
		return
	}
	b.cursorRow = clamp(b.saved.row, 0, b.rows-1)
	b.cursorCol = clamp(b.saved.col, 0, b.cols-1)
	b.attr = b.saved.attr
	b.pendingWrap = b.saved.pendingWrap
	b.originMode = b.saved.originMode
	b.touch()
}

// SetScrollRegion sets the inclusive top/bottom scroll bounds (DECSTBM),
// clamping into the grid. An inverted or degenerate region resets to full
// screen. The cursor homes afterwards.
func (b *ScreenBuffer) SetScrollRegion(top, bottom int) {
	top = clamp(top, 0, b.rows-1)
	bottom = clamp(bottom, 0, b.rows-1)
	if top >= bottom {
		top, bottom = 0, b.rows-1
	}
	b.scrollTop = top
	b.scrollBottom = bottom
	b.MoveCursorTo(0, 0)
}

// ScrollUp shifts the scroll region up n rows. On the primary grid each row
// leaving the top of the region is pushed into scrollback.
func (b *ScreenBuffer) ScrollUp(n int) {
	b.scrollUpInternal(n)
	b.touch()
}

func (b *ScreenBuffer) scrollUpInternal(n int) {
	grid := b.active()
	for ; n > 0; n-- {
		if !b.altActive {
			evicted := grid[b.scrollTop]
			saved := make([]Cell, len(evicted))
			copy(saved, evicted)
			b.history.push(saved)
		}
		for r := b.scrollTop; r < b.scrollBottom; r++ {
			grid[r] = grid[r+1]
		}
		grid[b.scrollBottom] = blankRow(b.cols, b.attr)
	}
}

// ScrollDown shifts the scroll region down n rows, backfilling blank rows
// at the top. Nothing enters scrollback.
func (b *ScreenBuffer) ScrollDown(n int) {
	b.scrollDownInternal(n)
	b.touch()
}

func (b *ScreenBuffer) scrollDownInternal(n int) {
	grid := b.active()
	for ; n > 0; n-- {
		for r := b.scrollBottom; r > b.scrollTop; r-- {
			grid[r] = grid[r-1]
		}
		grid[b.scrollTop] = blankRow(b.cols, b.attr)
	}
}

// EraseInDisplay implements ED. Mode 0 erases cursor to end, 1 start to
// cursor inclusive, 2 the whole screen, 3 the whole screen plus scrollback.
func (b *ScreenBuffer) EraseInDisplay(mode int) {
	grid := b.active()
	switch mode {
	case 0:
		b.eraseLineRange(b.cursorRow, b.cursorCol, b.cols-1)
		for r := b.cursorRow + 1; r < b.rows; r++ {
			grid[r] = blankRow(b.cols, b.attr)
		}
	case 1:
		b.eraseLineRange(b.cursorRow, 0, b.cursorCol)
		for r := 0; r < b.cursorRow; r++ {
			grid[r] = blankRow(b.cols, b.attr)
		}
	case 2:
		for r := 0; r < b.rows; r++ {
			grid[r] = blankRow(b.cols, b.attr)
		}
	case 3:
		for r := 0; r < b.rows; r++ {
			grid[r] = blankRow(b.cols, b.attr)
		}
		b.history.clear()
	}
	b.pendingWrap = false
	b.touch()
}

// EraseInLine implements EL. Mode 0 erases cursor to end of line, 1 start
// to cursor inclusive, 2 the whole line.
func (b *ScreenBuffer) EraseInLine(mode int) {
	switch mode {
	case 0:
		b.eraseLineRange(b.cursorRow, b.cursorCol, b.cols-1)
	case 1:
		b.eraseLineRange(b.cursorRow, 0, b.cursorCol)
	case 2:
		b.eraseLineRange(b.cursorRow, 0, b.cols-1)
	}
	b.pendingWrap = false
	b.touch()
}

func (b *ScreenBuffer) eraseLineRange(row, from, to int) {
	line := b.active()[row]
	for c := from; c <= to && c < b.cols; c++ {
		line[c] = blankCell(b.attr)
	}
}

// InsertLines inserts n blank lines at the cursor row, shifting lines below
// it down within the scroll region (IL). No-op outside the region.
func (b *ScreenBuffer) InsertLines(n int) {
	if b.cursorRow < b.scrollTop || b.cursorRow > b.scrollBottom {
		return
	}
	grid := b.active()
	for ; n > 0; n-- {
		for r := b.scrollBottom; r > b.cursorRow; r-- {
			grid[r] = grid[r-1]
		}
		grid[b.cursorRow] = blankRow(b.cols, b.attr)
	}
	b.pendingWrap = false
	b.touch()
}

// DeleteLines deletes n lines at the cursor row, shifting lines below up
// within the scroll region and backfilling at the bottom (DL).
func (b *ScreenBuffer) DeleteLines(n int) {
	if b.cursorRow < b.scrollTop || b.cursorRow > b.scrollBottom {
		return
	}
	grid := b.active()
	for ; n > 0; n-- {
		for r := b.cursorRow; r < b.scrollBottom; r++ {
			grid[r] = grid[r+1]
		}
		grid[b.scrollBottom] = blankRow(b.cols, b.attr)
	}
	b.pendingWrap = false
	b.touch()
}

// InsertChars inserts n blank cells at the cursor, shifting the remainder
// of the line right (ICH). Cells pushed past the margin are lost.
func (b *ScreenBuffer) InsertChars(n int) {
	row := b.active()[b.cursorRow]
	for ; n > 0; n-- {
		copy(row[b.cursorCol+1:], row[b.cursorCol:b.cols-1])
		row[b.cursorCol] = blankCell(b.attr)
	}
	b.pendingWrap = false
	b.touch()
}

// DeleteChars deletes n cells at the cursor, shifting the remainder of the
// line left and backfilling at the margin (DCH).
func (b *ScreenBuffer) DeleteChars(n int) {
	row := b.active()[b.cursorRow]
	for ; n > 0; n-- {
		copy(row[b.cursorCol:], row[b.cursorCol+1:])
		row[b.cols-1] = blankCell(b.attr)
	}
	b.pendingWrap = false
	b.touch()
}

// EraseChars blanks n cells from the cursor without shifting (ECH).
func (b *ScreenBuffer) EraseChars(n int) {
	to := clamp(b.cursorCol+n-1, 0, b.cols-1)
	b.eraseLineRange(b.cursorRow, b.cursorCol, to)
	b.pendingWrap = false
	b.touch()
}

// EnableAlternateScreen switches to the alternate grid, freshly blanked.
// Mode 1049's save-cursor/erase composition is the parser's job; this is
// the bare switch used by modes 47 and 1047 as well.
func (b *ScreenBuffer) EnableAlternateScreen() {
	if b.altActive {
		return
	}
	b.alternate = newGrid(b.cols, b.rows)
	b.altActive = true
	b.pendingWrap = false
	b.touch()
}

// DisableAlternateScreen switches back to the primary grid, whose content
// is intact from before the switch.
func (b *ScreenBuffer) DisableAlternateScreen() {
	if !b.altActive {
		return
	}
	b.altActive = false
	b.pendingWrap = false
	b.touch()
}

// Resize reallocates both grids to the new dimensions, copying the
// overlapping top-left rectangle from each. The cursor clamps into the new
// bounds and the scroll region resets to full screen. Content outside the
// overlap is lost; no line reflow is attempted.
func (b *ScreenBuffer) Resize(cols, rows int) {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	if cols == b.cols && rows == b.rows {
		return
	}

	b.primary = resizeGrid(b.primary, b.cols, b.rows, cols, rows)
	b.alternate = resizeGrid(b.alternate, b.cols, b.rows, cols, rows)
	b.cols = cols
	b.rows = rows
	b.scrollTop = 0
	b.scrollBottom = rows - 1
	b.cursorRow = clamp(b.cursorRow, 0, rows-1)
	b.cursorCol = clamp(b.cursorCol, 0, cols-1)
	b.pendingWrap = false
	b.touch()
}

func resizeGrid(old [][]Cell, oldCols, oldRows, cols, rows int) [][]Cell {
	grid := newGrid(cols, rows)
	copyRows := oldRows
	if rows < copyRows {
		copyRows = rows
	}
	copyCols := oldCols
	if cols < copyCols {
		copyCols = cols
	}
	for r := 0; r < copyRows; r++ {
		copy(grid[r][:copyCols], old[r][:copyCols])
	}
	return grid
}

// Reset restores the power-on state: blank grids, primary active, cursor
// homed and visible, default pen and modes, full-screen scroll region.
// Scrollback is retained; only ED mode 3 clears it.
func (b *ScreenBuffer) Reset() {
	b.primary = newGrid(b.cols, b.rows)
	b.alternate = newGrid(b.cols, b.rows)
	b.altActive = false
	b.cursorRow, b.cursorCol = 0, 0
	b.cursorVisible = true
	b.pendingWrap = false
	b.attr = DefaultAttributes()
	b.scrollTop = 0
	b.scrollBottom = b.rows - 1
	b.originMode = false
	b.autoWrap = true
	b.insertMode = false
	b.saved = nil
	b.touch()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
