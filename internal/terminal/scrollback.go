package terminal

// scrollback is a bounded ring of rows evicted from the top of the primary
// grid's scroll region. Push and eviction are O(1) amortized: once the ring
// is full the oldest slot is overwritten in place instead of shifting.
type scrollback struct {
	rows  [][]Cell
	head  int // index of the oldest row
	count int
	max   int
}

func newScrollback(max int) *scrollback {
	if max < 0 {
		max = 0
	}
	return &scrollback{max: max}
}

// push appends a row, evicting the oldest once the cap is reached. The row
// is retained by reference; callers must hand over ownership.
func (s *scrollback) push(row []Cell) {
	if s.max == 0 {
		return
	}
	if s.count < s.max {
		s.rows = append(s.rows, row)
		s.count++
		return
	}
	s.rows[s.head] = row
	s.head = (s.head + 1) % s.max
}

// len reports the number of retained rows.
func (s *scrollback) len() int {
	return s.count
}

// row returns the i-th retained row, oldest first.
func (s *scrollback) row(i int) []Cell {
	if i < 0 || i >= s.count {
		return nil
	}
	return s.rows[(s.head+i)%len(s.rows)]
}

// clear drops all retained rows.
func (s *scrollback) clear() {
	s.rows = nil
	s.head = 0
	s.count = 0
}
