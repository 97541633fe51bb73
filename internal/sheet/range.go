package sheet

// Range is a half-open, 0-based window [Lo, Hi) over data rows.
type Range struct {
	Lo int
	Hi int
}

// ResolveRange turns an inclusive 1-based [start, end] selection into a Range.
// A zero start means the first row and a zero end means the last. Bounds are
// clamped to [1, total]; an inverted selection is empty.
func ResolveRange(start, end, total int) Range {
	lo := start - 1
	if lo < 0 {
		lo = 0
	}
	hi := total
	if end > 0 && end < total {
		hi = end
	}
	if lo > hi {
		lo = hi
	}
	return Range{Lo: lo, Hi: hi}
}

// Len is the number of rows in the window.
func (r Range) Len() int { return r.Hi - r.Lo }

// Empty reports whether the window selects nothing.
func (r Range) Empty() bool { return r.Len() <= 0 }

// Offset is i's 0-based position within the window.
func (r Range) Offset(i int) int { return i - r.Lo }

// Slice returns the rows inside the window.
func (r Range) Slice(rows []Row) []Row {
	if r.Empty() {
		return nil
	}
	return rows[r.Lo:r.Hi]
}
