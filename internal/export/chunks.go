package export

// Range is an inclusive cadence range.
type Range struct {
	Start, End int
}

// Len returns the number of cadences in the range.
func (r Range) Len() int { return r.End - r.Start + 1 }

// Chunks splits [start, end] into consecutive ranges of at most size cadences.
// A non-positive size yields the whole range.
func Chunks(start, end, size int) []Range {
	if end < start {
		return nil
	}
	if size <= 0 {
		return []Range{{Start: start, End: end}}
	}
	var out []Range
	for s := start; s <= end; s += size {
		e := s + size - 1
		if e > end {
			e = end
		}
		out = append(out, Range{Start: s, End: e})
	}
	return out
}
