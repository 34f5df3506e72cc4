package merge

// span is a differing region between two line sequences: a[aLo:aHi] was
// replaced by b[bLo:bHi]. A zero-length a range is a pure insertion.
type span struct {
	aLo, aHi int
	bLo, bHi int
}

// diffSpans computes the differing regions between a and b using a Myers
// shortest-edit-script diff over whole lines.
func diffSpans(a, b []string) []span {
	matches := myersMatches(a, b)

	var spans []span
	ai, bi := 0, 0
	for _, m := range matches {
		if m[0] > ai || m[1] > bi {
			spans = append(spans, span{aLo: ai, aHi: m[0], bLo: bi, bHi: m[1]})
		}
		ai, bi = m[0]+1, m[1]+1
	}
	if ai < len(a) || bi < len(b) {
		spans = append(spans, span{aLo: ai, aHi: len(a), bLo: bi, bHi: len(b)})
	}
	return spans
}

// myersMatches returns the matched line index pairs of the longest common
// subsequence of a and b, in ascending order.
func myersMatches(a, b []string) [][2]int {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		return nil
	}

	max := n + m
	size := 2*max + 1
	off := max

	v := make([]int, size)
	var trace [][]int

	depth := -1
outer:
	for d := 0; d <= max; d++ {
		snapshot := make([]int, size)
		copy(snapshot, v)
		trace = append(trace, snapshot)

		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[off+k-1] < v[off+k+1]) {
				x = v[off+k+1]
			} else {
				x = v[off+k-1] + 1
			}
			y := x - k
			for x < n && y < m && a[x] == b[y] {
				x++
				y++
			}
			v[off+k] = x
			if x >= n && y >= m {
				depth = d
				break outer
			}
		}
	}

	// Backtrack through the trace, recording diagonal (matching) moves.
	var rev [][2]int
	x, y := n, m
	for d := depth; d > 0; d-- {
		vd := trace[d]
		k := x - y

		var prevK int
		if k == -d || (k != d && vd[off+k-1] < vd[off+k+1]) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := vd[off+prevK]
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			rev = append(rev, [2]int{x - 1, y - 1})
			x--
			y--
		}
		x, y = prevX, prevY
	}
	for x > 0 && y > 0 {
		rev = append(rev, [2]int{x - 1, y - 1})
		x--
		y--
	}

	// Reverse into ascending order.
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}

// splitLines splits content into lines, keeping the trailing newline
// attached to each line so that joins reproduce the input byte-for-byte.
func splitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	var lines []string
	start := 0
	for i, c := range data {
		if c == '\n' {
			lines = append(lines, string(data[start:i+1]))
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, string(data[start:]))
	}
	return lines
}

func joinLines(lines []string) []byte {
	var size int
	for _, l := range lines {
		size += len(l)
	}
	out := make([]byte, 0, size)
	for _, l := range lines {
		out = append(out, l...)
	}
	return out
}
