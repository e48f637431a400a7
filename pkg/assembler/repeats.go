package assembler

// collapseRepeats rewrites every run of the form XX...X, with len(X) >= minLength
// runes, to a single X. Runs are matched left to right; at each start the
// shortest X wins and matching resumes after the last copy.
//
// Any such run has a first half of at least minLength runes, so it fully
// contains a gram of k = minLength/2 runes starting at a multiple of k. Only
// later occurrences of those anchored grams are tried as periods, which keeps
// the scan close to linear for prose.
func collapseRepeats(s string, minLength int) string {
	if minLength < 1 {
		minLength = 1
	}
	r := []rune(s)
	n := len(r)
	if n < 2*minLength {
		return s
	}

	g := newGramIndex(r, max(1, minLength/2))
	var out []rune
	from := 0
	for from+2*minLength <= n {
		i, l, ok := g.leftmostRun(from, minLength)
		if !ok {
			break
		}
		end := i + 2*l
		for end+l <= n && equalRunes(r[i:i+l], r[end:end+l]) {
			end += l
		}
		if out == nil {
			out = make([]rune, 0, n)
		}
		out = append(out, r[from:i+l]...)
		from = end
	}
	if out == nil {
		return s
	}
	out = append(out, r[from:]...)
	return string(out)
}

const gramHashBase = 1000003

// gramIndex maps the hash of every k-rune gram to the positions it occurs at.
// Hash collisions are harmless: candidates are verified rune by rune.
type gramIndex struct {
	runes     []rune
	k         int
	hashes    []uint64
	positions map[uint64][]int
}

func newGramIndex(r []rune, k int) *gramIndex {
	g := &gramIndex{runes: r, k: k}
	if len(r) < k {
		return g
	}
	count := len(r) - k + 1
	g.hashes = make([]uint64, count)
	g.positions = make(map[uint64][]int, count)

	var h, pow uint64 = 0, 1
	for j := 0; j < k; j++ {
		h = h*gramHashBase + uint64(r[j])
		if j > 0 {
			pow *= gramHashBase
		}
	}
	for p := 0; p < count; p++ {
		if p > 0 {
			h = (h-uint64(r[p-1])*pow)*gramHashBase + uint64(r[p+k-1])
		}
		g.hashes[p] = h
		g.positions[h] = append(g.positions[h], p)
	}
	return g
}

// leftmostRun finds the smallest start i >= from, and the smallest period
// l >= minLength at that start, such that r[i:i+l] == r[i+l:i+2l].
func (g *gramIndex) leftmostRun(from, minLength int) (int, int, bool) {
	n, k := len(g.runes), g.k
	bestI, bestL := -1, 0
	for q := (from + k - 1) / k * k; q+minLength+k <= n; q += k {
		// every run starting at or before q-k was seen at an earlier anchor
		if bestI >= 0 && bestI <= q-k {
			break
		}
		for _, p := range g.positions[g.hashes[q]] {
			l := p - q
			if l < minLength {
				continue
			}
			i, ok := g.runCovering(q, l, from)
			if !ok {
				continue
			}
			if bestI < 0 || i < bestI || (i == bestI && l < bestL) {
				bestI, bestL = i, l
			}
		}
		if bestI == from {
			break
		}
	}
	return bestI, bestL, bestI >= 0
}

// runCovering returns the leftmost start i >= from of a run with period l
// whose first copy contains the gram at q.
func (g *gramIndex) runCovering(q, l, from int) (int, bool) {
	r, n := g.runes, len(g.runes)
	lo := max(from, q+g.k-l)
	i := q
	for i > lo && r[i-1] == r[i-1+l] {
		i--
	}
	j := q
	for j < i+l && j+l < n && r[j] == r[j+l] {
		j++
	}
	return i, j >= i+l
}

func equalRunes(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
