// solver.go -- sparse linear systems over F(2) by lazy Gaussian elimination
//
// Solves the per-bucket systems behind the static functions: each key
// contributes one equation XOR-ing a handful of unknowns to a known
// term of up to 64 bits. Pivoting is deferred to sparse equations for
// as long as possible; whatever survives with only "active" variables
// is finished off by ordinary Gaussian elimination.
//
// (c) Sudhi Herle 2018
//
// License GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package csf

import (
	"math/bits"
	"sort"
)

// f2System collects equations over variables [0, nv). Each equation is
// a set of variable indices (a variable occurring twice cancels) and a
// known term; the known term carries the full F(2)^b structure in one
// uint64, b <= 64.
type f2System struct {
	nv   int
	vars [][]uint32
	rhs  []uint64
}

func newF2System(nv int) *f2System {
	return &f2System{
		nv: nv,
	}
}

// add appends one equation. 'vs' is mutated (sorted, pairs cancelled)
// and retained.
func (s *f2System) add(vs []uint32, rhs uint64) {
	s.vars = append(s.vars, cancelPairs(vs))
	s.rhs = append(s.rhs, rhs)
}

// cancelPairs sorts the (tiny) variable list and removes variables that
// occur an even number of times.
func cancelPairs(vs []uint32) []uint32 {
	for i := 1; i < len(vs); i++ {
		for j := i; j > 0 && vs[j] < vs[j-1]; j-- {
			vs[j], vs[j-1] = vs[j-1], vs[j]
		}
	}

	out := vs[:0]
	for i := 0; i < len(vs); {
		if i+1 < len(vs) && vs[i] == vs[i+1] {
			i += 2
			continue
		}
		out = append(out, vs[i])
		i++
	}
	return out
}

// solve returns a satisfying assignment, or ok=false when the system is
// inconsistent (the caller retries the bucket with a fresh seed). Given
// the same equations in the same order, the result is deterministic.
func (s *f2System) solve() ([]uint64, bool) {
	ne := len(s.rhs)
	x := make([]uint64, s.nv)
	if ne == 0 {
		return x, true
	}

	words := (s.nv + 63) / 64
	buf := make([]uint64, ne*words)
	rows := make([][]uint64, ne)
	rhs := append([]uint64(nil), s.rhs...)

	weight := make([]int32, s.nv)
	eqsOf := make([][]int32, s.nv)
	prio := make([]int32, ne)
	pending := make([]bool, ne)

	for i := range rows {
		rows[i] = buf[i*words : (i+1)*words]
		for _, v := range s.vars[i] {
			rows[i][v>>6] |= 1 << (v & 63)
			weight[v]++
			eqsOf[v] = append(eqsOf[v], int32(i))
		}
		prio[i] = int32(len(s.vars[i]))
		pending[i] = true
	}

	// Eight FIFO priority lanes keyed by idle-variable count; an
	// equation is (re-)pushed on every count change and stale entries
	// are skipped on pop. O(1) in place of a heap, and FIFO order
	// keeps the pivot sequence deterministic.
	var lanes [8][]int32
	var heads [8]int

	laneOf := func(p int32) int32 {
		if p > 7 {
			return 7
		}
		return p
	}
	push := func(e int32) {
		l := laneOf(prio[e])
		lanes[l] = append(lanes[l], e)
	}
	pop := func(l int32) (int32, bool) {
		for heads[l] < len(lanes[l]) {
			e := lanes[l][heads[l]]
			heads[l]++
			if pending[e] && laneOf(prio[e]) == l {
				return e, true
			}
		}
		return 0, false
	}

	for i := 0; i < ne; i++ {
		push(int32(i))
	}

	idle := make([]bool, s.nv)
	for i := range idle {
		idle[i] = true
	}

	// activation order: heaviest variable first, ties by index
	order := make([]int32, s.nv)
	for i := range order {
		order[i] = int32(i)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return weight[order[a]] > weight[order[b]]
	})
	op := 0

	type pivotRec struct {
		v int32
		e int32
	}
	var pivots []pivotRec
	var dense []int32

	remaining := ne
	for remaining > 0 {
		// equations with no idle variables are either trivial or dense
		if e, ok := pop(0); ok {
			pending[e] = false
			remaining--
			if rowEmpty(rows[e]) {
				if rhs[e] != 0 {
					return nil, false
				}
				continue
			}
			dense = append(dense, e)
			continue
		}

		// a single idle variable: it becomes a pivot
		if e, ok := pop(1); ok {
			p := findIdle(rows[e], idle)
			idle[p] = false
			pending[e] = false
			remaining--
			pivots = append(pivots, pivotRec{p, e})

			for _, f := range eqsOf[p] {
				if f == e || !pending[f] {
					continue
				}
				xorRow(rows[f], rows[e])
				rhs[f] ^= rhs[e]
				prio[f]--
				push(f)
			}
			continue
		}

		// nothing sparse left: activate the heaviest idle variable
		for op < len(order) && !idle[order[op]] {
			op++
		}
		v := order[op]
		op++
		idle[v] = false
		for _, f := range eqsOf[v] {
			if pending[f] {
				prio[f]--
				push(f)
			}
		}
	}

	// dense sub-system: Gauss-Jordan over the active-only equations
	dPivot := make([]int32, len(dense))
	for i := 0; i < len(dense); i++ {
		e := dense[i]
		for j := 0; j < i; j++ {
			if pv := dPivot[j]; pv >= 0 && rowBit(rows[e], pv) {
				xorRow(rows[e], rows[dense[j]])
				rhs[e] ^= rhs[dense[j]]
			}
		}

		pv := firstBit(rows[e])
		dPivot[i] = pv
		if pv < 0 {
			if rhs[e] != 0 {
				return nil, false
			}
			continue
		}
		for j := 0; j < i; j++ {
			if rowBit(rows[dense[j]], pv) {
				xorRow(rows[dense[j]], rows[e])
				rhs[dense[j]] ^= rhs[e]
			}
		}
	}
	for i, e := range dense {
		if pv := dPivot[i]; pv >= 0 {
			x[pv] = rhs[e]
		}
	}

	// back-substitute the recorded pivots in reverse
	for i := len(pivots) - 1; i >= 0; i-- {
		p, e := pivots[i].v, pivots[i].e
		acc := rhs[e]
		for wi, w := range rows[e] {
			for w != 0 {
				v := int32(wi<<6 + bits.TrailingZeros64(w))
				if v != p {
					acc ^= x[v]
				}
				w &= w - 1
			}
		}
		x[p] = acc
	}

	return x, true
}

func xorRow(dst, src []uint64) {
	for i, w := range src {
		dst[i] ^= w
	}
}

func rowEmpty(r []uint64) bool {
	for _, w := range r {
		if w != 0 {
			return false
		}
	}
	return true
}

func rowBit(r []uint64, v int32) bool {
	return r[v>>6]&(1<<(uint(v)&63)) != 0
}

func firstBit(r []uint64) int32 {
	for i, w := range r {
		if w != 0 {
			return int32(i<<6 + bits.TrailingZeros64(w))
		}
	}
	return -1
}

// findIdle returns the single idle variable of a weight-1 equation.
func findIdle(r []uint64, idle []bool) int32 {
	for wi, w := range r {
		for w != 0 {
			v := int32(wi<<6 + bits.TrailingZeros64(w))
			if idle[v] {
				return v
			}
			w &= w - 1
		}
	}
	return -1
}
