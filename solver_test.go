// solver_test.go -- test suite for the F(2) solver
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
	"testing"
)

// checkSolution verifies an assignment against the original equations.
func checkSolution(t *testing.T, vars [][]uint32, rhs []uint64, x []uint64) {
	assert := newAsserter(t)

	for i, vs := range vars {
		var acc uint64
		for _, v := range vs {
			acc ^= x[v]
		}
		assert(acc == rhs[i], "eq %d: lhs %#x != rhs %#x", i, acc, rhs[i])
	}
}

func TestSolverRandomSystems(t *testing.T) {
	assert := newAsserter(t)

	rng := &testRng{s: 0xabcdef}

	for iter := 0; iter < 50; iter++ {
		nv := 40 + int(rng.next()%100)
		ne := (nv * 10) / 13 // below the XOR-SAT threshold

		sys := newF2System(nv)
		origV := make([][]uint32, ne)
		origR := make([]uint64, ne)

		for i := 0; i < ne; i++ {
			a := uint32(rng.next() % uint64(nv))
			b := uint32(rng.next() % uint64(nv))
			c := uint32(rng.next() % uint64(nv))
			r := rng.next()

			origV[i] = []uint32{a, b, c}
			origR[i] = r
			sys.add([]uint32{a, b, c}, r)
		}

		x, ok := sys.solve()
		if !ok {
			// random systems may rarely be inconsistent (e.g. a
			// fully-cancelled equation with non-zero rhs)
			continue
		}

		// cancellation must be mirrored when checking
		for i := range origV {
			origV[i] = cancelPairs(origV[i])
		}
		checkSolution(t, origV, origR, x)
		assert(len(x) == nv, "assignment length %d != %d", len(x), nv)
	}
}

func TestSolverInconsistent(t *testing.T) {
	assert := newAsserter(t)

	sys := newF2System(8)
	sys.add([]uint32{1, 2, 3}, 5)
	sys.add([]uint32{1, 2, 3}, 7)

	_, ok := sys.solve()
	assert(!ok, "contradictory system reported solvable")
}

func TestSolverCancellation(t *testing.T) {
	assert := newAsserter(t)

	// {a, a, b} collapses to {b}; {a, a} collapses to the empty
	// equation which is only satisfiable with rhs 0
	sys := newF2System(4)
	sys.add([]uint32{2, 2, 3}, 0xbeef)
	x, ok := sys.solve()
	assert(ok, "cancelled system unsolvable")
	assert(x[3] == 0xbeef, "x[3]: exp %#x, saw %#x", 0xbeef, x[3])

	sys = newF2System(4)
	sys.add([]uint32{1, 1}, 1)
	_, ok = sys.solve()
	assert(!ok, "0 == 1 reported solvable")

	sys = newF2System(4)
	sys.add([]uint32{1, 1}, 0)
	_, ok = sys.solve()
	assert(ok, "0 == 0 reported unsolvable")
}

func TestSolverDense(t *testing.T) {
	// a fully-determined small system: force the dense path by
	// making every variable popular
	sys := newF2System(4)
	sys.add([]uint32{0, 1, 2}, 1)
	sys.add([]uint32{1, 2, 3}, 2)
	sys.add([]uint32{0, 1, 3}, 4)
	sys.add([]uint32{0, 2, 3}, 8)

	x, ok := sys.solve()
	if !ok {
		t.Fatalf("dense system unsolvable")
	}
	checkSolution(t,
		[][]uint32{{0, 1, 2}, {1, 2, 3}, {0, 1, 3}, {0, 2, 3}},
		[]uint64{1, 2, 4, 8}, x)
}

func TestSolverDeterminism(t *testing.T) {
	assert := newAsserter(t)

	build := func() []uint64 {
		rng := &testRng{s: 31337}
		nv := 120
		sys := newF2System(nv)
		for i := 0; i < 90; i++ {
			sys.add([]uint32{
				uint32(rng.next() % uint64(nv)),
				uint32(rng.next() % uint64(nv)),
				uint32(rng.next() % uint64(nv)),
			}, rng.next())
		}
		x, ok := sys.solve()
		if !ok {
			return nil
		}
		return x
	}

	a := build()
	b := build()
	assert(len(a) == len(b), "solution lengths differ")
	for i := range a {
		assert(a[i] == b[i], "x[%d] differs across runs", i)
	}
}
