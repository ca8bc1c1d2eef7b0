// peeler.go -- 3-uniform hypergraph peeling for the minimal perfect hash
//
// Peeling in the style of Majewski-Wormald-Havas-Czech: repeatedly
// remove a degree-1 vertex together with its unique incident edge; if
// the whole edge set peels, assign 2-bit hinge values in reverse peel
// order.
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

// The hypergraph is three parallel edge arrays plus per-vertex degree
// and XOR-of-incident-edge-ids; a degree-1 vertex identifies its single
// incident edge in O(1) and the peel is a FIFO walk with no heap
// traffic.
type peeler struct {
	deg  []uint32
	xorE []uint32

	// peel order: edge id and its hinge vertex
	stackE []uint32
	stackV []uint32

	queue []uint32
}

func newPeeler(nv int) *peeler {
	return &peeler{
		deg:  make([]uint32, nv),
		xorE: make([]uint32, nv),
	}
}

func (p *peeler) reset(nv int) {
	for i := 0; i < nv; i++ {
		p.deg[i] = 0
		p.xorE[i] = 0
	}
	p.stackE = p.stackE[:0]
	p.stackV = p.stackV[:0]
	p.queue = p.queue[:0]
}

// peel attempts to find an acyclic ordering of the given edges over nv
// vertices. It returns false when the 2-core is non-empty; the caller
// retries the bucket with a fresh seed. Vertices within each edge must
// be distinct.
func (p *peeler) peel(edges [][3]uint32, nv int) bool {
	p.reset(nv)

	for i := range edges {
		e := &edges[i]
		p.deg[e[0]]++
		p.deg[e[1]]++
		p.deg[e[2]]++
		p.xorE[e[0]] ^= uint32(i)
		p.xorE[e[1]] ^= uint32(i)
		p.xorE[e[2]] ^= uint32(i)
	}

	for v := 0; v < nv; v++ {
		if p.deg[v] == 1 {
			p.queue = append(p.queue, uint32(v))
		}
	}

	for qi := 0; qi < len(p.queue); qi++ {
		v := p.queue[qi]
		if p.deg[v] != 1 {
			continue
		}

		ei := p.xorE[v]
		p.stackE = append(p.stackE, ei)
		p.stackV = append(p.stackV, v)

		e := &edges[ei]
		for _, u := range e {
			p.deg[u]--
			p.xorE[u] ^= ei
			if u != v && p.deg[u] == 1 {
				p.queue = append(p.queue, u)
			}
		}
	}

	return len(p.stackE) == len(edges)
}

// assign pops the peel stack in reverse and writes hinge values into the
// 2-bit slot array 'val' (bucket-local). For every edge, the mod-3 sum
// of its three slots ends up naming the hinge's position within the
// edge; hinge slots are non-zero, all others stay zero.
func (p *peeler) assign(edges [][3]uint32, val []uint64) {
	for i := len(p.stackE) - 1; i >= 0; i-- {
		ei := p.stackE[i]
		hinge := p.stackV[i]
		e := &edges[ei]

		var hi, sum uint64
		for j, u := range e {
			if u == hinge {
				hi = uint64(j)
			}
			sum += slot2Get(val, uint64(u))
		}

		need := (hi + 3 - sum%3) % 3
		if need == 0 {
			need = 3
		}
		slot2Set(val, uint64(hinge), need)
	}
}
