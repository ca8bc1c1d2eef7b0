// marshal.go -- serialize and load static function images
//
// The image is a 16-byte header (magic, variant, version) followed by
// the arrays in a fixed order, all integers little-endian, no padding.
// Newer variants only ever append fields at the tail. The 'array'
// region is 64-bit aligned from the start of the image, so a
// memory-mapped image can be used in place.
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
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/opencoff/go-mmap"
)

var _Magic = [8]byte{'c', 's', 'f', 'i', 'm', 'g', '0', '1'}

const _Version = 1
const _HeaderSize = 16

func writeHeader(ew *errWriter, variant uint8, order int) int {
	var h [_HeaderSize]byte

	copy(h[:8], _Magic[:])
	h[8] = variant
	h[9] = _Version
	h[10] = byte(order)
	n, _ := ew.Write(h[:])
	return n
}

func writeRaw(ew *errWriter, b []byte) int {
	n, _ := ew.Write(b)
	return n
}

// MarshalBinary encodes the MPH into a binary form suitable for durable
// storage. A subsequent UnmarshalFunc() reconstructs it.
func (f *mphFunc) MarshalBinary(w io.Writer) (int, error) {
	ew := newErrWriter(w)

	n := writeHeader(ew, _VarMPH, 3)
	n += ew.writeU64(f.n)
	n += ew.writeU64(f.multiplier)
	n += ew.writeU64(f.seed)
	n += ew.writeU64(uint64(len(f.offSeed)))
	n += writeRaw(ew, u64sToByteSlice(f.offSeed))
	n += ew.writeU64(uint64(len(f.array)))
	n += writeRaw(ew, u64sToByteSlice(f.array))
	n += ew.writeU64(uint64(len(f.keyOff)))
	n += writeRaw(ew, u64sToByteSlice(f.keyOff))
	return n, ew.Error()
}

func (f *sfFunc) MarshalBinary(w io.Writer) (int, error) {
	ew := newErrWriter(w)

	n := writeHeader(ew, _VarSF, f.order)
	n += ew.writeU64(f.n)
	n += ew.writeU64(f.w)
	n += ew.writeU64(f.multiplier)
	n += ew.writeU64(f.seed)
	n += ew.writeU64(uint64(len(f.offSeed)))
	n += writeRaw(ew, u64sToByteSlice(f.offSeed))
	n += ew.writeU64(uint64(len(f.array)))
	n += writeRaw(ew, u64sToByteSlice(f.array))
	return n, ew.Error()
}

func (f *csfFunc) MarshalBinary(w io.Writer) (int, error) {
	ew := newErrWriter(w)

	n := writeHeader(ew, _VarCSF, 3)
	n += ew.writeU64(f.n)
	n += ew.writeU64(f.multiplier)
	n += ew.writeU64(f.seed)
	n += ew.writeU64(uint64(len(f.offSeed)))
	n += writeRaw(ew, u64sToByteSlice(f.offSeed))
	n += ew.writeU64(uint64(len(f.array)))
	n += writeRaw(ew, u64sToByteSlice(f.array))

	// decoding table
	d := f.dec
	n += ew.writeU64(uint64(len(d.lastCW)))
	for _, v := range d.lastCW {
		n += ew.writeU64(v)
	}
	for _, v := range d.howmany {
		n += ew.writeU32(v)
	}
	for _, v := range d.shift {
		n += ew.writeU32(v)
	}
	n += ew.writeU64(uint64(len(d.syms)))
	for _, v := range d.syms {
		n += ew.writeU64(v)
	}
	n += ew.writeU64(f.slack())
	n += ew.writeU64(f.escW)
	return n, ew.Error()
}

// Dump writes the function to 'w'.
func Dump(f Func, w io.Writer) error {
	_, err := f.MarshalBinary(w)
	return err
}

// Load reads a serialized function from 'r' into freshly allocated
// memory.
func Load(r io.Reader) (Func, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return UnmarshalFunc(buf)
}

// MappedFunc is a Func backed by a memory-mapped image file; Close
// releases the mapping.
type MappedFunc struct {
	Func

	fd *os.File
	mm *mmap.Mapping
}

// Close unmaps the image and closes the file; the Func must not be
// used afterwards.
func (m *MappedFunc) Close() error {
	m.Func = nil
	m.mm.Unmap()
	return m.fd.Close()
}

// LoadFile memory-maps the image file 'fn' and returns a zero-copy
// Func over it. The host must be little-endian for mapped use; on
// other hosts use Load().
func LoadFile(fn string) (*MappedFunc, error) {
	fd, err := os.Open(fn)
	if err != nil {
		return nil, err
	}

	st, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("%s: can't stat: %w", fn, err)
	}

	mm := mmap.New(fd)
	mapping, err := mm.Map(st.Size(), 0, mmap.PROT_READ, mmap.F_READAHEAD)
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("%s: can't mmap %d bytes: %w", fn, st.Size(), err)
	}

	f, err := UnmarshalFunc(mapping.Bytes())
	if err != nil {
		mapping.Unmap()
		fd.Close()
		return nil, fmt.Errorf("%s: %w", fn, err)
	}

	return &MappedFunc{Func: f, fd: fd, mm: mapping}, nil
}

// imgParser walks a serialized image with bounds checking; big arrays
// are sliced zero-copy.
type imgParser struct {
	b   []byte
	off int
	err error
}

func (p *imgParser) fail() {
	if p.err == nil {
		p.err = ErrTooSmall
	}
}

func (p *imgParser) u64() uint64 {
	if p.err != nil || p.off+8 > len(p.b) {
		p.fail()
		return 0
	}
	v := binary.LittleEndian.Uint64(p.b[p.off:])
	p.off += 8
	return v
}

func (p *imgParser) u32() uint32 {
	if p.err != nil || p.off+4 > len(p.b) {
		p.fail()
		return 0
	}
	v := binary.LittleEndian.Uint32(p.b[p.off:])
	p.off += 4
	return v
}

func (p *imgParser) u64slice(n uint64) []uint64 {
	if p.err != nil || n > uint64(len(p.b)) || p.off+int(n*8) > len(p.b) {
		p.fail()
		return nil
	}
	v := bsToUint64Slice(p.b[p.off : p.off+int(n*8)])
	p.off += int(n * 8)
	return v
}

// UnmarshalFunc reconstructs a Func from a serialized image. The large
// arrays reference 'buf' directly; the buffer must stay alive (and
// unmodified) for the lifetime of the Func.
func UnmarshalFunc(buf []byte) (Func, error) {
	if len(buf) < _HeaderSize {
		return nil, ErrTooSmall
	}
	if [8]byte(buf[:8]) != _Magic {
		return nil, fmt.Errorf("%w: bad magic", ErrBadFormat)
	}
	variant := buf[8]
	if buf[9] != _Version {
		return nil, fmt.Errorf("%w: no support to un-marshal version %d", ErrBadFormat, buf[9])
	}
	order := int(buf[10])

	p := &imgParser{b: buf, off: _HeaderSize}

	switch variant {
	case _VarMPH:
		return unmarshalMPH(p)
	case _VarSF:
		return unmarshalSF(p, order)
	case _VarCSF:
		return unmarshalCSF(p)
	}
	return nil, fmt.Errorf("%w: unknown variant %d", ErrBadFormat, variant)
}

func unmarshalMPH(p *imgParser) (Func, error) {
	f := &mphFunc{}
	f.n = p.u64()
	f.multiplier = p.u64()
	f.seed = p.u64()

	osLen := p.u64()
	f.offSeed = p.u64slice(osLen)
	f.array = p.u64slice(p.u64())
	f.keyOff = p.u64slice(p.u64())

	if p.err != nil {
		return nil, p.err
	}
	if osLen < 2 || uint64(len(f.keyOff)) != osLen {
		return nil, fmt.Errorf("%w: mph table lengths", ErrBadFormat)
	}
	return f, nil
}

func unmarshalSF(p *imgParser, order int) (Func, error) {
	if order != 3 && order != 4 {
		return nil, fmt.Errorf("%w: sf order %d", ErrBadFormat, order)
	}

	f := &sfFunc{order: order}
	f.n = p.u64()
	f.w = p.u64()
	f.multiplier = p.u64()
	f.seed = p.u64()

	osLen := p.u64()
	f.offSeed = p.u64slice(osLen)
	f.array = p.u64slice(p.u64())

	if p.err != nil {
		return nil, p.err
	}
	if osLen < 2 || f.w < 1 || f.w > 64 {
		return nil, fmt.Errorf("%w: sf header", ErrBadFormat)
	}
	f.bytes = u64sToByteSlice(f.array)
	return f, nil
}

func unmarshalCSF(p *imgParser) (Func, error) {
	f := &csfFunc{}
	f.n = p.u64()
	f.multiplier = p.u64()
	f.seed = p.u64()

	osLen := p.u64()
	f.offSeed = p.u64slice(osLen)
	f.array = p.u64slice(p.u64())

	dtl := p.u64()
	if p.err != nil || dtl < 2 || dtl > 64 {
		if p.err != nil {
			return nil, p.err
		}
		return nil, fmt.Errorf("%w: decoding table length %d", ErrBadFormat, dtl)
	}

	d := &decoder{
		w:       int(dtl - 1),
		lastCW:  make([]uint64, dtl),
		howmany: make([]uint32, dtl),
		shift:   make([]uint32, dtl),
	}
	for i := range d.lastCW {
		d.lastCW[i] = p.u64()
	}
	for i := range d.howmany {
		d.howmany[i] = p.u32()
	}
	for i := range d.shift {
		d.shift[i] = p.u32()
	}

	nsym := p.u64()
	if p.err == nil && nsym > uint64(len(p.b)) {
		p.fail()
	}
	if p.err == nil {
		d.syms = make([]uint64, nsym)
		for i := range d.syms {
			d.syms[i] = p.u64()
		}
	}

	escLen := p.u64()
	escW := p.u64()
	if p.err != nil {
		return nil, p.err
	}
	if osLen < 2 || nsym == 0 || escLen != uint64(d.w)+escW {
		return nil, fmt.Errorf("%w: csf tables", ErrBadFormat)
	}

	f.w = uint64(d.w)
	f.escW = escW
	f.dec = d
	return f, nil
}
