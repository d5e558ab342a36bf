package rastercodec

import (
	"bytes"

	"github.com/mrjoshuak/go-rastercodec/internal/fault"
)

// Reference is a descriptor plus byte buffer for raw image data. The buffer
// is either externally owned (both hooks nil, Link aliases caller memory),
// self-owned (Fill installs allocating hooks), or caller-supplied with a
// custom allocator (caller sets Reset and Clear).
type Reference struct {
	// Reset, when set, must grow Link to at least Bytes bytes and report
	// success. It is called whenever the buffer needs to grow, including
	// before Link is first valid.
	Reset func(*Reference) bool

	// Clear, when set, releases the buffer. It is called exactly once per
	// owned buffer; moving a Reference transfers the hooks and nils the
	// source.
	Clear func(*Reference)

	// Format describes the data layout as a format string; empty means
	// unset. For a destination, an empty format inherits the source's.
	Format string

	// Bytes is the count of meaningful bytes at the start of Link.
	Bytes int

	Link []byte

	// Dimensions. For a destination these request the target size; zero
	// values inherit the source dimensions.
	W, H int
}

// Fill turns r into a self-owned reference with an empty buffer, installing
// allocate and release hooks.
func (r *Reference) Fill() {
	r.Release()

	r.Format = ""
	r.Link = nil
	r.Bytes = 0
	r.W, r.H = 0, 0

	r.Reset = func(ref *Reference) bool {
		if ref.Bytes > 0 {
			ref.Link = make([]byte, ref.Bytes)
		} else {
			ref.Link = nil
		}
		return true
	}
	r.Clear = func(ref *Reference) {
		ref.Link = nil
	}
}

// Release invokes the Clear hook, if any, and detaches it so the buffer is
// cleared at most once.
func (r *Reference) Release() {
	if r.Clear != nil {
		r.Clear(r)
	}
	r.Reset = nil
	r.Clear = nil
}

// Take moves other into r: r's current buffer is released, other's hooks and
// buffer transfer over, and other is left empty so its buffer cannot be
// cleared twice.
func (r *Reference) Take(other *Reference) {
	if r == other {
		return
	}
	if r.Clear != nil {
		r.Clear(r)
	}

	r.Reset = other.Reset
	r.Clear = other.Clear
	r.Format = other.Format
	r.Bytes = other.Bytes
	r.Link = other.Link
	r.W = other.W
	r.H = other.H

	other.Reset = nil
	other.Clear = nil
	other.Format = ""
	other.Link = nil
	other.Bytes = 0
	other.W, other.H = 0, 0
}

// Equal compares dimensions, format, byte length and contents.
func (r *Reference) Equal(other *Reference) bool {
	if r.W != other.W || r.H != other.H || r.Format != other.Format || r.Bytes != other.Bytes {
		return false
	}
	if r.Link == nil && other.Link == nil {
		return true
	}
	return bytes.Equal(r.Link[:r.Bytes], other.Link[:other.Bytes])
}

// data returns the meaningful byte region.
func (r *Reference) data() []byte {
	return r.Link[:r.Bytes]
}

// syncSize prepares destination to hold byteCount bytes of data in dstFmt's
// dimensions, growing the buffer through the Reset hook when needed. This is
// the only growth point for owned buffers.
func syncSize(byteCount int, dstFmt *Format, destination *Reference) {
	if destination.W != dstFmt.W || destination.H != dstFmt.H || destination.Bytes < byteCount {
		destination.W = dstFmt.W
		destination.H = dstFmt.H
		destination.Bytes = byteCount
		fault.Check(destination.Reset != nil, "reference has no reset hook")
		fault.Check(destination.Reset(destination), "reference reset hook failed")
	} else {
		destination.Bytes = byteCount
	}
}

// sync is syncSize with the byte count taken from dstFmt.
func sync(dstFmt *Format, destination *Reference) {
	syncSize(dstFmt.BufferSize(), dstFmt, destination)
}
