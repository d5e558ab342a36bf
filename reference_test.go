package rastercodec

import "testing"

func TestReferenceFill(t *testing.T) {
	r := new(Reference)
	r.Fill()

	if r.Reset == nil || r.Clear == nil {
		t.Fatal("Fill must install both hooks")
	}

	r.Bytes = 16
	if !r.Reset(r) {
		t.Fatal("reset failed")
	}
	if len(r.Link) != 16 {
		t.Fatalf("link: got %d bytes, want 16", len(r.Link))
	}
}

func TestReferenceClearOnce(t *testing.T) {
	cleared := 0

	r := new(Reference)
	r.Reset = func(ref *Reference) bool {
		ref.Link = make([]byte, ref.Bytes)
		return true
	}
	r.Clear = func(*Reference) { cleared++ }

	r.Release()
	r.Release()
	if cleared != 1 {
		t.Fatalf("clear calls: got %d, want 1", cleared)
	}
}

func TestReferenceTakeTransfersOwnership(t *testing.T) {
	cleared := 0

	src := new(Reference)
	src.Reset = func(ref *Reference) bool { return true }
	src.Clear = func(*Reference) { cleared++ }
	src.Link = []byte{1, 2, 3}
	src.Bytes = 3
	src.W, src.H = 3, 1
	src.Format = "G8"

	var dst Reference
	dst.Take(src)

	if src.Reset != nil || src.Clear != nil || src.Link != nil || src.Bytes != 0 {
		t.Fatal("source must be emptied by the move")
	}
	if dst.Bytes != 3 || dst.W != 3 || dst.Format != "G8" {
		t.Fatalf("destination: %+v", dst)
	}

	src.Release()
	dst.Release()
	if cleared != 1 {
		t.Fatalf("clear calls: got %d, want 1", cleared)
	}
}

func TestReferenceEqual(t *testing.T) {
	a := &Reference{Format: "G8", Link: []byte{1, 2}, Bytes: 2, W: 2, H: 1}
	b := &Reference{Format: "G8", Link: []byte{1, 2}, Bytes: 2, W: 2, H: 1}
	if !a.Equal(b) {
		t.Fatal("equal references must compare equal")
	}

	b.Link = []byte{1, 3}
	if a.Equal(b) {
		t.Fatal("contents must distinguish references")
	}

	b.Link = []byte{1, 2}
	b.W = 1
	if a.Equal(b) {
		t.Fatal("dimensions must distinguish references")
	}
}

func TestSyncGrowsThroughReset(t *testing.T) {
	f := newFormat()
	f.Channels = []Channel{{'G', 8}}
	f.CalculateBits()
	f.W, f.H = 4, 2
	f.Pad = 1

	r := new(Reference)
	r.Fill()

	sync(&f, r)
	if r.Bytes != 8 || len(r.Link) != 8 {
		t.Fatalf("after sync: bytes %d, link %d", r.Bytes, len(r.Link))
	}
	if r.W != 4 || r.H != 2 {
		t.Fatalf("dimensions: got %dx%d", r.W, r.H)
	}

	// Same dimensions with fewer bytes reuse the buffer; only the byte
	// count changes.
	link := &r.Link[0]
	syncSize(4, &f, r)
	if r.Bytes != 4 || &r.Link[0] != link {
		t.Fatal("shrinking must reuse the buffer")
	}
}
