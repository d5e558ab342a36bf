package bitio

import "testing"

func TestReadMSBFirst(t *testing.T) {
	// 0xB5 = 1011 0101, 0x1F = 0001 1111
	data := []byte{0xB5, 0x1F}
	r := NewReader(data, 0)

	var v uint64
	if !r.Read(3, &v) || v != 0b101 {
		t.Fatalf("first 3 bits: got %b, want 101", v)
	}
	if !r.Read(5, &v) || v != 0b10101 {
		t.Fatalf("next 5 bits: got %b, want 10101", v)
	}
	if !r.Read(8, &v) || v != 0x1F {
		t.Fatalf("next byte: got %#x, want 0x1f", v)
	}
	if r.Read(1, &v) {
		t.Fatal("read past end should fail")
	}
}

func TestReadMSBFirstAcrossBytes(t *testing.T) {
	data := []byte{0x12, 0x34, 0x56, 0x78}
	r := NewReader(data, 0)

	var v uint64
	if !r.Read(32, &v) || v != 0x12345678 {
		t.Fatalf("32-bit read: got %#x, want 0x12345678", v)
	}
}

func TestReadLSBFirst(t *testing.T) {
	// RGB565 pixel 0xF81F stored little-endian.
	data := []byte{0x1F, 0xF8}
	r := NewReaderOrder(data, 0, LSBFirst)

	var b, g, rr uint64
	if !r.Read(5, &b) || !r.Read(6, &g) || !r.Read(5, &rr) {
		t.Fatal("unexpected underflow")
	}
	if b != 31 || g != 0 || rr != 31 {
		t.Fatalf("got B=%d G=%d R=%d, want 31 0 31", b, g, rr)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	for _, order := range []Order{MSBFirst, LSBFirst} {
		buf := make([]byte, 8)
		w := NewWriterOrder(buf, 0, order)
		values := []struct {
			bits uint
			v    uint64
		}{{3, 5}, {5, 21}, {11, 1234}, {1, 1}, {16, 0xBEEF}, {12, 0xABC}}
		for _, tv := range values {
			if !w.Write(tv.bits, tv.v) {
				t.Fatalf("order %d: write %d bits failed", order, tv.bits)
			}
		}

		r := NewReaderOrder(buf, 0, order)
		for i, tv := range values {
			var got uint64
			if !r.Read(tv.bits, &got) {
				t.Fatalf("order %d: read %d failed", order, i)
			}
			if got != tv.v {
				t.Errorf("order %d: value %d: got %d, want %d", order, i, got, tv.v)
			}
		}
	}
}

func TestWriteClearsTargetBits(t *testing.T) {
	buf := []byte{0xFF, 0xFF}
	w := NewWriter(buf, 0)
	if !w.Write(4, 0) {
		t.Fatal("write failed")
	}
	if buf[0] != 0x0F {
		t.Fatalf("got %#x, want 0x0f", buf[0])
	}
}

func TestReadBytesAlignment(t *testing.T) {
	data := []byte{1, 2, 3}
	r := NewReader(data, 0)
	var v uint64
	r.Read(4, &v)

	defer func() {
		if recover() == nil {
			t.Fatal("unaligned byte read should be fatal")
		}
	}()
	r.ReadBytes(make([]byte, 1))
}

func TestBytesLeft(t *testing.T) {
	data := make([]byte, 10)
	r := NewReader(data, 2)
	buf := make([]byte, 3)
	if !r.ReadBytes(buf) {
		t.Fatal("read failed")
	}
	if got := r.BytesLeft(100); got != 5 {
		t.Fatalf("BytesLeft: got %d, want 5", got)
	}
	if got := r.BytesLeft(2); got != 2 {
		t.Fatalf("BytesLeft capped: got %d, want 2", got)
	}
}

func TestWriteZeros(t *testing.T) {
	buf := []byte{0xFF, 0xFF, 0xFF}
	w := NewWriter(buf, 0)
	if !w.WriteZeros(20) {
		t.Fatal("WriteZeros failed")
	}
	if buf[0] != 0 || buf[1] != 0 || buf[2] != 0x0F {
		t.Fatalf("got % x, want 00 00 0f", buf)
	}
	if w.WriteZeros(5) {
		t.Fatal("overflowing WriteZeros should fail")
	}
}

func TestSeek(t *testing.T) {
	data := []byte{0xAB, 0xCD}
	r := NewReader(data, 0)
	r.Seek(8)
	var v uint64
	if !r.Read(8, &v) || v != 0xCD {
		t.Fatalf("got %#x, want 0xcd", v)
	}
	r.Seek(4)
	if !r.Read(4, &v) || v != 0xB {
		t.Fatalf("got %#x, want 0xb", v)
	}
}
