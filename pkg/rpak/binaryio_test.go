package rpak

import (
	"path/filepath"
	"testing"
)

func TestBinaryIOWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtrip.bin")

	out, err := OpenWrite(path)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	if err := out.Write(uint32(0xdeadbeef)); err != nil {
		t.Fatalf("Write uint32: %v", err)
	}
	if err := out.Write(uint64(0x1122334455667788)); err != nil {
		t.Fatalf("Write uint64: %v", err)
	}
	if err := out.WriteString("hello"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	in, err := OpenRead(path)
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	defer in.Close()

	u32, err := in.ReadUint32()
	if err != nil || u32 != 0xdeadbeef {
		t.Fatalf("ReadUint32 = %#x, %v, want 0xdeadbeef", u32, err)
	}
	u64, err := in.ReadUint64()
	if err != nil || u64 != 0x1122334455667788 {
		t.Fatalf("ReadUint64 = %#x, %v", u64, err)
	}
	s, err := in.ReadString()
	if err != nil || s != "hello" {
		t.Fatalf("ReadString = %q, %v, want %q", s, err, "hello")
	}
}

func TestBinaryIOPad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pad.bin")

	out, err := OpenWrite(path)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	if err := out.Write(uint8(1)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := out.Pad(7); err != nil {
		t.Fatalf("Pad: %v", err)
	}
	if err := out.Write(uint8(2)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out.Close()

	in, err := OpenRead(path)
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	defer in.Close()

	if in.Size() != 9 {
		t.Fatalf("Size() = %d, want 9", in.Size())
	}

	buf := make([]byte, 9)
	if err := in.ReadBytes(buf); err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	want := []byte{1, 0, 0, 0, 0, 0, 0, 0, 2}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d", i, buf[i], want[i])
		}
	}
}

func TestBinaryIOSeekPutDoesNotShrinkSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seek.bin")

	out, err := OpenWrite(path)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	if err := out.Pad(16); err != nil {
		t.Fatalf("Pad: %v", err)
	}
	if err := out.SeekPut(0, SeekBeg); err != nil {
		t.Fatalf("SeekPut: %v", err)
	}
	if err := out.Write(uint32(7)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if out.Size() != 16 {
		t.Fatalf("Size() = %d, want 16 (seeking back should not shrink it)", out.Size())
	}
	out.Close()
}

func TestBinaryIOTruncateZeroFills(t *testing.T) {
	path := filepath.Join(t.TempDir(), "truncate.bin")

	out, err := OpenWrite(path)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	if err := out.Write(uint8(9)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := out.Truncate(8); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	out.Close()

	in, err := OpenRead(path)
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	defer in.Close()

	if in.Size() != 8 {
		t.Fatalf("Size() = %d, want 8", in.Size())
	}
	buf := make([]byte, 8)
	if err := in.ReadBytes(buf); err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if buf[0] != 9 {
		t.Fatalf("buf[0] = %d, want 9", buf[0])
	}
	for i := 1; i < 8; i++ {
		if buf[i] != 0 {
			t.Fatalf("buf[%d] = %d, want 0 (truncate must zero-fill)", i, buf[i])
		}
	}
}

func TestBinaryIOReadPastEndFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.bin")

	out, err := OpenWrite(path)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	out.Write(uint8(1))
	out.Close()

	in, err := OpenRead(path)
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	defer in.Close()

	if _, err := in.ReadUint64(); err == nil {
		t.Fatalf("expected a truncated read error, got nil")
	}
}
