package rpak

import (
	"path/filepath"
	"testing"
)

func TestStreamFileBuilderOpenStreamFileWritesHeader(t *testing.T) {
	b := NewStreamFileBuilder(nil)
	mandatoryPath := filepath.Join(t.TempDir(), "test.starpak")

	if err := b.Init(mandatoryPath, "", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := b.AddEntry([]byte("payload"), StreamSetMandatory); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := b.Shutdown(""); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	in, err := OpenRead(mandatoryPath)
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	defer in.Close()

	magic, err := in.ReadUint32()
	if err != nil || magic != StarpakMagic {
		t.Fatalf("magic = %#x, %v, want %#x", magic, err, StarpakMagic)
	}
	version, err := in.ReadUint32()
	if err != nil || version != StarpakVersion {
		t.Fatalf("version = %d, %v, want %d", version, err, StarpakVersion)
	}
}

func TestStreamFileBuilderAddEntryAligns(t *testing.T) {
	b := NewStreamFileBuilder(nil)
	path := filepath.Join(t.TempDir(), "test.starpak")
	if err := b.Init(path, "", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}

	r1, err := b.AddEntry(make([]byte, 10), StreamSetMandatory)
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if r1.DataOffset != StarpakHeaderSize {
		t.Fatalf("first entry offset = %d, want %d (right after the header)", r1.DataOffset, StarpakHeaderSize)
	}

	r2, err := b.AddEntry(make([]byte, 1), StreamSetMandatory)
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if r2.DataOffset%StarpakAlignment != 0 {
		t.Fatalf("second entry offset %d is not %d-aligned", r2.DataOffset, StarpakAlignment)
	}
	if r2.DataOffset != StarpakHeaderSize+StarpakAlignment {
		t.Fatalf("second entry offset = %d, want %d", r2.DataOffset, StarpakHeaderSize+StarpakAlignment)
	}
}

func TestStreamFileBuilderDedupesIdenticalPayloads(t *testing.T) {
	b := NewStreamFileBuilder(nil)
	path := filepath.Join(t.TempDir(), "test.starpak")
	if err := b.Init(path, "", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}

	data := []byte("duplicate payload")
	r1, err := b.AddEntry(data, StreamSetMandatory)
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if !r1.NewlyWritten {
		t.Fatalf("first write of a payload should be NewlyWritten")
	}

	r2, err := b.AddEntry(data, StreamSetMandatory)
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if r2.NewlyWritten {
		t.Fatalf("identical payload should be deduplicated, not rewritten")
	}
	if r2.DataOffset != r1.DataOffset {
		t.Fatalf("deduplicated entry should point at the original offset: %d != %d", r2.DataOffset, r1.DataOffset)
	}
}

func TestStreamFileBuilderAddEntryWithoutInitFails(t *testing.T) {
	b := NewStreamFileBuilder(nil)
	if _, err := b.AddEntry([]byte("x"), StreamSetOptional); err == nil {
		t.Fatalf("expected an error writing to an unopened stream set")
	}
}

func TestStreamFileBuilderUsed(t *testing.T) {
	b := NewStreamFileBuilder(nil)
	mandatoryPath := filepath.Join(t.TempDir(), "m.starpak")
	optionalPath := filepath.Join(t.TempDir(), "o.opt.starpak")
	if err := b.Init(mandatoryPath, optionalPath, ""); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if b.Used(StreamSetMandatory) || b.Used(StreamSetOptional) {
		t.Fatalf("nothing written yet, Used should be false for both sets")
	}

	if _, err := b.AddEntry([]byte("data"), StreamSetMandatory); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}

	if !b.Used(StreamSetMandatory) {
		t.Fatalf("Used(mandatory) should be true after a write")
	}
	if b.Used(StreamSetOptional) {
		t.Fatalf("Used(optional) should still be false")
	}
}

func TestStreamFileBuilderShutdownWritesFooter(t *testing.T) {
	b := NewStreamFileBuilder(nil)
	path := filepath.Join(t.TempDir(), "footer.starpak")
	if err := b.Init(path, "", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if _, err := b.AddEntry([]byte("abc"), StreamSetMandatory); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if _, err := b.AddEntry([]byte("defgh"), StreamSetMandatory); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := b.Shutdown(""); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	in, err := OpenRead(path)
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	defer in.Close()

	if err := in.SeekGet(in.Size()-8, SeekBeg); err != nil {
		t.Fatalf("SeekGet: %v", err)
	}
	count, err := in.ReadUint64()
	if err != nil {
		t.Fatalf("ReadUint64: %v", err)
	}
	if count != 2 {
		t.Fatalf("footer entry count = %d, want 2", count)
	}
}
