package rpak

import (
	"path/filepath"
	"testing"
)

func writeHeaderToTemp(t *testing.T, h *Header) int64 {
	t.Helper()
	path := filepath.Join(t.TempDir(), "header.bin")

	out, err := OpenWrite(path)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	if err := h.Write(out); err != nil {
		t.Fatalf("Write: %v", err)
	}
	size := out.TellPut()
	out.Close()
	return size
}

func TestHeaderWriteSizeV8(t *testing.T) {
	h := &Header{Version: 8}
	size := writeHeaderToTemp(t, h)
	if size != HeaderSizeV8 {
		t.Fatalf("version 8 header wrote %d bytes, want %d", size, HeaderSizeV8)
	}
}

func TestHeaderWriteSizeV7(t *testing.T) {
	h := &Header{Version: 7}
	size := writeHeaderToTemp(t, h)
	if size != HeaderSizeV7 {
		t.Fatalf("version 7 header wrote %d bytes, want %d", size, HeaderSizeV7)
	}
}

func TestHeaderSizeMatchesWrittenBytes(t *testing.T) {
	for _, v := range []uint16{7, 8} {
		h := &Header{Version: v}
		if int64(h.HeaderSize()) != writeHeaderToTemp(t, h) {
			t.Errorf("version %d: HeaderSize() = %d, actual write = %d", v, h.HeaderSize(), writeHeaderToTemp(t, h))
		}
	}
}

func TestHeaderWriteRejectsUnknownVersion(t *testing.T) {
	h := &Header{Version: 6}
	path := filepath.Join(t.TempDir(), "bad.bin")
	out, err := OpenWrite(path)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	defer out.Close()
	if err := h.Write(out); err == nil {
		t.Fatalf("expected an error writing an unsupported version")
	}
}

func TestHeaderWriteLeadsWithMagic(t *testing.T) {
	h := &Header{Version: 8}
	path := filepath.Join(t.TempDir(), "magic.bin")

	out, err := OpenWrite(path)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	if err := h.Write(out); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out.Close()

	in, err := OpenRead(path)
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	defer in.Close()

	magic, err := in.ReadUint32()
	if err != nil {
		t.Fatalf("ReadUint32: %v", err)
	}
	if magic != PakMagic {
		t.Fatalf("magic = %#x, want %#x", magic, PakMagic)
	}
}

func TestWriteAssetRecordSizeV8(t *testing.T) {
	a := &AssetRecord{HeadPtr: NullPagePtr, CPUPtr: NullPagePtr, StreamOffsetMandatory: NoStream, StreamOffsetOptional: NoStream}
	path := filepath.Join(t.TempDir(), "asset8.bin")

	out, err := OpenWrite(path)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	if err := WriteAssetRecord(out, a, 8); err != nil {
		t.Fatalf("WriteAssetRecord: %v", err)
	}
	size := out.TellPut()
	out.Close()

	if size != AssetRecordSizeV8 {
		t.Fatalf("version 8 asset record wrote %d bytes, want %d", size, AssetRecordSizeV8)
	}
}

func TestWriteAssetRecordSizeV7(t *testing.T) {
	a := &AssetRecord{HeadPtr: NullPagePtr, CPUPtr: NullPagePtr, StreamOffsetMandatory: NoStream, StreamOffsetOptional: NoStream}
	path := filepath.Join(t.TempDir(), "asset7.bin")

	out, err := OpenWrite(path)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	if err := WriteAssetRecord(out, a, 7); err != nil {
		t.Fatalf("WriteAssetRecord: %v", err)
	}
	size := out.TellPut()
	out.Close()

	if size != AssetRecordSizeV7 {
		t.Fatalf("version 7 asset record wrote %d bytes, want %d", size, AssetRecordSizeV7)
	}
}
