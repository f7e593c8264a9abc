package rpak

import (
	"path/filepath"
	"testing"
)

func TestStreamCacheAddStarpakPathToCacheDedups(t *testing.T) {
	c := NewStreamCache(nil)

	idx1, err := c.AddStarpakPathToCache("paks/Win64/test.starpak", false)
	if err != nil {
		t.Fatalf("AddStarpakPathToCache: %v", err)
	}
	idx2, err := c.AddStarpakPathToCache("paks/Win64/test.starpak", false)
	if err != nil {
		t.Fatalf("AddStarpakPathToCache: %v", err)
	}
	if idx1 != idx2 {
		t.Fatalf("re-adding the same path should return the same index: %d != %d", idx1, idx2)
	}
	if c.FileCount() != 1 {
		t.Fatalf("FileCount() = %d, want 1", c.FileCount())
	}
}

func TestStreamCacheAddStarpakPathOverflow(t *testing.T) {
	c := NewStreamCache(nil)
	for i := 0; i < MaxStreamFiles; i++ {
		if _, err := c.AddStarpakPathToCache(filepath.Join("paks", string(rune('a'+i%26)), string(rune(i))), false); err != nil {
			t.Fatalf("unexpected error at %d: %v", i, err)
		}
	}
	if _, err := c.AddStarpakPathToCache("paks/one/too/many", false); err == nil {
		t.Fatalf("expected an error once MaxStreamFiles is exceeded")
	}
}

func TestStreamCacheFindAndAddRoundTrip(t *testing.T) {
	c := NewStreamCache(nil)

	data := []byte("mip level payload")
	q := CreateQuery(data, "paks/Win64/test.starpak")

	if _, _, ok := c.Find(q, false); ok {
		t.Fatalf("Find should miss on an empty cache")
	}

	entry, err := c.Add(q, 4096, false)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if entry.DataOffset != 4096 {
		t.Fatalf("entry.DataOffset = %d, want 4096", entry.DataOffset)
	}

	found, file, ok := c.Find(q, false)
	if !ok {
		t.Fatalf("Find should hit after Add")
	}
	if found.DataOffset != 4096 || file.Path != "paks/Win64/test.starpak" {
		t.Fatalf("Find returned %+v / %+v, want offset 4096 in test.starpak", found, file)
	}
}

func TestStreamCacheFindRespectsOptionality(t *testing.T) {
	c := NewStreamCache(nil)

	data := []byte("optional-only payload")
	q := CreateQuery(data, "paks/Win64/test.opt.starpak")
	if _, err := c.Add(q, 0, true); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, _, ok := c.Find(q, false); ok {
		t.Fatalf("a mandatory Find should not match an optional-only entry")
	}
	if _, _, ok := c.Find(q, true); !ok {
		t.Fatalf("an optional Find should match the optional entry")
	}
}

func TestStreamCacheSaveParseMapRoundTrip(t *testing.T) {
	c := NewStreamCache(nil)

	q1 := CreateQuery([]byte("first payload"), "paks/Win64/a.starpak")
	q2 := CreateQuery([]byte("second payload, longer"), "paks/Win64/b.opt.starpak")

	if _, err := c.Add(q1, 4096, false); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := c.Add(q2, 8192, true); err != nil {
		t.Fatalf("Add: %v", err)
	}

	path := filepath.Join(t.TempDir(), "test.starmap")
	out, err := OpenWrite(path)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	if err := c.Save(out); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out.Close()

	loaded, err := ParseMap(path)
	if err != nil {
		t.Fatalf("ParseMap: %v", err)
	}

	if loaded.FileCount() != 2 {
		t.Fatalf("loaded.FileCount() = %d, want 2", loaded.FileCount())
	}
	if loaded.EntryCount() != 2 {
		t.Fatalf("loaded.EntryCount() = %d, want 2", loaded.EntryCount())
	}

	f0 := loaded.File(0)
	if f0.Path != "paks/Win64/a.starpak" || f0.IsOptional {
		t.Fatalf("file 0 = %+v, want {false paks/Win64/a.starpak}", f0)
	}
	f1 := loaded.File(1)
	if f1.Path != "paks/Win64/b.opt.starpak" || !f1.IsOptional {
		t.Fatalf("file 1 = %+v, want {true paks/Win64/b.opt.starpak}", f1)
	}

	if _, _, ok := loaded.Find(q1, false); !ok {
		t.Fatalf("loaded cache should still find q1")
	}
	if _, _, ok := loaded.Find(q2, true); !ok {
		t.Fatalf("loaded cache should still find q2")
	}
}

func TestParseMapRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.starmap")
	out, err := OpenWrite(path)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	out.Write(uint32(0x12345678))
	out.Pad(streamCacheHeaderSize - 4)
	out.Close()

	if _, err := ParseMap(path); err == nil {
		t.Fatalf("expected an error for a bad magic")
	}
}

func TestStreamCacheHeaderSizeConstant(t *testing.T) {
	c := NewStreamCache(nil)
	path := filepath.Join(t.TempDir(), "empty.starmap")
	out, err := OpenWrite(path)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	if err := c.Save(out); err != nil {
		t.Fatalf("Save: %v", err)
	}
	size := out.TellPut()
	out.Close()

	if size != streamCacheHeaderSize {
		t.Fatalf("empty cache wrote %d bytes, want exactly the %d-byte header", size, streamCacheHeaderSize)
	}
}
