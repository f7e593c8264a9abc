package rpak

import "testing"

func TestCreatePageLumpAssignsIncreasingOffsets(t *testing.T) {
	pb := NewPageBuilder(nil)

	l1, err := pb.CreatePageLump(4, SlabFlagCPU, 4, []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("CreatePageLump: %v", err)
	}
	l2, err := pb.CreatePageLump(4, SlabFlagCPU, 4, []byte{5, 6, 7, 8})
	if err != nil {
		t.Fatalf("CreatePageLump: %v", err)
	}

	if l1.PagePtr.Index != l2.PagePtr.Index {
		t.Fatalf("equal flags/alignment lumps should merge into the same page: %d != %d",
			l1.PagePtr.Index, l2.PagePtr.Index)
	}
	if l2.PagePtr.Offset <= l1.PagePtr.Offset {
		t.Fatalf("second lump's offset (%d) should be past the first's (%d)", l2.PagePtr.Offset, l1.PagePtr.Offset)
	}
}

func TestCreatePageLumpSeparatesByFlags(t *testing.T) {
	pb := NewPageBuilder(nil)

	head, err := pb.CreatePageLump(8, SlabFlagHead, 8, nil)
	if err != nil {
		t.Fatalf("CreatePageLump head: %v", err)
	}
	cpu, err := pb.CreatePageLump(8, SlabFlagCPU, 8, nil)
	if err != nil {
		t.Fatalf("CreatePageLump cpu: %v", err)
	}

	if head.PagePtr.Index == cpu.PagePtr.Index {
		t.Fatalf("SF_HEAD and SF_CPU lumps must not share a page")
	}
	if pb.SlabCount() != 2 {
		t.Fatalf("expected 2 slabs (one per flag), got %d", pb.SlabCount())
	}
}

func TestCreatePageLumpRejectsBadAlignment(t *testing.T) {
	pb := NewPageBuilder(nil)

	cases := []int32{0, -1, 3, 256, 512}
	for _, align := range cases {
		if _, err := pb.CreatePageLump(4, SlabFlagCPU, align, nil); err == nil {
			t.Errorf("alignment %d should be rejected", align)
		}
	}
}

func TestCreatePageLumpRespectsMergeCeiling(t *testing.T) {
	pb := NewPageBuilder(nil)

	// First lump very close to the ceiling; the second must start a new
	// page rather than pushing the merged page over 65535 bytes.
	big, err := pb.CreatePageLump(MaxPageMergeSize-8, SlabFlagCPU, 8, nil)
	if err != nil {
		t.Fatalf("CreatePageLump big: %v", err)
	}
	next, err := pb.CreatePageLump(16, SlabFlagCPU, 8, nil)
	if err != nil {
		t.Fatalf("CreatePageLump next: %v", err)
	}

	if big.PagePtr.Index == next.PagePtr.Index {
		t.Fatalf("lump overflowing the merge ceiling should start a new page")
	}
}

func TestFindOrCreateSlabEnforcesMaxSlabs(t *testing.T) {
	pb := NewPageBuilder(nil)

	// Slabs are keyed by flags alone, so MaxSlabs distinct flag values
	// create MaxSlabs distinct slabs outright.
	for i := 0; i < MaxSlabs; i++ {
		if _, err := pb.CreatePageLump(4, int32(i), 4, nil); err != nil {
			t.Fatalf("unexpected error creating slab %d: %v", i, err)
		}
	}

	if _, err := pb.CreatePageLump(4, int32(MaxSlabs), 4, nil); err == nil {
		t.Fatalf("expected an error once more than %d slabs are requested", MaxSlabs)
	}
}

func TestPadSlabsAndPagesAlignsFinalSize(t *testing.T) {
	pb := NewPageBuilder(nil)

	if _, err := pb.CreatePageLump(3, SlabFlagCPU, 4, nil); err != nil {
		t.Fatalf("CreatePageLump: %v", err)
	}

	pb.PadSlabsAndPages()

	page := pb.pages[0]
	if page.DataSize%page.Alignment != 0 {
		t.Fatalf("page data size %d is not aligned to %d", page.DataSize, page.Alignment)
	}
	slab := pb.slabs[page.SlabIndex]
	if slab.DataSize%uint64(slab.Alignment) != 0 {
		t.Fatalf("slab data size %d is not aligned to %d", slab.DataSize, slab.Alignment)
	}
}

func TestAlignUp(t *testing.T) {
	tests := []struct{ size, align, want int32 }{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
		{17, 4, 20},
	}
	for _, tc := range tests {
		if got := alignUp(tc.size, tc.align); got != tc.want {
			t.Errorf("alignUp(%d, %d) = %d, want %d", tc.size, tc.align, got, tc.want)
		}
	}
}
