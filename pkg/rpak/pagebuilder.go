package rpak

import (
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/r-ex/repak/pkg/rpak/rpakerr"
)

// alignUp rounds size up to the next multiple of align (align must be a
// power of two).
func alignUp(size, align int32) int32 {
	return (size + align - 1) &^ (align - 1)
}

func isPowerOfTwo(v int32) bool {
	return v > 0 && v&(v-1) == 0
}

// PageBuilder manages slabs, pages, and lumps: it enforces per-lump
// alignment and the 64 KiB page-merge ceiling, and writes the slab/page
// headers and payload bytes (spec §4.2).
type PageBuilder struct {
	slabs  []*Slab
	pages  []*Page
	logger hclog.Logger
}

func NewPageBuilder(logger hclog.Logger) *PageBuilder {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &PageBuilder{logger: logger}
}

func (pb *PageBuilder) SlabCount() int { return len(pb.slabs) }
func (pb *PageBuilder) PageCount() int { return len(pb.pages) }

// findOrCreateSlab finds the first slab with equal flags whose alignment is
// as close as possible to requested, raising its alignment if needed;
// otherwise creates a new one. size must already be aligned by the caller.
func (pb *PageBuilder) findOrCreateSlab(flags int32, align int32, size int32) (*Slab, error) {
	var best *Slab
	bestDiff := int32(1<<31 - 1)

	for _, s := range pb.slabs {
		if int32(s.Flags) != flags {
			continue
		}
		if int32(s.Alignment) != align {
			diff := int32(s.Alignment) - align
			if diff < 0 {
				diff = -diff
			}
			if diff < bestDiff {
				bestDiff = diff
				best = s
			}
			continue
		}
		best = s
		break
	}

	if best != nil {
		if int32(best.Alignment) < align {
			best.Alignment = uint32(align)
		}
		best.DataSize += uint64(size)
		return best, nil
	}

	if len(pb.slabs) >= MaxSlabs {
		return nil, fmt.Errorf("%w: limit is %d", rpakerr.ErrTooManySlabs, MaxSlabs)
	}

	slab := &Slab{
		Index:     int32(len(pb.slabs)),
		Flags:     uint32(flags),
		Alignment: uint32(align),
		DataSize:  uint64(size),
	}
	pb.slabs = append(pb.slabs, slab)
	return slab, nil
}

// findOrCreatePage finds the first page with equal flags, as-close-as-
// possible alignment, and room for size more (aligned) bytes without
// crossing MaxPageMergeSize; otherwise creates a new page (and its slab).
func (pb *PageBuilder) findOrCreatePage(flags int32, align int32, size int32) (*Page, error) {
	slab, err := pb.findOrCreateSlab(flags, align, size)
	if err != nil {
		return nil, err
	}

	var best *Page
	bestDiff := int32(1<<31 - 1)

	for _, p := range pb.pages {
		if p.Flags != flags {
			continue
		}

		mergeAlign := p.Alignment
		if align > mergeAlign {
			mergeAlign = align
		}
		if alignUp(p.DataSize, mergeAlign)+size > MaxPageMergeSize {
			continue
		}

		if p.Alignment != align {
			diff := p.Alignment - align
			if diff < 0 {
				diff = -diff
			}
			if diff < bestDiff {
				bestDiff = diff
				best = p
			}
			continue
		}

		best = p
		break
	}

	if best != nil {
		if best.Alignment < align {
			best.Alignment = align
		}
		best.DataSize += size
		return best, nil
	}

	page := &Page{
		Index:     int32(len(pb.pages)),
		SlabIndex: slab.Index,
		Flags:     flags,
		Alignment: align,
		DataSize:  size,
	}
	pb.pages = append(pb.pages, page)
	return page, nil
}

// CreatePageLump places size bytes of data (or a freshly-zeroed buffer, if
// data is nil) into a page with the given flags/alignment, padding as
// needed, and returns the resulting lump (spec §4.2).
func (pb *PageBuilder) CreatePageLump(size int, flags int32, align int32, data []byte) (*Lump, error) {
	if align <= 0 || align >= 256 {
		return nil, fmt.Errorf("%w: got %d", rpakerr.ErrBadAlignment, align)
	}
	if !isPowerOfTwo(align) {
		return nil, fmt.Errorf("%w: %d is not a power of two", rpakerr.ErrBadAlignment, align)
	}

	alignedSize := alignUp(int32(size), align)

	page, err := pb.findOrCreatePage(flags, align, alignedSize)
	if err != nil {
		return nil, err
	}

	// page.DataSize already includes alignedSize (findOrCreatePage grew it);
	// reconstruct the pre-grow size to compute the padding needed in front
	// of this lump.
	preSize := page.DataSize - alignedSize
	padAmount := alignUp(preSize, align) - preSize

	if padAmount > 0 {
		page.Lumps = append(page.Lumps, &Lump{
			Size:      padAmount,
			Alignment: align,
			PagePtr:   NullPagePtr,
		})
		page.DataSize += padAmount
		pb.slabs[page.SlabIndex].DataSize += uint64(padAmount)
	}

	buf := data
	if buf == nil {
		buf = make([]byte, size)
	}

	lump := &Lump{
		Data:      buf,
		Size:      int32(size),
		Alignment: page.Alignment,
		PagePtr:   PagePtr{Index: page.Index, Offset: page.DataSize - alignedSize},
	}
	page.Lumps = append(page.Lumps, lump)

	lumpPad := alignedSize - int32(size)
	if lumpPad > 0 {
		page.Lumps = append(page.Lumps, &Lump{
			Size:      lumpPad,
			Alignment: align,
			PagePtr:   NullPagePtr,
		})
	}

	pb.logger.Trace("created page lump", "page", page.Index, "size", size, "align", align, "offset", lump.PagePtr.Offset)

	return lump, nil
}

// PadSlabsAndPages pads every page's data size up to its own alignment with
// a materialized padding lump, then pads every slab's accounted size up to
// its own alignment without emitting any bytes (slab padding is never
// written, only reflected in the header) — spec §4.2.
func (pb *PageBuilder) PadSlabsAndPages() {
	for _, page := range pb.pages {
		slab := pb.slabs[page.SlabIndex]

		pad := alignUp(page.DataSize, page.Alignment) - page.DataSize
		if pad > 0 {
			page.Lumps = append(page.Lumps, &Lump{
				Size:      pad,
				Alignment: page.Alignment,
				PagePtr:   NullPagePtr,
			})
			page.DataSize += pad
			slab.DataSize += uint64(pad)
		}
	}

	for _, slab := range pb.slabs {
		slabPad := alignUp(int32(slab.DataSize), int32(slab.Alignment)) - int32(slab.DataSize)
		if slabPad > 0 {
			slab.DataSize += uint64(slabPad)
		}
	}
}

// WriteSlabHeaders emits the slab headers in creation order.
func (pb *PageBuilder) WriteSlabHeaders(out *BinaryIO) error {
	for _, s := range pb.slabs {
		if err := out.Write(s.Flags); err != nil {
			return err
		}
		if err := out.Write(s.Alignment); err != nil {
			return err
		}
		if err := out.Write(s.DataSize); err != nil {
			return err
		}
	}
	return nil
}

// WritePageHeaders emits the page headers in creation order.
func (pb *PageBuilder) WritePageHeaders(out *BinaryIO) error {
	for _, p := range pb.pages {
		if err := out.Write(uint32(p.SlabIndex)); err != nil {
			return err
		}
		if err := out.Write(uint32(p.Alignment)); err != nil {
			return err
		}
		if err := out.Write(uint32(p.DataSize)); err != nil {
			return err
		}
	}
	return nil
}

// WritePageData walks pages in index order, writing each lump's bytes, or
// (for padding lumps) seeking the write cursor forward without writing
// anything, so padding always reads back as zero thanks to sparse/ftruncate
// semantics being irrelevant here: callers must have zero-initialized the
// file region, which OpenWrite's O_TRUNC guarantees for a fresh file.
func (pb *PageBuilder) WritePageData(out *BinaryIO) error {
	for _, page := range pb.pages {
		for _, lump := range page.Lumps {
			if lump.IsPadding() {
				if err := out.SeekPut(int64(lump.Size), SeekCur); err != nil {
					return err
				}
				continue
			}
			if err := out.WriteBytes(lump.Data); err != nil {
				return err
			}
			// Release the buffer now that its bytes are on disk; nothing
			// else may retain a reference past this point (spec §5).
			lump.Data = nil
		}
	}
	return nil
}
