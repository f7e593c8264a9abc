package rpak

import "fmt"

// PakMagic is stored little-endian, so the first 4 bytes of every pak file
// read "RPak" (spec §6).
const PakMagic uint32 = 0x6b615052

// Header carries every field either pak version can populate; Write
// selects which subset to emit based on Version, replacing the original
// tool's virtual-dispatch WriteHeader with a plain version check (see DESIGN.md /
// REDESIGN FLAGS).
type Header struct {
	Version uint16
	Flags   uint16
	FileTime uint64

	CompressedSize   uint64
	DecompressedSize uint64

	EmbeddedStarpakOffset uint64 // version 8 only
	EmbeddedStarpakSize   uint64 // version 8 only

	StarpakPathsSize    uint16
	OptStarpakPathsSize uint16 // version 8 only

	SlabCount  uint16
	PageCount  uint16
	PatchIndex uint16 // reserved, always 0 (spec §9 open question)
	Alignment  uint16 // version 8 only, reserved, always 0

	PointerCount     uint32
	AssetCount       uint32
	GuidRefCount     uint32
	DependentsCount  uint32

	// version 7 only; the original writes these as zero and their meaning
	// is undocumented (spec §9).
	ExternalAssetsCount uint32
	ExternalAssetsSize  uint32
}

// HeaderSizeV8 and HeaderSizeV7 are the fixed on-disk header sizes actually
// emitted by Write, below. The original tool's in-memory header struct is
// 136 bytes (it carries both the tf2-only and apex-only fields as distinct
// members so one struct can serve either version), but WriteHeader only
// ever serializes one version's subset of those members: 128 bytes for
// version 8, 88 for version 7. See DESIGN.md for this resolution.
const (
	HeaderSizeV8 = 128
	HeaderSizeV7 = 88
)

// HeaderSize returns the on-disk size of h given its Version.
func (h *Header) HeaderSize() int {
	if h.Version == 8 {
		return HeaderSizeV8
	}
	return HeaderSizeV7
}

// Write emits h in the byte order spec §6 mandates: the first 32 bytes
// (magic, version, flags, file time, 8 zero bytes, compressed size) are
// common to both versions, after which the layouts diverge.
func (h *Header) Write(out *BinaryIO) error {
	if h.Version != 7 && h.Version != 8 {
		return fmt.Errorf("header: unsupported version %d", h.Version)
	}

	w := func(v any) error { return out.Write(v) }
	pad := func(n int) error { return out.Pad(n) }

	if err := w(PakMagic); err != nil {
		return err
	}
	if err := w(h.Version); err != nil {
		return err
	}
	if err := w(h.Flags); err != nil {
		return err
	}
	if err := w(h.FileTime); err != nil {
		return err
	}
	if err := pad(8); err != nil {
		return err
	}
	if err := w(h.CompressedSize); err != nil {
		return err
	}

	if h.Version == 8 {
		if err := w(h.EmbeddedStarpakOffset); err != nil {
			return err
		}
		if err := pad(8); err != nil {
			return err
		}
		if err := w(h.DecompressedSize); err != nil {
			return err
		}
		if err := w(h.EmbeddedStarpakSize); err != nil {
			return err
		}
		if err := pad(8); err != nil {
			return err
		}
		if err := w(h.StarpakPathsSize); err != nil {
			return err
		}
		if err := w(h.OptStarpakPathsSize); err != nil {
			return err
		}
		if err := w(h.SlabCount); err != nil {
			return err
		}
		if err := w(h.PageCount); err != nil {
			return err
		}
		if err := w(h.PatchIndex); err != nil {
			return err
		}
		if err := w(h.Alignment); err != nil {
			return err
		}
		if err := w(h.PointerCount); err != nil {
			return err
		}
		if err := w(h.AssetCount); err != nil {
			return err
		}
		if err := w(h.GuidRefCount); err != nil {
			return err
		}
		if err := w(h.DependentsCount); err != nil {
			return err
		}
		return pad(28)
	}

	// version 7
	if err := pad(8); err != nil {
		return err
	}
	if err := w(h.DecompressedSize); err != nil {
		return err
	}
	if err := pad(8); err != nil {
		return err
	}
	if err := w(h.StarpakPathsSize); err != nil {
		return err
	}
	if err := w(h.SlabCount); err != nil {
		return err
	}
	if err := w(h.PageCount); err != nil {
		return err
	}
	if err := w(h.PatchIndex); err != nil {
		return err
	}
	if err := w(h.PointerCount); err != nil {
		return err
	}
	if err := w(h.AssetCount); err != nil {
		return err
	}
	if err := w(h.GuidRefCount); err != nil {
		return err
	}
	if err := w(h.DependentsCount); err != nil {
		return err
	}
	if err := w(h.ExternalAssetsCount); err != nil {
		return err
	}
	return w(h.ExternalAssetsSize)
}

// WriteAssetRecord emits one asset record in the version-appropriate layout
// (spec §3, §6).
func WriteAssetRecord(out *BinaryIO, a *AssetRecord, version uint16) error {
	w := func(v any) error { return out.Write(v) }

	if err := w(a.Guid); err != nil {
		return err
	}
	if err := out.Pad(8); err != nil {
		return err
	}
	if err := w(uint32(a.HeadPtr.Index)); err != nil {
		return err
	}
	if err := w(uint32(a.HeadPtr.Offset)); err != nil {
		return err
	}
	if err := w(uint32(a.CPUPtr.Index)); err != nil {
		return err
	}
	if err := w(uint32(a.CPUPtr.Offset)); err != nil {
		return err
	}
	if err := w(a.StreamOffsetMandatory); err != nil {
		return err
	}
	if version == 8 {
		if err := w(a.StreamOffsetOptional); err != nil {
			return err
		}
	}
	if err := w(a.PageEnd); err != nil {
		return err
	}
	if err := w(a.InternalDepCount); err != nil {
		return err
	}
	if err := w(a.DependentsStart); err != nil {
		return err
	}
	if err := w(a.UsesStart); err != nil {
		return err
	}
	if err := w(a.DependentsCount); err != nil {
		return err
	}
	if err := w(a.UsesCount); err != nil {
		return err
	}
	if err := w(a.HeadSize); err != nil {
		return err
	}
	if err := w(a.Version); err != nil {
		return err
	}
	return w(uint32(a.Type))
}
