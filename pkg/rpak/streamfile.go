package rpak

import (
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/r-ex/repak/pkg/rpak/rpakerr"
)

// StarpakMagic is "SRPk" little-endian, the first 4 bytes of a stream file
// (spec §4.4, §6).
const StarpakMagic uint32 = 0x6b505253

const StarpakVersion uint32 = 1

// StarpakHeaderSize is the fixed 4096-byte stream-file header: magic(4) +
// version(4) + 4088 bytes of 0xCB padding (spec §4.4).
const StarpakHeaderSize = 4096

// StarpakAlignment is the boundary every payload is padded up to.
const StarpakAlignment = 4096

// starpakPadByte is the filler byte used for the header's reserved region,
// matching the original tool's choice (visually distinct from zero when
// eyeballing a hex dump).
const starpakPadByte = 0xCB

// StreamSet distinguishes the mandatory stream file from the optional one;
// a pak may write to either, both, or neither (spec §3, §4.4).
type StreamSet int

const (
	StreamSetMandatory StreamSet = iota
	StreamSetOptional
)

// sortEntry is one {offset, size} footer record (spec §4.4).
type sortEntry struct {
	offset int64
	size   int64
}

// streamFileState is the open write-stream plus bookkeeping for one set.
type streamFileState struct {
	io        *BinaryIO
	path      string
	pathIndex uint32
	entries   []sortEntry
}

// StreamFileBuilder writes the mandatory and optional stream files for a
// build, deduplicating payloads via a StreamCache (spec §4.4).
type StreamFileBuilder struct {
	cache *StreamCache

	mandatory *streamFileState
	optional  *streamFileState

	cacheOutputPath string
	logger          hclog.Logger
}

// NewStreamFileBuilder constructs a builder with an empty StreamCache; Init
// replaces it with a prior .starmap when one is given and loads.
func NewStreamFileBuilder(logger hclog.Logger) *StreamFileBuilder {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &StreamFileBuilder{cache: NewStreamCache(logger), logger: logger}
}

// Init opens the requested stream file(s) and, if priorMapPath names an
// existing .starmap, loads it so dedup carries forward across builds
// (spec §4.4: "init").
func (b *StreamFileBuilder) Init(mandatoryPath, optionalPath, priorMapPath string) error {
	if priorMapPath != "" {
		cache, err := ParseMap(priorMapPath)
		if err == nil {
			b.cache = cache
		} else {
			b.logger.Debug("no prior stream cache loaded, starting fresh", "path", priorMapPath, "reason", err)
		}
	}

	if mandatoryPath != "" {
		state, err := b.openStreamFile(mandatoryPath)
		if err != nil {
			return err
		}
		b.mandatory = state
	}
	if optionalPath != "" {
		state, err := b.openStreamFile(optionalPath)
		if err != nil {
			return err
		}
		b.optional = state
	}

	return nil
}

func (b *StreamFileBuilder) openStreamFile(path string) (*streamFileState, error) {
	out, err := OpenWrite(path)
	if err != nil {
		return nil, err
	}

	if err := out.Write(StarpakMagic); err != nil {
		return nil, err
	}
	if err := out.Write(StarpakVersion); err != nil {
		return nil, err
	}
	pad := make([]byte, StarpakHeaderSize-8)
	for i := range pad {
		pad[i] = starpakPadByte
	}
	if err := out.WriteBytes(pad); err != nil {
		return nil, err
	}

	return &streamFileState{io: out, path: path}, nil
}

func (b *StreamFileBuilder) stateFor(set StreamSet) *streamFileState {
	if set == StreamSetOptional {
		return b.optional
	}
	return b.mandatory
}

// AddResult reports where a payload ended up after AddEntry, whether it was
// freshly written or deduplicated against the cache (spec §4.4).
type AddResult struct {
	StreamFilePath string
	DataOffset     int64
	PathIndex      uint32
	NewlyWritten   bool
}

// AddEntry writes data to the requested stream set, or returns the location
// of an existing identical payload if the cache already holds one
// (spec §4.4: "add_entry").
func (b *StreamFileBuilder) AddEntry(data []byte, set StreamSet) (AddResult, error) {
	state := b.stateFor(set)
	if state == nil {
		return AddResult{}, fmt.Errorf("%w: stream set not initialized", rpakerr.ErrNoStarpakAssigned)
	}

	optional := set == StreamSetOptional
	query := CreateQuery(data, state.path)

	if entry, file, ok := b.cache.Find(query, optional); ok {
		return AddResult{
			StreamFilePath: file.Path,
			DataOffset:     int64(entry.DataOffset),
			PathIndex:      entry.PathIndex,
			NewlyWritten:   false,
		}, nil
	}

	offset := state.io.TellPut()
	if err := state.io.WriteBytes(data); err != nil {
		return AddResult{}, err
	}

	paddedSize := alignUp64(uint64(len(data)), StarpakAlignment)
	if trailing := int64(paddedSize) - int64(len(data)); trailing > 0 {
		if err := state.io.Pad(int(trailing)); err != nil {
			return AddResult{}, err
		}
	}

	state.entries = append(state.entries, sortEntry{offset: offset, size: int64(len(data))})

	entry, err := b.cache.Add(query, offset, optional)
	if err != nil {
		return AddResult{}, err
	}

	return AddResult{
		StreamFilePath: state.path,
		DataOffset:     int64(entry.DataOffset),
		PathIndex:      entry.PathIndex,
		NewlyWritten:   true,
	}, nil
}

// Used reports whether any data was written to the given set.
func (b *StreamFileBuilder) Used(set StreamSet) bool {
	state := b.stateFor(set)
	return state != nil && len(state.entries) > 0
}

// RelativePath returns the path a given set was opened with, the path
// written into the pak's stream-file-paths section (spec §6).
func (b *StreamFileBuilder) RelativePath(set StreamSet) string {
	state := b.stateFor(set)
	if state == nil {
		return ""
	}
	return state.path
}

// Shutdown appends each open stream's sort table and entry count, then
// saves the accumulated StreamCache to mapOutputPath if any stream file was
// actually used (spec §4.4: "shutdown").
func (b *StreamFileBuilder) Shutdown(mapOutputPath string) error {
	wroteAny := false

	for _, state := range []*streamFileState{b.mandatory, b.optional} {
		if state == nil {
			continue
		}
		if len(state.entries) > 0 {
			wroteAny = true
		}

		for _, e := range state.entries {
			if err := state.io.Write(uint64(e.offset)); err != nil {
				return err
			}
			if err := state.io.Write(uint64(e.size)); err != nil {
				return err
			}
		}
		if err := state.io.Write(uint64(len(state.entries))); err != nil {
			return err
		}
		if err := state.io.Close(); err != nil {
			return err
		}
	}

	if wroteAny && mapOutputPath != "" {
		out, err := OpenWrite(mapOutputPath)
		if err != nil {
			return err
		}
		defer out.Close()
		if err := b.cache.Save(out); err != nil {
			return err
		}
	}

	return nil
}
