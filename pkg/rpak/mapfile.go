package rpak

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/r-ex/repak/pkg/rpak/rpakerr"
)

// MapAssetEntry is one element of a map file's "files" array: the dispatch
// tag plus the asset-specific fields, kept as raw JSON so each adder can
// decode only the shape it understands (spec §6: "Map file schema").
type MapAssetEntry struct {
	Type string          `json:"$type"`
	Path string          `json:"path"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full object in Raw in addition to populating
// the named fields, so adders can re-decode asset-specific members.
func (e *MapAssetEntry) UnmarshalJSON(data []byte) error {
	type alias MapAssetEntry
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = MapAssetEntry(a)
	e.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MapFile is the decoded top-level build document a run of the builder is
// driven by (spec §6: "Map file schema").
type MapFile struct {
	Name    string `json:"name,omitempty"`
	Version int    `json:"version"`

	AssetsDir string `json:"assetsDir,omitempty"`
	OutputDir string `json:"outputDir"`

	StarpakPath         string `json:"starpakPath,omitempty"`
	StreamFileMandatory string `json:"streamFileMandatory,omitempty"`
	StreamFileOptional  string `json:"streamFileOptional,omitempty"`
	StreamCache         string `json:"streamCache,omitempty"`

	KeepDevOnly    bool `json:"keepDevOnly,omitempty"`
	KeepServerOnly bool `json:"keepServerOnly,omitempty"`
	KeepClientOnly bool `json:"keepClientOnly,omitempty"`
	ShowDebugInfo  bool `json:"showDebugInfo,omitempty"`

	Files []MapAssetEntry `json:"files"`

	// sourcePath is the map file's own location, so relative paths (assetsDir,
	// outputDir, starpakPath, ...) can be resolved against its directory.
	sourcePath string
}

// LoadMapFile reads and validates a map file from path (spec §6, §7).
func LoadMapFile(path string) (*MapFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading map file %q: %v", rpakerr.ErrFileIO, path, err)
	}

	var m MapFile
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parsing map file %q: %v", rpakerr.ErrMissingRequiredField, path, err)
	}
	m.sourcePath = path

	if m.Version != 7 && m.Version != 8 {
		return nil, fmt.Errorf("%w: %q declares version %d", rpakerr.ErrVersionUnsupported, path, m.Version)
	}
	if m.OutputDir == "" {
		return nil, fmt.Errorf("%w: %q is missing \"outputDir\"", rpakerr.ErrMissingRequiredField, path)
	}

	return &m, nil
}

// SourcePath returns the path LoadMapFile was given.
func (m *MapFile) SourcePath() string { return m.sourcePath }
