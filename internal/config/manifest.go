package config

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ManifestFile is the package metadata file carrying the bundling section.
const ManifestFile = "package.json"

// SectionKey is the manifest key of the bundling section.
const SectionKey = "tsbundle"

// Manifest is the subset of package.json this tool reads.
type Manifest struct {
	Name    string            `json:"name"`
	Version string            `json:"version"`
	Scripts map[string]string `json:"scripts"`
	Section *Section          `json:"tsbundle"`
}

// Section is the bundling section. It may also be written as a plain list
// of entries, which is equivalent to {"files": [...]}.
type Section struct {
	Output                  *string     `json:"output"`
	Formats                 []string    `json:"formats"`
	GenerateTypeDefinitions *bool       `json:"generateTypeDefinitions"`
	ExportBits              *bool       `json:"exportBits"`
	Files                   []FileEntry `json:"files"`
}

// UnmarshalJSON accepts either an object or a list of entries.
func (s *Section) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &s.Files)
	}
	type plain Section
	return json.Unmarshal(trimmed, (*plain)(s))
}

// FileEntry is one entry point as written in the manifest.
type FileEntry struct {
	Input                   string            `json:"input"`
	Output                  *string           `json:"output"`
	Formats                 []string          `json:"formats"`
	GenerateTypeDefinitions *bool             `json:"generateTypeDefinitions"`
	LibraryName             string            `json:"libraryName"`
	OutName                 string            `json:"outName"`
	ExportMap               map[string]string `json:"exportMap"`
	Include                 map[string]string `json:"include"`
	ExportBits              *bool             `json:"exportBits"`
	Exclude                 []string          `json:"exclude"`
}

// ParseManifest decodes package.json content.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ManifestFile, err)
	}
	return &m, nil
}
