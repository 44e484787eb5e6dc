package layout

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"omr-engine/internal/sheet"
)

// Table is the immutable per-batch configuration: one layout and one answer
// key per sheet version. Built once before any sheet is processed and shared
// read-only across workers.
type Table struct {
	layouts map[Version]*BubbleLayout
	keys    map[Version]AnswerKey
}

// NewTable validates layouts against keys and builds the lookup table.
// Any inconsistency fails the whole batch up front.
func NewTable(layouts []*BubbleLayout, keys map[Version]AnswerKey) (*Table, error) {
	t := &Table{
		layouts: make(map[Version]*BubbleLayout, len(layouts)),
		keys:    make(map[Version]AnswerKey, len(keys)),
	}
	for _, l := range layouts {
		if err := l.Validate(); err != nil {
			return nil, sheet.Wrap(sheet.ErrConfiguration, "layout", "validate", err)
		}
		if _, dup := t.layouts[l.Version]; dup {
			return nil, sheet.Wrap(sheet.ErrConfiguration, "layout",
				fmt.Sprintf("duplicate layout for version %s", l.Version), nil)
		}
		t.layouts[l.Version] = l
	}
	for version, key := range keys {
		l, ok := t.layouts[version]
		if !ok {
			return nil, sheet.Wrap(sheet.ErrConfiguration, "answer key",
				fmt.Sprintf("key for version %s has no layout", version), nil)
		}
		if len(key) != l.TotalQuestions {
			return nil, sheet.Wrap(sheet.ErrConfiguration, "answer key",
				fmt.Sprintf("version %s: %d entries, layout has %d questions",
					version, len(key), l.TotalQuestions), nil)
		}
		t.keys[version] = key
	}
	// A layout with no key cannot be scored; reject rather than score zeros.
	for version := range t.layouts {
		if _, ok := t.keys[version]; !ok {
			return nil, sheet.Wrap(sheet.ErrConfiguration, "answer key",
				fmt.Sprintf("no answer key for version %s", version), nil)
		}
	}
	return t, nil
}

// Resolve returns the layout and key for a version. An unresolved version is
// a configuration error: the caller must reject the sheet, not guess.
func (t *Table) Resolve(version Version) (*BubbleLayout, AnswerKey, error) {
	l, ok := t.layouts[version]
	if !ok {
		return nil, nil, sheet.Wrap(sheet.ErrConfiguration, "version",
			fmt.Sprintf("no configuration for sheet version %q", version), nil)
	}
	return l, t.keys[version], nil
}

// Versions returns the configured versions in sorted order.
func (t *Table) Versions() []Version {
	out := make([]Version, 0, len(t.layouts))
	for v := range t.layouts {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasVersions verifies that every requested version is configured, before any
// sheet of the batch is processed.
func (t *Table) HasVersions(versions []Version) error {
	for _, v := range versions {
		if _, ok := t.layouts[v]; !ok {
			return sheet.Wrap(sheet.ErrConfiguration, "version",
				fmt.Sprintf("batch references unconfigured sheet version %q", v), nil)
		}
	}
	return nil
}

// keysFile is the on-disk answer key shape: version -> question -> letter.
type keysFile map[string]keyFileEntry

// LoadTable reads layouts and answer keys from JSON files and validates them
// together.
func LoadTable(layoutPath, keysPath string) (*Table, error) {
	layoutData, err := os.ReadFile(layoutPath)
	if err != nil {
		return nil, sheet.Wrap(sheet.ErrConfiguration, "layout", layoutPath, err)
	}
	var layouts []*BubbleLayout
	if err := json.Unmarshal(layoutData, &layouts); err != nil {
		return nil, sheet.Wrap(sheet.ErrConfiguration, "layout", "parse "+layoutPath, err)
	}

	keyData, err := os.ReadFile(keysPath)
	if err != nil {
		return nil, sheet.Wrap(sheet.ErrConfiguration, "answer key", keysPath, err)
	}
	var rawKeys keysFile
	if err := json.Unmarshal(keyData, &rawKeys); err != nil {
		return nil, sheet.Wrap(sheet.ErrConfiguration, "answer key", "parse "+keysPath, err)
	}

	byVersion := make(map[Version]*BubbleLayout, len(layouts))
	for _, l := range layouts {
		byVersion[l.Version] = l
	}
	keys := make(map[Version]AnswerKey, len(rawKeys))
	for vs, raw := range rawKeys {
		version := Version(vs)
		l, ok := byVersion[version]
		if !ok {
			return nil, sheet.Wrap(sheet.ErrConfiguration, "answer key",
				fmt.Sprintf("key for version %s has no layout", version), nil)
		}
		key, err := parseAnswerKey(version, raw, l)
		if err != nil {
			return nil, sheet.Wrap(sheet.ErrConfiguration, "answer key", "parse", err)
		}
		keys[version] = key
	}

	return NewTable(layouts, keys)
}

// LoadStandardTable reads only an answer-key file and pairs every version in
// it with the stock layout. This is the common path for exams printed on the
// standard sheet.
func LoadStandardTable(keysPath string) (*Table, error) {
	keyData, err := os.ReadFile(keysPath)
	if err != nil {
		return nil, sheet.Wrap(sheet.ErrConfiguration, "answer key", keysPath, err)
	}
	var rawKeys keysFile
	if err := json.Unmarshal(keyData, &rawKeys); err != nil {
		return nil, sheet.Wrap(sheet.ErrConfiguration, "answer key", "parse "+keysPath, err)
	}

	var layouts []*BubbleLayout
	keys := make(map[Version]AnswerKey, len(rawKeys))
	for vs, raw := range rawKeys {
		version := Version(vs)
		l := StandardLayout(version)
		key, err := parseAnswerKey(version, raw, l)
		if err != nil {
			return nil, sheet.Wrap(sheet.ErrConfiguration, "answer key", "parse", err)
		}
		layouts = append(layouts, l)
		keys[version] = key
	}
	return NewTable(layouts, keys)
}

// StandardLayout returns the stock 100-question layout for a version:
// five 20-question subjects, four options per question, four columns of 25
// questions on an A4 canonical frame at 150 DPI.
func StandardLayout(version Version) *BubbleLayout {
	return &BubbleLayout{
		Version:            version,
		TotalQuestions:     100,
		OptionsPerQuestion: 4,
		Subjects: []Subject{
			{Name: "Mathematics", Questions: 20},
			{Name: "Physics", Questions: 20},
			{Name: "Chemistry", Questions: 20},
			{Name: "Biology", Questions: 20},
			{Name: "English", Questions: 20},
		},
		FrameWidth:  1240,
		FrameHeight: 1754,
		Grid: GridGeometry{
			Columns:       4,
			RowsPerColumn: 25,
			OriginX:       140,
			OriginY:       260,
			ColumnPitch:   290,
			RowPitch:      56,
			OptionPitch:   52,
			BubbleRadius:  14,
		},
	}
}
