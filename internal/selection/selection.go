// Package selection persists mineral sample selections as JSON.
//
// The file format is
//
//	{"image_path": "...",
//	 "minerals": {"Quartz": {"color": [r,g,b], "samples": [[x, y, [r,g,b]], ...]}}}
//
// Key order inside "minerals" is the class index order.
package selection

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"mineral-classifier/internal/apperr"
	"mineral-classifier/internal/mineral"
	"mineral-classifier/pkg/colorutil"
)

// Suffix is appended to the image base name to form the selection file name.
const Suffix = "_selections.json"

// File is a selection file.
type File struct {
	ImagePath string
	Minerals  *mineral.Registry

	// Mismatches lists minerals whose stored color differed from the mean
	// of their samples when the file was decoded.
	Mismatches []string
}

// New returns an empty selection for imagePath.
func New(imagePath string) *File {
	return &File{ImagePath: imagePath, Minerals: mineral.NewRegistry()}
}

// PathFor returns the selection file path for imagePath inside outputDir.
func PathFor(outputDir, imagePath string) string {
	base := filepath.Base(imagePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, base+Suffix)
}

type rgbJSON [3]int

func (c rgbJSON) rgb() (colorutil.RGB, error) {
	var out colorutil.RGB
	for i, v := range c {
		if v < 0 || v > 255 {
			return out, fmt.Errorf("color component %d out of range", v)
		}
		out[i] = uint8(v)
	}
	return out, nil
}

func fromRGB(c colorutil.RGB) rgbJSON {
	return rgbJSON{int(c[0]), int(c[1]), int(c[2])}
}

// sampleJSON is the [x, y, [r, g, b]] triple.
type sampleJSON struct {
	X, Y  int
	Color rgbJSON
}

func (s sampleJSON) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{s.X, s.Y, s.Color})
}

func (s *sampleJSON) UnmarshalJSON(b []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil {
		return err
	}
	if len(parts) != 3 {
		return fmt.Errorf("sample must be [x, y, [r, g, b]], got %d elements", len(parts))
	}
	if err := json.Unmarshal(parts[0], &s.X); err != nil {
		return fmt.Errorf("sample x: %w", err)
	}
	if err := json.Unmarshal(parts[1], &s.Y); err != nil {
		return fmt.Errorf("sample y: %w", err)
	}
	if err := json.Unmarshal(parts[2], &s.Color); err != nil {
		return fmt.Errorf("sample color: %w", err)
	}
	return nil
}

type mineralJSON struct {
	Color   rgbJSON      `json:"color"`
	Samples []sampleJSON `json:"samples"`
}

// MarshalJSON writes minerals in registry order.
func (f *File) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	path, err := json.Marshal(f.ImagePath)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`{"image_path":`)
	buf.Write(path)
	buf.WriteString(`,"minerals":{`)
	if f.Minerals != nil {
		for i, c := range f.Minerals.Classes() {
			if i > 0 {
				buf.WriteByte(',')
			}
			name, err := json.Marshal(c.Name)
			if err != nil {
				return nil, err
			}
			m := mineralJSON{Color: fromRGB(c.Color), Samples: make([]sampleJSON, len(c.Samples))}
			for j, s := range c.Samples {
				m.Samples[j] = sampleJSON{X: s.X, Y: s.Y, Color: fromRGB(s.Color)}
			}
			body, err := json.Marshal(m)
			if err != nil {
				return nil, err
			}
			buf.Write(name)
			buf.WriteByte(':')
			buf.Write(body)
		}
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

// UnmarshalJSON rebuilds the registry in file order. Stored colors are
// checked against the recomputed mean and recorded in Mismatches.
func (f *File) UnmarshalJSON(b []byte) error {
	var raw struct {
		ImagePath string          `json:"image_path"`
		Minerals  json.RawMessage `json:"minerals"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	f.ImagePath = raw.ImagePath
	f.Minerals = mineral.NewRegistry()
	f.Mismatches = nil
	if len(raw.Minerals) == 0 || string(raw.Minerals) == "null" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw.Minerals))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("minerals must be an object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var m mineralJSON
		if err := dec.Decode(&m); err != nil {
			return fmt.Errorf("mineral %q: %w", name, err)
		}

		samples := make([]mineral.Sample, len(m.Samples))
		for i, s := range m.Samples {
			c, err := s.Color.rgb()
			if err != nil {
				return fmt.Errorf("mineral %q sample %d: %w", name, i, err)
			}
			samples[i], err = mineral.NewSample(s.X, s.Y, c)
			if err != nil {
				return fmt.Errorf("mineral %q sample %d: %w", name, i, err)
			}
		}
		class, err := f.Minerals.AddClass(name, samples)
		if err != nil {
			return err
		}
		if stored, err := m.Color.rgb(); err != nil || stored != class.Color {
			f.Mismatches = append(f.Mismatches, class.Name)
		}
	}
	return nil
}

// Load reads a selection file.
func Load(path string, log zerolog.Logger) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.IO("selection.load", err, "read %s", path)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, apperr.IO("selection.load", err, "decode %s", path)
	}
	for _, name := range f.Mismatches {
		c, _ := f.Minerals.Get(name)
		log.Warn().
			Str("mineral", name).
			Str("color", colorutil.Hex(c.Color.RGBA())).
			Msg("stored color differs from sample mean; using sample mean")
	}
	log.Info().
		Str("path", path).
		Int("minerals", f.Minerals.Len()).
		Int("samples", f.Minerals.SampleCount()).
		Msg("selections loaded")
	return &f, nil
}

// Save writes f to path, creating the parent directory.
func Save(path string, f *File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return apperr.IO("selection.save", err, "encode %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperr.IO("selection.save", err, "create %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperr.IO("selection.save", err, "write %s", path)
	}
	return nil
}
