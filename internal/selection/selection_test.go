package selection

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"mineral-classifier/internal/apperr"
	"mineral-classifier/internal/mineral"
	"mineral-classifier/pkg/colorutil"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripKeepsOrderAndSamples(t *testing.T) {
	f := New("/slides/a.tif")
	_, err := f.Minerals.AddClass("Quartz", []mineral.Sample{
		{X: 1, Y: 2, Color: colorutil.RGB{200, 201, 202}},
		{X: 3, Y: 4, Color: colorutil.RGB{198, 199, 200}},
	})
	require.NoError(t, err)
	_, err = f.Minerals.AddClass("Biotite", []mineral.Sample{{X: 5, Y: 6, Color: colorutil.RGB{90, 50, 20}}})
	require.NoError(t, err)
	_, err = f.Minerals.AddClass("Albite", []mineral.Sample{{X: 7, Y: 8, Color: colorutil.RGB{230, 230, 225}}})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "a"+Suffix)
	require.NoError(t, Save(path, f))

	got, err := Load(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, f.ImagePath, got.ImagePath)
	assert.Equal(t, []string{"Quartz", "Biotite", "Albite"}, got.Minerals.Names())
	assert.Empty(t, got.Mismatches)
	for _, c := range f.Minerals.Classes() {
		g, ok := got.Minerals.Get(c.Name)
		require.True(t, ok)
		if diff := cmp.Diff(c, g); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", c.Name, diff)
		}
	}
}

func TestMarshalFormat(t *testing.T) {
	f := New("img.png")
	_, err := f.Minerals.AddClass("Quartz", []mineral.Sample{{X: 1, Y: 2, Color: colorutil.RGB{3, 4, 5}}})
	require.NoError(t, err)

	data, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"image_path":"img.png","minerals":{"Quartz":{"color":[3,4,5],"samples":[[1,2,[3,4,5]]]}}}`, string(data))
}

func TestStoredColorMismatchIsReportedAndRecomputed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	body := `{"image_path":"x.tif","minerals":{"Calcite":{"color":[0,0,0],"samples":[[0,0,[10,20,30]],[1,1,[20,30,41]]]}}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	var buf bytes.Buffer
	got, err := Load(path, zerolog.New(&buf))
	require.NoError(t, err)
	c, ok := got.Minerals.Get("Calcite")
	require.True(t, ok)
	assert.Equal(t, colorutil.RGB{15, 25, 35}, c.Color)
	assert.Equal(t, []string{"Calcite"}, got.Mismatches)
	assert.Contains(t, buf.String(), "stored color differs")
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "missing.json"), zerolog.Nop())
	assert.True(t, errors.Is(err, apperr.ErrIO))

	for name, body := range map[string]string{
		"syntax":       `{"minerals": `,
		"not object":   `{"minerals": []}`,
		"short sample": `{"minerals": {"Q": {"color": [0,0,0], "samples": [[1, 2]]}}}`,
		"bad color":    `{"minerals": {"Q": {"color": [0,0,0], "samples": [[1, 2, [300, 0, 0]]]}}}`,
		"no samples":   `{"minerals": {"Q": {"color": [0,0,0], "samples": []}}}`,
		"negative":     `{"minerals": {"Q": {"color": [0,0,0], "samples": [[-1, 2, [0, 0, 0]]]}}}`,
	} {
		p := filepath.Join(dir, name+".json")
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		_, err := Load(p, zerolog.Nop())
		assert.True(t, errors.Is(err, apperr.ErrIO), name)
	}
}

func TestEmptyMinerals(t *testing.T) {
	var f File
	require.NoError(t, json.Unmarshal([]byte(`{"image_path":"a.png"}`), &f))
	assert.Equal(t, 0, f.Minerals.Len())
}

func TestPathFor(t *testing.T) {
	assert.Equal(t, filepath.Join("/out", "slide_01"+Suffix), PathFor("/out", "/data/slide_01.tiff"))
}
