package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/camtrap-go/internal/registry"
)

func TestParseSpeciesNetLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		label     string
		wantName  string
		wantBlank bool
	}{
		{
			name:     "full taxonomy",
			label:    "5c7ce479-8a45-40b3-ae21-7c97dbee5758;mammalia;rodentia;sciuridae;sciurus;vulgaris;red squirrel",
			wantName: "sciurus vulgaris",
		},
		{
			name:      "blank sentinel",
			label:     "f1856211-cfb7-4a5b-9158-c0f72fd09ee6;;;;;;blank",
			wantBlank: true,
		},
		{
			name:      "no cv result sentinel",
			label:     "uuid;;;;;;no cv result",
			wantBlank: true,
		},
		{
			name:      "empty common name",
			label:     "uuid;;;;;;",
			wantBlank: true,
		},
		{
			name:     "genus only rollup",
			label:    "uuid;mammalia;rodentia;sciuridae;sciurus;;sciurus species",
			wantName: "sciurus",
		},
		{
			name:     "family level rollup",
			label:    "uuid;mammalia;carnivora;mustelidae;;;mustelid",
			wantName: "mustelidae",
		},
		{
			name:     "class level rollup",
			label:    "uuid;aves;;;;;bird",
			wantName: "aves",
		},
		{
			name:     "unexpected shape falls back to last segment",
			label:    "wild boar",
			wantName: "wild boar",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			name, blank := parseSpeciesNetLabel(tt.label)
			assert.Equal(t, tt.wantBlank, blank)
			if tt.wantBlank {
				assert.Empty(t, name)
				return
			}
			assert.Equal(t, tt.wantName, name, "label %q", tt.label)
		})
	}
}

func TestParseFlatLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		label     string
		wantName  string
		wantBlank bool
	}{
		{label: "wild boar", wantName: "wild boar"},
		{label: "  lynx  ", wantName: "lynx"},
		{label: "blank", wantBlank: true},
		{label: "empty", wantBlank: true},
		{label: "vide", wantBlank: true},
		{label: "VIDE", wantBlank: true},
		{label: "", wantBlank: true},
	}

	for _, tt := range tests {
		name, blank := parseFlatLabel(tt.label)
		assert.Equal(t, tt.wantBlank, blank, "label %q", tt.label)
		assert.Equal(t, tt.wantName, name, "label %q", tt.label)
	}
}

func TestNormalizeSpeciesNetBbox(t *testing.T) {
	t.Parallel()

	t.Run("passthrough", func(t *testing.T) {
		t.Parallel()
		bbox, ok := normalizeSpeciesNetBbox(Detection{BBox: []float64{0.1, 0.2, 0.3, 0.4}})
		require.True(t, ok)
		assert.InDelta(t, 0.1, bbox.X, 1e-9)
		assert.InDelta(t, 0.2, bbox.Y, 1e-9)
		assert.InDelta(t, 0.3, bbox.Width, 1e-9)
		assert.InDelta(t, 0.4, bbox.Height, 1e-9)
	})

	t.Run("missing coordinates", func(t *testing.T) {
		t.Parallel()
		_, ok := normalizeSpeciesNetBbox(Detection{})
		assert.False(t, ok)
	})

	t.Run("zero size rejected", func(t *testing.T) {
		t.Parallel()
		_, ok := normalizeSpeciesNetBbox(Detection{BBox: []float64{0.1, 0.2, 0, 0.4}})
		assert.False(t, ok)
	})
}

func TestNormalizeUltralyticsBbox(t *testing.T) {
	t.Parallel()

	t.Run("center to top-left", func(t *testing.T) {
		t.Parallel()
		bbox, ok := normalizeUltralyticsBbox(Detection{XYWHN: []float64{0.5, 0.5, 0.2, 0.4}})
		require.True(t, ok)
		assert.InDelta(t, 0.4, bbox.X, 1e-9)
		assert.InDelta(t, 0.3, bbox.Y, 1e-9)
		assert.InDelta(t, 0.2, bbox.Width, 1e-9)
		assert.InDelta(t, 0.4, bbox.Height, 1e-9)
	})

	t.Run("origin clamped at zero", func(t *testing.T) {
		t.Parallel()
		// A box centered near the edge extends past the frame; the origin is
		// clamped, the size preserved.
		bbox, ok := normalizeUltralyticsBbox(Detection{XYWHN: []float64{0.05, 0.05, 0.2, 0.2}})
		require.True(t, ok)
		assert.Equal(t, 0.0, bbox.X)
		assert.Equal(t, 0.0, bbox.Y)
		assert.InDelta(t, 0.2, bbox.Width, 1e-9)
	})

	t.Run("missing coordinates", func(t *testing.T) {
		t.Parallel()
		_, ok := normalizeUltralyticsBbox(Detection{BBox: []float64{0.1, 0.2, 0.3, 0.4}})
		assert.False(t, ok)
	})
}

func TestFamilyFor(t *testing.T) {
	t.Parallel()

	// Unknown families fall back to flat-label conventions.
	f := FamilyFor("some-future-model")
	name, blank := f.ParseLabel("vide")
	assert.True(t, blank)
	assert.Empty(t, name)

	f = FamilyFor(registry.FamilySpeciesNet)
	_, blank = f.ParseLabel("uuid;;;;;;no cv result")
	assert.True(t, blank)
}

func TestBestDetection(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		p := Prediction{}
		_, ok := p.BestDetection()
		assert.False(t, ok)
	})

	t.Run("highest confidence wins", func(t *testing.T) {
		t.Parallel()
		p := Prediction{Detections: []Detection{
			{Label: "a", Conf: 0.4},
			{Label: "b", Conf: 0.9},
			{Label: "c", Conf: 0.7},
		}}
		det, ok := p.BestDetection()
		require.True(t, ok)
		assert.Equal(t, "b", det.Label)
	})

	t.Run("ties break to first", func(t *testing.T) {
		t.Parallel()
		p := Prediction{Detections: []Detection{
			{Label: "first", Conf: 0.8},
			{Label: "second", Conf: 0.8},
		}}
		det, ok := p.BestDetection()
		require.True(t, ok)
		assert.Equal(t, "first", det.Label)
	})
}
