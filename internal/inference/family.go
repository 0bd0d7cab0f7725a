package inference

import (
	"strings"

	"github.com/tphakala/camtrap-go/internal/registry"
)

// Bbox is a normalized bounding box in the common top-left convention.
type Bbox struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Family bundles the label-parsing and bbox-normalization rules of one model
// family.
type Family struct {
	// ParseLabel extracts a scientific name from the model's raw label.
	// blank is true when the label is an explicit empty-image sentinel; the
	// returned name is empty in that case.
	ParseLabel func(label string) (name string, blank bool)
	// NormalizeBbox converts a detection's coordinates into the common
	// top-left convention. ok is false when the detection carries no usable
	// coordinates.
	NormalizeBbox func(det Detection) (Bbox, bool)
}

// families maps a model family name to its conventions.
var families = map[string]Family{
	registry.FamilySpeciesNet: {
		ParseLabel:    parseSpeciesNetLabel,
		NormalizeBbox: normalizeSpeciesNetBbox,
	},
	registry.FamilyDeepFaune: {
		ParseLabel:    parseFlatLabel,
		NormalizeBbox: normalizeUltralyticsBbox,
	},
}

// FamilyFor returns the conventions for a model family, falling back to the
// flat-label DeepFaune conventions for unknown families.
func FamilyFor(name string) Family {
	if f, ok := families[name]; ok {
		return f
	}
	return families[registry.FamilyDeepFaune]
}

// speciesNetBlankSentinels are the common-name segments SpeciesNet emits for
// images without a species result.
var speciesNetBlankSentinels = map[string]bool{
	"":             true,
	"blank":        true,
	"no cv result": true,
	"no result":    true,
}

// flatBlankSentinels are the empty-image labels of flat-label models.
// "vide" is DeepFaune's French empty class.
var flatBlankSentinels = map[string]bool{
	"":      true,
	"blank": true,
	"empty": true,
	"vide":  true,
}

// parseSpeciesNetLabel parses SpeciesNet's hierarchical taxonomy label:
// "uuid;class;order;family;genus;species;common name". The common-name
// segment is checked against the blank sentinels; otherwise the scientific
// name is derived from the lowest non-empty taxonomic rank.
func parseSpeciesNetLabel(label string) (string, bool) {
	parts := strings.Split(label, ";")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	last := strings.ToLower(parts[len(parts)-1])
	if speciesNetBlankSentinels[last] {
		return "", true
	}

	// Full 7-segment taxonomy: prefer "genus species".
	if len(parts) == 7 {
		genus, species := parts[4], parts[5]
		if genus != "" && species != "" {
			return genus + " " + species, false
		}
		// Fall back to the lowest non-empty rank between species and class.
		for i := 5; i >= 1; i-- {
			if parts[i] != "" {
				return parts[i], false
			}
		}
	}

	// Unexpected shape: use the last segment as-is.
	return parts[len(parts)-1], false
}

// parseFlatLabel parses a flat single-token label as used by DeepFaune and
// Manas style models.
func parseFlatLabel(label string) (string, bool) {
	name := strings.TrimSpace(label)
	if flatBlankSentinels[strings.ToLower(name)] {
		return "", true
	}
	return name, false
}

// normalizeSpeciesNetBbox passes through SpeciesNet's MegaDetector-style
// bbox, which is already normalized [x, y, width, height] with top-left
// origin.
func normalizeSpeciesNetBbox(det Detection) (Bbox, bool) {
	if len(det.BBox) != 4 {
		return Bbox{}, false
	}
	return clampBbox(Bbox{
		X:      det.BBox[0],
		Y:      det.BBox[1],
		Width:  det.BBox[2],
		Height: det.BBox[3],
	})
}

// normalizeUltralyticsBbox converts ultralytics xywhn, normalized
// [center-x, center-y, width, height], into the top-left convention.
func normalizeUltralyticsBbox(det Detection) (Bbox, bool) {
	if len(det.XYWHN) != 4 {
		return Bbox{}, false
	}
	cx, cy, w, h := det.XYWHN[0], det.XYWHN[1], det.XYWHN[2], det.XYWHN[3]
	return clampBbox(Bbox{
		X:      cx - w/2,
		Y:      cy - h/2,
		Width:  w,
		Height: h,
	})
}

// clampBbox enforces the common convention: origin never negative, size
// strictly positive.
func clampBbox(b Bbox) (Bbox, bool) {
	if b.Width <= 0 || b.Height <= 0 {
		return Bbox{}, false
	}
	if b.X < 0 {
		b.X = 0
	}
	if b.Y < 0 {
		b.Y = 0
	}
	return b, true
}
