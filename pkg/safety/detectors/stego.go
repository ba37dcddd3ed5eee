package detectors

import (
	"context"
	"time"

	"github.com/poi-trace/core/pkg/safety"
)

// Zero-width characters: ZERO WIDTH SPACE (U+200B), ZERO WIDTH NON-JOINER
// (U+200C), ZERO WIDTH JOINER (U+200D), ZERO WIDTH NO-BREAK SPACE / BOM
// (U+FEFF), WORD JOINER (U+2060), SOFT HYPHEN (U+00AD).
var zeroWidthRunes = map[rune]bool{
	'\u200b': true,
	'\u200c': true,
	'\u200d': true,
	'\ufeff': true,
	'\u2060': true,
	'\u00ad': true,
}

// Invisible bidi/format characters: LRM (U+200E), RLM (U+200F), LRE
// (U+202A), RLE (U+202B), PDF (U+202C), LRO (U+202D), RLO (U+202E),
// FUNCTION APPLICATION (U+2061), INVISIBLE TIMES (U+2062), INVISIBLE
// SEPARATOR (U+2063), INVISIBLE PLUS (U+2064).
var invisibleFormatRunes = map[rune]bool{
	'\u200e': true,
	'\u200f': true,
	'\u202a': true,
	'\u202b': true,
	'\u202c': true,
	'\u202d': true,
	'\u202e': true,
	'\u2061': true,
	'\u2062': true,
	'\u2063': true,
	'\u2064': true,
}

// homoglyphs maps a curated set of Cyrillic/Greek characters commonly used
// to impersonate Latin lookalikes (Cyrillic U+0430 for Latin 'a', and so
// on) to the Latin character they mimic.
var homoglyphs = map[rune]rune{
	// Cyrillic lowercase: а(U+0430) е(U+0435) о(U+043E) р(U+0440) с(U+0441) х(U+0445) у(U+0443)
	'\u0430': 'a', '\u0435': 'e', '\u043e': 'o', '\u0440': 'p', '\u0441': 'c', '\u0445': 'x', '\u0443': 'y',
	// Cyrillic uppercase: А В Е К М Н О Р С Т Х
	'\u0410': 'A', '\u0412': 'B', '\u0415': 'E', '\u041a': 'K', '\u041c': 'M', '\u041d': 'H', '\u041e': 'O', '\u0420': 'P', '\u0421': 'C', '\u0422': 'T', '\u0425': 'X',
	// Greek uppercase: Α Β Ε Ζ Η Ι Κ Μ Ν Ο Ρ Τ Υ Χ
	'\u0391': 'A', '\u0392': 'B', '\u0395': 'E', '\u0396': 'Z', '\u0397': 'H', '\u0399': 'I', '\u039a': 'K', '\u039c': 'M', '\u039d': 'N', '\u039f': 'O', '\u03a1': 'P', '\u03a4': 'T', '\u03a5': 'Y', '\u03a7': 'X',
}

// StegoDetector flags hidden-channel candidates: zero-width characters,
// invisible formatting characters, and Latin-lookalike homoglyphs.
type StegoDetector struct {
	Threshold float64
}

// NewStegoDetector builds a StegoDetector with the given exceed-threshold.
// The usual default is a low 0.3, since any zero-width presence at all is
// highly suspect.
func NewStegoDetector(threshold float64) *StegoDetector {
	return &StegoDetector{Threshold: threshold}
}

func (d *StegoDetector) ID() string      { return "stego" }
func (d *StegoDetector) Version() string { return "1.0.0" }

func (d *StegoDetector) Analyze(ctx context.Context, input safety.Context) (*safety.MonitorResult, error) {
	text := concatenatePayloadText(input.Events)
	if len(text) == 0 {
		return d.result(0, false, map[string]interface{}{"reason": "no-content"}), nil
	}

	runes := []rune(text)

	var zeroWidth, invisible, homoglyph int
	for _, r := range runes {
		if zeroWidthRunes[r] {
			zeroWidth++
		}
		if invisibleFormatRunes[r] {
			invisible++
		}
		if _, ok := homoglyphs[r]; ok {
			homoglyph++
		}
	}

	// Density is saturating rather than a plain fraction of total text
	// length: legitimate text essentially never contains these characters
	// at all, so even one or two occurrences are already a near-certain
	// signal and should not get diluted away by a long surrounding
	// message. Saturates at 2 occurrences per category.
	zwDensity := clamp01(float64(zeroWidth) / 2)
	invDensity := clamp01(float64(invisible) / 2)
	homoDensity := clamp01(float64(homoglyph) / 2)

	score := clamp01(0.45*zwDensity + 0.25*invDensity + 0.30*homoDensity)

	return d.result(score, score > d.Threshold, map[string]interface{}{
		"zeroWidthCount": zeroWidth,
		"invisibleCount": invisible,
		"homoglyphCount": homoglyph,
	}), nil
}

func (d *StegoDetector) result(score float64, exceeded bool, details map[string]interface{}) *safety.MonitorResult {
	return &safety.MonitorResult{
		MonitorID:  d.ID(),
		Version:    d.Version(),
		Score:      score,
		Threshold:  d.Threshold,
		Exceeded:   exceeded,
		TrustLevel: safety.Fragile,
		Category:   "stego",
		Details:    details,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}
