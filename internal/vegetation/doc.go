// Package vegetation classifies the pixels of an interleaved RGB frame as
// vegetation or background.
//
// Two strategies are available and selected explicitly through Strategy:
//
//	StrategyThreshold  Excess Green (2g - r - b) compared against a signed threshold.
//	StrategyHybrid     weighted blend of ExG, green ratio and chroma terms.
//
// Both write one byte per pixel (1 = vegetation, 0 = not) into a caller
// supplied mask so the per-frame path does not allocate. The hybrid scorer is
// the default for outdoor lighting; the threshold path is the cheap fallback.
package vegetation
