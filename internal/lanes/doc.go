// Package lanes turns a per-pixel vegetation mask into per-lane spray
// decisions.
//
// ReduceLanes collapses the bottom band of a mask into one coverage ratio per
// lane. Controller is the canonical decision stage: a per-lane timing state
// machine with minimum fire windows, holdoff cooldowns and armed hysteresis.
// HysteresisReducer is a simpler stateful alternative with no timing and is
// intentionally kept separate from Controller; the two do not agree near the
// thresholds and must not be merged.
package lanes
