package vegetation

// HybridParams weights the three colour cues of the hybrid scorer.
//
//	score = WExG*(exg/255 - ExGThreshold/255)
//	      + WRatio*(g/(r+g+b+1) - RatioFloor)
//	      + WChroma*((max-min)/255 - ChromaFloor)
//	      + Bias
//
// A pixel is vegetation when score > 0.
type HybridParams struct {
	WExG         float32
	WRatio       float32
	WChroma      float32
	Bias         float32
	ExGThreshold int16
	RatioFloor   float32
	ChromaFloor  float32
}

// DefaultHybridParams returns weights tuned for bare soil and stubble backgrounds.
func DefaultHybridParams() HybridParams {
	return HybridParams{
		WExG:         0.5,
		WRatio:       0.35,
		WChroma:      0.15,
		Bias:         0,
		ExGThreshold: 20,
		RatioFloor:   0.36,
		ChromaFloor:  0.08,
	}
}

// Score returns the hybrid vegetation score of one pixel.
func (p HybridParams) Score(r, g, b uint8) float32 {
	rf, gf, bf := float32(r), float32(g), float32(b)

	exgTerm := (2*gf - rf - bf - float32(p.ExGThreshold)) / 255
	ratioTerm := gf/(rf+gf+bf+1) - p.RatioFloor

	maxc, minc := r, r
	if g > maxc {
		maxc = g
	}
	if b > maxc {
		maxc = b
	}
	if g < minc {
		minc = g
	}
	if b < minc {
		minc = b
	}
	chromaTerm := float32(maxc-minc)/255 - p.ChromaFloor

	return p.WExG*exgTerm + p.WRatio*ratioTerm + p.WChroma*chromaTerm + p.Bias
}

// HybridMask writes 1 into mask[i] when pixel i scores above zero.
func HybridMask(rgb, mask []byte, p HybridParams) error {
	if err := checkBuffers(rgb, mask); err != nil {
		return err
	}
	for i := range mask {
		o := i * 3
		if p.Score(rgb[o], rgb[o+1], rgb[o+2]) > 0 {
			mask[i] = 1
		} else {
			mask[i] = 0
		}
	}
	return nil
}
