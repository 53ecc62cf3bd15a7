package vegetation

import (
	"fmt"

	"github.com/banshee-data/lanespray/internal/frame"
)

// DefaultExGThreshold is the default signed Excess Green threshold.
const DefaultExGThreshold int16 = 16

// exgBlock is the number of pixels handled per iteration of the blocked path.
const exgBlock = 8

// ExGScore returns 2g - r - b. The result is in [-510, 510].
func ExGScore(r, g, b uint8) int32 {
	return 2*int32(g) - int32(r) - int32(b)
}

// ExGMask writes 1 into mask[i] when pixel i has ExGScore >= thr, else 0.
// len(rgb) must be a multiple of 3 and len(mask) must equal len(rgb)/3.
//
// Pixels are processed in blocks of eight with the remainder handled by the
// scalar loop, so the output is identical to ExGMaskScalar for every length.
func ExGMask(rgb, mask []byte, thr int16) error {
	if err := checkBuffers(rgb, mask); err != nil {
		return err
	}
	t := int32(thr)
	n := len(mask)
	blocks := n - n%exgBlock

	i := 0
	for ; i < blocks; i += exgBlock {
		p := rgb[i*3 : i*3+exgBlock*3 : i*3+exgBlock*3]
		m := mask[i : i+exgBlock : i+exgBlock]
		m[0] = ge(2*int32(p[1])-int32(p[0])-int32(p[2]), t)
		m[1] = ge(2*int32(p[4])-int32(p[3])-int32(p[5]), t)
		m[2] = ge(2*int32(p[7])-int32(p[6])-int32(p[8]), t)
		m[3] = ge(2*int32(p[10])-int32(p[9])-int32(p[11]), t)
		m[4] = ge(2*int32(p[13])-int32(p[12])-int32(p[14]), t)
		m[5] = ge(2*int32(p[16])-int32(p[15])-int32(p[17]), t)
		m[6] = ge(2*int32(p[19])-int32(p[18])-int32(p[20]), t)
		m[7] = ge(2*int32(p[22])-int32(p[21])-int32(p[23]), t)
	}
	exgScalar(rgb[i*3:], mask[i:], t)
	return nil
}

// ExGMaskScalar is the one-pixel-at-a-time reference for ExGMask.
func ExGMaskScalar(rgb, mask []byte, thr int16) error {
	if err := checkBuffers(rgb, mask); err != nil {
		return err
	}
	exgScalar(rgb, mask, int32(thr))
	return nil
}

func exgScalar(rgb, mask []byte, t int32) {
	for i := range mask {
		o := i * 3
		mask[i] = ge(ExGScore(rgb[o], rgb[o+1], rgb[o+2]), t)
	}
}

func ge(score, t int32) byte {
	if score >= t {
		return 1
	}
	return 0
}

func checkBuffers(rgb, mask []byte) error {
	if len(rgb)%3 != 0 {
		return fmt.Errorf("%w: rgb buffer length %d is not a multiple of 3", frame.ErrInvalidInput, len(rgb))
	}
	if len(mask) != len(rgb)/3 {
		return fmt.Errorf("%w: mask length %d, want %d", frame.ErrInvalidInput, len(mask), len(rgb)/3)
	}
	return nil
}
