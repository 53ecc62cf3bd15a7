package lanes

import (
	"fmt"

	"github.com/banshee-data/lanespray/internal/frame"
)

// LaneBounds returns the half-open column range [start, end) of lane i when a
// row of width columns is split into n lanes. All lanes are width/n wide
// except the last, which absorbs the remainder. An out of range lane or a
// non-positive n yields the empty range (0, 0).
func LaneBounds(width, n, i int) (start, end int) {
	if n <= 0 || i < 0 || i >= n || width < 0 {
		return 0, 0
	}
	w := width / n
	start = i * w
	end = start + w
	if i == n-1 {
		end = width
	}
	return start, end
}

// BandStart returns the first row examined for a given bottom fraction.
// Rows [BandStart, height) form the band; bottomFrac 0 yields an empty band.
// The start row is height*(1-bottomFrac) truncated toward zero, so a
// fractional boundary row is included (height 3, bottomFrac 0.5 examines
// rows 1 and 2).
func BandStart(height int, bottomFrac float32) int {
	start := int(float32(height) * (1 - bottomFrac))
	if start < 0 {
		return 0
	}
	if start > height {
		return height
	}
	return start
}

func checkGeometry(mask []byte, width, height int, bottomFrac float32, n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: lane count %d", frame.ErrInvalidInput, n)
	}
	if width < n {
		return fmt.Errorf("%w: width %d is narrower than %d lanes", frame.ErrInvalidInput, width, n)
	}
	if height < 0 {
		return fmt.Errorf("%w: height %d", frame.ErrInvalidInput, height)
	}
	if len(mask) != width*height {
		return fmt.Errorf("%w: mask length %d, want %d for %dx%d",
			frame.ErrInvalidInput, len(mask), width*height, width, height)
	}
	if !(bottomFrac >= 0 && bottomFrac <= 1) {
		return fmt.Errorf("%w: bottom fraction %v outside [0,1]", frame.ErrInvalidInput, bottomFrac)
	}
	return nil
}

// CountLanes returns the number of set mask entries and the number of
// examined pixels per lane inside the bottom band.
func CountLanes(mask []byte, width, height int, bottomFrac float32, n int) (on, total []uint32, err error) {
	if err := checkGeometry(mask, width, height, bottomFrac, n); err != nil {
		return nil, nil, err
	}
	on = make([]uint32, n)
	total = make([]uint32, n)
	countInto(mask, width, height, bottomFrac, on, total)
	return on, total, nil
}

func countInto(mask []byte, width, height int, bottomFrac float32, on, total []uint32) {
	n := len(on)
	start := BandStart(height, bottomFrac)
	for lane := 0; lane < n; lane++ {
		x0, x1 := LaneBounds(width, n, lane)
		on[lane] = countBand(mask, width, start, height, x0, x1)
		total[lane] = uint32(height-start) * uint32(x1-x0)
	}
}

func countBand(mask []byte, width, y0, y1, x0, x1 int) uint32 {
	var on uint32
	for y := y0; y < y1; y++ {
		for _, v := range mask[y*width+x0 : y*width+x1] {
			if v != 0 {
				on++
			}
		}
	}
	return on
}

// ReduceLanes returns the fraction of vegetation pixels per lane within the
// bottom band. A lane with no examined pixels has ratio 0.
func ReduceLanes(mask []byte, width, height int, bottomFrac float32, n int) ([]float32, error) {
	if err := checkGeometry(mask, width, height, bottomFrac, n); err != nil {
		return nil, err
	}
	ratios := make([]float32, n)
	if err := ReduceLanesInto(ratios, mask, width, height, bottomFrac); err != nil {
		return nil, err
	}
	return ratios, nil
}

// ReduceLanesInto is ReduceLanes writing into dst. The lane count is len(dst).
func ReduceLanesInto(dst []float32, mask []byte, width, height int, bottomFrac float32) error {
	n := len(dst)
	if err := checkGeometry(mask, width, height, bottomFrac, n); err != nil {
		return err
	}
	start := BandStart(height, bottomFrac)
	for lane := 0; lane < n; lane++ {
		x0, x1 := LaneBounds(width, n, lane)
		on := countBand(mask, width, start, height, x0, x1)
		total := uint32(height-start) * uint32(x1-x0)
		if total == 0 {
			dst[lane] = 0
			continue
		}
		dst[lane] = float32(on) / float32(total)
	}
	return nil
}
