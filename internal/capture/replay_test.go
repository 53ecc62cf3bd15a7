package capture

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func writeImage(t *testing.T, path string, encode func(*os.File) error) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, encode(f))
	require.NoError(t, f.Close())
}

func replayDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "01.png"), func(f *os.File) error {
		return png.Encode(f, solid(4, 2, color.NRGBA{0, 255, 0, 255}))
	})
	writeImage(t, filepath.Join(dir, "02.bmp"), func(f *os.File) error {
		return bmp.Encode(f, solid(4, 2, color.NRGBA{255, 0, 0, 255}))
	})
	writeImage(t, filepath.Join(dir, "03.tiff"), func(f *os.File) error {
		return tiff.Encode(f, solid(4, 2, color.NRGBA{0, 0, 255, 255}), nil)
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "04.png"), []byte("not a png"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))
	return dir
}

func TestReplayDecodesInOrder(t *testing.T) {
	r := &Replay{Dir: replayDir(t)}
	files, err := r.Files()
	require.NoError(t, err)
	assert.Len(t, files, 4)

	frames := drain(t, r.Start(context.Background()))
	require.Len(t, frames, 3, "corrupt file is skipped")

	want := [][]byte{{0, 255, 0}, {255, 0, 0}, {0, 0, 255}}
	for i, f := range frames {
		require.NoError(t, f.Validate())
		assert.Equal(t, 4, f.Width)
		assert.Equal(t, 2, f.Height)
		assert.Equal(t, uint64(i+1), f.Seq)
		assert.Equal(t, want[i], f.Data[len(f.Data)-3:], "frame %d", i)
	}
}

func TestReplayLoop(t *testing.T) {
	r := &Replay{Dir: replayDir(t), Loop: true}
	ctx, cancel := context.WithCancel(context.Background())
	ch := r.Start(ctx)
	var seqs []uint64
	for len(seqs) < 7 {
		f := <-ch
		seqs = append(seqs, f.Seq)
	}
	cancel()
	drain(t, ch)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7}, seqs)
}

func TestReplayMissingDir(t *testing.T) {
	r := &Replay{Dir: filepath.Join(t.TempDir(), "missing")}
	assert.Empty(t, drain(t, r.Start(context.Background())))
}

func TestFromImageGeneric(t *testing.T) {
	img := image.NewGray(image.Rect(2, 3, 4, 4))
	img.SetGray(3, 3, color.Gray{Y: 200})
	f := FromImage(img)
	require.NoError(t, f.Validate())
	assert.Equal(t, []byte{0, 0, 0, 200, 200, 200}, f.Data)
}

func TestFromImageRGBASubImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.SetRGBA(2, 2, color.RGBA{10, 20, 30, 255})
	sub := img.SubImage(image.Rect(2, 2, 4, 3)).(*image.RGBA)
	f := FromImage(sub)
	assert.Equal(t, []byte{10, 20, 30, 0, 0, 0}, f.Data)
}

func TestFromImageTranslucentKeepsColour(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 1, 1))
	rgba.SetRGBA(0, 0, color.RGBA{R: 20, G: 100, B: 10, A: 128})
	f := FromImage(rgba)
	assert.Equal(t, []byte{40, 199, 20}, f.Data)

	wide := image.NewNRGBA64(image.Rect(0, 0, 1, 1))
	wide.SetNRGBA64(0, 0, color.NRGBA64{R: 0, G: 0xc800, B: 0, A: 0x8000})
	f = FromImage(wide)
	assert.Equal(t, byte(0), f.Data[0])
	assert.InDelta(t, 200, int(f.Data[1]), 1)
	assert.Equal(t, byte(0), f.Data[2])
}

func TestUnpremul(t *testing.T) {
	tests := []struct {
		c, a, want uint8
	}{
		{0, 0, 0},
		{37, 255, 37},
		{64, 128, 128},
		{128, 128, 255},
		{200, 100, 255},
	}
	for _, tt := range tests {
		if got := unpremul(tt.c, tt.a); got != tt.want {
			t.Errorf("unpremul(%d, %d) = %d, want %d", tt.c, tt.a, got, tt.want)
		}
	}
}
