package capture

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/banshee-data/lanespray/internal/frame"
)

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// Replay decodes the images in Dir, in lexical file name order, and emits one
// frame per image. Files that fail to decode are logged and skipped.
type Replay struct {
	Dir      string
	Interval time.Duration
	Loop     bool // restart from the first file after the last

	started atomic.Bool
}

// Files lists the image files Replay would read.
func (r *Replay) Files() ([]string, error) {
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		return nil, fmt.Errorf("read replay directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(r.Dir, e.Name()))
		}
	}
	return files, nil
}

// Start implements frame.Source.
func (r *Replay) Start(ctx context.Context) <-chan *frame.Frame {
	ch := make(chan *frame.Frame, frame.QueueCapacity)
	if !r.started.CompareAndSwap(false, true) {
		log.Opsf("replay source started twice")
		close(ch)
		return ch
	}
	files, err := r.Files()
	if err != nil {
		log.Opsf("replay source: %v", err)
		close(ch)
		return ch
	}
	if len(files) == 0 {
		log.Opsf("replay source: no images in %s", r.Dir)
		close(ch)
		return ch
	}

	go func() {
		defer close(ch)
		var seq uint64
		for {
			emitted := 0
			for _, path := range files {
				f, err := LoadFrame(path)
				if err != nil {
					log.Opsf("replay: skipping %s: %v", path, err)
					continue
				}
				seq++
				f.Seq = seq
				f.Captured = time.Now()
				select {
				case ch <- f:
				case <-ctx.Done():
					return
				}
				emitted++
				if r.Interval > 0 {
					select {
					case <-time.After(r.Interval):
					case <-ctx.Done():
						return
					}
				}
			}
			if !r.Loop || emitted == 0 {
				log.Diagf("replay source finished after %d frames", seq)
				return
			}
		}
	}()
	return ch
}

// LoadFrame decodes one image file into an RGB frame.
func LoadFrame(path string) (*frame.Frame, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	img, _, err := image.Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return FromImage(img), nil
}

// FromImage converts any image to an interleaved 8-bit RGB frame, dropping
// alpha. Premultiplied pixels are converted back to straight colour first so
// translucent pixels keep their hue and brightness.
func FromImage(img image.Image) *frame.Frame {
	b := img.Bounds()
	f := frame.New(b.Dx(), b.Dy())
	i := 0
	switch src := img.(type) {
	case *image.RGBA:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, y):]
			for x := 0; x < b.Dx(); x++ {
				a := row[x*4+3]
				f.Data[i], f.Data[i+1], f.Data[i+2] = unpremul(row[x*4], a), unpremul(row[x*4+1], a), unpremul(row[x*4+2], a)
				i += 3
			}
		}
	case *image.NRGBA:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, y):]
			for x := 0; x < b.Dx(); x++ {
				f.Data[i], f.Data[i+1], f.Data[i+2] = row[x*4], row[x*4+1], row[x*4+2]
				i += 3
			}
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				f.Data[i], f.Data[i+1], f.Data[i+2] = c.R, c.G, c.B
				i += 3
			}
		}
	}
	return f
}

// unpremul undoes alpha premultiplication of one 8-bit channel.
func unpremul(c, a uint8) uint8 {
	switch a {
	case 0:
		return 0
	case 0xff:
		return c
	}
	v := (uint32(c)*0xff + uint32(a)/2) / uint32(a)
	if v > 0xff {
		return 0xff
	}
	return uint8(v)
}
