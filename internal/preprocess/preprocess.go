// Package preprocess turns an uploaded image into the float tensor the
// classifier consumes.
package preprocess

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/leafcheck-api/internal/apperrors"
)

type Layout string

const (
	LayoutNHWC Layout = "nhwc"
	LayoutNCHW Layout = "nchw"
)

// Options fixes the square side length, channel layout and resampling filter.
type Options struct {
	Size     int
	Layout   Layout
	Resample string
}

// Tensor is a dense float32 tensor with a leading batch dimension of 1.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// LoadFile decodes the image at path and converts it to a tensor.
func LoadFile(path string, opts Options) (Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tensor{}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := Decode(f)
	if err != nil {
		return Tensor{}, err
	}
	return ToTensor(img, opts)
}

// Decode reads any registered format (JPEG, PNG, GIF, WebP). Failures are
// reported as IMAGE_DECODE_FAILED.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", apperrors.NewImageDecodeError(err)
	}
	return img, format, nil
}

// ToTensor resizes img to Size x Size, drops alpha and scales every channel
// from [0,255] to [0,1].
func ToTensor(img image.Image, opts Options) (Tensor, error) {
	if opts.Size < 1 {
		return Tensor{}, fmt.Errorf("invalid target size %d", opts.Size)
	}
	interp, err := interpolation(opts.Resample)
	if err != nil {
		return Tensor{}, err
	}

	target := uint(opts.Size)
	resized := resize.Resize(target, target, img, interp)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	data := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBAModel.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			r := float32(c.R) / 255.0
			g := float32(c.G) / 255.0
			b := float32(c.B) / 255.0

			pixel := y*width + x
			switch opts.Layout {
			case LayoutNCHW:
				data[pixel] = r
				data[plane+pixel] = g
				data[2*plane+pixel] = b
			default:
				data[3*pixel] = r
				data[3*pixel+1] = g
				data[3*pixel+2] = b
			}
		}
	}

	shape := []int64{1, int64(height), int64(width), 3}
	if opts.Layout == LayoutNCHW {
		shape = []int64{1, 3, int64(height), int64(width)}
	}
	return Tensor{Shape: shape, Data: data}, nil
}

func interpolation(name string) (resize.InterpolationFunction, error) {
	switch name {
	case "", "nearest":
		return resize.NearestNeighbor, nil
	case "bilinear":
		return resize.Bilinear, nil
	case "lanczos3":
		return resize.Lanczos3, nil
	default:
		return 0, fmt.Errorf("unknown resample filter %q", name)
	}
}
