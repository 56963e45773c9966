package raster

import "image"

// AsTensor converts an RGBA raster into a CHW float32 tensor with values in
// [0, 1]: the "image" entry of the environment observation. The alpha channel
// is dropped.
func AsTensor(img *image.RGBA) []float32 {
	b := img.Bounds()
	w := b.Dx()
	h := b.Dy()
	out := make([]float32, 3*w*h)
	plane := w * h

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.RGBAAt(b.Min.X+x, b.Min.Y+y)
			i := y*w + x
			out[i] = float32(c.R) / 255
			out[plane+i] = float32(c.G) / 255
			out[2*plane+i] = float32(c.B) / 255
		}
	}
	return out
}
