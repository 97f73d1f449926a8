package frame

import "image"

// Threshold is the brightness above which a pixel becomes white.
const Threshold = 128

// Preprocess collapses each pixel to pure black or white by comparing the
// unweighted mean of its RGB channels against Threshold. Alpha is kept.
func Preprocess(f *Frame) *Binary {
	src := f.Image
	out := image.NewRGBA(src.Rect)
	for y := src.Rect.Min.Y; y < src.Rect.Max.Y; y++ {
		si := src.PixOffset(src.Rect.Min.X, y)
		di := out.PixOffset(out.Rect.Min.X, y)
		for x := src.Rect.Min.X; x < src.Rect.Max.X; x++ {
			sum := int(src.Pix[si]) + int(src.Pix[si+1]) + int(src.Pix[si+2])
			// mean > Threshold, kept in integers
			var v uint8
			if sum > 3*Threshold {
				v = 255
			}
			out.Pix[di] = v
			out.Pix[di+1] = v
			out.Pix[di+2] = v
			out.Pix[di+3] = src.Pix[si+3]
			si += 4
			di += 4
		}
	}
	return &Binary{Image: out}
}
