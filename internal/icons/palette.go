package icons

import (
	"image"
	"sort"

	"github.com/disintegration/imaging"
)

// paletteSize is the edge length icons are reduced to before quantizing.
const paletteSize = 64

type bucket struct {
	count            int
	sumR, sumG, sumB int
}

// DominantColor picks one representative ARGB color for img. Fully
// transparent pixels are ignored; ok is false when none remain.
//
// Pixels are quantized to 4 bits per channel. Each bucket scores its
// population weighted by chroma, so a small saturated accent beats a large
// grey outline but a monochrome icon still yields its own grey.
func DominantColor(img image.Image) (argb uint32, ok bool) {
	small := imaging.Fit(img, paletteSize, paletteSize, imaging.Box)

	buckets := make(map[uint16]*bucket)
	px := small.Pix
	for i := 0; i+3 < len(px); i += 4 {
		r, g, b, a := px[i], px[i+1], px[i+2], px[i+3]
		if a == 0 {
			continue
		}
		key := uint16(r>>4)<<8 | uint16(g>>4)<<4 | uint16(b>>4)
		bk := buckets[key]
		if bk == nil {
			bk = &bucket{}
			buckets[key] = bk
		}
		bk.count++
		bk.sumR += int(r)
		bk.sumG += int(g)
		bk.sumB += int(b)
	}
	if len(buckets) == 0 {
		return 0, false
	}

	keys := make([]uint16, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var (
		best      *bucket
		bestScore float64
	)
	for _, k := range keys {
		bk := buckets[k]
		r, g, b := bk.sumR/bk.count, bk.sumG/bk.count, bk.sumB/bk.count
		score := float64(bk.count) * (0.1 + chroma(r, g, b))
		if best == nil || score > bestScore {
			best, bestScore = bk, score
		}
	}

	r := uint32(best.sumR / best.count)
	g := uint32(best.sumG / best.count)
	b := uint32(best.sumB / best.count)
	return 0xFF<<24 | r<<16 | g<<8 | b, true
}

// chroma is max-min of the channels scaled to [0,1].
func chroma(r, g, b int) float64 {
	hi, lo := r, r
	for _, v := range []int{g, b} {
		if v > hi {
			hi = v
		}
		if v < lo {
			lo = v
		}
	}
	return float64(hi-lo) / 255
}
