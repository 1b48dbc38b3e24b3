package vision

import (
	"image"
	"image/color"
	"image/draw"
	"sync"
	"sync/atomic"
)

// FrameImage is a pooled RGBA frame used as a counting.Frame snapshot. It
// starts with one reference; the engine releases it at the end of the cycle
// unless a review keeps it, in which case it is released when the review
// closes.
type FrameImage struct {
	Img *image.RGBA
	Seq uint64

	refs atomic.Int32
	pool *ImagePool
}

// Retain adds a reference.
func (f *FrameImage) Retain() { f.refs.Add(1) }

// Release drops a reference and returns the image to its pool at zero.
func (f *FrameImage) Release() {
	if f == nil {
		return
	}
	switch n := f.refs.Add(-1); {
	case n > 0:
		return
	case n < 0:
		panic("vision: FrameImage released more times than retained")
	}
	f.pool.put(f)
}

// ImagePool recycles frame buffers of one size.
type ImagePool struct {
	rect image.Rectangle
	pool sync.Pool
	live atomic.Int64
}

// NewImagePool returns a pool of width×height images.
func NewImagePool(width, height int) *ImagePool {
	p := &ImagePool{rect: image.Rect(0, 0, width, height)}
	p.pool.New = func() any {
		return &FrameImage{Img: image.NewRGBA(p.rect), pool: p}
	}
	return p
}

// Get returns a frame holding one reference, filled with bg.
func (p *ImagePool) Get(seq uint64, bg color.Color) *FrameImage {
	f := p.pool.Get().(*FrameImage)
	f.Seq = seq
	f.refs.Store(1)
	draw.Draw(f.Img, f.Img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	p.live.Add(1)
	return f
}

func (p *ImagePool) put(f *FrameImage) {
	p.live.Add(-1)
	p.pool.Put(f)
}

// Live is the number of frames handed out and not yet released.
func (p *ImagePool) Live() int64 { return p.live.Load() }

// Bounds is the frame size.
func (p *ImagePool) Bounds() image.Rectangle { return p.rect }
