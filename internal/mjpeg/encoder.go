package mjpeg

import (
	"bytes"
	"fmt"
)

// Rect is a pixel-space crop applied to a source bitmap before conversion.
// A zero-value Rect means "the whole bitmap".
type Rect struct {
	X, Y, W, H int
}

// Frame is one captured bitmap offered to the encoder.
type Frame struct {
	MMTime uint32 // media-time stamp, distinct from the monotonic Clock
	Pixels []byte
	Width  int
	Height int
	Stride int
	Format PixelFormat
	// TopDown indicates row 0 is the top of the image. When false, rows
	// are stored bottom-up (common for some capture APIs) and are
	// reversed during conversion.
	TopDown bool
}

// Outcome is the result of offering a Frame to the Encoder.
type Outcome int

const (
	// Drop means the admission gate paced this frame out; the caller owns
	// no buffer and should simply proceed to the next frame.
	Drop Outcome = iota
	// Done means the frame was converted, compressed and accounted for;
	// Result.Data holds the JPEG bytes until Result.Release is called.
	Done
	// Unsupported means the frame's pixel format, dimensions or rect were
	// invalid and could not be converted.
	Unsupported
)

// Result is returned by Encoder.EncodeFrame.
type Result struct {
	Outcome Outcome
	Data    []byte

	buf *bytes.Buffer
}

// Release returns the result's backing buffer to the pool. Safe to call on
// a zero Result or one with Outcome != Done.
func (r *Result) Release() {
	if r == nil || r.buf == nil {
		return
	}
	putBuffer(r.buf)
	r.buf = nil
	r.Data = nil
}

// Encoder is the per-session facade: it owns a RateControl and turns its
// (quality id, admission decision) into actual pixel conversion and JPEG
// compression. There is no pluggable backend here: image/jpeg is the only
// codec this domain needs, so the facade calls it directly.
type Encoder struct {
	rc *RateControl
}

// NewEncoder wires a fresh RateControl behind an Encoder.
func NewEncoder(cfg Config) *Encoder {
	return &Encoder{rc: NewRateControl(cfg)}
}

// RateControl exposes the underlying controller for callbacks that sit
// outside the encode path (client reports, server drop notifications,
// stats polling).
func (e *Encoder) RateControl() *RateControl {
	return e.rc
}

// EncodeFrame runs the full per-frame sequence: FPS-smoothing, the
// admission gate, the Adjust-to-bit-rate policy (which may mutate quality
// or open an evaluation using the *previous* frame's encoded size before
// this frame is even converted), pixel conversion, JPEG compression at the
// controller's current quality id, and the bookkeeping that feeds the
// quality evaluator and the bit-rate AIMD loop.
func (e *Encoder) EncodeFrame(nowNano int64, f Frame, rect Rect) (Result, error) {
	c := e.rc
	c.mu.Lock()
	defer c.mu.Unlock()

	c.adjustFPS(nowNano)
	if !c.admit(nowNano) {
		return Result{Outcome: Drop}, nil
	}

	c.adjustParamsToBitRate()

	// The same guard the original gates both the start-of-frame and
	// end-of-frame bookkeeping on: a frame only counts toward the rolling
	// rate/size windows if it isn't a discarded probe sample mid-evaluation.
	countsTowardWindow := !c.eval.active || c.eval.reason == reasonSizeChange
	if countsTowardWindow {
		c.bitRate.stampFrame(nowNano, f.MMTime)
	}

	pixels, width, height, stride := f.Pixels, f.Width, f.Height, f.Stride
	if rect.W > 0 && rect.H > 0 {
		cropped, err := cropRows(pixels, f.Width, f.Height, f.Stride, f.Format, rect)
		if err != nil {
			c.lastEncSize = 0
			return Result{Outcome: Unsupported}, err
		}
		pixels, width, height, stride = cropped, rect.W, rect.H, rect.W*bytesPerPixel(f.Format)
	}
	if !f.TopDown {
		pixels = flipRows(pixels, height, stride)
	}

	img, err := toRGBA(pixels, width, height, stride, f.Format)
	if err != nil {
		c.lastEncSize = 0
		return Result{Outcome: Unsupported}, err
	}

	quality := qualityJPEGLevel(c.qualityID)
	buf, err := compressJPEG(img, quality)
	if err != nil {
		return Result{}, err
	}
	size := buf.Len()
	c.lastEncSize = size
	c.server.numFramesEncoded++

	if countsTowardWindow {
		if !c.eval.active {
			if c.numRecentEncFrames >= avgSizeWindow {
				c.sumRecentEncSize = 0
				c.numRecentEncFrames = 0
			}
			c.sumRecentEncSize += size
			c.numRecentEncFrames++
			c.adjustedFPSNumFrames++
		}
		c.bitRate.accumulate(size)
	}

	return Result{Outcome: Done, Data: buf.Bytes(), buf: buf}, nil
}

func bytesPerPixel(f PixelFormat) int {
	switch f {
	case PixelFormatRGB16:
		return 2
	case PixelFormatRGB24:
		return 3
	case PixelFormatRGB32:
		return 4
	default:
		return 0
	}
}

func cropRows(src []byte, width, height, stride int, format PixelFormat, rect Rect) ([]byte, error) {
	bpp := bytesPerPixel(format)
	if bpp == 0 {
		return nil, fmt.Errorf("mjpeg: unsupported pixel format %d", format)
	}
	if rect.X < 0 || rect.Y < 0 || rect.X+rect.W > width || rect.Y+rect.H > height {
		return nil, fmt.Errorf("mjpeg: src_rect %+v out of bounds for %dx%d frame", rect, width, height)
	}
	dstStride := rect.W * bpp
	out := make([]byte, dstStride*rect.H)
	for y := 0; y < rect.H; y++ {
		srcOff := (rect.Y+y)*stride + rect.X*bpp
		copy(out[y*dstStride:(y+1)*dstStride], src[srcOff:srcOff+dstStride])
	}
	return out, nil
}

func flipRows(src []byte, height, stride int) []byte {
	out := make([]byte, len(src))
	for y := 0; y < height; y++ {
		srcOff := y * stride
		dstOff := (height - 1 - y) * stride
		copy(out[dstOff:dstOff+stride], src[srcOff:srcOff+stride])
	}
	return out
}
