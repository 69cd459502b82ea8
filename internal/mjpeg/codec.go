package mjpeg

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
)

// PixelFormat identifies the layout of a source bitmap handed to EncodeFrame.
// The rate-control core never compresses anything itself; image/jpeg is an
// external codec collaborator outside the controller's own responsibility.
type PixelFormat int

const (
	PixelFormatRGB16 PixelFormat = iota // 5-6-5
	PixelFormatRGB24                    // packed BGR
	PixelFormatRGB32                    // BGRX/BGRA, alpha ignored
)

var bufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 64*1024))
	},
}

func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// putBuffer returns buf to the pool. Oversized buffers are dropped instead
// of pooled so one giant frame doesn't pin memory for the session's
// lifetime.
func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 4*1024*1024 {
		return
	}
	bufferPool.Put(buf)
}

// toRGBA converts a source bitmap in the given pixel format into an
// *image.RGBA suitable for image/jpeg, following colorconv.go's style of a
// tight per-row/per-pixel loop over raw byte slices rather than Set/At.
func toRGBA(src []byte, width, height, stride int, format PixelFormat) (*image.RGBA, error) {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))

	switch format {
	case PixelFormatRGB16:
		for y := 0; y < height; y++ {
			srow := y * stride
			drow := y * dst.Stride
			for x := 0; x < width; x++ {
				si := srow + x*2
				if si+1 >= len(src) {
					return nil, fmt.Errorf("mjpeg: rgb16 row overrun at y=%d x=%d", y, x)
				}
				px := uint16(src[si]) | uint16(src[si+1])<<8
				r := uint8((px >> 11) & 0x1F)
				g := uint8((px >> 5) & 0x3F)
				b := uint8(px & 0x1F)
				di := drow + x*4
				dst.Pix[di+0] = (r << 3) | (r >> 2)
				dst.Pix[di+1] = (g << 2) | (g >> 4)
				dst.Pix[di+2] = (b << 3) | (b >> 2)
				dst.Pix[di+3] = 255
			}
		}
	case PixelFormatRGB24:
		for y := 0; y < height; y++ {
			srow := y * stride
			drow := y * dst.Stride
			for x := 0; x < width; x++ {
				si := srow + x*3
				if si+2 >= len(src) {
					return nil, fmt.Errorf("mjpeg: rgb24 row overrun at y=%d x=%d", y, x)
				}
				di := drow + x*4
				dst.Pix[di+0] = src[si+2] // R is byte 2 of BGR
				dst.Pix[di+1] = src[si+1] // G
				dst.Pix[di+2] = src[si+0] // B is byte 0 of BGR
				dst.Pix[di+3] = 255
			}
		}
	case PixelFormatRGB32:
		for y := 0; y < height; y++ {
			srow := y * stride
			drow := y * dst.Stride
			for x := 0; x < width; x++ {
				si := srow + x*4
				if si+3 >= len(src) {
					return nil, fmt.Errorf("mjpeg: rgb32 row overrun at y=%d x=%d", y, x)
				}
				di := drow + x*4
				dst.Pix[di+0] = src[si+2] // R is byte 2 of BGRX
				dst.Pix[di+1] = src[si+1] // G
				dst.Pix[di+2] = src[si+0] // B is byte 0 of BGRX
				dst.Pix[di+3] = 255
			}
		}
	default:
		return nil, fmt.Errorf("mjpeg: unsupported pixel format %d", format)
	}

	return dst, nil
}

// compressJPEG encodes img at the given jpeg.Options quality into a pooled
// buffer. The caller owns the returned buffer and must call putBuffer once
// its Bytes() have been consumed (mirrors encode.go's EncodeJPEGPooled).
func compressJPEG(img *image.RGBA, quality int) (*bytes.Buffer, error) {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	buf := getBuffer()
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		putBuffer(buf)
		return nil, err
	}
	return buf, nil
}
