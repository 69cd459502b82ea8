package mjpeg

import "testing"

func solidBGRA(width, height int, b, g, r byte) []byte {
	stride := width * 4
	buf := make([]byte, stride*height)
	for i := 0; i < len(buf); i += 4 {
		buf[i+0] = b
		buf[i+1] = g
		buf[i+2] = r
		buf[i+3] = 255
	}
	return buf
}

func TestToRGBA_RGB32SwapsBlueAndRed(t *testing.T) {
	src := solidBGRA(2, 2, 10, 20, 30)
	img, err := toRGBA(src, 2, 2, 2*4, PixelFormatRGB32)
	if err != nil {
		t.Fatalf("toRGBA: %v", err)
	}
	r, g, b, _ := img.At(0, 0).RGBA()
	if r>>8 != 30 || g>>8 != 20 || b>>8 != 10 {
		t.Fatalf("got RGB (%d,%d,%d), want (30,20,10)", r>>8, g>>8, b>>8)
	}
}

func TestToRGBA_RowOverrunIsUnsupported(t *testing.T) {
	src := make([]byte, 4) // far too short for 4x4
	if _, err := toRGBA(src, 4, 4, 16, PixelFormatRGB32); err == nil {
		t.Fatal("expected an error for a short pixel buffer")
	}
}

func TestFlipRows_Reverses(t *testing.T) {
	stride := 2
	src := []byte{1, 1, 2, 2, 3, 3}
	out := flipRows(src, 3, stride)
	want := []byte{3, 3, 2, 2, 1, 1}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("flipRows = %v, want %v", out, want)
		}
	}
}

func TestCropRows_ExtractsSubRegion(t *testing.T) {
	// 4x4 RGB32 image, each pixel's R channel equal to its x coordinate.
	width, height := 4, 4
	stride := width * 4
	src := make([]byte, stride*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			off := y*stride + x*4
			src[off+2] = byte(x) // R channel lives at +2 for BGRA
			src[off+3] = 255
		}
	}

	cropped, err := cropRows(src, width, height, stride, PixelFormatRGB32, Rect{X: 1, Y: 1, W: 2, H: 2})
	if err != nil {
		t.Fatalf("cropRows: %v", err)
	}
	if len(cropped) != 2*2*4 {
		t.Fatalf("len(cropped) = %d, want %d", len(cropped), 2*2*4)
	}
	if cropped[2] != 1 {
		t.Fatalf("top-left cropped pixel R = %d, want 1", cropped[2])
	}
}

func TestCropRows_OutOfBoundsIsError(t *testing.T) {
	src := make([]byte, 4*4*4)
	if _, err := cropRows(src, 4, 4, 16, PixelFormatRGB32, Rect{X: 2, Y: 2, W: 4, H: 4}); err == nil {
		t.Fatal("expected an out-of-bounds error")
	}
}

func TestEncodeFrame_ProducesJPEGAndUpdatesStats(t *testing.T) {
	clock := &fakeClock{nowNano: 0}
	enc := NewEncoder(Config{
		StartingBitRate: 8_000_000,
		MinByteRate:     100_000,
		MaxByteRate:     2_500_000,
		Clock:           clock,
	})

	frame := Frame{
		Pixels:  solidBGRA(16, 16, 60, 120, 200),
		Width:   16,
		Height:  16,
		Stride:  16 * 4,
		Format:  PixelFormatRGB32,
		TopDown: true,
	}

	result, err := enc.EncodeFrame(clock.nowNano, frame, Rect{})
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	defer result.Release()

	if result.Outcome != Done {
		t.Fatalf("Outcome = %v, want Done", result.Outcome)
	}
	if len(result.Data) == 0 {
		t.Fatal("expected non-empty JPEG data")
	}
	if result.Data[0] != 0xFF || result.Data[1] != 0xD8 {
		t.Fatalf("result does not start with a JPEG SOI marker: % x", result.Data[:2])
	}

	stats := enc.RateControl().GetStats()
	if stats.FramesDone == 0 {
		t.Fatal("expected FramesDone to advance after a successful encode")
	}
}

func TestEncodeFrame_AdmissionGateDropsDuringPacing(t *testing.T) {
	clock := &fakeClock{nowNano: 10_000}
	enc := NewEncoder(Config{
		StartingBitRate: 8_000_000,
		MinByteRate:     100_000,
		MaxByteRate:     2_500_000,
		Clock:           clock,
	})
	rc := enc.RateControl()
	rc.mu.Lock()
	rc.adjustedFPS = 1                        // minimum spacing = 1 full second
	rc.bitRate.stampFrame(clock.nowNano-1, 0) // a frame was just stamped
	rc.mu.Unlock()

	frame := Frame{
		Pixels:  solidBGRA(4, 4, 1, 2, 3),
		Width:   4,
		Height:  4,
		Stride:  4 * 4,
		Format:  PixelFormatRGB32,
		TopDown: true,
	}

	result, err := enc.EncodeFrame(clock.nowNano, frame, Rect{})
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	if result.Outcome != Drop {
		t.Fatalf("Outcome = %v, want Drop", result.Outcome)
	}
}
