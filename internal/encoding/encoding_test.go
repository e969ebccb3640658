package encoding

import "testing"

func TestDetectUTF8BOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("제1화 시작")...)

	got := Detect(data)
	if got.Encoding != UTF8BOM {
		t.Fatalf("encoding = %s, want %s", got.Encoding, UTF8BOM)
	}
	if got.Confidence != 1.0 {
		t.Fatalf("confidence = %v, want 1.0", got.Confidence)
	}
}

func TestDetectPlainUTF8(t *testing.T) {
	got := Detect([]byte("제1화 시작\n평범한 본문입니다."))
	if got.Encoding != UTF8 {
		t.Fatalf("encoding = %s, want %s", got.Encoding, UTF8)
	}
}

func TestDetectEmptyNeverFails(t *testing.T) {
	got := Detect(nil)
	if got.Encoding == "" {
		t.Fatalf("expected a fallback encoding for empty input")
	}
}

func TestDecodeToUTF8FallsBackOnError(t *testing.T) {
	// Bytes that are invalid both as UTF-8 and as Shift-JIS, fed through
	// a Shift-JIS decode attempt, should not panic and should still
	// return text.
	text, _ := DecodeToUTF8([]byte{0x80, 0x81, 0xFF}, ShiftJIS)
	if text == "" {
		t.Fatalf("expected non-empty fallback decode")
	}
}

func TestDecoderDefaultsToUTF8(t *testing.T) {
	dec := Decoder(Name("unknown"))
	out, err := dec.Bytes([]byte("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "hello" {
		t.Fatalf("got %q, want %q", out, "hello")
	}
}
