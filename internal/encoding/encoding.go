// Package encoding sniffs the byte encoding of a novel text file and
// decodes it to UTF-8: a best-effort classifier over UTF-8, UTF-8 with
// BOM, UTF-16LE/BE, CP949/EUC-KR, GB18030 and Shift-JIS that never
// fails outright. On low confidence it prefers UTF-8, then CP949, and
// downstream decode errors fall back to UTF-8 with the replacement
// character.
package encoding

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

// sniffWindow bounds how much of the file we read to guess the encoding.
const sniffWindow = 256 * 1024

// Name identifies a detected encoding.
type Name string

const (
	UTF8     Name = "UTF-8"
	UTF8BOM  Name = "UTF-8-BOM"
	UTF16LE  Name = "UTF-16LE"
	UTF16BE  Name = "UTF-16BE"
	CP949    Name = "CP949"
	GB18030  Name = "GB18030"
	ShiftJIS Name = "Shift-JIS"
)

// confidenceFloor is the threshold below which Detect prefers UTF-8
// then CP949 over whatever scored highest.
const confidenceFloor = 0.6

// Result is the outcome of Detect.
type Result struct {
	Encoding   Name
	Confidence float64
}

// Detect reads at most sniffWindow bytes of data and returns the best
// guess at its encoding. Detect never errors: on ambiguity it falls back
// to UTF-8, then CP949.
func Detect(data []byte) Result {
	if len(data) > sniffWindow {
		data = data[:sniffWindow]
	}

	if enc, ok := detectBOM(data); ok {
		return Result{Encoding: enc, Confidence: 1.0}
	}

	candidates := []Result{
		{UTF8, scoreUTF8(data)},
		{CP949, scoreDecodable(data, korean.EUCKR.NewDecoder())},
		{GB18030, scoreDecodable(data, simplifiedchinese.GB18030.NewDecoder())},
		{ShiftJIS, scoreDecodable(data, japanese.ShiftJIS.NewDecoder())},
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}

	if best.Confidence < confidenceFloor {
		for _, c := range candidates {
			if c.Encoding == UTF8 {
				return Result{Encoding: UTF8, Confidence: c.Confidence}
			}
		}
		return Result{Encoding: CP949, Confidence: best.Confidence}
	}

	return best
}

func detectBOM(data []byte) (Name, bool) {
	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return UTF8BOM, true
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return UTF16LE, true
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return UTF16BE, true
	}
	return "", false
}

// scoreUTF8 returns 1.0 for strictly valid UTF-8, decaying toward 0 as
// invalid byte sequences accumulate.
func scoreUTF8(data []byte) float64 {
	if len(data) == 0 {
		return 1.0
	}

	valid := 0
	total := 0
	i := 0
	for i < len(data) {
		r, size := utf8.DecodeRune(data[i:])
		total++
		if r != utf8.RuneError {
			valid++
		}
		i += size
	}

	if total == 0 {
		return 1.0
	}
	return float64(valid) / float64(total)
}

// scoreDecodable runs data through dec and returns a coarse confidence
// signal for legacy CJK encodings: 0 when decoding fails outright or
// the decoded size is far from the input size, 0.4 when the output
// contains replacement characters, and 0.75 otherwise.
func scoreDecodable(data []byte, dec *encoding.Decoder) float64 {
	out, err := dec.Bytes(data)
	if err != nil && len(out) == 0 {
		return 0
	}

	if len(data) == 0 {
		return 0
	}

	// A legacy multi-byte encoding decoding cleanly into a text roughly
	// the expected size (not wildly shorter, which signals the decoder
	// silently dropped invalid sequences) is our confidence proxy.
	ratio := float64(len(out)) / float64(len(data))
	if ratio < 0.3 || ratio > 2.0 {
		return 0
	}
	if bytes.ContainsRune(out, 0xFFFD) {
		return 0.4
	}
	return 0.75
}

// Decoder returns a transform-compatible decoder for the given Name,
// defaulting to UTF-8 passthrough on an unrecognized name so callers
// never need to special-case the fallback themselves.
func Decoder(name Name) *encoding.Decoder {
	switch name {
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
	case CP949:
		return korean.EUCKR.NewDecoder()
	case GB18030:
		return simplifiedchinese.GB18030.NewDecoder()
	case ShiftJIS:
		return japanese.ShiftJIS.NewDecoder()
	default:
		return unicode.UTF8.NewDecoder()
	}
}

// DecodeToUTF8 decodes the full byte slice using the named encoding,
// falling back to UTF-8-with-replacement if the decode fails, so
// downstream consumers always receive usable text.
func DecodeToUTF8(data []byte, name Name) (string, error) {
	dec := Decoder(name)
	out, err := dec.Bytes(data)
	if err != nil {
		out, _ = unicode.UTF8.NewDecoder().Bytes(data)
		return string(out), fmt.Errorf("decode as %s: %w (fell back to UTF-8)", name, err)
	}
	return string(out), nil
}
