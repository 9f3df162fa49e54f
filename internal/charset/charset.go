// Package charset guesses and decodes the character encoding of uploaded files.
//
// Detection is a best-effort heuristic tuned for Persian/Arabic spreadsheets
// exported by legacy Windows tools. It never fails: a wrong guess produces
// garbled text, which the row validator reports downstream.
package charset

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Encoding is one of the character encodings the importer understands.
type Encoding int

const (
	UTF8 Encoding = iota
	UTF16LE
	UTF16BE
	Windows1256
	Latin1
)

// SampleSize is the number of leading bytes inspected when no BOM is present.
const SampleSize = 1000

// minScriptSignal is the number of Arabic-script hits that counts as "high".
const minScriptSignal = 3

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

var names = map[Encoding]string{
	UTF8:        "utf-8",
	UTF16LE:     "utf-16le",
	UTF16BE:     "utf-16be",
	Windows1256: "windows-1256",
	Latin1:      "iso-8859-1",
}

func (e Encoding) String() string {
	if n, ok := names[e]; ok {
		return n
	}
	return fmt.Sprintf("encoding(%d)", int(e))
}

// MarshalText lets encodings appear by name in JSON responses.
func (e Encoding) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// Parse resolves an operator-supplied encoding name.
func Parse(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "utf-8", "utf8":
		return UTF8, nil
	case "utf-16le", "utf16le", "utf-16":
		return UTF16LE, nil
	case "utf-16be", "utf16be":
		return UTF16BE, nil
	case "windows-1256", "cp1256", "arabic":
		return Windows1256, nil
	case "iso-8859-1", "latin1", "latin-1":
		return Latin1, nil
	}
	return UTF8, fmt.Errorf("unknown encoding %q", name)
}

// Stats holds the raw heuristic counts gathered by Detect.
type Stats struct {
	Legacy int // high bytes that are not part of a valid UTF-8 sequence
	UTF8   int // valid multi-byte UTF-8 sequences
	Script int // hits in Arabic-script ranges under either encoding
}

// Detect returns the most likely encoding of data. It is deterministic and
// has no failure mode.
func Detect(data []byte) Encoding {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return UTF8
	case bytes.HasPrefix(data, bomUTF16LE):
		return UTF16LE
	case bytes.HasPrefix(data, bomUTF16BE):
		return UTF16BE
	}

	st := Sample(data)
	if st.Script >= minScriptSignal && st.UTF8 > st.Legacy {
		return UTF8
	}
	if st.Legacy > st.UTF8 {
		return Windows1256
	}
	return UTF8
}

// Sample computes the detection heuristics over the first SampleSize bytes.
// A multi-byte sequence that starts inside the sample is read to completion.
func Sample(data []byte) Stats {
	var st Stats
	limit := min(len(data), SampleSize)

	for i := 0; i < limit; {
		b := data[i]
		if b < utf8.RuneSelf {
			i++
			continue
		}

		r, size := utf8.DecodeRune(data[i:])
		if r != utf8.RuneError && size > 1 {
			st.UTF8++
			// Arabic block U+0600..U+06FF encodes with lead bytes D8..DB.
			if b >= 0xD8 && b <= 0xDB {
				st.Script++
			}
			i += size
			continue
		}

		st.Legacy++
		// Windows-1256 places Arabic letters at C1..ED.
		if b >= 0xC1 && b <= 0xED {
			st.Script++
		}
		i++
	}
	return st
}

func decoder(enc Encoding) encoding.Encoding {
	switch enc {
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	case Windows1256:
		return charmap.Windows1256
	case Latin1:
		return charmap.ISO8859_1
	}
	return nil
}

// Decode converts data from enc into a UTF-8 string and strips a leading BOM.
// Invalid sequences become U+FFFD.
func Decode(data []byte, enc Encoding) (string, error) {
	if enc == UTF8 {
		data = bytes.TrimPrefix(data, bomUTF8)
		return sanitizeUTF8(data), nil
	}

	dec := decoder(enc)
	if dec == nil {
		return "", fmt.Errorf("decode: unsupported encoding %s", enc)
	}
	out, err := dec.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", enc, err)
	}
	out = bytes.TrimPrefix(out, bomUTF8)
	return sanitizeUTF8(out), nil
}

// DetectAndDecode runs Detect followed by Decode.
func DetectAndDecode(data []byte) (string, Encoding, error) {
	enc := Detect(data)
	s, err := Decode(data, enc)
	return s, enc, err
}

// sanitizeUTF8 replaces every invalid byte with U+FFFD.
func sanitizeUTF8(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}

	var sb strings.Builder
	sb.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune(utf8.RuneError)
		} else {
			sb.Write(data[:size])
		}
		data = data[size:]
	}
	return sb.String()
}
