package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/foodops/internal/charset"
)

// Delimiters lists the separators the delimited adapter accepts.
var Delimiters = []rune{',', ';', '\t'}

// ParseDelimiter accepts ",", ";", "tab" or "\t". Empty means comma.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "", ",", "comma":
		return ',', nil
	case ";", "semicolon":
		return ';', nil
	case "\t", `\t`, "tab":
		return '\t', nil
	}
	return 0, fmt.Errorf("unsupported delimiter %q", s)
}

func validDelimiter(d rune) bool {
	for _, v := range Delimiters {
		if v == d {
			return true
		}
	}
	return false
}

// ParseDelimited decodes data with enc and splits it into records on
// opts.Delimiter. Quoted fields and ragged rows are tolerated.
func ParseDelimited(data []byte, enc charset.Encoding, opts Options) (*Data, error) {
	text, err := charset.Decode(data, enc)
	if err != nil {
		return nil, malformed("could not decode file as "+enc.String(), err)
	}
	return splitDelimited(text, opts)
}

// detectDelimited guesses the encoding of data, decodes it and splits it.
func detectDelimited(data []byte, opts Options) (*Data, charset.Encoding, error) {
	text, enc, err := charset.DetectAndDecode(data)
	if err != nil {
		return nil, enc, malformed("could not decode file as "+enc.String(), err)
	}
	d, err := splitDelimited(text, opts)
	return d, enc, err
}

func splitDelimited(text string, opts Options) (*Data, error) {
	delim := opts.Delimiter
	if delim == 0 {
		delim = ','
	}
	if !validDelimiter(delim) {
		return nil, malformed(fmt.Sprintf("unsupported delimiter %q", delim), nil)
	}
	if strings.TrimSpace(text) == "" {
		return nil, emptyFile("file is empty")
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, malformed("invalid delimited text", err)
		}
		records = append(records, rec)
	}

	return build(records, opts.HasHeader)
}

// WriteDelimited writes headers and rows as delimited text.
func WriteDelimited(w io.Writer, delim rune, headers []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if delim != 0 {
		cw.Comma = delim
	}
	if err := cw.Write(headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}
