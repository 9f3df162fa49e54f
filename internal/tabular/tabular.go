// Package tabular turns uploaded delimited-text and spreadsheet files into
// a header row plus data rows of normalized strings.
package tabular

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/foodops/internal/charset"
	"github.com/JonMunkholm/foodops/internal/textnorm"
)

// DefaultMaxSize is the upload limit applied when Options.MaxSize is zero (20MB).
const DefaultMaxSize int64 = 20 * 1024 * 1024

// ErrFileTooLarge is returned when the raw file exceeds Options.MaxSize.
var ErrFileTooLarge = errors.New("file too large")

// RawFile is an uploaded file as received. It is never modified after reading.
type RawFile struct {
	Name string
	Data []byte
}

// Ext returns the lower-cased file extension including the dot.
func (f RawFile) Ext() string {
	return strings.ToLower(filepath.Ext(f.Name))
}

// Format identifies which adapter parsed a file.
type Format string

const (
	FormatDelimited   Format = "delimited"
	FormatSpreadsheet Format = "spreadsheet"
)

// Data is the parsed content of a file. Every row has exactly len(Headers) cells.
type Data struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Options controls parsing.
type Options struct {
	Delimiter rune // ',', ';' or '\t'; delimited text only
	HasHeader bool
	// Encoding overrides detection when set.
	Encoding *charset.Encoding
	MaxSize  int64
}

// DefaultOptions returns comma-delimited parsing with a header row.
func DefaultOptions() Options {
	return Options{Delimiter: ',', HasHeader: true}
}

// Result is the output of Parse.
type Result struct {
	Data
	Encoding charset.Encoding
	Format   Format
}

// ErrorKind classifies parse failures.
type ErrorKind int

const (
	EmptyFile ErrorKind = iota + 1
	MalformedFile
)

func (k ErrorKind) String() string {
	switch k {
	case EmptyFile:
		return "empty file"
	case MalformedFile:
		return "malformed file"
	}
	return "parse error"
}

// ParseError reports why a file could not be turned into rows.
type ParseError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Reason == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is matches any ParseError of the same kind, so errors.Is(err, ErrEmptyFile) works.
func (e *ParseError) Is(target error) bool {
	pe, ok := target.(*ParseError)
	return ok && pe.Kind == e.Kind && pe.Reason == ""
}

var (
	ErrEmptyFile     = &ParseError{Kind: EmptyFile}
	ErrMalformedFile = &ParseError{Kind: MalformedFile}
)

func emptyFile(reason string) error {
	return &ParseError{Kind: EmptyFile, Reason: reason}
}

func malformed(reason string, err error) error {
	return &ParseError{Kind: MalformedFile, Reason: reason, Err: err}
}

// Parse selects the adapter from the file extension, confirmed by content
// sniffing, and parses the file.
func Parse(f RawFile, opts Options) (*Result, error) {
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if int64(len(f.Data)) > maxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, len(f.Data), maxSize)
	}
	if len(f.Data) == 0 {
		return nil, emptyFile("file is empty")
	}

	format, err := detectFormat(f)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatSpreadsheet:
		data, err := ParseSpreadsheet(f.Data, opts)
		if err != nil {
			return nil, err
		}
		return &Result{Data: *data, Encoding: charset.UTF8, Format: FormatSpreadsheet}, nil
	default:
		if opts.Encoding != nil {
			data, err := ParseDelimited(f.Data, *opts.Encoding, opts)
			if err != nil {
				return nil, err
			}
			return &Result{Data: *data, Encoding: *opts.Encoding, Format: FormatDelimited}, nil
		}
		data, enc, err := detectDelimited(f.Data, opts)
		if err != nil {
			return nil, err
		}
		return &Result{Data: *data, Encoding: enc, Format: FormatDelimited}, nil
	}
}

// build normalizes records into Data: cells are normalized, blank rows are
// dropped and every row is padded or truncated to the header width.
func build(records [][]string, hasHeader bool) (*Data, error) {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		textnorm.Row(rec)
		if isEmptyRow(rec) {
			continue
		}
		rows = append(rows, rec)
	}
	if len(rows) == 0 {
		return nil, emptyFile("file contains no rows")
	}

	var headers []string
	if hasHeader {
		headers = rows[0]
		rows = rows[1:]
		if len(rows) == 0 {
			return nil, emptyFile("file has a header row but no data rows")
		}
		for i, h := range headers {
			if h == "" {
				headers[i] = columnName(i)
			}
		}
	} else {
		width := 0
		for _, r := range rows {
			width = max(width, len(r))
		}
		headers = make([]string, width)
		for i := range headers {
			headers[i] = columnName(i)
		}
	}

	width := len(headers)
	for i, r := range rows {
		rows[i] = fitRow(r, width)
	}
	return &Data{Headers: headers, Rows: rows}, nil
}

func columnName(i int) string {
	return fmt.Sprintf("Column %d", i+1)
}

func fitRow(r []string, width int) []string {
	switch {
	case len(r) == width:
		return r
	case len(r) > width:
		return r[:width]
	}
	out := make([]string, width)
	copy(out, r)
	return out
}

func isEmptyRow(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
