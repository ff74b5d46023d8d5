// Package csvfeed streams marketplace catalog feed files row by row. The
// parser holds only the current row in memory, so multi-hundred-MB feeds
// parse in constant space.
package csvfeed

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Parser reads a catalog feed CSV incrementally.
type Parser struct {
	reader    *csv.Reader
	bufReader *bufio.Reader
	headers   []string
	headerMap map[string]int

	currentLine int
	rowsRead    int
}

// Row is one parsed feed row keyed by header name.
type Row struct {
	// LineNumber is the 1-indexed file line (header is line 1)
	LineNumber int
	// Values maps header name to the trimmed cell value
	Values map[string]string
}

// IsEmpty reports whether every cell in the row is empty.
func (r *Row) IsEmpty() bool {
	for _, v := range r.Values {
		if v != "" {
			return false
		}
	}
	return true
}

// NewParser creates a feed parser over r. It strips a UTF-8 BOM, validates
// the encoding of the leading content, and reads the header row.
func NewParser(r io.Reader) (*Parser, error) {
	p := &Parser{
		bufReader: bufio.NewReader(r),
		headerMap: make(map[string]int),
	}

	// Strip UTF-8 BOM (0xEF 0xBB 0xBF) if present.
	lead, err := p.bufReader.Peek(3)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("csvfeed: failed to read feed: %w", err)
	}
	if len(lead) >= 3 && lead[0] == 0xEF && lead[1] == 0xBB && lead[2] == 0xBF {
		_, _ = p.bufReader.Discard(3)
	}

	if err := validateUTF8(p.bufReader); err != nil {
		return nil, err
	}

	p.reader = csv.NewReader(p.bufReader)
	p.reader.LazyQuotes = true
	p.reader.TrimLeadingSpace = true
	p.reader.FieldsPerRecord = -1 // marketplace feeds have ragged rows

	if err := p.readHeader(); err != nil {
		return nil, err
	}
	return p, nil
}

// validateUTF8 checks the leading content is valid UTF-8.
func validateUTF8(r *bufio.Reader) error {
	const checkSize = 4096
	content, err := r.Peek(checkSize)
	if err != nil && err != io.EOF {
		return fmt.Errorf("csvfeed: failed to read feed for encoding check: %w", err)
	}
	if len(content) == 0 {
		return ErrEmptyFile
	}
	// Trim a possibly split trailing rune before validating a partial buffer.
	if len(content) == checkSize {
		for i := 0; i < utf8.UTFMax && len(content) > 0; i++ {
			if utf8.Valid(content) {
				break
			}
			content = content[:len(content)-1]
		}
	}
	if !utf8.Valid(content) {
		return ErrInvalidEncoding
	}
	return nil
}

func (p *Parser) readHeader() error {
	record, err := p.reader.Read()
	if err == io.EOF {
		return ErrMissingHeader
	}
	if err != nil {
		return fmt.Errorf("csvfeed: failed to read header: %w", err)
	}

	p.headers = make([]string, len(record))
	for i, h := range record {
		h = strings.TrimSpace(h)
		p.headers[i] = h
		p.headerMap[h] = i
	}
	p.currentLine = 1
	return nil
}

// Headers returns the parsed header names in file order.
func (p *Parser) Headers() []string {
	return p.headers
}

// RequireColumns verifies the given headers are all present, returning
// ErrMissingColumns naming the absent ones.
func (p *Parser) RequireColumns(names []string) error {
	var missing []string
	for _, name := range names {
		if _, ok := p.headerMap[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return nil
}

// Next reads the next data row. It returns (nil, io.EOF) at end of file and
// a RowError for rows the csv reader rejects; the caller decides whether a
// row error is fatal (it should not be).
func (p *Parser) Next() (*Row, error) {
	record, err := p.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	p.currentLine++
	if err != nil {
		return nil, RowError{Row: p.currentLine, Message: err.Error()}
	}
	p.rowsRead++

	row := &Row{
		LineNumber: p.currentLine,
		Values:     make(map[string]string, len(p.headers)),
	}
	for i, header := range p.headers {
		if i < len(record) {
			row.Values[header] = strings.TrimSpace(record[i])
		} else {
			row.Values[header] = ""
		}
	}
	return row, nil
}

// RowsRead returns the number of data rows successfully read so far.
func (p *Parser) RowsRead() int {
	return p.rowsRead
}
