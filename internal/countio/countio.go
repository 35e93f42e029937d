// Package countio reads and writes the canonical count-table format shared by
// every counting and merging stage: a `__total__\t<sum>` header line followed
// by `token\t<count>` lines sorted ascending by the byte order of the token.
// Keeping tables key-sorted is what lets downstream merges run as bounded-
// memory k-way merges instead of hash joins.
package countio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// TotalKey is the reserved header token carrying the sum of all token
// occurrences, including occurrences of tokens later dropped by a stage.
const TotalKey = "__total__"

// scannerBufSize accommodates pathological single-line inputs such as
// unsegmented CJK shards.
const scannerBufSize = 1 << 20

// Entry is one token with its occurrence count.
type Entry struct {
	Token string
	Count int64
}

// Reader streams entries from a count table, validating the header and the
// ascending key order as it goes.
type Reader struct {
	sc    *bufio.Scanner
	total int64
	prev  string
	first bool
	line  int
}

// NewReader consumes the `__total__` header and returns a Reader positioned
// at the first entry.
func NewReader(r io.Reader) (*Reader, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), scannerBufSize)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("count table is empty, expected %s header", TotalKey)
	}
	token, count, err := splitLine(sc.Text())
	if err != nil {
		return nil, fmt.Errorf("line 1: %w", err)
	}
	if token != TotalKey {
		return nil, fmt.Errorf("line 1: expected %s header, found %q", TotalKey, token)
	}
	return &Reader{sc: sc, total: count, first: true, line: 1}, nil
}

// Total returns the value of the `__total__` header.
func (r *Reader) Total() int64 { return r.total }

// Next returns the next entry, or io.EOF when the table is exhausted.
// Out-of-order keys are reported as errors: an unsorted input would silently
// corrupt any merge fed from this reader.
func (r *Reader) Next() (Entry, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return Entry{}, err
		}
		return Entry{}, io.EOF
	}
	r.line++
	token, count, err := splitLine(r.sc.Text())
	if err != nil {
		return Entry{}, fmt.Errorf("line %d: %w", r.line, err)
	}
	if token == TotalKey {
		return Entry{}, fmt.Errorf("line %d: %s appears after the header", r.line, TotalKey)
	}
	if !r.first && token <= r.prev {
		return Entry{}, fmt.Errorf("line %d: key %q out of order after %q", r.line, token, r.prev)
	}
	r.first = false
	r.prev = token
	return Entry{Token: token, Count: count}, nil
}

func splitLine(line string) (string, int64, error) {
	token, strcount, ok := strings.Cut(line, "\t")
	if !ok {
		return "", 0, fmt.Errorf("malformed count line %q", line)
	}
	count, err := strconv.ParseInt(strcount, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed count in line %q: %w", line, err)
	}
	return token, count, nil
}

// Writer emits a count table. The total must be known up front because the
// header leads the file; merges know it from their input headers and counting
// stages know it before they sort.
type Writer struct {
	bw    *bufio.Writer
	prev  string
	first bool
}

// NewWriter writes the `__total__` header and returns a Writer ready for
// entries.
func NewWriter(w io.Writer, total int64) (*Writer, error) {
	bw := bufio.NewWriterSize(w, scannerBufSize)
	if _, err := fmt.Fprintf(bw, "%s\t%d\n", TotalKey, total); err != nil {
		return nil, err
	}
	return &Writer{bw: bw, first: true}, nil
}

// Add appends one entry, enforcing the ascending key order the format
// promises its consumers.
func (w *Writer) Add(e Entry) error {
	if e.Token == TotalKey {
		return fmt.Errorf("%s is reserved for the header", TotalKey)
	}
	if !w.first && e.Token <= w.prev {
		return fmt.Errorf("key %q out of order after %q", e.Token, w.prev)
	}
	w.first = false
	w.prev = e.Token
	_, err := fmt.Fprintf(w.bw, "%s\t%d\n", e.Token, e.Count)
	return err
}

// Flush drains the buffered output. Callers must Flush before closing the
// underlying file.
func (w *Writer) Flush() error { return w.bw.Flush() }

// ReadAll fully materializes a count table. Intended for tests and small
// fixtures; production stages stream.
func ReadAll(r io.Reader) (int64, []Entry, error) {
	cr, err := NewReader(r)
	if err != nil {
		return 0, nil, err
	}
	var entries []Entry
	for {
		e, err := cr.Next()
		if err == io.EOF {
			return cr.Total(), entries, nil
		}
		if err != nil {
			return 0, nil, err
		}
		entries = append(entries, e)
	}
}
