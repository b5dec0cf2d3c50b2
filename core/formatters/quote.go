package formatters

import (
	"io"
)

// Quoter turns tab-separated lines into double-quoted, comma-separated
// CSV lines. For every line it doubles each '"', replaces each tab with
// `","` and wraps the line in '"'.
//
// Quoter keeps only one bit of state (whether a line is open), so input
// may be split at any byte boundary. Embedded newlines inside a field are
// not recognised: the source is expected to escape them.
type Quoter struct {
	open bool
}

// Append transforms src and appends the result to dst.
func (q *Quoter) Append(dst, src []byte) []byte {
	for _, b := range src {
		if !q.open {
			dst = append(dst, '"')
			q.open = true
		}
		switch b {
		case '"':
			dst = append(dst, '"', '"')
		case '\t':
			dst = append(dst, '"', ',', '"')
		case '\n':
			dst = append(dst, '"', '\n')
			q.open = false
		default:
			dst = append(dst, b)
		}
	}
	return dst
}

// Finish closes a trailing line that had no terminating newline.
func (q *Quoter) Finish(dst []byte) []byte {
	if q.open {
		dst = append(dst, '"')
		q.open = false
	}
	return dst
}

// QuoteLine applies the quoting rule to a single line without its newline.
func QuoteLine(line string) string {
	var q Quoter
	out := q.Append(make([]byte, 0, len(line)+8), []byte(line))
	if !q.open {
		// empty line
		return `""`
	}
	return string(q.Finish(out))
}

// QuoteWriter applies the quoting rule to everything written to it.
type QuoteWriter struct {
	w   io.Writer
	q   Quoter
	buf []byte
}

// NewQuoteWriter returns a writer that quotes its input into w.
func NewQuoteWriter(w io.Writer) *QuoteWriter {
	return &QuoteWriter{w: w}
}

func (qw *QuoteWriter) Write(p []byte) (int, error) {
	qw.buf = qw.q.Append(qw.buf[:0], p)
	if _, err := qw.w.Write(qw.buf); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close terminates an unfinished last line. It does not close the
// underlying writer.
func (qw *QuoteWriter) Close() error {
	qw.buf = qw.q.Finish(qw.buf[:0])
	if len(qw.buf) == 0 {
		return nil
	}
	_, err := qw.w.Write(qw.buf)
	return err
}

type quoteReader struct {
	r   io.Reader
	q   Quoter
	in  []byte
	out []byte
	off int
	err error
}

// NewQuoteReader returns a reader yielding the quoted form of r.
func NewQuoteReader(r io.Reader) io.Reader {
	return &quoteReader{r: r, in: make([]byte, 32*1024)}
}

func (qr *quoteReader) Read(p []byte) (int, error) {
	for qr.off >= len(qr.out) {
		if qr.err != nil {
			return 0, qr.err
		}
		qr.out, qr.off = qr.out[:0], 0

		n, err := qr.r.Read(qr.in)
		qr.out = qr.q.Append(qr.out, qr.in[:n])
		if err != nil {
			if err == io.EOF {
				qr.out = qr.q.Finish(qr.out)
			}
			qr.err = err
		}
	}

	n := copy(p, qr.out[qr.off:])
	qr.off += n
	return n, nil
}
