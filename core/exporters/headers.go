package exporters

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/elliotchance/orderedmap/v3"
)

const (
	HeaderContentType        = "Content-type"
	HeaderContentDisposition = "Content-Disposition"
	HeaderPragma             = "Pragma"
	HeaderExpires            = "Expires"
	HeaderContentLength      = "Content-length"
)

// Headers is the ordered set of response headers of one export.
type Headers struct {
	m *orderedmap.OrderedMap[string, string]
}

// NewHeaders returns the download headers for filename. The name is used
// as given; callers pass a safe value.
func NewHeaders(filename, contentType string) *Headers {
	m := orderedmap.NewOrderedMap[string, string]()
	m.Set(HeaderContentType, contentType)
	m.Set(HeaderContentDisposition, "attachment; filename="+filename)
	m.Set(HeaderPragma, "no-cache")
	m.Set(HeaderExpires, "0")
	return &Headers{m: m}
}

// SetContentLength adds the body size. Only Buffered exports know it.
func (h *Headers) SetContentLength(n int64) {
	h.m.Set(HeaderContentLength, strconv.FormatInt(n, 10))
}

func (h *Headers) Get(name string) (string, bool) {
	return h.m.Get(name)
}

// Names returns the header names in emission order.
func (h *Headers) Names() []string {
	names := make([]string, 0, h.m.Len())
	for k := range h.m.AllFromFront() {
		names = append(names, k)
	}
	return names
}

// Apply sets every header on sink, in order.
func (h *Headers) Apply(sink Sink) {
	header := sink.Header()
	for k, v := range h.m.AllFromFront() {
		header.Set(k, v)
	}
}

// Clear removes every header this set placed on header.
func (h *Headers) Clear(header http.Header) {
	for k := range h.m.AllFromFront() {
		header.Del(k)
	}
}

func (h *Headers) String() string {
	var sb strings.Builder
	for k, v := range h.m.AllFromFront() {
		if sb.Len() > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(v)
	}
	return sb.String()
}
