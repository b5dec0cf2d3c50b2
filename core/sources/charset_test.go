package sources

import (
	"io"
	"strings"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		charset string
		in      string
		want    string
	}{
		{name: "empty charset passes through", charset: "", in: "caf\xc3\xa9", want: "café"},
		{name: "utf8 alias passes through", charset: "UTF8", in: "caf\xc3\xa9", want: "café"},
		{name: "latin1", charset: "latin1", in: "caf\xe9\tna\xefve\n", want: "café\tnaïve\n"},
		{name: "windows-1252", charset: "windows-1252", in: "\x80 5\n", want: "€ 5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, err := Decode(io.NopCloser(strings.NewReader(tt.in)), tt.charset)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			defer rc.Close()
			got, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeUnknownCharset(t *testing.T) {
	if _, err := Decode(io.NopCloser(strings.NewReader("")), "klingon"); err == nil {
		t.Error("Decode() with unknown charset should return error")
	}
	if ValidCharset("klingon") {
		t.Error("ValidCharset(klingon) = true")
	}
	if !ValidCharset("ISO-8859-15") {
		t.Error("ValidCharset(ISO-8859-15) = false")
	}
}

type closeCounter struct {
	io.Reader
	n int
}

func (c *closeCounter) Close() error { c.n++; return nil }

func TestDecodeClosesSource(t *testing.T) {
	src := &closeCounter{Reader: strings.NewReader("x")}
	rc, _ := Decode(src, "latin1")
	rc.Close()
	if src.n != 1 {
		t.Errorf("source closed %d times, want 1", src.n)
	}
}
