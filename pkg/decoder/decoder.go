// Package decoder reverses the Content-Encoding applied to response
// bodies, so recorded traffic stays readable.
package decoder

import (
	"bytes"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Decode undoes contentEncoding on body. It never fails: unknown
// encodings and streams that will not decode come back unchanged, so
// the caller always holds a defined body, at worst the exact bytes
// that arrived. Comma-separated encoding lists are undone right to
// left, mirroring the order they were applied in.
func Decode(body []byte, contentEncoding string) []byte {
	encodings := splitEncodings(contentEncoding)
	for i := len(encodings) - 1; i >= 0; i-- {
		body = decodeOne(body, encodings[i])
	}
	return body
}

func splitEncodings(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func decodeOne(body []byte, encoding string) []byte {
	switch encoding {
	case "identity":
		return body
	case "gzip", "x-gzip":
		return gunzip(body)
	case "deflate":
		return inflate(body)
	case "zstd":
		return unzstd(body)
	default:
		return body
	}
}

func gunzip(body []byte) []byte {
	r, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return body
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return body
	}
	return out
}

// inflate accepts both zlib-wrapped and raw DEFLATE streams; servers
// disagree about which one "deflate" means.
func inflate(body []byte) []byte {
	if r, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
		defer r.Close()
		if out, err := io.ReadAll(r); err == nil {
			return out
		}
	}
	r := flate.NewReader(bytes.NewReader(body))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return body
	}
	return out
}

func unzstd(body []byte) []byte {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return body
	}
	defer dec.Close()
	out, err := dec.DecodeAll(body, nil)
	if err != nil {
		return body
	}
	return out
}
