package decoder

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zlibbed(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func deflated(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zstded(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	plain := []byte(`{"name":"jane","roles":["admin"]}`)

	tests := []struct {
		name     string
		body     func(t *testing.T) []byte
		encoding string
		want     []byte
	}{
		{
			name:     "no encoding passes through",
			body:     func(*testing.T) []byte { return plain },
			encoding: "",
			want:     plain,
		},
		{
			name:     "identity passes through",
			body:     func(*testing.T) []byte { return plain },
			encoding: "identity",
			want:     plain,
		},
		{
			name:     "gzip",
			body:     func(t *testing.T) []byte { return gzipped(t, plain) },
			encoding: "gzip",
			want:     plain,
		},
		{
			name:     "x-gzip alias",
			body:     func(t *testing.T) []byte { return gzipped(t, plain) },
			encoding: "x-gzip",
			want:     plain,
		},
		{
			name:     "gzip is case-insensitive",
			body:     func(t *testing.T) []byte { return gzipped(t, plain) },
			encoding: "GZIP",
			want:     plain,
		},
		{
			name:     "deflate with zlib wrapper",
			body:     func(t *testing.T) []byte { return zlibbed(t, plain) },
			encoding: "deflate",
			want:     plain,
		},
		{
			name:     "deflate raw stream",
			body:     func(t *testing.T) []byte { return deflated(t, plain) },
			encoding: "deflate",
			want:     plain,
		},
		{
			name:     "zstd",
			body:     func(t *testing.T) []byte { return zstded(t, plain) },
			encoding: "zstd",
			want:     plain,
		},
		{
			name:     "encoding list undone right to left",
			body:     func(t *testing.T) []byte { return gzipped(t, plain) },
			encoding: "identity, gzip",
			want:     plain,
		},
		{
			name:     "unknown encoding passes through",
			body:     func(*testing.T) []byte { return plain },
			encoding: "br",
			want:     plain,
		},
		{
			name:     "corrupt gzip passes through",
			body:     func(*testing.T) []byte { return []byte("definitely not gzip") },
			encoding: "gzip",
			want:     []byte("definitely not gzip"),
		},
		{
			name:     "corrupt zstd passes through",
			body:     func(*testing.T) []byte { return []byte{0x01, 0x02, 0x03} },
			encoding: "zstd",
			want:     []byte{0x01, 0x02, 0x03},
		},
		{
			name:     "truncated gzip passes through",
			body:     func(t *testing.T) []byte { return gzipped(t, plain)[:5] },
			encoding: "gzip",
			want:     nil, // filled in below
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.body(t)
			want := tt.want
			if want == nil {
				want = body
			}
			assert.Equal(t, want, Decode(body, tt.encoding))
		})
	}
}

func TestDecode_EmptyBody(t *testing.T) {
	assert.Empty(t, Decode(nil, "gzip"))
	assert.Empty(t, Decode([]byte{}, ""))
}
