package compress

import (
	"bytes"
	"io"
	"testing"
)

func TestWrapRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("nocodb backup "), 2048)
	for _, kind := range []string{TypeNone, TypeGzip, TypeZstd} {
		t.Run(kind, func(t *testing.T) {
			var buf bytes.Buffer
			w, err := WrapWriter(kind, &buf)
			if err != nil {
				t.Fatalf("wrap writer: %v", err)
			}
			if _, err := w.Write(payload); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
			if kind != TypeNone && buf.Len() >= len(payload) {
				t.Fatalf("compressed size %d not smaller than %d", buf.Len(), len(payload))
			}

			r, err := WrapReader(kind, &buf)
			if err != nil {
				t.Fatalf("wrap reader: %v", err)
			}
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			r.Close()
			if !bytes.Equal(got, payload) {
				t.Fatal("round trip mismatch")
			}
		})
	}
}

func TestWrapUnknownKind(t *testing.T) {
	if _, err := WrapWriter("lz4", io.Discard); err == nil {
		t.Fatal("expected error for unsupported writer kind")
	}
	if _, err := WrapReader("lz4", bytes.NewReader(nil)); err == nil {
		t.Fatal("expected error for unsupported reader kind")
	}
}
