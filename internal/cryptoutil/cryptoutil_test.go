package cryptoutil

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"io"
	"testing"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i * 7)
	}
	return key
}

func TestParseKeyFormats(t *testing.T) {
	key := testKey()
	forms := []string{
		"base64:" + base64.StdEncoding.EncodeToString(key),
		"hex:" + hex.EncodeToString(key),
		base64.StdEncoding.EncodeToString(key),
		hex.EncodeToString(key),
	}
	for _, form := range forms {
		got, err := ParseKey(form)
		if err != nil {
			t.Fatalf("ParseKey(%q): %v", form, err)
		}
		if !bytes.Equal(got, key) {
			t.Fatalf("ParseKey(%q) returned wrong bytes", form)
		}
	}
}

func TestParseKeyRejectsBadInput(t *testing.T) {
	for _, in := range []string{"", "hex:zz", "base64:short", hex.EncodeToString([]byte("tooshort"))} {
		if _, err := ParseKey(in); err == nil {
			t.Errorf("ParseKey(%q) should fail", in)
		}
	}
}

func TestConfigRoundTrip(t *testing.T) {
	key := testKey()
	plain := []byte("global:\n  instance_name: prod\n")

	sealed, err := EncryptConfig(plain, key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(sealed, []byte("instance_name")) {
		t.Fatal("plaintext leaked into ciphertext")
	}
	opened, err := DecryptConfig(sealed, key)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(opened, plain) {
		t.Fatal("round trip mismatch")
	}
}

func TestConfigDecryptRejectsWrongKey(t *testing.T) {
	sealed, err := EncryptConfig([]byte("secret"), testKey())
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	other := testKey()
	other[0] ^= 0xff
	if _, err := DecryptConfig(sealed, other); err == nil {
		t.Fatal("wrong key must not decrypt")
	}
}

func TestConfigDecryptRejectsGarbage(t *testing.T) {
	for _, in := range [][]byte{nil, []byte("x"), []byte("NOPE................")} {
		if _, err := DecryptConfig(in, testKey()); err == nil {
			t.Errorf("DecryptConfig(%q) should fail", in)
		}
	}
}

func TestStreamRoundTrip(t *testing.T) {
	key := testKey()
	payload := bytes.Repeat([]byte("stream data "), 4096)

	var sealed bytes.Buffer
	w, err := EncryptWriter(&sealed, key)
	if err != nil {
		t.Fatalf("encrypt writer: %v", err)
	}
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := DecryptReader(&sealed, key)
	if err != nil {
		t.Fatalf("decrypt reader: %v", err)
	}
	opened, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(opened, payload) {
		t.Fatal("stream round trip mismatch")
	}
}
