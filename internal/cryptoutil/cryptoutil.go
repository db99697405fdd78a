package cryptoutil

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/sio"
)

const (
	configMagic = "NCB1"
	configVer   = uint16(1)
)

// ParseKey expects a 32-byte key in base64 or hex form, optionally
// prefixed with "base64:" or "hex:".
func ParseKey(key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("encryption key is empty")
	}
	trimmed := strings.TrimSpace(key)
	var data []byte
	var err error

	switch {
	case strings.HasPrefix(trimmed, "base64:"):
		data, err = base64.StdEncoding.DecodeString(strings.TrimPrefix(trimmed, "base64:"))
	case strings.HasPrefix(trimmed, "hex:"):
		data, err = hex.DecodeString(strings.TrimPrefix(trimmed, "hex:"))
	default:
		data, err = base64.StdEncoding.DecodeString(trimmed)
		if err != nil {
			data, err = hex.DecodeString(trimmed)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(data) != 32 {
		return nil, fmt.Errorf("invalid key length: %d (expected 32 bytes)", len(data))
	}
	return data, nil
}

// EncryptWriter returns a streaming encrypting writer using DARE (sio).
func EncryptWriter(w io.Writer, key []byte) (io.WriteCloser, error) {
	return sio.EncryptWriter(w, sio.Config{Key: key})
}

// DecryptReader returns a streaming decrypting reader using DARE (sio).
func DecryptReader(r io.Reader, key []byte) (io.Reader, error) {
	return sio.DecryptReader(r, sio.Config{Key: key})
}

// EncryptConfig seals a config payload with AES-GCM under a small
// versioned header.
func EncryptConfig(plain []byte, key []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteString(configMagic)
	if err := binary.Write(buf, binary.BigEndian, configVer); err != nil {
		return nil, err
	}
	nonce := make([]byte, 12)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	buf.Write(nonce)

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	buf.Write(aead.Seal(nil, nonce, plain, nil))
	return buf.Bytes(), nil
}

// DecryptConfig opens a payload produced by EncryptConfig.
func DecryptConfig(ciphertext []byte, key []byte) ([]byte, error) {
	header := len(configMagic) + 2 + 12
	if len(ciphertext) < header {
		return nil, fmt.Errorf("config cipher too short")
	}
	if string(ciphertext[:4]) != configMagic {
		return nil, fmt.Errorf("invalid config header")
	}
	if ver := binary.BigEndian.Uint16(ciphertext[4:6]); ver != configVer {
		return nil, fmt.Errorf("unsupported config version %d", ver)
	}
	nonce := ciphertext[6:header]
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ciphertext[header:], nil)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
