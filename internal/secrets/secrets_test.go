package secrets

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

type errorReader struct{}

func (errorReader) Read(p []byte) (int, error) {
	return 0, errors.New("read error")
}

func fixedKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func newTestSealer(t *testing.T, key []byte) *Sealer {
	t.Helper()
	sealer, err := NewSealer(key)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return sealer
}

func TestParseKey(t *testing.T) {
	raw := strings.Repeat("a", 32)
	key, err := ParseKey(raw)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if string(key) != raw {
		t.Fatalf("expected raw key to match, got %q", string(key))
	}

	encoded := base64.StdEncoding.EncodeToString(fixedKey())
	key, err = ParseKey(" " + encoded + "\n")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !bytes.Equal(key, fixedKey()) {
		t.Fatalf("expected decoded key to match")
	}
}

func TestParseKeyErrors(t *testing.T) {
	cases := map[string]string{
		"empty":        "",
		"not base64":   "not-base64!!",
		"wrong length": base64.StdEncoding.EncodeToString(make([]byte, 16)),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseKey(raw); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	sealer := newTestSealer(t, fixedKey())
	for _, input := range []string{"", "s3cret", "with spaces", "line1\nline2"} {
		sealed, err := sealer.Seal(input)
		if err != nil {
			t.Fatalf("expected no error for %q, got %v", input, err)
		}
		if !IsSealed(sealed) {
			t.Fatalf("expected sealed prefix, got %q", sealed)
		}
		if input != "" && strings.Contains(sealed, input) {
			t.Fatalf("sealed value leaks plaintext: %q", sealed)
		}
		opened, err := sealer.Open(sealed)
		if err != nil {
			t.Fatalf("expected no error for %q, got %v", input, err)
		}
		if opened != input {
			t.Fatalf("expected %q, got %q", input, opened)
		}
	}
}

func TestOpenPassesThroughPlainValues(t *testing.T) {
	sealer := newTestSealer(t, fixedKey())
	opened, err := sealer.Open("plain-secret")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if opened != "plain-secret" {
		t.Fatalf("expected plain value, got %q", opened)
	}
}

func TestOpenWrongKey(t *testing.T) {
	sealed, err := newTestSealer(t, fixedKey()).Seal("secret")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	wrongKey := fixedKey()
	wrongKey[0] ^= 0xff
	if _, err := newTestSealer(t, wrongKey).Open(sealed); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenTampered(t *testing.T) {
	sealer := newTestSealer(t, fixedKey())
	sealed, err := sealer.Seal("secret")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	data[len(data)-1] ^= 0xff
	if _, err := sealer.Open(sealedPrefix + base64.StdEncoding.EncodeToString(data)); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenMalformed(t *testing.T) {
	sealer := newTestSealer(t, fixedKey())
	for _, value := range []string{
		sealedPrefix + "%%%",
		sealedPrefix + base64.StdEncoding.EncodeToString([]byte("short")),
	} {
		if _, err := sealer.Open(value); !errors.Is(err, ErrInvalidSealed) {
			t.Fatalf("expected ErrInvalidSealed for %q, got %v", value, err)
		}
	}
}

func TestNewSealerErrors(t *testing.T) {
	if _, err := NewSealer([]byte("short")); err == nil {
		t.Fatal("expected error for short key")
	}

	old := newGCM
	newGCM = func(cipher.Block) (cipher.AEAD, error) {
		return nil, errors.New("gcm error")
	}
	t.Cleanup(func() {
		newGCM = old
	})
	if _, err := NewSealer(fixedKey()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSealRandError(t *testing.T) {
	sealer := newTestSealer(t, fixedKey())
	oldReader := rand.Reader
	rand.Reader = errorReader{}
	t.Cleanup(func() {
		rand.Reader = oldReader
	})
	if _, err := sealer.Seal("data"); err == nil {
		t.Fatal("expected error")
	}
}
