package amtrak

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"trainwatch/feed"
)

// Golden round trip: a captured encrypted payload must decrypt to the
// known plaintext byte for byte, and that plaintext must parse as JSON.
func TestDecryptGoldenSample(t *testing.T) {
	enc, err := os.ReadFile(filepath.Join("testdata", "sample.enc"))
	if err != nil {
		t.Fatalf("read sample.enc: %v", err)
	}
	want, err := os.ReadFile(filepath.Join("testdata", "sample.json"))
	if err != nil {
		t.Fatalf("read sample.json: %v", err)
	}

	got, err := Decrypt(string(enc))
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("plaintext mismatch:\n got %q\nwant %q", got, want)
	}

	var js any
	if err := json.Unmarshal(got, &js); err != nil {
		t.Fatalf("decrypted payload is not JSON: %v", err)
	}
}

func TestVerifyCipher(t *testing.T) {
	if err := VerifyCipher(); err != nil {
		t.Fatalf("VerifyCipher: %v", err)
	}
}

func TestDecryptFailures(t *testing.T) {
	enc, err := os.ReadFile(filepath.Join("testdata", "sample.enc"))
	if err != nil {
		t.Fatalf("read sample.enc: %v", err)
	}

	tests := []struct {
		name string
		blob string
	}{
		{name: "empty", blob: ""},
		{name: "shorter than key segment", blob: "QUJD"},
		{name: "not base64", blob: string(enc[:len(enc)-1]) + "!"},
		{
			// The tail is replaced with 88 characters of body
			// ciphertext: still base64, but not a key segment.
			name: "corrupt tail",
			blob: string(enc[:len(enc)-88]) + string(enc[:88]),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decrypt(tt.blob); !errors.Is(err, feed.ErrDecryption) {
				t.Errorf("expected ErrDecryption, got %v", err)
			}
		})
	}
}
