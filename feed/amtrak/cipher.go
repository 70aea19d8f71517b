package amtrak

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"trainwatch/feed"
)

// The Amtrak feed ships as a two-part encrypted blob. The last 88
// characters are a segment encrypted under a hardcoded public key;
// decrypting it yields a pipe-delimited string whose first field is the
// private key for the (much larger) body. Both stages are
// PBKDF2(SHA-1, 1000 rounds, fixed salt, 16-byte key) + AES-128-CBC
// with a fixed IV over base64 ciphertext.
//
// These constants are reverse engineered. Any deviation produces
// garbage rather than an error, which is why VerifyCipher exists.
const (
	publicKey = "69af143c-e8cf-47f8-bf09-fc1f61e5cc33"
	saltHex   = "9a3686ac"
	ivHex     = "c6eb2f7f5c4740c1a2f708fefd947d39"

	keyIterations = 1000
	keyLength     = 16

	// privateKeyTailLen is the size of the encrypted key segment at the
	// end of the blob.
	privateKeyTailLen = 88
)

// Decrypt reverses both stages and returns the plaintext JSON body.
// Every failure mode collapses to feed.ErrDecryption; callers treat it
// as "feed unavailable this cycle".
func Decrypt(blob string) ([]byte, error) {
	blob = strings.TrimSpace(blob)
	if len(blob) <= privateKeyTailLen {
		return nil, fmt.Errorf("%w: blob shorter than key segment", feed.ErrDecryption)
	}

	body := blob[:len(blob)-privateKeyTailLen]
	tail := blob[len(blob)-privateKeyTailLen:]

	keyBlob, err := decryptStage(tail, publicKey)
	if err != nil {
		return nil, err
	}
	privateKey, _, found := strings.Cut(string(keyBlob), "|")
	if !found || privateKey == "" {
		return nil, fmt.Errorf("%w: key segment not pipe-delimited", feed.ErrDecryption)
	}

	plain, err := decryptStage(body, privateKey)
	if err != nil {
		return nil, err
	}
	return plain, nil
}

// decryptStage runs one base64 + AES-128-CBC decryption with a key
// derived from keyMaterial.
func decryptStage(ciphertext, keyMaterial string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", feed.ErrDecryption, err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d", feed.ErrDecryption, len(raw))
	}

	salt, _ := hex.DecodeString(saltHex)
	iv, _ := hex.DecodeString(ivHex)

	key := pbkdf2.Key([]byte(keyMaterial), salt, keyIterations, keyLength, sha1.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", feed.ErrDecryption, err)
	}

	plain := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, raw)

	return unpadPKCS7(plain)
}

// unpadPKCS7 validates and strips block padding. A wrong key shows up
// here as an invalid pad byte.
func unpadPKCS7(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", feed.ErrDecryption)
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", feed.ErrDecryption)
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, fmt.Errorf("%w: bad padding", feed.ErrDecryption)
		}
	}
	return b[:len(b)-n], nil
}

// checkSample is a captured blob whose plaintext is known. Encrypted
// with the production constants; see VerifyCipher.
const (
	checkSample    = "g8J5FkXRzZDld5Xn0DxE6A==SNtfUnjJgNJIuoGCKvnaAlU48VwD4AJOpL4uTA7RKDc2LCaGVcYcImVUopHnCmmrDtG7Ry2pMBiMBlnjnKsuZg=="
	checkPlaintext = `{"status":"ok"}`
)

// VerifyCipher decrypts the embedded known sample. Call it once at
// startup: a silently wrong salt, IV or iteration count would otherwise
// produce garbage in production with no error anywhere.
func VerifyCipher() error {
	got, err := Decrypt(checkSample)
	if err != nil {
		return fmt.Errorf("cipher self-check: %w", err)
	}
	if string(got) != checkPlaintext {
		return fmt.Errorf("%w: self-check plaintext mismatch", feed.ErrDecryption)
	}
	return nil
}
