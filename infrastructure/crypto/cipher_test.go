package crypto

import (
	"bytes"
	"testing"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestNewCipherRejectsBadKeyLength(t *testing.T) {
	if _, err := NewCipher(make([]byte, 16)); err == nil {
		t.Error("expected error for 16-byte key")
	}
}

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher(testKey())
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}

	plaintext := []byte("super-secret-api-key")
	ciphertext, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	decrypted, err := c.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("decrypted = %s, want %s", decrypted, plaintext)
	}
}

func TestCipherDistinctCiphertexts(t *testing.T) {
	c, _ := NewCipher(testKey())
	plaintext := []byte("same-value")

	ct1, _ := c.Encrypt(plaintext)
	ct2, _ := c.Encrypt(plaintext)

	if bytes.Equal(ct1, ct2) {
		t.Error("two encryptions of the same plaintext must differ")
	}
}

func TestCipherRejectsForgedCiphertext(t *testing.T) {
	c, _ := NewCipher(testKey())
	ciphertext, _ := c.Encrypt([]byte("secret"))

	tampered := []byte(string(ciphertext))
	tampered[len(tampered)-1] ^= 1

	if _, err := c.Decrypt(tampered); err == nil {
		t.Error("expected decryption of a tampered ciphertext to fail")
	}
}

func TestCipherEncryptDictRoundTrip(t *testing.T) {
	c, _ := NewCipher(testKey())
	creds := map[string]string{"username": "svc", "password": "hunter2", "host": "db.internal"}

	ciphertext, err := c.EncryptDict(creds)
	if err != nil {
		t.Fatalf("EncryptDict() error = %v", err)
	}

	decrypted, err := c.DecryptDict(ciphertext)
	if err != nil {
		t.Fatalf("DecryptDict() error = %v", err)
	}

	if len(decrypted) != len(creds) {
		t.Fatalf("decrypted map length = %d, want %d", len(decrypted), len(creds))
	}
	for k, v := range creds {
		if decrypted[k] != v {
			t.Errorf("decrypted[%s] = %s, want %s", k, decrypted[k], v)
		}
	}
}
