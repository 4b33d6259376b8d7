package crypto

import (
	"encoding/json"
	"fmt"
	"sort"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
)

const credentialSubject = "connection-credentials"
const credentialInfo = "relay.connection.credentials.v1"

// Cipher implements Relay's C2 contract: authenticated encryption of
// connection credentials at rest. The key is resolved once at construction;
// a missing or malformed key fails fast here rather than on first use deep
// inside a connector.
type Cipher struct {
	key []byte
}

// NewCipher validates keyMaterial and returns a ready-to-use Cipher.
// keyMaterial must decode (raw, or via the caller) to exactly 32 bytes.
func NewCipher(keyMaterial []byte) (*Cipher, error) {
	if len(keyMaterial) != 32 {
		return nil, relayerrors.EncryptionError(fmt.Errorf("encryption key must be 32 bytes, got %d", len(keyMaterial)))
	}
	return &Cipher{key: keyMaterial}, nil
}

// Encrypt returns an authenticated ciphertext for plaintext. Two calls with
// the same plaintext return distinct ciphertexts.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	ct, err := EncryptEnvelope(c.key, []byte(credentialSubject), credentialInfo, plaintext)
	if err != nil {
		return nil, relayerrors.EncryptionError(err)
	}
	return ct, nil
}

// Decrypt reverses Encrypt. Forged or tampered ciphertexts are rejected.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	pt, err := DecryptEnvelope(c.key, []byte(credentialSubject), credentialInfo, ciphertext)
	if err != nil {
		return nil, relayerrors.EncryptionError(err)
	}
	return pt, nil
}

// EncryptDict serializes creds to a canonical JSON string (keys sorted) then
// encrypts it, so the same credential map always produces the same plaintext
// before the per-call random nonce is applied.
func (c *Cipher) EncryptDict(creds map[string]string) ([]byte, error) {
	keys := make([]string, 0, len(creds))
	for k := range creds {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]keyValue, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, keyValue{Key: k, Value: creds[k]})
	}

	plaintext, err := json.Marshal(ordered)
	if err != nil {
		return nil, relayerrors.EncryptionError(err)
	}
	return c.Encrypt(plaintext)
}

// DecryptDict reverses EncryptDict.
func (c *Cipher) DecryptDict(ciphertext []byte) (map[string]string, error) {
	plaintext, err := c.Decrypt(ciphertext)
	if err != nil {
		return nil, err
	}
	var ordered []keyValue
	if err := json.Unmarshal(plaintext, &ordered); err != nil {
		return nil, relayerrors.EncryptionError(err)
	}
	out := make(map[string]string, len(ordered))
	for _, kv := range ordered {
		out[kv.Key] = kv.Value
	}
	return out, nil
}

type keyValue struct {
	Key   string `json:"k"`
	Value string `json:"v"`
}
