package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// TokenPrefix marks values written by this codec. Values without it are only
// treated as tokens when legacy detection is enabled.
const TokenPrefix = "enc1:"

const ivLength = aes.BlockSize

var errBadPadding = errors.New("invalid padding")

// Codec encrypts individual string fields with AES-256-CBC.
//
// A token is "enc1:<ivHex>:<cipherHex>". Failures never reach the caller:
// both directions return their input unchanged and log a warning.
type Codec struct {
	key          []byte
	acceptLegacy bool
	random       io.Reader
	logger       zerolog.Logger
}

// NewCodec derives the 32-byte key as SHA-256 of secret, so any secret length works.
func NewCodec(secret string, acceptLegacy bool, logger zerolog.Logger) *Codec {
	sum := sha256.Sum256([]byte(secret))
	return &Codec{
		key:          sum[:],
		acceptLegacy: acceptLegacy,
		random:       rand.Reader,
		logger:       logger.With().Str("component", "encryption").Logger(),
	}
}

// Encrypt returns a token for plaintext. Empty input and values that are
// already tokens are returned unchanged.
func (c *Codec) Encrypt(plaintext string) string {
	if plaintext == "" || c.IsEncrypted(plaintext) {
		return plaintext
	}

	token, err := c.seal(plaintext)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Encryption failed, keeping plaintext")
		return plaintext
	}
	return token
}

// Decrypt returns the plaintext of a token. Non-token input is returned as-is;
// a token that cannot be opened is returned unchanged.
func (c *Codec) Decrypt(value string) string {
	iv, body, ok := c.split(value)
	if !ok {
		return value
	}

	plaintext, err := c.open(iv, body)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Decryption failed, returning stored value")
		return value
	}
	return plaintext
}

// IsEncrypted is a structural check: the IV segment must be 32 hex characters.
func (c *Codec) IsEncrypted(value string) bool {
	_, _, ok := c.split(value)
	return ok
}

// split returns the hex IV and hex ciphertext of a recognised token.
func (c *Codec) split(value string) (string, string, bool) {
	rest, prefixed := strings.CutPrefix(value, TokenPrefix)
	if !prefixed && !c.acceptLegacy {
		return "", "", false
	}

	iv, body, found := strings.Cut(rest, ":")
	if !found || len(iv) != ivLength*2 || !isHex(iv) {
		return "", "", false
	}
	return iv, body, true
}

func (c *Codec) seal(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	iv := make([]byte, ivLength)
	if _, err := io.ReadFull(c.random, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	data := pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)

	return TokenPrefix + hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

func (c *Codec) open(ivHex, bodyHex string) (string, error) {
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return "", fmt.Errorf("invalid iv: %w", err)
	}
	// Older writers joined any further segments back with ':' before decoding.
	body, err := hex.DecodeString(strings.ReplaceAll(bodyHex, ":", ""))
	if err != nil {
		return "", fmt.Errorf("invalid ciphertext: %w", err)
	}
	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return "", fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(body))
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	out := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, body)

	out, err = unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// pad applies PKCS#7 padding.
func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errBadPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errBadPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errBadPadding
		}
	}
	return data[:len(data)-n], nil
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !(ch >= '0' && ch <= '9' || ch >= 'a' && ch <= 'f' || ch >= 'A' && ch <= 'F') {
			return false
		}
	}
	return true
}
