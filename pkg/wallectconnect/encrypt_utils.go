package wallectconnect

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"

	"moff.io/wallet-shell/pkg/errors"
)

const (
	// KeySize wallet connect v1 使用 AES-256-CBC
	KeySize = 256 / 8
	// IVSize CBC 初始向量长度
	IVSize = aes.BlockSize
)

func Aes256Encrypt(content, encryptionKey, iv []byte) ([]byte, error) {
	plaintext := pkcs7Padding(content, aes.BlockSize)
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, errors.Wrap(err, "create new cipher block")
	}
	if len(iv) != IVSize {
		return nil, errors.Errorf("invalid iv length %d", len(iv))
	}
	ciphertext := make([]byte, len(plaintext))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, plaintext)
	return ciphertext, nil
}

func Aes256Decrypt(cipherText, encryptionKey, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, errors.Wrap(err, "create new cipher block")
	}
	if len(iv) != IVSize {
		return nil, errors.Errorf("invalid iv length %d", len(iv))
	}
	if len(cipherText) == 0 || len(cipherText)%aes.BlockSize != 0 {
		return nil, errors.New("cipher text is not a multiple of the block size")
	}
	plaintext := make([]byte, len(cipherText))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(plaintext, cipherText)
	return pkcs7Unpadding(plaintext)
}

func pkcs7Padding(content []byte, blockSize int) []byte {
	padding := blockSize - len(content)%blockSize
	padText := bytes.Repeat([]byte{byte(padding)}, padding)
	return append(append([]byte{}, content...), padText...)
}

func pkcs7Unpadding(content []byte) ([]byte, error) {
	n := len(content)
	if n == 0 {
		return nil, errors.New("empty plaintext")
	}
	padding := int(content[n-1])
	if padding == 0 || padding > aes.BlockSize || padding > n {
		return nil, errors.New("invalid padding")
	}
	for _, b := range content[n-padding:] {
		if int(b) != padding {
			return nil, errors.New("invalid padding")
		}
	}
	return content[:n-padding], nil
}

func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func HmacSha256(data, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(data)
	return h.Sum(nil)
}

// VerifyHmacSha256 constant time comparison of an expected mac.
func VerifyHmacSha256(data, secret, mac []byte) bool {
	return hmac.Equal(HmacSha256(data, secret), mac)
}
