package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// stdlibProvider implements Provider on top of crypto/aes and
// crypto/cipher. crypto/cipher deliberately has no ECB mode (ECB is
// considered unsafe for general use), so ECBEncrypt invokes the block
// cipher directly on a single block the same way nfctools' aesECBEncrypt
// helper does -- that is the correct way to get single-block ECB out of
// the standard library, not a workaround.
type stdlibProvider struct{}

func (stdlibProvider) ECBEncrypt(key, block []byte) ([]byte, error) {
	if len(block) != aes.BlockSize {
		return nil, fmt.Errorf("crypto: ECB block must be %d bytes, got %d", aes.BlockSize, len(block))
	}
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, aes.BlockSize)
	c.Encrypt(out, block)
	return out, nil
}

func (stdlibProvider) CBCEncrypt(key, iv, data []byte) ([]byte, error) {
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("crypto: CBC data must be block aligned, got %d bytes", len(data))
	}
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(c, iv).CryptBlocks(out, data)
	return out, nil
}

func (stdlibProvider) CBCDecrypt(key, iv, data []byte) ([]byte, error) {
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("crypto: CBC data must be block aligned, got %d bytes", len(data))
	}
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(c, iv).CryptBlocks(out, data)
	return out, nil
}

func (stdlibProvider) RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	_, err := rand.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf, nil
}
