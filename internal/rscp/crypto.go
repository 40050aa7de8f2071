package rscp

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// keySize is the AES-256 key length. The device key is zero-padded or
// truncated to this size.
const keySize = 32

// initialIVByte fills the first IV in each direction.
const initialIVByte = 0xFF

// cipherState implements the AES-256-CBC stream the device speaks.
// Each direction keeps a rolling IV: the last ciphertext block of a
// message chains into the next one, so both peers must process
// messages strictly in order. Messages are zero-padded to the block
// size; the frame length field makes the padding transparent to the
// decoder.
type cipherState struct {
	enc cipher.BlockMode
	dec cipher.BlockMode
}

// newCipherState derives the AES key from the configured device key
// and seeds both direction IVs.
func newCipherState(key string) (*cipherState, error) {
	k := make([]byte, keySize)
	copy(k, key)

	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	iv := bytes.Repeat([]byte{initialIVByte}, aes.BlockSize)
	return &cipherState{
		enc: cipher.NewCBCEncrypter(block, iv),
		dec: cipher.NewCBCDecrypter(block, iv),
	}, nil
}

// encrypt pads plain to the block size and encrypts it, advancing the
// send IV.
func (s *cipherState) encrypt(plain []byte) []byte {
	size := len(plain)
	if rem := size % aes.BlockSize; rem != 0 {
		size += aes.BlockSize - rem
	}
	padded := make([]byte, size)
	copy(padded, plain)

	s.enc.CryptBlocks(padded, padded)
	return padded
}

// decrypt decrypts a block-aligned ciphertext, advancing the receive IV.
func (s *cipherState) decrypt(data []byte) ([]byte, error) {
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is %d bytes, not block aligned", ErrInvalidFrame, len(data))
	}
	plain := make([]byte, len(data))
	s.dec.CryptBlocks(plain, data)
	return plain, nil
}
