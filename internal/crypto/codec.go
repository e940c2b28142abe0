package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"github.com/rs/zerolog/log"
)

const (
	keyLen   = 32
	nonceLen = 12
)

// ErrDecrypt 表示密文被篡改、截断或密钥不匹配，统一失败关闭。
var ErrDecrypt = errors.New("decrypt failed")

// Codec 负责消息内容落库前的对称加解密（AES-256-GCM）。
// 进程内共享一把密钥，加密只保证存储机密性，不是端到端加密。
type Codec struct {
	aead cipher.AEAD
}

// New 用 base64 编码的 32 字节密钥构造 Codec。密钥为空时生成临时随机密钥，
// 仅适用于开发环境：进程重启后所有已存密文都无法再解密。
func New(keyBase64 string) (*Codec, error) {
	var key []byte
	if keyBase64 == "" {
		key = make([]byte, keyLen)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
		log.Warn().Msg("MESSAGE_KEY_BASE64 not set, using ephemeral key; stored ciphertext will not survive restart")
	} else {
		decoded, err := base64.StdEncoding.DecodeString(keyBase64)
		if err != nil {
			return nil, err
		}
		if len(decoded) != keyLen {
			return nil, errors.New("message key must decode to 32 bytes")
		}
		key = decoded
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead}, nil
}

// Encrypt 每次生成新的随机 nonce，输出 base64(nonce || 密文 || tag)。
func (c *Codec) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt 按固定偏移拆出 nonce 并校验认证 tag。
// 任何解码、长度或校验问题都只返回 ErrDecrypt，由调用方决定降级方式。
func (c *Codec) Decrypt(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", ErrDecrypt
	}
	if len(raw) < nonceLen+c.aead.Overhead() {
		return "", ErrDecrypt
	}
	plain, err := c.aead.Open(nil, raw[:nonceLen], raw[nonceLen:], nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
