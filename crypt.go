package lazydb

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// CryptPluginName is the registration name of the built-in plugin.
const CryptPluginName = "crypt"

// cryptPrefix marks an encrypted value at rest, so reads can tell
// ciphertext from plaintext written before the plugin was enabled.
const cryptPrefix = "~c1~"

// CryptOptions configures the built-in field-encryption plugin.
type CryptOptions struct {
	// Key is the AES key (16, 24 or 32 bytes).
	Key []byte

	// Fields lists the encrypted fields per table.
	Fields map[string][]string
}

// CryptPlugin returns a constructor for the transparent field-encryption
// plugin. It rewrites filter values and modify changes for covered fields
// into their encrypted form before the store sees them, and decrypts
// covered fields of every row read back.
//
// Encryption is deterministic (the GCM nonce is derived from the plaintext
// with HMAC-SHA256), so equality filters over encrypted fields keep
// working. Records added through the handle pass through the store
// unencrypted only if they bypass the query pipeline; use Update or Modify
// to write covered fields.
func CryptPlugin(opt CryptOptions) PluginFunc {
	return func(db *DB) (Plugin, error) {
		block, err := aes.NewCipher(opt.Key)
		if err != nil {
			return nil, fmt.Errorf("crypt: %w", err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("crypt: %w", err)
		}
		p := &cryptPlugin{
			aead:   aead,
			hkey:   opt.Key,
			fields: opt.Fields,
			logger: db.logger,
		}

		ev := db.Events()
		ev.OnFilterQuery(func(table, field string, value any) (string, any) {
			if !p.covers(table, field) {
				return field, value
			}
			return field, p.encrypt(value)
		})
		ev.OnModifyQuery(func(table string, changes Record) Record {
			for _, field := range p.fields[table] {
				if v, ok := changes[field]; ok {
					changes[field] = p.encrypt(v)
				}
			}
			return changes
		})
		ev.OnRead(func(table string, row Record) (ReadDecision, Record) {
			covered := p.fields[table]
			if len(covered) == 0 {
				return ReadKeep, nil
			}
			out := row.Clone()
			for _, field := range covered {
				if v, ok := out[field]; ok {
					out[field] = p.decrypt(v)
				}
			}
			return ReadReplace, out
		})
		return p, nil
	}
}

type cryptPlugin struct {
	aead   cipher.AEAD
	hkey   []byte
	fields map[string][]string
	logger *slog.Logger
}

func (p *cryptPlugin) PluginName() string {
	return CryptPluginName
}

func (p *cryptPlugin) covers(table, field string) bool {
	for _, f := range p.fields[table] {
		if f == field {
			return true
		}
	}
	return false
}

// encrypt turns any msgpack-encodable value into a prefixed base64 string.
// Hooks have no error channel; a value that won't encode is logged and
// passed through unencrypted.
func (p *cryptPlugin) encrypt(value any) any {
	plain, err := msgpack.Marshal(value)
	if err != nil {
		p.logger.Error("crypt: encode", slog.Any("err", err))
		return value
	}
	mac := hmac.New(sha256.New, p.hkey)
	mac.Write(plain)
	nonce := mac.Sum(nil)[:p.aead.NonceSize()]
	sealed := p.aead.Seal(nil, nonce, plain, nil)
	return cryptPrefix + base64.RawStdEncoding.EncodeToString(append(nonce, sealed...))
}

// decrypt reverses encrypt. Unmarked or undecryptable values pass through.
func (p *cryptPlugin) decrypt(value any) any {
	s, ok := value.(string)
	if !ok || !strings.HasPrefix(s, cryptPrefix) {
		return value
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(s, cryptPrefix))
	if err != nil || len(raw) < p.aead.NonceSize() {
		p.logger.Error("crypt: decode", slog.Any("err", err))
		return value
	}
	nonce, sealed := raw[:p.aead.NonceSize()], raw[p.aead.NonceSize():]
	plain, err := p.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		p.logger.Error("crypt: open", slog.Any("err", err))
		return value
	}
	var out any
	if err := msgpack.Unmarshal(plain, &out); err != nil {
		p.logger.Error("crypt: decode", slog.Any("err", err))
		return value
	}
	return out
}
