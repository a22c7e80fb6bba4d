package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"

	"github.com/starford/snix/internal/apperr"
	"github.com/starford/snix/internal/checksum"
	"github.com/starford/snix/internal/transfer"
)

const envelopeFormat = "snix-backup"

var (
	ageMagic  = []byte("age-encryption.org/")
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// ErrPassphrase is returned when an encrypted backup is read without the
// passphrase it was written with.
var ErrPassphrase = errors.New("backup: wrong or missing passphrase")

// envelope wraps the document bytes with their checksum.
type envelope struct {
	Format   string          `json:"format"`
	Checksum string          `json:"checksum"`
	Document json.RawMessage `json:"document"`
}

// sealOptions controls how a payload is written.
type sealOptions struct {
	compress   bool
	passphrase string
	workFactor int
}

// seal encodes doc as an envelope, then optionally compresses and encrypts
// it, in that order.
func seal(doc *transfer.Document, o sealOptions) ([]byte, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("backup: encode document: %w", err)
	}
	data, err := json.Marshal(envelope{
		Format:   envelopeFormat,
		Checksum: checksum.Sum(body),
		Document: body,
	})
	if err != nil {
		return nil, fmt.Errorf("backup: encode envelope: %w", err)
	}
	if o.compress {
		if data, err = compress(data); err != nil {
			return nil, err
		}
	}
	if o.passphrase != "" {
		if data, err = encrypt(data, o.passphrase, o.workFactor); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// open reverses seal. Encryption and compression are detected from the
// leading bytes, so the file name is never trusted.
func open(data []byte, passphrase string) (*transfer.Document, error) {
	var err error
	if bytes.HasPrefix(data, ageMagic) {
		if passphrase == "" {
			return nil, ErrPassphrase
		}
		if data, err = decrypt(data, passphrase); err != nil {
			return nil, err
		}
	}
	if bytes.HasPrefix(data, zstdMagic) {
		if data, err = decompress(data); err != nil {
			return nil, err
		}
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: backup envelope: %w", apperr.ErrCorruptStore, err)
	}
	if env.Format != envelopeFormat {
		return nil, fmt.Errorf("%w: backup format %q", apperr.ErrCorruptStore, env.Format)
	}
	if !checksum.Match(env.Document, env.Checksum) {
		return nil, fmt.Errorf("%w: backup checksum mismatch", apperr.ErrCorruptStore)
	}
	return transfer.Unmarshal(env.Document)
}

func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("backup: zstd writer: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("backup: zstd reader: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: backup decompress: %w", apperr.ErrCorruptStore, err)
	}
	return out, nil
}

func encrypt(data []byte, passphrase string, workFactor int) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if workFactor > 0 {
		recipient.SetWorkFactor(workFactor)
	}
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("encrypting backup: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	return buf.Bytes(), nil
}

func decrypt(data []byte, passphrase string) ([]byte, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(data), identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPassphrase, err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: backup decrypt: %w", apperr.ErrCorruptStore, err)
	}
	return out, nil
}
