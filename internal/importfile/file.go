package importfile

import (
	"encoding/json/jsontext"
	"encoding/json/v2"
	"errors"
	"fmt"

	"github.com/seedhypermedia/wxr-importer/internal/domain"
)

var (
	// ErrUnsupportedFormat is returned for any format tag other than seed-import-v1.
	ErrUnsupportedFormat = errors.New("importfile: unsupported import file format")

	// ErrPasswordRequired is returned when an encrypted file is opened without a password.
	ErrPasswordRequired = errors.New("importfile: import file is encrypted, password required")

	// ErrMalformed is returned when the envelope or its payload is not valid JSON.
	ErrMalformed = errors.New("importfile: malformed import file")
)

// Create wraps data in a v1 envelope. A non-empty password encrypts the payload.
func Create(data *domain.SeedImportData, password string) (*domain.ImportFile, error) {
	plain, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("importfile: encode data: %w", err)
	}

	if password == "" {
		return &domain.ImportFile{
			Format:    domain.ImportFileFormatV1,
			Encrypted: false,
			Data:      jsontext.Value(plain),
		}, nil
	}

	blob, err := Encrypt(plain, password)
	if err != nil {
		return nil, err
	}
	quoted, err := json.Marshal(blob)
	if err != nil {
		return nil, fmt.Errorf("importfile: encode ciphertext: %w", err)
	}
	return &domain.ImportFile{
		Format:    domain.ImportFileFormatV1,
		Encrypted: true,
		Data:      jsontext.Value(quoted),
	}, nil
}

// Serialize encodes the envelope as JSON.
func Serialize(file *domain.ImportFile) ([]byte, error) {
	out, err := json.Marshal(file)
	if err != nil {
		return nil, fmt.Errorf("importfile: encode envelope: %w", err)
	}
	return out, nil
}

// ParseEnvelope decodes and validates the envelope without touching the payload.
func ParseEnvelope(content []byte) (*domain.ImportFile, error) {
	var file domain.ImportFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if file.Format != domain.ImportFileFormatV1 {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, file.Format)
	}
	if len(file.Data) == 0 {
		return nil, fmt.Errorf("%w: missing data", ErrMalformed)
	}
	return &file, nil
}

// Parse decodes a serialized envelope into import data.
func Parse(content []byte, password string) (*domain.SeedImportData, error) {
	file, err := ParseEnvelope(content)
	if err != nil {
		return nil, err
	}
	return Decode(file, password)
}

// Decode returns the payload of an already-parsed envelope.
func Decode(file *domain.ImportFile, password string) (*domain.SeedImportData, error) {
	if file.Format != domain.ImportFileFormatV1 {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, file.Format)
	}

	plain := []byte(file.Data)
	if file.Encrypted {
		if password == "" {
			return nil, ErrPasswordRequired
		}
		var blob string
		if err := json.Unmarshal(file.Data, &blob); err != nil {
			return nil, fmt.Errorf("%w: encrypted data is not a string: %w", ErrMalformed, err)
		}
		decrypted, err := Decrypt(blob, password)
		if err != nil {
			return nil, err
		}
		plain = decrypted
	}

	var data domain.SeedImportData
	if err := json.Unmarshal(plain, &data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if data.Authors == nil {
		data.Authors = map[string]*domain.ImportAuthor{}
	}
	if data.ImageCache == nil {
		data.ImageCache = map[string]string{}
	}
	if data.WXRPosts == nil {
		data.WXRPosts = map[int]*domain.ImportPost{}
	}
	return &data, nil
}
