// Package source reads input documents and decodes them to UTF-8.
package source

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"

	"texbridge/internal/logger"
	"texbridge/internal/types"
)

// Encoding names a detected input encoding.
type Encoding string

const (
	UTF8    Encoding = "UTF-8"
	UTF8BOM Encoding = "UTF-8-BOM"
	UTF16LE Encoding = "UTF-16LE"
	UTF16BE Encoding = "UTF-16BE"
	GBK     Encoding = "GBK"
	Unknown Encoding = "UNKNOWN"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Detect guesses the encoding of data. BOMs win, then valid UTF-8, then
// GBK.
func Detect(data []byte) Encoding {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return UTF8BOM
	case bytes.HasPrefix(data, bomUTF16LE):
		return UTF16LE
	case bytes.HasPrefix(data, bomUTF16BE):
		return UTF16BE
	case utf8.Valid(data):
		return UTF8
	case isValidGBK(data):
		return GBK
	}
	return Unknown
}

// isValidGBK checks if data is valid GBK encoding
func isValidGBK(data []byte) bool {
	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(data)
	if err != nil {
		return false
	}
	return utf8.Valid(decoded)
}

// Decode converts data to a UTF-8 string without BOM. Windows line endings
// are normalized to \n.
func Decode(data []byte) (string, Encoding, error) {
	enc := Detect(data)
	var (
		decoded []byte
		err     error
	)
	switch enc {
	case UTF8:
		decoded = data
	case UTF8BOM:
		decoded = data[len(bomUTF8):]
	case UTF16LE:
		decoded, err = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder().Bytes(data)
	case UTF16BE:
		decoded, err = unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder().Bytes(data)
	case GBK:
		decoded, err = simplifiedchinese.GBK.NewDecoder().Bytes(data)
	default:
		return "", enc, types.NewAppError(types.ErrInvalidInput, "unsupported input encoding", nil)
	}
	if err != nil {
		return "", enc, types.NewAppError(types.ErrInvalidInput, fmt.Sprintf("failed to decode %s input", enc), err)
	}
	if enc != UTF8 {
		logger.Debug("input decoded", logger.String("encoding", string(enc)), logger.Int("bytes", len(data)))
	}
	return string(bytes.ReplaceAll(decoded, []byte("\r\n"), []byte("\n"))), enc, nil
}

// ReadFile reads and decodes a file.
func ReadFile(path string) (string, Encoding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", Unknown, types.NewAppError(types.ErrIO, "failed to read file", err)
	}
	return Decode(data)
}

// Read reads and decodes everything from r.
func Read(r io.Reader) (string, Encoding, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", Unknown, types.NewAppError(types.ErrIO, "failed to read input", err)
	}
	return Decode(data)
}
