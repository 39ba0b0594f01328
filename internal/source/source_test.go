package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"

	"texbridge/internal/types"
)

func TestDecode(t *testing.T) {
	const text = "中文 \\section{x}"

	gbk, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte(text))
	require.NoError(t, err)
	le, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(text))
	require.NoError(t, err)
	be, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(text))
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
		enc  Encoding
	}{
		{"utf8", []byte(text), UTF8},
		{"utf8 bom", append([]byte{0xEF, 0xBB, 0xBF}, text...), UTF8BOM},
		{"utf16le", le, UTF16LE},
		{"utf16be", be, UTF16BE},
		{"gbk", gbk, GBK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, enc, err := Decode(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.enc, enc)
			assert.Equal(t, text, got)
		})
	}
}

func TestDecodeNormalizesLineEndings(t *testing.T) {
	got, _, err := Decode([]byte("a\r\nb\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", got)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.tex")
	require.NoError(t, os.WriteFile(path, []byte("\\section{A}"), 0644))

	got, enc, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, UTF8, enc)
	assert.Equal(t, "\\section{A}", got)

	_, _, err = ReadFile(filepath.Join(t.TempDir(), "missing.tex"))
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrIO, appErr.Code)
}

func TestRead(t *testing.T) {
	got, _, err := Read(strings.NewReader("= Title"))
	require.NoError(t, err)
	assert.Equal(t, "= Title", got)
}
