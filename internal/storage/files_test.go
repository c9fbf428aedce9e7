package storage

import (
	"bytes"
	"strings"
	"testing"

	"docqa/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pdfBytes(body string) []byte {
	return []byte("%PDF-1.4\n" + body)
}

func TestFileStoreSaveLocateDelete(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), 1024)
	require.NoError(t, err)

	saved, err := fs.Save("doc-1", "../reports/Annual Report.pdf", bytes.NewReader(pdfBytes("hello")))
	require.NoError(t, err)
	assert.Equal(t, "Annual Report.pdf", saved.Filename)
	assert.Len(t, saved.SHA256, 64)

	got, err := fs.Locate("doc-1")
	require.NoError(t, err)
	assert.Equal(t, saved.Path, got.Path)
	assert.Equal(t, "Annual Report.pdf", got.Filename)

	list, err := fs.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "doc-1", list[0].DocumentID)

	removed, err := fs.Delete("doc-1")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = fs.Delete("doc-1")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = fs.Locate("doc-1")
	require.ErrorIs(t, err, util.ErrNotFound)
}

func TestFileStoreRejectsInvalidUploads(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), 32)
	require.NoError(t, err)

	_, err = fs.Save("doc-1", "notes.txt", bytes.NewReader(pdfBytes("x")))
	require.ErrorIs(t, err, util.ErrValidation)

	_, err = fs.Save("doc-1", "fake.pdf", strings.NewReader("<html>not a pdf</html>"))
	require.ErrorIs(t, err, util.ErrValidation)

	_, err = fs.Save("doc-1", "big.pdf", bytes.NewReader(pdfBytes(strings.Repeat("x", 64))))
	require.ErrorIs(t, err, util.ErrValidation)

	_, err = fs.Save("../escape", "a.pdf", bytes.NewReader(pdfBytes("x")))
	require.ErrorIs(t, err, util.ErrValidation)

	list, err := fs.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSafeFilename(t *testing.T) {
	assert.Equal(t, "a_b.pdf", SafeFilename(`C:\tmp\a*b.pdf`))
	assert.Equal(t, "document.pdf", SafeFilename(".."))
}
