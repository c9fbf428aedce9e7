package storage

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"docqa/internal/models"
	"docqa/internal/util"
)

var pdfMagic = []byte("%PDF-")

// FileStore keeps uploaded PDFs as "{document_id}_{filename}" under one directory.
type FileStore struct {
	root     string
	maxBytes int64
}

func NewFileStore(root string, maxBytes int64) (*FileStore, error) {
	if err := util.EnsureDir(root); err != nil {
		return nil, err
	}
	return &FileStore{root: root, maxBytes: maxBytes}, nil
}

func (s *FileStore) Root() string { return s.root }

// Save validates the PDF header and size limit, then moves the upload into
// place atomically.
func (s *FileStore) Save(documentID, filename string, r io.Reader) (models.StoredFile, error) {
	if err := checkDocumentID(documentID); err != nil {
		return models.StoredFile{}, err
	}
	safeName := SafeFilename(filename)
	if !strings.HasSuffix(strings.ToLower(safeName), ".pdf") {
		return models.StoredFile{}, util.Validationf("only PDF files are accepted, got %q", filename)
	}

	br := bufio.NewReader(r)
	head, err := br.Peek(len(pdfMagic))
	if err != nil || !bytes.Equal(head, pdfMagic) {
		return models.StoredFile{}, util.Validationf("%s is not a valid PDF", safeName)
	}

	tmp, err := os.CreateTemp(s.root, "upload-*.pdf")
	if err != nil {
		return models.StoredFile{}, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), io.LimitReader(br, s.maxBytes+1))
	if err != nil {
		return models.StoredFile{}, fmt.Errorf("write upload: %w", err)
	}
	if n > s.maxBytes {
		return models.StoredFile{}, util.Validationf("file exceeds the %d byte limit", s.maxBytes)
	}
	if err := tmp.Close(); err != nil {
		return models.StoredFile{}, fmt.Errorf("close temp file: %w", err)
	}

	finalPath := filepath.Join(s.root, documentID+"_"+safeName)
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return models.StoredFile{}, fmt.Errorf("atomic move upload: %w", err)
	}
	return models.StoredFile{
		DocumentID: documentID,
		Filename:   safeName,
		Path:       finalPath,
		SizeBytes:  n,
		SHA256:     hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// Locate finds the stored upload for documentID.
func (s *FileStore) Locate(documentID string) (models.StoredFile, error) {
	if err := checkDocumentID(documentID); err != nil {
		return models.StoredFile{}, err
	}
	matches, err := filepath.Glob(filepath.Join(s.root, documentID+"_*"))
	if err != nil {
		return models.StoredFile{}, fmt.Errorf("glob uploads: %w", err)
	}
	if len(matches) == 0 {
		return models.StoredFile{}, util.NotFoundf("no stored file for document %s", documentID)
	}
	sort.Strings(matches)
	return statFile(matches[0], documentID)
}

func (s *FileStore) Delete(documentID string) (bool, error) {
	f, err := s.Locate(documentID)
	if errors.Is(err, util.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := os.Remove(f.Path); err != nil {
		return false, fmt.Errorf("remove %s: %w", f.Path, err)
	}
	return true, nil
}

// List returns every stored upload ordered by document id.
func (s *FileStore) List() ([]models.StoredFile, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read upload dir: %w", err)
	}
	out := make([]models.StoredFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "upload-") {
			continue
		}
		id, _, ok := strings.Cut(e.Name(), "_")
		if !ok || checkDocumentID(id) != nil {
			continue
		}
		f, err := statFile(filepath.Join(s.root, e.Name()), id)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out, nil
}

func statFile(path, documentID string) (models.StoredFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.StoredFile{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return models.StoredFile{
		DocumentID: documentID,
		Filename:   strings.TrimPrefix(filepath.Base(path), documentID+"_"),
		Path:       path,
		SizeBytes:  info.Size(),
	}, nil
}

// SafeFilename drops directory components and characters that are awkward on disk.
func SafeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == 0 || r < 0x20:
		case strings.ContainsRune(`*?[]"<>|:`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" || out == "." || out == ".." {
		return "document.pdf"
	}
	return out
}

func checkDocumentID(id string) error {
	if id == "" {
		return util.Validationf("document id is required")
	}
	for _, r := range id {
		ok := r == '-' || r == '.' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !ok {
			return util.Validationf("invalid document id %q", id)
		}
	}
	if strings.Contains(id, "..") {
		return util.Validationf("invalid document id %q", id)
	}
	return nil
}
