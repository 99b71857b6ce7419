package files

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"github.com/BioHazard786/Ghostlink/internal/utils"
)

const defaultMimeType = "application/octet-stream"

var (
	ErrIsDirectory = errors.New("is a directory")
	ErrTooLarge    = errors.New("file exceeds the size limit")
)

// FileInfo holds information about a file to be sent
type FileInfo struct {
	// Path is the absolute path to the file
	Path string

	// Name is the filename (without directory)
	Name string

	Size int64

	// Type is the MIME type sniffed from the content, falling back to the extension.
	Type string
}

// Validate checks that path names a readable regular file no larger than maxSize.
// Empty files are allowed.
func Validate(path string, maxSize int64) (FileInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return FileInfo{}, fmt.Errorf("%s: file does not exist", path)
		}
		return FileInfo{}, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}
	if stat.IsDir() {
		return FileInfo{}, fmt.Errorf("%s: %w", path, ErrIsDirectory)
	}
	if maxSize > 0 && stat.Size() > maxSize {
		return FileInfo{}, fmt.Errorf("%s: %w (%s > %s)", path, ErrTooLarge,
			utils.FormatSize(stat.Size()), utils.FormatSize(maxSize))
	}

	file, err := os.Open(absPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}
	file.Close()

	return FileInfo{
		Path: absPath,
		Name: filepath.Base(absPath),
		Size: stat.Size(),
		Type: DetectType(absPath),
	}, nil
}

// DetectType sniffs the content of path. Content the sniffer cannot place is
// typed by extension.
func DetectType(path string) string {
	if m, err := mimetype.DetectFile(path); err == nil && !m.Is(defaultMimeType) {
		return m.String()
	}
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return defaultMimeType
}
