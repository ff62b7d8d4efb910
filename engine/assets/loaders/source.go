package loaders

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4"
)

// CompressedExtension marks an asset stored as an lz4 frame.
const CompressedExtension = ".lz4"

type sourceFile struct {
	io.Reader
	file *os.File
}

func (s *sourceFile) Close() error {
	return s.file.Close()
}

// openSource opens path for reading, decompressing it on the fly when it ends
// in CompressedExtension.
func openSource(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !IsCompressed(path) {
		return f, nil
	}
	return &sourceFile{Reader: lz4.NewReader(f), file: f}, nil
}

// IsCompressed reports whether path names an lz4 compressed asset.
func IsCompressed(path string) bool {
	return strings.EqualFold(filepath.Ext(path), CompressedExtension)
}

// SourceExtension returns the lower-case extension of the asset format,
// ignoring the compression suffix: "rock.obj.lz4" gives ".obj".
func SourceExtension(path string) string {
	if IsCompressed(path) {
		path = path[:len(path)-len(CompressedExtension)]
	}
	return strings.ToLower(filepath.Ext(path))
}
