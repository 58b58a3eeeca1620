package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/content-pipeline/internal/domain"
)

// MaxSourceSize is the largest source document accepted.
const MaxSourceSize = 100 * 1024 * 1024

var pdfMagic = []byte("%PDF-")

// ValidateSourcePath checks that path names a readable .pdf file and
// returns its size. Failures are FatalSourceErrors.
func ValidateSourcePath(path string) (os.FileInfo, error) {
	if strings.TrimSpace(path) == "" {
		return nil, domain.FatalSourceError("source path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.FatalSourceError(fmt.Sprintf("source does not exist: %s", path), err)
		}
		return nil, domain.FatalSourceError(fmt.Sprintf("cannot access source: %s", path), err)
	}
	if info.IsDir() {
		return nil, domain.FatalSourceError(fmt.Sprintf("source is a directory, not a file: %s", path), nil)
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".pdf" {
		return nil, domain.FatalSourceError(fmt.Sprintf("source is not a PDF (has extension %s)", ext), nil)
	}
	if info.Size() > MaxSourceSize {
		return nil, domain.FatalSourceError(fmt.Sprintf("source is too large (%d MB)", info.Size()/(1024*1024)), nil)
	}
	return info, nil
}

// ValidatePDF performs the cheap structural checks done before handing
// bytes to an engine.
func ValidatePDF(data []byte) error {
	if len(data) == 0 {
		return domain.ExtractionError("document is empty", nil)
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), pdfMagic) {
		return domain.ExtractionError("document does not start with a PDF header", nil)
	}
	return nil
}
