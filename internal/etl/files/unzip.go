package files

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/farxc/orcamento-analytics/internal/logger"
)

type ExtractionResult struct {
	OutputDir string
	Files     []string
	Skipped   int
}

// Unzip extracts the spreadsheets of a bundle into destDir, skipping any
// other entry and refusing paths that escape destDir.
func Unzip(zipPath string, destDir string, appLogger *logger.Logger) (ExtractionResult, error) {
	const component = "Unzipper"

	if destDir == "" {
		destDir = "tmp/data"
	}
	appLogger.Debug(component, "Starting extraction: zipPath=%s destDir=%s", zipPath, destDir)

	if err := os.MkdirAll(destDir, os.ModePerm); err != nil {
		return ExtractionResult{}, fmt.Errorf("create %s: %w", destDir, err)
	}

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("open zip %s: %w", zipPath, err)
	}
	defer r.Close()

	res := ExtractionResult{OutputDir: destDir}
	for _, f := range r.File {
		filePath := filepath.Join(destDir, f.Name)

		if !strings.HasPrefix(filePath, filepath.Clean(destDir)+string(os.PathSeparator)) {
			appLogger.Error(component, "Invalid file path detected (possible zip slip): file=%s", f.Name)
			return res, fmt.Errorf("zip entry %q escapes %s", f.Name, destDir)
		}
		if f.FileInfo().IsDir() || !IsSupported(f.Name) {
			res.Skipped++
			appLogger.Debug(component, "Skipping entry: file=%s", f.Name)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(filePath), os.ModePerm); err != nil {
			return res, err
		}
		if err := extract(f, filePath); err != nil {
			appLogger.Error(component, "Failed to extract file: file=%s error=%v", f.Name, err)
			return res, err
		}
		res.Files = append(res.Files, filePath)
	}

	appLogger.Info(component, "Extraction completed: destDir=%s extractedFiles=%d skippedFiles=%d", destDir, len(res.Files), res.Skipped)
	return res, nil
}

func extract(f *zip.File, filePath string) error {
	zipped, err := f.Open()
	if err != nil {
		return err
	}
	defer zipped.Close()

	dest, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dest, zipped); err != nil {
		dest.Close()
		return err
	}
	return dest.Close()
}
