package usda

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/foodbase/etl/internal/domain"
)

// ExtractTables copies the named tables out of the archive, wherever they sit
// in its folder tree, into destDir. The archive is removed only when every
// table was found; otherwise it is kept for inspection and ErrMissingTable is returned.
func ExtractTables(zipPath, destDir string, names []string) (domain.SourceFiles, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return domain.SourceFiles{}, fmt.Errorf("%w: open archive %s: %v", domain.ErrDownloadFailure, zipPath, err)
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	found := make(map[string]bool, len(names))
	for _, f := range r.File {
		base := path.Base(f.Name)
		if f.FileInfo().IsDir() || !wanted[base] || found[base] {
			continue
		}
		if err := extractFile(f, filepath.Join(destDir, base)); err != nil {
			r.Close()
			return domain.SourceFiles{}, err
		}
		found[base] = true
		log.Printf("[USDA] Extracted %s", base)
	}
	r.Close()

	var missing []string
	for _, n := range names {
		if !found[n] {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		log.Printf("[USDA] Not all tables were found, keeping %s for inspection", zipPath)
		return domain.SourceFiles{}, fmt.Errorf("%w: %s", domain.ErrMissingTable, strings.Join(missing, ", "))
	}

	if err := os.Remove(zipPath); err != nil {
		log.Printf("[USDA] Failed to remove archive %s: %v", zipPath, err)
	}
	return domain.SourceFilesIn(destDir), nil
}

func extractFile(f *zip.File, dest string) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: read %s from archive: %v", domain.ErrDownloadFailure, f.Name, err)
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("%w: extract %s: %v", domain.ErrDownloadFailure, f.Name, err)
	}
	return out.Close()
}
