package geo

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parcelscope/zoning-cli/internal/model"
	"github.com/parcelscope/zoning-cli/internal/store"
)

// ImportOptions controls a zoning district shapefile import.
type ImportOptions struct {
	// JurisdictionID is the cache key of the jurisdiction the shapes belong to.
	JurisdictionID string
	// CodeField is the shapefile attribute holding the district code
	// (ZONING, ZONE_CODE, ZONECLASS vary by municipality).
	CodeField string
	// Source is either a local .shp/.zip path or an http(s) URL to a ZIP.
	Source string
	// TempDir receives downloaded and extracted files when Source is remote
	// or zipped. Defaults to os.TempDir().
	TempDir string
}

// ImportDistricts loads a municipal zoning shapefile and persists each
// district polygon as EWKB via the store. Returns the number of shapes
// written.
func ImportDistricts(ctx context.Context, st store.Store, httpClient *http.Client, opts ImportOptions) (int, error) {
	if opts.JurisdictionID == "" {
		return 0, eris.New("geo: jurisdiction ID required")
	}
	if opts.CodeField == "" {
		opts.CodeField = "ZONING"
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	log := zap.L().With(
		zap.String("component", "geo.loader"),
		zap.String("jurisdiction", opts.JurisdictionID),
	)

	shpPath, err := resolveShapefile(ctx, httpClient, opts)
	if err != nil {
		return 0, err
	}

	reader, err := shp.Open(shpPath)
	if err != nil {
		return 0, eris.Wrap(err, "geo: open shapefile")
	}
	defer func() { _ = reader.Close() }()

	codeIdx := fieldIndex(reader, opts.CodeField)
	if codeIdx < 0 {
		return 0, eris.Errorf("geo: shapefile field %q not found", opts.CodeField)
	}

	var shapes []model.DistrictShape
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		if shape == nil {
			continue
		}

		code := strings.TrimSpace(reader.Attribute(codeIdx))
		if code == "" {
			skipped++
			continue
		}

		wkb, err := EncodeWKB(shape)
		if err != nil {
			log.Warn("geo: failed to encode shape", zap.String("district", code), zap.Error(err))
			skipped++
			continue
		}
		if wkb == nil {
			skipped++
			continue
		}

		shapes = append(shapes, model.DistrictShape{
			JurisdictionID: opts.JurisdictionID,
			DistrictCode:   code,
			WKB:            wkb,
		})
	}

	if len(shapes) == 0 {
		return 0, eris.New("geo: shapefile contained no usable district polygons")
	}

	n, err := st.PutDistrictShapes(ctx, shapes)
	if err != nil {
		return 0, eris.Wrap(err, "geo: persist district shapes")
	}

	log.Info("district shapefile loaded", zap.Int("shapes", n), zap.Int("skipped", skipped))
	return n, nil
}

// resolveShapefile turns the import source into a local .shp path,
// downloading and extracting as needed.
func resolveShapefile(ctx context.Context, client *http.Client, opts ImportOptions) (string, error) {
	src := opts.Source

	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		zipPath := filepath.Join(opts.TempDir, "districts.zip")
		zap.L().Info("downloading district shapefile", zap.String("url", src))
		if err := downloadFile(ctx, client, src, zipPath); err != nil {
			return "", eris.Wrap(err, "geo: download shapefile")
		}
		src = zipPath
	}

	if strings.EqualFold(filepath.Ext(src), ".zip") {
		extractDir := filepath.Join(opts.TempDir, "districts")
		if err := os.MkdirAll(extractDir, 0o755); err != nil {
			return "", eris.Wrap(err, "geo: create extract dir")
		}
		if err := extractZIP(src, extractDir); err != nil {
			return "", eris.Wrap(err, "geo: extract shapefile ZIP")
		}
		return findFileByExt(extractDir, ".shp")
	}

	return src, nil
}

// downloadFile downloads a URL to a local file.
func downloadFile(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "build request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrap(err, "download")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("download returned status %d", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "create file")
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(f, resp.Body); err != nil {
		return eris.Wrap(err, "write file")
	}

	return nil
}

// extractZIP extracts a ZIP archive to the destination directory.
func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		name := filepath.Base(f.Name)
		destPath := filepath.Join(destDir, name)

		if f.FileInfo().IsDir() {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return eris.Wrapf(err, "open zip entry %s", f.Name)
		}

		outFile, err := os.Create(destPath)
		if err != nil {
			_ = rc.Close()
			return eris.Wrapf(err, "create %s", destPath)
		}

		if _, err := io.Copy(outFile, rc); err != nil {
			_ = outFile.Close()
			_ = rc.Close()
			return eris.Wrapf(err, "extract %s", f.Name)
		}
		_ = outFile.Close()
		_ = rc.Close()
	}

	return nil
}

// findFileByExt finds the first file with the given extension in a directory.
func findFileByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "read directory")
	}

	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}

	return "", eris.Errorf("no %s file found in %s", ext, dir)
}

// fieldIndex returns the index of the named attribute field, or -1.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}
