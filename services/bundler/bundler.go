package bundler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"gopkg.in/yaml.v3"

	gos3 "bptools/pkg/s3"
)

const (
	manifestFileName = "manifest.yaml"
	filesPrefix      = "files"
)

// Build zips SourceDir into Output alongside a signed manifest.yaml.
func Build(ctx context.Context, cfg BuildConfig) (*Manifest, error) {
	if cfg.SourceDir == "" {
		return nil, errors.New("source directory is required")
	}
	if cfg.Output == "" {
		return nil, errors.New("output path is required")
	}
	if cfg.Signer == nil {
		return nil, errors.New("signer is required")
	}
	if cfg.Name == "" {
		cfg.Name = filepath.Base(filepath.Clean(cfg.SourceDir))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(cfg.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("stat source dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source dir %q is not a directory", cfg.SourceDir)
	}

	entries, err := collectFiles(ctx, cfg.SourceDir)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.New("no files found to bundle")
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})

	manifest := &Manifest{
		Version:   manifestVersion,
		Name:      cfg.Name,
		Release:   cfg.Version,
		CreatedAt: cfg.Now().UTC().Truncate(time.Second),
		Files:     entries,
	}
	if err := cfg.Signer.SignManifest(manifest); err != nil {
		return nil, fmt.Errorf("sign manifest: %w", err)
	}

	manifestBytes, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	if err := writeBundle(cfg.Output, manifestBytes, cfg.SourceDir, entries, manifest.CreatedAt); err != nil {
		return nil, err
	}

	fmt.Fprintf(cfg.Stdout, "wrote bundle %s (%d files)\n", cfg.Output, len(entries))
	return manifest, nil
}

func collectFiles(ctx context.Context, root string) ([]ManifestFile, error) {
	var files []ManifestFile
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("relative path for %q: %w", p, err)
		}
		rel = filepath.ToSlash(rel)

		file, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("open %q: %w", p, err)
		}
		hash := sha256.New()
		size, err := io.Copy(hash, file)
		file.Close()
		if err != nil {
			return fmt.Errorf("hash %q: %w", p, err)
		}

		files = append(files, ManifestFile{
			Path:        rel,
			ContentType: contentType(rel),
			Size:        size,
			SHA256:      hex.EncodeToString(hash.Sum(nil)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func contentType(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func writeBundle(output string, manifest []byte, sourceDir string, entries []ManifestFile, modified time.Time) (err error) {
	dir := filepath.Dir(output)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output file: %w", cerr)
		}
	}()

	zw := zip.NewWriter(file)

	w, err := zw.CreateHeader(&zip.FileHeader{Name: manifestFileName, Method: zip.Deflate, Modified: modified})
	if err != nil {
		return fmt.Errorf("write manifest header: %w", err)
	}
	if _, err := w.Write(manifest); err != nil {
		return fmt.Errorf("write manifest body: %w", err)
	}

	for _, entry := range entries {
		if err := addFile(zw, sourceDir, entry); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish bundle: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, sourceDir string, entry ManifestFile) error {
	fullPath := filepath.Join(sourceDir, filepath.FromSlash(entry.Path))
	info, err := os.Stat(fullPath)
	if err != nil {
		return fmt.Errorf("stat %q: %w", entry.Path, err)
	}
	src, err := os.Open(fullPath)
	if err != nil {
		return fmt.Errorf("open %q: %w", entry.Path, err)
	}
	defer src.Close()

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("header for %q: %w", entry.Path, err)
	}
	header.Name = path.Join(filesPrefix, entry.Path)
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("write header for %q: %w", entry.Path, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("copy %q: %w", entry.Path, err)
	}
	return nil
}

// Open reads and verifies the manifest of the bundle at bundlePath. Every file listed in
// the manifest must be present with a matching size and digest.
func Open(bundlePath string, signer *Signer) (*Manifest, error) {
	if signer == nil {
		return nil, errors.New("signer is required")
	}
	zr, err := zip.OpenReader(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer zr.Close()

	manifest, _, err := verifyBundle(&zr.Reader, signer)
	return manifest, err
}

func verifyBundle(zr *zip.Reader, signer *Signer) (*Manifest, map[string]*zip.File, error) {
	var manifestBytes []byte
	files := map[string]*zip.File{}
	for _, f := range zr.File {
		name := path.Clean(f.Name)
		if f.FileInfo().IsDir() {
			continue
		}
		if name == manifestFileName {
			data, err := readEntry(f)
			if err != nil {
				return nil, nil, fmt.Errorf("read manifest: %w", err)
			}
			manifestBytes = data
			continue
		}
		if !strings.HasPrefix(name, filesPrefix+"/") {
			return nil, nil, fmt.Errorf("unexpected entry %q", f.Name)
		}
		files[strings.TrimPrefix(name, filesPrefix+"/")] = f
	}

	if len(manifestBytes) == 0 {
		return nil, nil, errors.New("bundle missing manifest.yaml")
	}

	var manifest Manifest
	if err := yaml.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	if manifest.Version != manifestVersion {
		return nil, nil, fmt.Errorf("unsupported manifest version %q", manifest.Version)
	}
	if err := signer.VerifyManifest(manifest); err != nil {
		return nil, nil, fmt.Errorf("verify manifest signature: %w", err)
	}

	for _, entry := range manifest.Files {
		f, ok := files[entry.Path]
		if !ok {
			return nil, nil, fmt.Errorf("file %q missing from bundle", entry.Path)
		}
		if err := validateFile(f, entry); err != nil {
			return nil, nil, err
		}
	}
	if len(files) != len(manifest.Files) {
		return nil, nil, fmt.Errorf("bundle holds %d files, manifest lists %d", len(files), len(manifest.Files))
	}

	return &manifest, files, nil
}

// Publish verifies the bundle at BundlePath and uploads every file to
// s3://Bucket/Prefix/<name>/<release>/<path>.
func Publish(ctx context.Context, cfg PublishConfig) (*Manifest, error) {
	if cfg.BundlePath == "" {
		return nil, errors.New("bundle file is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("bucket is required")
	}
	if cfg.Uploader == nil {
		return nil, errors.New("uploader is required")
	}
	if cfg.Signer == nil {
		return nil, errors.New("signer is required")
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	zr, err := zip.OpenReader(cfg.BundlePath)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer zr.Close()

	manifest, files, err := verifyBundle(&zr.Reader, cfg.Signer)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(cfg.Stdout, "verified manifest signed at %s\n", manifest.CreatedAt.Format(time.RFC3339))

	for _, entry := range manifest.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := readEntry(files[entry.Path])
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", entry.Path, err)
		}
		key := ObjectKey(cfg.Prefix, *manifest, entry)
		err = cfg.Uploader.PutObject(ctx, gos3.Object{
			Bucket:      cfg.Bucket,
			Key:         key,
			Body:        bytes.NewReader(data),
			Size:        entry.Size,
			SHA256:      entry.SHA256,
			ContentType: entry.ContentType,
			Metadata: map[string]string{
				"bundle":  manifest.Name,
				"release": manifest.Release,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("upload %q: %w", entry.Path, err)
		}
		fmt.Fprintf(cfg.Stdout, "uploaded %s (%d bytes)\n", key, entry.Size)
	}

	return manifest, nil
}

// ObjectKey returns the key a bundle file is published under.
func ObjectKey(prefix string, manifest Manifest, entry ManifestFile) string {
	release := manifest.Release
	if release == "" {
		release = manifest.CreatedAt.UTC().Format("20060102T150405Z")
	}
	return strings.TrimPrefix(path.Join(strings.Trim(prefix, "/"), manifest.Name, release, entry.Path), "/")
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func validateFile(f *zip.File, entry ManifestFile) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %q: %w", entry.Path, err)
	}
	defer rc.Close()

	hash := sha256.New()
	size, err := io.Copy(hash, rc)
	if err != nil {
		return fmt.Errorf("hash %q: %w", entry.Path, err)
	}
	if size != entry.Size {
		return fmt.Errorf("size mismatch for %q: expected %d got %d", entry.Path, entry.Size, size)
	}
	if computed := hex.EncodeToString(hash.Sum(nil)); !strings.EqualFold(computed, entry.SHA256) {
		return fmt.Errorf("sha256 mismatch for %q", entry.Path)
	}
	return nil
}
