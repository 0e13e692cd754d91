// Package archive packs the logs and manifest of a run into a .tar.zst file.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"wanemu/internal/analysis"
	"wanemu/internal/logging"
	"wanemu/internal/manifest"
)

// Members lists the files of dir that belong in an archive: the manifest
// when present, then the peer logs in node order.
func Members(dir string) ([]string, error) {
	nodes, paths, err := analysis.LogFiles(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	if _, err := os.Stat(manifest.Path(dir)); err == nil {
		out = append(out, manifest.Path(dir))
	}
	for _, id := range nodes {
		out = append(out, paths[id])
	}
	return out, nil
}

// Create writes dir's run files to dst. It returns the number of files
// archived. On failure no partial dst is left behind.
func Create(ctx context.Context, dir, dst string) (n int, err error) {
	files, err := Members(dir)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("nothing to archive in %s", dir)
	}
	f, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	zw, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		os.Remove(dst)
		return 0, err
	}
	defer func() {
		if err != nil {
			zw.Close()
		}
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
			n = 0
		}
	}()
	tw := tar.NewWriter(zw)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := addFile(tw, path); err != nil {
			return n, fmt.Errorf("archive %s: %w", path, err)
		}
		n++
	}
	if err := tw.Close(); err != nil {
		return n, err
	}
	if err := zw.Close(); err != nil {
		return n, err
	}
	logging.FromContext(ctx).Info("archive written", "path", dst, "files", n)
	return n, nil
}

func addFile(tw *tar.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, src)
	return err
}

// Extract unpacks src into dir and returns the extracted names.
func Extract(src, dir string) ([]string, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	tr := tar.NewReader(zr)
	var names []string
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return names, nil
		}
		if err != nil {
			return names, err
		}
		name := filepath.Base(hdr.Name)
		if hdr.Typeflag != tar.TypeReg || name != hdr.Name {
			return names, fmt.Errorf("unexpected archive member %q", hdr.Name)
		}
		if err := writeMember(filepath.Join(dir, name), tr); err != nil {
			return names, err
		}
		names = append(names, name)
	}
}

func writeMember(path string, r io.Reader) error {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
