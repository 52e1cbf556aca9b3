// Package importexport streams a rootfs tree in and out over a stream
// connection (the handlers dial a separate vsock data port), optionally gzip- or xz-compressed (spec.md §6
// "import (from socket stream, optionally xz/gz-compressed), export (to
// socket stream)"). Grounded on the teacher's internal/image/unpack.go
// for the tar-walk, whiteout, and path-traversal-guard logic — generalized
// from "apply OCI layers to a directory" to "stream a whole rootfs to or
// from an arbitrary io.Reader/Writer" — and on the teacher's direct
// dependency on github.com/klauspost/compress for the gzip codec. xz has
// no comparable pure-Go library in the teacher's or the pack's
// dependency graph, so it shells out to the xz binary, the same
// external-tool pattern internal/mountmgr/fsdetect.go uses for blkid.
package importexport

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Compression selects the wire encoding of an import/export stream.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionXZ
)

const whiteoutPrefix = ".wh."
const whiteoutOpaque = whiteoutPrefix + ".wh..opq"

// Import reads a tar stream (optionally compressed per kind) from r and
// extracts it into destDir, applying the teacher's OCI whiteout
// conventions and refusing any entry that would escape destDir.
func Import(ctx context.Context, r io.Reader, destDir string, kind Compression) error {
	dec, cleanup, err := decompress(ctx, r, kind)
	if err != nil {
		return fmt.Errorf("importexport: decompress: %w", err)
	}
	defer cleanup()

	tr := tar.NewReader(dec)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("importexport: read tar: %w", err)
		}
		if err := extractEntry(tr, hdr, destDir); err != nil {
			return fmt.Errorf("importexport: extract %s: %w", hdr.Name, err)
		}
	}
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, destDir string) error {
	cleanName := filepath.Clean(hdr.Name)
	if cleanName == ".." || strings.HasPrefix(cleanName, "../") {
		return nil // path traversal guard
	}
	target := filepath.Join(destDir, cleanName)
	base := filepath.Base(cleanName)
	dir := filepath.Dir(cleanName)

	if base == whiteoutOpaque {
		opqDir := filepath.Join(destDir, dir)
		entries, _ := os.ReadDir(opqDir)
		for _, e := range entries {
			os.RemoveAll(filepath.Join(opqDir, e.Name()))
		}
		return nil
	}
	if strings.HasPrefix(base, whiteoutPrefix) {
		os.RemoveAll(filepath.Join(destDir, dir, strings.TrimPrefix(base, whiteoutPrefix)))
		return nil
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, os.FileMode(hdr.Mode))
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
		if err != nil {
			return err
		}
		_, err = io.Copy(f, tr)
		f.Close()
		return err
	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		os.Remove(target)
		return os.Symlink(hdr.Linkname, target)
	case tar.TypeLink:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		linkTarget := filepath.Join(destDir, filepath.Clean(hdr.Linkname))
		os.Remove(target)
		return os.Link(linkTarget, target)
	default:
		return nil
	}
}

// Export walks srcDir and writes a tar stream (optionally compressed per
// kind) to w.
func Export(ctx context.Context, w io.Writer, srcDir string, kind Compression) error {
	enc, cleanup, err := compress(ctx, w, kind)
	if err != nil {
		return fmt.Errorf("importexport: compress: %w", err)
	}

	tw := tar.NewWriter(enc)
	walkErr := filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		return writeEntry(tw, path, rel, info)
	})
	if walkErr != nil {
		tw.Close()
		cleanup()
		return fmt.Errorf("importexport: walk %s: %w", srcDir, walkErr)
	}
	if err := tw.Close(); err != nil {
		cleanup()
		return fmt.Errorf("importexport: close tar writer: %w", err)
	}
	return cleanup()
}

func writeEntry(tw *tar.Writer, path, rel string, info os.FileInfo) error {
	var link string
	if info.Mode()&os.ModeSymlink != 0 {
		var err error
		link, err = os.Readlink(path)
		if err != nil {
			return err
		}
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(rel)
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if info.Mode().IsRegular() {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		f.Close()
		return err
	}
	return nil
}

// decompress returns a reader over r's decoded contents plus a cleanup
// function the caller must call once done reading.
func decompress(ctx context.Context, r io.Reader, kind Compression) (io.Reader, func(), error) {
	switch kind {
	case CompressionNone:
		return r, func() {}, nil
	case CompressionGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gz, func() { gz.Close() }, nil
	case CompressionXZ:
		return xzDecompress(ctx, r)
	default:
		return nil, nil, fmt.Errorf("unknown compression kind %d", kind)
	}
}

// compress returns a writer that encodes onto w plus a cleanup function
// the caller must call (which flushes and closes any subprocess) after
// the last write.
func compress(ctx context.Context, w io.Writer, kind Compression) (io.Writer, func() error, error) {
	switch kind {
	case CompressionNone:
		return w, func() error { return nil }, nil
	case CompressionGzip:
		gz := gzip.NewWriter(w)
		return gz, gz.Close, nil
	case CompressionXZ:
		return xzCompress(ctx, w)
	default:
		return nil, nil, fmt.Errorf("unknown compression kind %d", kind)
	}
}

// xzPath is the external xz binary used for the xz codec, since neither
// the teacher nor the rest of the example pack vendors a pure-Go xz
// implementation.
const xzPath = "/usr/bin/xz"

func xzDecompress(ctx context.Context, r io.Reader) (io.Reader, func(), error) {
	cmd := exec.CommandContext(ctx, xzPath, "-dc")
	cmd.Stdin = r
	cmd.Stderr = os.Stderr
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	return out, func() { cmd.Wait() }, nil
}

func xzCompress(ctx context.Context, w io.Writer) (io.Writer, func() error, error) {
	cmd := exec.CommandContext(ctx, xzPath, "-zc")
	cmd.Stdout = w
	cmd.Stderr = os.Stderr
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	return in, func() error {
		if err := in.Close(); err != nil {
			return err
		}
		return cmd.Wait()
	}, nil
}
