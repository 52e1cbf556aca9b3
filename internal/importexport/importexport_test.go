package importexport

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
)

// tarEntry describes a single entry in a hand-built tar stream.
type tarEntry struct {
	typeflag byte
	name     string
	content  string
	linkname string
	mode     int64
}

func buildTar(t *testing.T, entries []tarEntry) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Typeflag: e.typeflag, Mode: e.mode, Linkname: e.linkname}
		if e.typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.content))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header %s: %v", e.name, err)
		}
		if e.typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(e.content)); err != nil {
				t.Fatalf("write content %s: %v", e.name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar writer: %v", err)
	}
	return &buf
}

func TestImportExtractsRegularFilesAndDirs(t *testing.T) {
	dest := t.TempDir()
	stream := buildTar(t, []tarEntry{
		{typeflag: tar.TypeDir, name: "etc/", mode: 0755},
		{typeflag: tar.TypeReg, name: "etc/hostname", content: "guest\n", mode: 0644},
	})

	if err := Import(context.Background(), stream, dest, CompressionNone); err != nil {
		t.Fatalf("Import: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dest, "etc/hostname"))
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(data) != "guest\n" {
		t.Fatalf("content = %q, want %q", data, "guest\n")
	}
}

func TestImportAppliesFileWhiteout(t *testing.T) {
	dest := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dest, "usr"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dest, "usr", "old"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	stream := buildTar(t, []tarEntry{
		{typeflag: tar.TypeReg, name: "usr/.wh.old", mode: 0644},
	})
	if err := Import(context.Background(), stream, dest, CompressionNone); err != nil {
		t.Fatalf("Import: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "usr", "old")); !os.IsNotExist(err) {
		t.Fatalf("expected whiteout to remove usr/old, stat err = %v", err)
	}
}

func TestImportRejectsPathTraversal(t *testing.T) {
	dest := t.TempDir()
	stream := buildTar(t, []tarEntry{
		{typeflag: tar.TypeReg, name: "../escape", content: "x", mode: 0644},
	})
	if err := Import(context.Background(), stream, dest, CompressionNone); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dest), "escape")); !os.IsNotExist(err) {
		t.Fatal("path traversal entry should not have been written outside dest")
	}
}

func TestExportThenImportRoundTrip(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "a", "b"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "a", "b", "file.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := Export(context.Background(), &buf, src, CompressionGzip); err != nil {
		t.Fatalf("Export: %v", err)
	}

	dest := t.TempDir()
	if err := Import(context.Background(), &buf, dest, CompressionGzip); err != nil {
		t.Fatalf("Import: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dest, "a", "b", "file.txt"))
	if err != nil {
		t.Fatalf("read round-tripped file: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("content = %q, want %q", data, "hello")
	}
}
