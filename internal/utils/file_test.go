package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsImageFile(t *testing.T) {
	tests := map[string]bool{
		"guava.JPG":  true,
		"guava.webp": true,
		"scan.tif":   true,
		"notes.txt":  false,
		"noext":      false,
	}
	for name, want := range tests {
		if got := IsImageFile(name); got != want {
			t.Errorf("IsImageFile(%q) = %v, expected %v", name, got, want)
		}
	}
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "batch")
	if err := EnsureDir(sub); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	for _, name := range []string{"a.png", "batch/b.jpeg", "readme.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := ListImageFiles(dir)
	if err != nil {
		t.Fatalf("ListImageFiles failed: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("Expected 2 image files, got %v", files)
	}
	if !FileExists(files[0]) || FileExists(dir) || !DirExists(sub) {
		t.Error("Unexpected FileExists/DirExists result")
	}
}

func TestHeatmapFilename(t *testing.T) {
	if got := HeatmapFilename("/in/guava.jpg", "/out"); got != filepath.Join("/out", "guava_thermal.png") {
		t.Errorf("Unexpected heatmap filename %s", got)
	}
	if got := HeatmapFilename("https://cdn.test/img/g.png", "/out"); got != filepath.Join("/out", "cdn.test_img_g_thermal.png") {
		t.Errorf("Unexpected heatmap filename for URL %s", got)
	}
}

func TestFormatFileSize(t *testing.T) {
	tests := map[int64]string{
		512:      "512 B",
		2048:     "2.0 KB",
		20 << 20: "20.0 MB",
	}
	for size, want := range tests {
		if got := FormatFileSize(size); got != want {
			t.Errorf("FormatFileSize(%d) = %s, expected %s", size, got, want)
		}
	}
}
