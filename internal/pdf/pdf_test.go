package pdf

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blindscan/scanhost/internal/ocr"
)

func writeTestJPEG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, img, nil))
	require.NoError(t, f.Close())
	return path
}

func TestCreateFromImages(t *testing.T) {
	dir := t.TempDir()
	pages := []string{
		writeTestJPEG(t, dir, "page_001.jpg", 100, 140),
		writeTestJPEG(t, dir, "page_002.jpg", 100, 140),
	}
	outPath := filepath.Join(dir, "out", "document.pdf")

	svc := NewService()
	require.NoError(t, svc.CreateFromImages(pages, 300, outPath))

	info, err := os.Stat(outPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestCreateFromImagesEmpty(t *testing.T) {
	svc := NewService()
	err := svc.CreateFromImages(nil, 300, filepath.Join(t.TempDir(), "document.pdf"))
	assert.ErrorIs(t, err, ErrNoPages)
}

func TestCreateFromImagesMissingPage(t *testing.T) {
	svc := NewService()
	err := svc.CreateFromImages([]string{"/nope/page.jpg"}, 300, filepath.Join(t.TempDir(), "document.pdf"))
	assert.Error(t, err)
}

func TestCreateSearchable(t *testing.T) {
	dir := t.TempDir()
	page := writeTestJPEG(t, dir, "page_001.jpg", 200, 100)
	outPath := filepath.Join(dir, "document.pdf")

	results := []*ocr.PageResult{
		{
			Text: "hello world",
			Words: []ocr.Word{
				{Text: "hello", X: 10, Y: 20, Width: 50, Height: 12},
				{Text: "world", X: 70, Y: 20, Width: 50, Height: 12},
			},
		},
	}

	svc := NewService()
	require.NoError(t, svc.CreateSearchable([]string{page}, results, 300, outPath))

	info, err := os.Stat(outPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestCreateSearchablePageCountMismatch(t *testing.T) {
	dir := t.TempDir()
	page := writeTestJPEG(t, dir, "page_001.jpg", 100, 100)

	svc := NewService()
	err := svc.CreateSearchable([]string{page}, nil, 300, filepath.Join(dir, "document.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page count mismatch")
}
