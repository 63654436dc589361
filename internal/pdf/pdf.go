package pdf

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/jung-kurt/gofpdf"

	"github.com/blindscan/scanhost/internal/ocr"
)

var ErrNoPages = errors.New("no pages to compose")

const mmPerInch = 25.4

// Service composes scanned page images into PDF documents. Pages keep their
// physical size: pixel dimensions are mapped to millimetres through the scan
// DPI.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// CreateFromImages writes a PDF with one page per input image.
func (s *Service) CreateFromImages(imagePaths []string, dpi int, outPath string) error {
	return s.compose(imagePaths, nil, dpi, outPath)
}

// CreateSearchable writes a PDF with an invisible text layer under each page
// image, positioned from the OCR word boxes. results must be page-aligned
// with imagePaths.
func (s *Service) CreateSearchable(imagePaths []string, results []*ocr.PageResult, dpi int, outPath string) error {
	if len(results) != len(imagePaths) {
		return fmt.Errorf("page count mismatch: %d images, %d ocr results", len(imagePaths), len(results))
	}
	return s.compose(imagePaths, results, dpi, outPath)
}

func (s *Service) compose(imagePaths []string, results []*ocr.PageResult, dpi int, outPath string) error {
	if len(imagePaths) == 0 {
		return ErrNoPages
	}
	if dpi <= 0 {
		dpi = 300
	}

	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetAutoPageBreak(false, 0)
	doc.SetFont("Helvetica", "", 10)

	pxToMM := mmPerInch / float64(dpi)

	for i, imagePath := range imagePaths {
		pxW, pxH, err := imageSize(imagePath)
		if err != nil {
			return fmt.Errorf("page %s: %w", filepath.Base(imagePath), err)
		}

		wMM := float64(pxW) * pxToMM
		hMM := float64(pxH) * pxToMM

		orientation := "P"
		if wMM > hMM {
			orientation = "L"
		}
		doc.AddPageFormat(orientation, gofpdf.SizeType{Wd: wMM, Ht: hMM})

		opts := gofpdf.ImageOptions{ImageType: imageType(imagePath), ReadDpi: false}
		doc.ImageOptions(imagePath, 0, 0, wMM, hMM, false, opts, 0, "")

		if results != nil {
			s.layoutTextLayer(doc, results[i], pxToMM)
		}
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := doc.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// layoutTextLayer draws each OCR word invisibly at its box position so text
// selection and search line up with the page image.
func (s *Service) layoutTextLayer(doc *gofpdf.Fpdf, page *ocr.PageResult, pxToMM float64) {
	if page == nil || len(page.Words) == 0 {
		return
	}

	doc.SetTextRenderingMode(3)
	defer doc.SetTextRenderingMode(0)

	for _, w := range page.Words {
		if w.Height <= 0 {
			continue
		}
		hMM := float64(w.Height) * pxToMM
		// Font size in points matching the box height.
		doc.SetFontSize(hMM / mmPerInch * 72)
		doc.Text(float64(w.X)*pxToMM, (float64(w.Y)+float64(w.Height))*pxToMM, w.Text)
	}
}

func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

func imageType(path string) string {
	switch filepath.Ext(path) {
	case ".png":
		return "PNG"
	default:
		return "JPG"
	}
}
