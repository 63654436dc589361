package ocr

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

var (
	ErrDisabled        = errors.New("ocr is disabled")
	ErrUnknownLanguage = errors.New("unknown ocr language")
)

type Config struct {
	Enabled         bool
	TessdataPath    string
	DefaultLanguage string
}

// Word is one recognized token with its pixel bounding box on the page.
type Word struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// PageResult is the recognition output for a single page image.
type PageResult struct {
	Text  string `json:"text"`
	Words []Word `json:"words"`
}

// Service wraps tesseract. The underlying client is not safe for concurrent
// use, so calls are serialized; scans finish far slower than recognition, so
// this never becomes the bottleneck.
type Service struct {
	cfg Config

	mu sync.Mutex
}

func NewService(cfg Config) *Service {
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "eng"
	}
	return &Service{cfg: cfg}
}

func (s *Service) Enabled() bool {
	return s.cfg.Enabled
}

// Languages lists installed languages by scanning the tessdata directory for
// traineddata files.
func (s *Service) Languages() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.TessdataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read tessdata directory: %w", err)
	}

	var langs []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".traineddata") {
			continue
		}
		lang := strings.TrimSuffix(name, ".traineddata")
		if lang == "osd" {
			continue
		}
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs, nil
}

// HasLanguage reports whether the traineddata file for lang is installed.
func (s *Service) HasLanguage(lang string) bool {
	_, err := os.Stat(filepath.Join(s.cfg.TessdataPath, lang+".traineddata"))
	return err == nil
}

// Recognize runs tesseract over one page image and returns the full text
// plus word bounding boxes. DPI is passed through so box coordinates map
// back onto the source image scale.
func (s *Service) Recognize(imagePath, lang string, dpi int) (*PageResult, error) {
	if !s.cfg.Enabled {
		return nil, ErrDisabled
	}
	if lang == "" {
		lang = s.cfg.DefaultLanguage
	}
	if !s.HasLanguage(lang) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLanguage, lang)
	}

	img, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("read page image: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetTessdataPrefix(s.cfg.TessdataPath); err != nil {
		return nil, fmt.Errorf("set tessdata path: %w", err)
	}
	if err := client.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("set language %s: %w", lang, err)
	}
	if dpi > 0 {
		if err := client.SetVariable("user_defined_dpi", strconv.Itoa(dpi)); err != nil {
			return nil, fmt.Errorf("set dpi: %w", err)
		}
	}
	if err := client.SetImageFromBytes(img); err != nil {
		return nil, fmt.Errorf("load page image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("get word boxes: %w", err)
	}

	words := make([]Word, 0, len(boxes))
	for _, b := range boxes {
		word := strings.TrimSpace(b.Word)
		if word == "" {
			continue
		}
		words = append(words, Word{
			Text:       word,
			Confidence: b.Confidence,
			X:          b.Box.Min.X,
			Y:          b.Box.Min.Y,
			Width:      b.Box.Dx(),
			Height:     b.Box.Dy(),
		})
	}

	return &PageResult{Text: text, Words: words}, nil
}

// RecognizeBatch runs Recognize over each page in order.
func (s *Service) RecognizeBatch(imagePaths []string, lang string, dpi int) ([]*PageResult, error) {
	results := make([]*PageResult, 0, len(imagePaths))
	for _, p := range imagePaths {
		r, err := s.Recognize(p, lang, dpi)
		if err != nil {
			return nil, fmt.Errorf("page %s: %w", filepath.Base(p), err)
		}
		results = append(results, r)
	}
	return results, nil
}
