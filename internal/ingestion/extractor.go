// Package ingestion turns uploaded CVs into plain text.
package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/llm"
	"github.com/spigell/career-assistant/internal/logger"
)

const (
	// MinExtractedTextLength is the shortest pdftotext output accepted without
	// asking the vision model.
	MinExtractedTextLength = 50

	MIMEPlain    = "text/plain"
	MIMEMarkdown = "text/markdown"
	MIMEPDF      = "application/pdf"
	MIMEPNG      = "image/png"
	MIMEJPEG     = "image/jpeg"
	MIMEWebP     = "image/webp"

	visionInstruction = "You are a professional CV analyzer. Extract ALL textual information from this CV. Maintain the structure and content accurately. Output only the extracted text."
)

// ErrNoText is returned when neither extraction path produced text.
var ErrNoText = errors.New("could not extract text from the document")

// Document is an uploaded file.
type Document struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Extractor reads text from documents. PDFs go through pdftotext first;
// scanned PDFs and images are read by the generator's vision input.
type Extractor struct {
	gen    llm.Generator
	logger *zap.Logger

	pdfToText func(ctx context.Context, data []byte) (string, error)
}

// NewExtractor builds an Extractor. gen may be nil, which disables the
// vision fallback.
func NewExtractor(gen llm.Generator, log *zap.Logger) *Extractor {
	return &Extractor{
		gen:       gen,
		logger:    logger.WithFields(log, zap.String("component", "ingestion")),
		pdfToText: runPDFToText,
	}
}

func (e *Extractor) Extract(ctx context.Context, doc Document) (string, error) {
	mimeType := DetectMIME(doc.Name, doc.MIMEType, doc.Data)
	log := e.logger.With(zap.String("document", doc.Name), zap.String("mime_type", mimeType))

	switch mimeType {
	case MIMEPlain, MIMEMarkdown:
		text := strings.TrimSpace(string(doc.Data))
		if text == "" {
			return "", ErrNoText
		}
		return text, nil

	case MIMEPDF:
		text, err := e.pdfToText(ctx, doc.Data)
		text = strings.TrimSpace(text)
		if err == nil && len([]rune(text)) >= MinExtractedTextLength {
			log.Debug("pdf text extracted", zap.Int("length", len(text)))
			return text, nil
		}
		if err != nil {
			log.Warn("pdftotext failed, trying vision fallback", zap.Error(err))
		} else {
			log.Warn("extracted text is too short, trying vision fallback", zap.Int("length", len(text)))
		}

		vision, verr := e.vision(ctx, doc.Data, mimeType)
		if verr != nil {
			log.Error("vision fallback failed", zap.Error(verr))
		}
		if vision != "" {
			return vision, nil
		}
		if text != "" {
			return text, nil
		}
		return "", ErrNoText

	case MIMEPNG, MIMEJPEG, MIMEWebP:
		text, err := e.vision(ctx, doc.Data, mimeType)
		if err != nil {
			return "", fmt.Errorf("read image: %w", err)
		}
		if text == "" {
			return "", ErrNoText
		}
		return text, nil

	default:
		return "", fmt.Errorf("unsupported file type: %s", mimeType)
	}
}

func (e *Extractor) vision(ctx context.Context, data []byte, mimeType string) (string, error) {
	if e.gen == nil {
		return "", errors.New("vision fallback is not configured")
	}
	resp, err := e.gen.Generate(ctx, &llm.Request{
		Messages: []llm.Message{{
			Role:  llm.RoleUser,
			Parts: []llm.Part{llm.Text(visionInstruction), llm.Blob(mimeType, data)},
		}},
		Temperature: llm.Temperature(0),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

func runPDFToText(ctx context.Context, data []byte) (string, error) {
	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", "-", "-")
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("PDF extraction requires 'pdftotext' (install poppler-utils): %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return string(out), nil
}

// DetectMIME picks the document type from the declared MIME type, the file
// extension and finally the content itself.
func DetectMIME(name, declared string, data []byte) string {
	if declared != "" {
		if base, _, ok := strings.Cut(declared, ";"); ok {
			declared = base
		}
		declared = strings.ToLower(strings.TrimSpace(declared))
		if declared == "image/jpg" {
			return MIMEJPEG
		}
		if declared != "application/octet-stream" {
			return declared
		}
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return MIMEPDF
	case ".txt":
		return MIMEPlain
	case ".md", ".markdown":
		return MIMEMarkdown
	case ".png":
		return MIMEPNG
	case ".jpg", ".jpeg":
		return MIMEJPEG
	case ".webp":
		return MIMEWebP
	}

	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return MIMEPDF
	case bytes.HasPrefix(data, []byte("\x89PNG")):
		return MIMEPNG
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return MIMEJPEG
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return MIMEWebP
	case IsBinaryData(data):
		return "application/octet-stream"
	default:
		return MIMEPlain
	}
}

// IsBinaryData reports whether content looks like a binary file rather than
// text.
func IsBinaryData(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	if bytes.HasPrefix(content, []byte("%PDF-")) || bytes.HasPrefix(content, []byte("PK")) {
		return true
	}

	sample := content[:min(1000, len(content))]
	nonPrintable := 0
	for _, ch := range sample {
		if ch < 32 && ch != '\n' && ch != '\r' && ch != '\t' {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(len(sample)) > 0.3
}
