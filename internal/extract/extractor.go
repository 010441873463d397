// Package extract turns uploaded documents into plain text: PDF text layers with an OCR fallback
// for scanned pages, image OCR, video speech-to-text, office packages and plain text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/docuchat/internal/apperr"
	"github.com/hyperjump/docuchat/internal/models"
	"github.com/hyperjump/docuchat/pkg/utils"
)

// DefaultMinTextChars is the text-layer size below which a PDF is treated as scanned.
const DefaultMinTextChars = 10

// FailureRecorder stores audit records for failures that need follow-up.
type FailureRecorder interface {
	RecordAudit(ctx context.Context, ev models.AuditEvent) error
}

// Extractor extracts plain text from documents. Engines that are not configured make the
// corresponding path fail; a scanned PDF without OCR returns its sparse text layer as is.
type Extractor struct {
	formats      map[models.Format]bool
	minTextChars int
	ocr          OCREngine
	rasterizer   Rasterizer
	audio        AudioExtractor
	stt          SpeechToText
	recorder     FailureRecorder
	logger       *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// WithFormats restricts the enabled formats. All formats are enabled by default.
func WithFormats(formats ...models.Format) Option {
	return func(e *Extractor) {
		e.formats = make(map[models.Format]bool, len(formats))
		for _, f := range formats {
			e.formats[f] = true
		}
	}
}

// WithMinTextChars sets the scanned-PDF threshold.
func WithMinTextChars(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.minTextChars = n
		}
	}
}

// WithOCR sets the OCR engine used for images and scanned PDFs.
func WithOCR(o OCREngine) Option {
	return func(e *Extractor) { e.ocr = o }
}

// WithRasterizer sets the PDF page rasterizer.
func WithRasterizer(r Rasterizer) Option {
	return func(e *Extractor) { e.rasterizer = r }
}

// WithAudioExtractor sets the video audio-track extractor.
func WithAudioExtractor(a AudioExtractor) Option {
	return func(e *Extractor) { e.audio = a }
}

// WithSpeechToText sets the speech-to-text engine.
func WithSpeechToText(s SpeechToText) Option {
	return func(e *Extractor) { e.stt = s }
}

// WithFailureRecorder sets where unrecognised-speech failures are recorded.
func WithFailureRecorder(r FailureRecorder) Option {
	return func(e *Extractor) { e.recorder = r }
}

// NewExtractor returns an Extractor with every format enabled.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{minTextChars: DefaultMinTextChars}
	WithFormats(AllFormats...)(e)
	for _, opt := range opts {
		opt(e)
	}
	e.logger = utils.LoggerOrNop(e.logger)
	return e
}

// Detect resolves the format of an upload and checks it is enabled. Has no side effects.
// Fails with kind UnsupportedFormat.
func (e *Extractor) Detect(contentType, filename string) (models.Format, error) {
	f, err := DetectFormat(contentType, filename)
	if err != nil {
		return "", apperr.New(apperr.KindUnsupportedFormat, "detect format", err)
	}
	if !e.formats[f] {
		return "", apperr.Newf(apperr.KindUnsupportedFormat, "detect format", "format %s is not enabled", f)
	}
	return f, nil
}

// Extract returns the text of doc. Intermediate artifacts (audio tracks, rendered pages) are
// written next to doc.Path, which must live in a scratch directory owned by the caller.
// Failures are of kind Extraction.
func (e *Extractor) Extract(ctx context.Context, doc *models.Document) (string, error) {
	const op = "extract"
	if !e.formats[doc.Format] {
		return "", apperr.Newf(apperr.KindUnsupportedFormat, op, "format %q is not enabled", doc.Format)
	}
	workDir := filepath.Dir(doc.Path)

	var (
		text string
		err  error
	)
	switch doc.Format {
	case models.FormatPDF:
		text, err = e.extractPDF(ctx, doc.Path, workDir)
	case models.FormatImage:
		text, err = e.extractImage(ctx, doc.Path)
	case models.FormatVideo:
		text, err = e.extractVideo(ctx, doc, workDir)
	case models.FormatOffice:
		text, err = extractOffice(doc.Path, officeKind(doc.ContentType, doc.Filename))
	case models.FormatText:
		text, err = extractPlain(doc.Path)
	default:
		return "", apperr.Newf(apperr.KindUnsupportedFormat, op, "unknown format %q", doc.Format)
	}
	if err != nil {
		e.logger.Warn("extraction failed",
			zap.String("owner_id", doc.OwnerID),
			zap.String("filename", doc.Filename),
			zap.String("format", string(doc.Format)),
			zap.Error(err))
		return "", apperr.New(apperr.KindExtraction, op+" "+string(doc.Format), err)
	}
	return text, nil
}

func (e *Extractor) extractImage(ctx context.Context, path string) (string, error) {
	if e.ocr == nil {
		return "", errors.New("no OCR engine configured")
	}
	return e.ocr.Recognize(ctx, path)
}

// extractVideo transcribes the whole audio track. Unrecognised speech fails the document and
// leaves an audit record; no partial transcript is returned.
func (e *Extractor) extractVideo(ctx context.Context, doc *models.Document, workDir string) (string, error) {
	if e.audio == nil || e.stt == nil {
		return "", errors.New("no speech-to-text engine configured")
	}
	audioPath := filepath.Join(workDir, "audio.wav")
	if err := e.audio.ExtractAudio(ctx, doc.Path, audioPath); err != nil {
		return "", fmt.Errorf("extract audio: %w", err)
	}
	text, err := e.stt.Transcribe(ctx, audioPath)
	if err == nil {
		return text, nil
	}
	if errors.Is(err, ErrUnrecognizedSpeech) && e.recorder != nil {
		ev := models.AuditEvent{
			OwnerID:  doc.OwnerID,
			Filename: doc.Filename,
			Stage:    models.StageTranscription,
			Reason:   err.Error(),
		}
		if recErr := e.recorder.RecordAudit(context.WithoutCancel(ctx), ev); recErr != nil {
			e.logger.Error("failed to record transcription failure",
				zap.String("owner_id", doc.OwnerID),
				zap.String("filename", doc.Filename),
				zap.Error(recErr))
		}
	}
	return "", fmt.Errorf("transcribe: %w", err)
}
