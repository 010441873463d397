package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/docuchat/internal/apperr"
	"github.com/hyperjump/docuchat/internal/models"
	"github.com/hyperjump/docuchat/internal/testdocs"
)

type fakeOCR struct {
	mu    sync.Mutex
	calls []string
	text  func(path string) string
	err   error
}

func (f *fakeOCR) Recognize(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, path)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.text(path), nil
}

type fakeRasterizer struct {
	pages int
}

func (f *fakeRasterizer) Rasterize(_ context.Context, _ string, outDir string) ([]string, error) {
	var out []string
	for i := 1; i <= f.pages; i++ {
		p := filepath.Join(outDir, "page-"+string(rune('0'+i))+".png")
		if err := os.WriteFile(p, []byte("png"), 0600); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

type fakeAudio struct{ err error }

func (f *fakeAudio) ExtractAudio(_ context.Context, _ string, outPath string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outPath, []byte("RIFF"), 0600)
}

type fakeSTT struct {
	text string
	err  error
}

func (f *fakeSTT) Transcribe(_ context.Context, _ string) (string, error) {
	return f.text, f.err
}

type recorder struct {
	events []models.AuditEvent
}

func (r *recorder) RecordAudit(_ context.Context, ev models.AuditEvent) error {
	r.events = append(r.events, ev)
	return nil
}

func writeDoc(t *testing.T, name string, content []byte, format models.Format, contentType string) *models.Document {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0600))
	return &models.Document{
		ID:          "f1",
		OwnerID:     "u1",
		Filename:    name,
		ContentType: contentType,
		Format:      format,
		Path:        path,
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		contentType string
		filename    string
		want        models.Format
		wantErr     bool
	}{
		{"application/pdf", "x.bin", models.FormatPDF, false},
		{"image/png", "scan", models.FormatImage, false},
		{"image/jpeg; charset=binary", "a.jpg", models.FormatImage, false},
		{"video/mp4", "clip.mp4", models.FormatVideo, false},
		{"text/plain; charset=utf-8", "notes", models.FormatText, false},
		{mimeDOCX, "a.docx", models.FormatOffice, false},
		{"", "invoice.PDF", models.FormatPDF, false},
		{"application/octet-stream", "clip.mov", models.FormatVideo, false},
		{"application/octet-stream", "archive.zip", "", true},
		// declared type wins over the extension
		{"application/zip", "invoice.pdf", "", true},
		{"", "", "", true},
		{"not a type;;", "a.pdf", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.contentType+"|"+tt.filename, func(t *testing.T) {
			got, err := DetectFormat(tt.contentType, tt.filename)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectFormat_everyExtensionResolves(t *testing.T) {
	for ext := range extensionFormats {
		f, err := DetectFormat(ContentTypeForName("file"+ext), "file"+ext)
		require.NoError(t, err, ext)
		assert.Equal(t, extensionFormats[ext], f, ext)
	}
}

func TestExtractor_Detect_disabledFormat(t *testing.T) {
	e := NewExtractor(WithFormats(models.FormatPDF))
	_, err := e.Detect("image/png", "a.png")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrUnsupportedFormat))

	f, err := e.Detect("application/pdf", "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, models.FormatPDF, f)
}

func TestParseFormats(t *testing.T) {
	got, err := ParseFormats([]string{"PDF", " text "})
	require.NoError(t, err)
	assert.Equal(t, []models.Format{models.FormatPDF, models.FormatText}, got)

	_, err = ParseFormats([]string{"audio"})
	assert.Error(t, err)
}

func TestExtract_plain(t *testing.T) {
	e := NewExtractor()
	doc := writeDoc(t, "a.txt", []byte("Hello world\nLine 2"), models.FormatText, "text/plain")
	got, err := e.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "Hello world\nLine 2", got)
}

func TestExtract_plainInvalidUTF8(t *testing.T) {
	e := NewExtractor()
	doc := writeDoc(t, "a.txt", []byte("hello\x80world"), models.FormatText, "text/plain")
	got, err := e.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "hello�world", got)
}

func TestExtract_officePackages(t *testing.T) {
	e := NewExtractor()
	sample := "Quarterly revenue & costs"
	for _, ext := range []string{".docx", ".xlsx", ".pptx", ".odt", ".ods", ".odp"} {
		t.Run(ext, func(t *testing.T) {
			content, err := testdocs.Build(ext, sample)
			require.NoError(t, err)
			doc := writeDoc(t, "doc"+ext, content, models.FormatOffice, ContentTypeForName("doc"+ext))
			got, err := e.Extract(context.Background(), doc)
			require.NoError(t, err)
			assert.Contains(t, got, sample)
		})
	}
}

func TestExtract_officeNotAZip(t *testing.T) {
	e := NewExtractor()
	doc := writeDoc(t, "bad.docx", []byte("plain bytes"), models.FormatOffice, mimeDOCX)
	_, err := e.Extract(context.Background(), doc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrExtraction))
}

func TestExtract_pdfTextLayer(t *testing.T) {
	ocr := &fakeOCR{text: func(string) string { return "should not be used" }}
	e := NewExtractor(WithOCR(ocr), WithRasterizer(&fakeRasterizer{pages: 1}))
	doc := writeDoc(t, "invoice.pdf", testdocs.PDF("invoice total: $42"), models.FormatPDF, "application/pdf")
	got, err := e.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Contains(t, got, "invoice total: $42")
	assert.Empty(t, ocr.calls)
}

func TestExtract_scannedPDFFallsBackToOCR(t *testing.T) {
	ocr := &fakeOCR{text: func(path string) string {
		return "text of " + strings.TrimSuffix(filepath.Base(path), ".png")
	}}
	e := NewExtractor(WithOCR(ocr), WithRasterizer(&fakeRasterizer{pages: 2}))
	doc := writeDoc(t, "scan.pdf", testdocs.PDF("", ""), models.FormatPDF, "application/pdf")
	got, err := e.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "text of page-1\ntext of page-2", got)
	assert.Len(t, ocr.calls, 2)
}

func TestExtract_scannedPDFWithoutOCRReturnsSparseLayer(t *testing.T) {
	e := NewExtractor()
	doc := writeDoc(t, "scan.pdf", testdocs.PDF(""), models.FormatPDF, "application/pdf")
	got, err := e.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(got))
}

func TestExtract_imageUsesOCR(t *testing.T) {
	ocr := &fakeOCR{text: func(string) string { return "receipt 12.50" }}
	e := NewExtractor(WithOCR(ocr))
	doc := writeDoc(t, "r.png", []byte("png"), models.FormatImage, "image/png")
	got, err := e.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "receipt 12.50", got)
}

func TestExtract_imageOCRFailure(t *testing.T) {
	e := NewExtractor(WithOCR(&fakeOCR{err: errors.New("engine crashed")}))
	doc := writeDoc(t, "r.png", []byte("png"), models.FormatImage, "image/png")
	_, err := e.Extract(context.Background(), doc)
	require.Error(t, err)
	assert.Equal(t, apperr.KindExtraction, apperr.KindOf(err))
}

func TestExtract_imageWithoutOCR(t *testing.T) {
	e := NewExtractor()
	doc := writeDoc(t, "r.png", []byte("png"), models.FormatImage, "image/png")
	_, err := e.Extract(context.Background(), doc)
	assert.True(t, errors.Is(err, apperr.ErrExtraction))
}

func TestExtract_videoTranscribes(t *testing.T) {
	e := NewExtractor(WithAudioExtractor(&fakeAudio{}), WithSpeechToText(&fakeSTT{text: "hello from the meeting"}))
	doc := writeDoc(t, "m.mp4", []byte("mp4"), models.FormatVideo, "video/mp4")
	got, err := e.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "hello from the meeting", got)
	_, statErr := os.Stat(filepath.Join(filepath.Dir(doc.Path), "audio.wav"))
	assert.NoError(t, statErr, "audio track should be written next to the upload")
}

func TestExtract_videoUnrecognizedSpeechIsAudited(t *testing.T) {
	rec := &recorder{}
	e := NewExtractor(
		WithAudioExtractor(&fakeAudio{}),
		WithSpeechToText(&fakeSTT{err: ErrUnrecognizedSpeech}),
		WithFailureRecorder(rec),
	)
	doc := writeDoc(t, "m.mp4", []byte("mp4"), models.FormatVideo, "video/mp4")
	got, err := e.Extract(context.Background(), doc)
	require.Error(t, err)
	assert.Empty(t, got)
	assert.True(t, errors.Is(err, ErrUnrecognizedSpeech))
	assert.True(t, errors.Is(err, apperr.ErrExtraction))
	require.Len(t, rec.events, 1)
	assert.Equal(t, models.StageTranscription, rec.events[0].Stage)
	assert.Equal(t, "u1", rec.events[0].OwnerID)
	assert.Equal(t, "m.mp4", rec.events[0].Filename)
}

func TestExtract_videoTransportErrorIsNotAudited(t *testing.T) {
	rec := &recorder{}
	e := NewExtractor(
		WithAudioExtractor(&fakeAudio{}),
		WithSpeechToText(&fakeSTT{err: errors.New("connection refused")}),
		WithFailureRecorder(rec),
	)
	doc := writeDoc(t, "m.mp4", []byte("mp4"), models.FormatVideo, "video/mp4")
	_, err := e.Extract(context.Background(), doc)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnrecognizedSpeech))
	assert.Empty(t, rec.events)
}

func TestExtract_disabledFormat(t *testing.T) {
	e := NewExtractor(WithFormats(models.FormatText))
	doc := writeDoc(t, "a.pdf", testdocs.PDF("x"), models.FormatPDF, "application/pdf")
	_, err := e.Extract(context.Background(), doc)
	assert.True(t, errors.Is(err, apperr.ErrUnsupportedFormat))
}

func TestExtract_timeoutIsFlagged(t *testing.T) {
	e := NewExtractor(WithOCR(&fakeOCR{err: context.DeadlineExceeded}))
	doc := writeDoc(t, "r.png", []byte("png"), models.FormatImage, "image/png")
	_, err := e.Extract(context.Background(), doc)
	require.Error(t, err)
	assert.True(t, apperr.IsTimeout(err))
	assert.Equal(t, apperr.KindExtraction, apperr.KindOf(err))
}

func TestCountTextRunes(t *testing.T) {
	assert.Equal(t, 0, countTextRunes(" \n\t "))
	assert.Equal(t, 5, countTextRunes(" h é l\nl o"))
}
