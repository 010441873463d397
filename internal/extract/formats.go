package extract

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/hyperjump/docuchat/internal/models"
)

const genericContentType = "application/octet-stream"

// MIME types of the office packages we read.
const (
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	mimeODT  = "application/vnd.oasis.opendocument.text"
	mimeODS  = "application/vnd.oasis.opendocument.spreadsheet"
	mimeODP  = "application/vnd.oasis.opendocument.presentation"
)

var contentTypeFormats = map[string]models.Format{
	"application/pdf": models.FormatPDF,
	"image/png":       models.FormatImage,
	"image/jpeg":      models.FormatImage,
	"video/mp4":       models.FormatVideo,
	"video/quicktime": models.FormatVideo,
	"video/webm":      models.FormatVideo,
	mimeDOCX:          models.FormatOffice,
	mimeXLSX:          models.FormatOffice,
	mimePPTX:          models.FormatOffice,
	mimeODT:           models.FormatOffice,
	mimeODS:           models.FormatOffice,
	mimeODP:           models.FormatOffice,
	"text/plain":      models.FormatText,
	"text/markdown":   models.FormatText,
	"text/x-markdown": models.FormatText,
}

var extensionFormats = map[string]models.Format{
	".pdf":  models.FormatPDF,
	".png":  models.FormatImage,
	".jpg":  models.FormatImage,
	".jpeg": models.FormatImage,
	".mp4":  models.FormatVideo,
	".mov":  models.FormatVideo,
	".webm": models.FormatVideo,
	".docx": models.FormatOffice,
	".xlsx": models.FormatOffice,
	".pptx": models.FormatOffice,
	".odt":  models.FormatOffice,
	".ods":  models.FormatOffice,
	".odp":  models.FormatOffice,
	".txt":  models.FormatText,
	".md":   models.FormatText,
	".rst":  models.FormatText,
}

var extensionContentTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".docx": mimeDOCX,
	".xlsx": mimeXLSX,
	".pptx": mimePPTX,
	".odt":  mimeODT,
	".ods":  mimeODS,
	".odp":  mimeODP,
	".txt":  "text/plain",
	".md":   "text/markdown",
	".rst":  "text/plain",
}

// AllFormats lists every format the extractor knows.
var AllFormats = []models.Format{
	models.FormatPDF, models.FormatImage, models.FormatVideo, models.FormatOffice, models.FormatText,
}

// DetectFormat resolves the extraction format from the declared content type. The filename
// extension is only consulted when the content type is empty or application/octet-stream.
// Has no side effects.
func DetectFormat(contentType, filename string) (models.Format, error) {
	mediaType := ""
	if strings.TrimSpace(contentType) != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return "", fmt.Errorf("invalid content type %q: %w", contentType, err)
		}
		mediaType = mt
	}
	if mediaType != "" && mediaType != genericContentType {
		if f, ok := contentTypeFormats[mediaType]; ok {
			return f, nil
		}
		return "", fmt.Errorf("content type %q is not supported", mediaType)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if f, ok := extensionFormats[ext]; ok {
		return f, nil
	}
	return "", fmt.Errorf("file %q has no supported content type", filename)
}

// ContentTypeForName guesses a content type from a filename extension. Returns
// application/octet-stream when the extension is unknown.
func ContentTypeForName(filename string) string {
	if ct, ok := extensionContentTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return genericContentType
}

// ParseFormats converts configured format names. Unknown names are an error.
func ParseFormats(names []string) ([]models.Format, error) {
	out := make([]models.Format, 0, len(names))
	for _, n := range names {
		f := models.Format(strings.ToLower(strings.TrimSpace(n)))
		known := false
		for _, k := range AllFormats {
			if k == f {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown extraction format %q", n)
		}
		out = append(out, f)
	}
	return out, nil
}

// officeKind picks the office package reader for a document.
func officeKind(contentType, filename string) string {
	mt, _, _ := mime.ParseMediaType(contentType)
	switch mt {
	case mimeDOCX:
		return ".docx"
	case mimeXLSX:
		return ".xlsx"
	case mimePPTX:
		return ".pptx"
	case mimeODT:
		return ".odt"
	case mimeODS:
		return ".ods"
	case mimeODP:
		return ".odp"
	}
	return strings.ToLower(filepath.Ext(filename))
}
