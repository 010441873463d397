package extract

import (
	"archive/zip"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	contentTypesPart = "[Content_Types].xml"
	docxDefaultPart  = "word/document.xml"
	docxMainType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	pptxSlidePrefix  = "ppt/slides/slide"
	odfContentPart   = "content.xml"
)

var (
	// <w:t> and <a:t> runs, with or without attributes such as xml:space="preserve".
	wordTextRun  = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)
	drawTextRun  = regexp.MustCompile(`<a:t(?:\s[^>]*)?>([^<]*)</a:t>`)
	odfParagraph = regexp.MustCompile(`<text:(?:p|h|span)(?:\s[^>]*)?>([^<]*)</text:(?:p|h|span)>`)
	overrideTag  = regexp.MustCompile(`<Override\s[^>]*>`)
	partNameAttr = regexp.MustCompile(`PartName="([^"]+)"`)
)

var xmlEntities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

// extractOffice dispatches on the package kind (".docx", ".xlsx", ...).
func extractOffice(path, kind string) (string, error) {
	if kind == ".xlsx" {
		return extractXLSX(path)
	}
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open %s package: %w", kind, err)
	}
	defer zr.Close()

	switch kind {
	case ".docx":
		return extractDOCX(&zr.Reader)
	case ".pptx":
		return extractPPTX(&zr.Reader)
	case ".odt", ".ods", ".odp":
		return extractODF(&zr.Reader)
	default:
		return "", fmt.Errorf("unknown office package %q", kind)
	}
}

func readZipPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, nil
}

// joinRuns joins the captured text of every match with single spaces.
func joinRuns(re *regexp.Regexp, xml string, b *strings.Builder) {
	for _, m := range re.FindAllStringSubmatch(xml, -1) {
		s := strings.TrimSpace(xmlEntities.Replace(m[1]))
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}
}

// docxMainPart finds the main document part from [Content_Types].xml; documents produced by
// some tools do not use word/document.xml.
func docxMainPart(zr *zip.Reader) string {
	data, err := readZipPart(zr, contentTypesPart)
	if err != nil || data == nil {
		return docxDefaultPart
	}
	for _, tag := range overrideTag.FindAllString(string(data), -1) {
		if !strings.Contains(tag, `ContentType="`+docxMainType+`"`) {
			continue
		}
		if m := partNameAttr.FindStringSubmatch(tag); m != nil {
			return strings.TrimPrefix(m[1], "/")
		}
	}
	return docxDefaultPart
}

func extractDOCX(zr *zip.Reader) (string, error) {
	part := docxMainPart(zr)
	data, err := readZipPart(zr, part)
	if err != nil {
		return "", err
	}
	if data == nil {
		return "", fmt.Errorf("docx: %s not found", part)
	}
	var b strings.Builder
	joinRuns(wordTextRun, string(data), &b)
	return b.String(), nil
}

func extractPPTX(zr *zip.Reader) (string, error) {
	var slides []*zip.File
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, pptxSlidePrefix) && strings.HasSuffix(f.Name, ".xml") {
			slides = append(slides, f)
		}
	}
	// slide2.xml before slide10.xml
	sort.Slice(slides, func(i, j int) bool {
		a, b := slides[i].Name, slides[j].Name
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})
	var b strings.Builder
	for _, f := range slides {
		data, err := readZipPart(zr, f.Name)
		if err != nil {
			return "", err
		}
		joinRuns(drawTextRun, string(data), &b)
	}
	return b.String(), nil
}

// extractODF reads text, spreadsheet and presentation OpenDocument packages.
func extractODF(zr *zip.Reader) (string, error) {
	data, err := readZipPart(zr, odfContentPart)
	if err != nil {
		return "", err
	}
	if data == nil {
		return "", fmt.Errorf("opendocument: %s not found", odfContentPart)
	}
	var b strings.Builder
	joinRuns(odfParagraph, string(data), &b)
	return b.String(), nil
}

func extractXLSX(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteByte('\n')
		}
	}
	return strings.TrimSpace(b.String()), nil
}
