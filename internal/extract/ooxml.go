package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	docxDefaultDocumentPath = "word/document.xml"
	contentTypesPath        = "[Content_Types].xml"
	docxMainContentType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

// Text runs: <w:t> in WordprocessingML, <a:t> in DrawingML (slides). Both may carry
// attributes such as xml:space="preserve".
var (
	wordTextRun    = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)
	drawingTextRun = regexp.MustCompile(`<a:t(?:\s[^>]*)?>([^<]*)</a:t>`)
	overrideTag    = regexp.MustCompile(`<Override[^>]*>`)
	partNameAttr   = regexp.MustCompile(`PartName="([^"]+)"`)
	slideNumber    = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
)

// docxMainDocumentPath reads [Content_Types].xml for the main document part, which is
// not always word/document.xml. Attribute order inside Override varies.
func docxMainDocumentPath(contentTypes []byte) string {
	for _, tag := range overrideTag.FindAllString(string(contentTypes), -1) {
		if !strings.Contains(tag, `ContentType="`+docxMainContentType+`"`) {
			continue
		}
		if m := partNameAttr.FindStringSubmatch(tag); m != nil {
			return strings.TrimPrefix(m[1], "/")
		}
	}
	return ""
}

// extractDOCX returns the text of every <w:p> paragraph of a .docx file.
func extractDOCX(content []byte) (string, error) {
	zr, err := openZip(content, "DOCX")
	if err != nil {
		return "", err
	}
	docPath := docxDefaultDocumentPath
	if ct, err := readZipEntry(zr, contentTypesPath); err == nil && ct != nil {
		if p := docxMainDocumentPath(ct); p != "" {
			docPath = p
		}
	}
	docXML, err := readZipEntry(zr, docPath)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: read %s: %w", docPath, err)
	}
	if docXML == nil {
		return "", fmt.Errorf("extract DOCX: %s not found", docPath)
	}
	return joinParagraphs(paragraphText(string(docXML), "</w:p>", wordTextRun)), nil
}

// extractPPTX returns the text of each slide in slide order, one paragraph per text body paragraph.
func extractPPTX(content []byte) (string, error) {
	zr, err := openZip(content, "PPTX")
	if err != nil {
		return "", err
	}
	type slide struct {
		n   int
		xml string
	}
	var slides []slide
	for _, f := range zr.File {
		m := slideNumber.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		data, err := readZipFile(f)
		if err != nil {
			return "", fmt.Errorf("extract PPTX: read %s: %w", f.Name, err)
		}
		slides = append(slides, slide{n: n, xml: string(data)})
	}
	// Zip order is arbitrary; slide10 must follow slide9.
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	var paras []string
	for _, s := range slides {
		paras = append(paras, paragraphText(s.xml, "</a:p>", drawingTextRun)...)
	}
	return joinParagraphs(paras), nil
}
