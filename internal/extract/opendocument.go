package extract

import (
	"fmt"
	"regexp"
)

const openDocumentContentPath = "content.xml"

var (
	odfBreakTags = regexp.MustCompile(`<text:(?:s|tab|line-break)(?:\s[^>]*)?/>`)
	// Inline elements are removed so a paragraph's text is one run.
	odfInlineTag = regexp.MustCompile(`</?text:(?:span|a)(?:\s[^>]*)?>`)
	odfBlockText = regexp.MustCompile(`<text:(?:p|h)(?:\s[^>]*)?>([^<]*)</text:(?:p|h)>`)
)

// extractOpenDocument returns the paragraphs and headings of an OpenDocument text,
// spreadsheet or presentation file. Spreadsheet cells hold text:p elements, so each
// non-empty cell becomes a paragraph.
func extractOpenDocument(content []byte) (string, error) {
	zr, err := openZip(content, "OpenDocument")
	if err != nil {
		return "", err
	}
	xml, err := readZipEntry(zr, openDocumentContentPath)
	if err != nil {
		return "", fmt.Errorf("extract OpenDocument: read %s: %w", openDocumentContentPath, err)
	}
	if xml == nil {
		return "", fmt.Errorf("extract OpenDocument: %s not found", openDocumentContentPath)
	}
	flat := odfBreakTags.ReplaceAllString(string(xml), " ")
	flat = odfInlineTag.ReplaceAllString(flat, "")
	var paras []string
	for _, m := range odfBlockText.FindAllStringSubmatch(flat, -1) {
		paras = append(paras, unescapeXML(m[1]))
	}
	return joinParagraphs(paras), nil
}
