package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

func openZip(content []byte, format string) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract %s: not a zip: %w", format, err)
	}
	return zr, nil
}

// readZipFile returns the contents of f.
func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// readZipEntry returns the contents of the entry called name, or nil when it is missing.
func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			return readZipFile(f)
		}
	}
	return nil, nil
}

// paragraphText splits xml into paragraphs at each closing paraTag and returns the text
// of the textTag runs inside each one. Runs in a paragraph are concatenated.
func paragraphText(xml string, paraClose string, textTag *regexp.Regexp) []string {
	var paras []string
	for _, block := range strings.Split(xml, paraClose) {
		var b strings.Builder
		for _, m := range textTag.FindAllStringSubmatch(block, -1) {
			b.WriteString(unescapeXML(m[1]))
		}
		paras = append(paras, b.String())
	}
	return paras
}

var xmlEntities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

func unescapeXML(s string) string {
	return xmlEntities.Replace(s)
}
