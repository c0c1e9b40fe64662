package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	rpdf "rsc.io/pdf"
)

// ExtractSOWText pulls plain text out of an uploaded scope-of-work document.
// Supported extensions: txt, pdf, docx, html, htm.
func ExtractSOWText(filename string, content []byte) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	switch ext {
	case "txt":
		return string(stripBOM(content)), nil
	case "pdf":
		text, err := extractPDFText(content)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedFile, err)
		}
		return cleanLines(text), nil
	case "docx":
		text, err := extractDocxText(content)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedFile, err)
		}
		return text, nil
	case "html", "htm":
		return HTMLToText(string(content)), nil
	}
	return "", fmt.Errorf("%w: .%s", ErrUnsupportedFormat, ext)
}

func extractPDFText(content []byte) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			text = ""
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		var lastY float64
		for i, fragment := range page.Content().Text {
			if i > 0 && fragment.Y != lastY {
				builder.WriteString("\n")
			}
			builder.WriteString(fragment.S)
			lastY = fragment.Y
		}
		builder.WriteString("\n")
	}

	return builder.String(), nil
}

// extractDocxText reads word/document.xml and keeps one line per non-blank paragraph.
func extractDocxText(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", errors.New("word/document.xml not found")
	}
	rc, err := doc.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteString("\t")
			case "br":
				current.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if p := current.String(); strings.TrimSpace(p) != "" {
					paragraphs = append(paragraphs, p)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return strings.Join(paragraphs, "\n"), nil
}

// HTMLToText sanitizes HTML and converts it to plain text, one line per block.
func HTMLToText(html string) string {
	safe := bluemonday.UGCPolicy().Sanitize(html)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(safe))
	if err != nil {
		return cleanLines(safe)
	}
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	return cleanLines(doc.Text())
}
