package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotDocument 不是有效的 docx 文件
var ErrNotDocument = errors.New("docx: not a word document")

const maxDocumentXMLBytes = 64 << 20

// ExtractText 抽取正文文本，非空段落之间以空行分隔
func ExtractText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotDocument, err)
	}
	var part *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			part = f
			break
		}
	}
	if part == nil {
		return "", fmt.Errorf("%w: missing word/document.xml", ErrNotDocument)
	}
	rc, err := part.Open()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotDocument, err)
	}
	defer rc.Close()

	paragraphs, err := readParagraphs(io.LimitReader(rc, maxDocumentXMLBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotDocument, err)
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

func readParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
		depth      int
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordNamespace {
				continue
			}
			switch t.Name.Local {
			case "p":
				depth++
				if depth == 1 {
					current.Reset()
				}
			case "t":
				inText = true
			case "tab":
				current.WriteByte('\t')
			case "br", "cr":
				current.WriteByte('\n')
			}
		case xml.EndElement:
			if t.Name.Space != wordNamespace {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				depth--
				if depth == 0 {
					if p := strings.TrimSpace(current.String()); p != "" {
						paragraphs = append(paragraphs, p)
					}
				}
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return paragraphs, nil
}
