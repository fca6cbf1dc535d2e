package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ReplaceFunc maps an enclosure source URL to its local replacement.
// Returning ok=false leaves the attribute untouched.
type ReplaceFunc func(sourceURL string) (replacement string, ok bool)

type splice struct {
	start, end  int
	replacement []byte
}

// Rewrite replaces the url attribute of enclosure and media:content
// elements in raw, leaving every other byte of the document intact.
// The output is deterministic for a given input and ReplaceFunc, so
// repeated rewrites are byte-identical.
func Rewrite(raw []byte, replace ReplaceFunc) ([]byte, error) {
	decoder := xml.NewDecoder(bytes.NewReader(raw))
	decoder.Strict = true

	var splices []splice
	rootSeen := false
	for {
		tokenStart := decoder.InputOffset()
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{Err: err}
		}
		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}
		if !rootSeen {
			if start.Name.Local != "rss" {
				return nil, &ParseError{Err: fmt.Errorf("root element is <%s>, not <rss>", start.Name.Local)}
			}
			rootSeen = true
			continue
		}
		if !mediaElement(start.Name) {
			continue
		}
		source := urlAttr(start)
		if source == "" {
			continue
		}
		replacement, ok := replace(source)
		if !ok || replacement == source {
			continue
		}
		// The token's raw text spans the offsets around Token().
		tag := raw[tokenStart:decoder.InputOffset()]
		valueStart, valueEnd, found := urlValueRange(tag)
		if !found {
			continue
		}
		splices = append(splices, splice{
			start:       int(tokenStart) + valueStart,
			end:         int(tokenStart) + valueEnd,
			replacement: []byte(escapeAttr(replacement)),
		})
	}
	if !rootSeen {
		return nil, &ParseError{Err: errors.New("document has no root element")}
	}

	out := make([]byte, 0, len(raw))
	prev := 0
	for _, s := range splices {
		out = append(out, raw[prev:s.start]...)
		out = append(out, s.replacement...)
		prev = s.end
	}
	return append(out, raw[prev:]...), nil
}

// mediaElement recognizes the elements whose url attribute references
// downloadable media: plain RSS enclosures and Media RSS content.
func mediaElement(name xml.Name) bool {
	switch name.Local {
	case "enclosure":
		return name.Space == ""
	case "content":
		// encoding/xml reports the namespace URL when declared and the
		// bare prefix otherwise.
		return name.Space == "media" || strings.Contains(name.Space, "search.yahoo.com/mrss")
	default:
		return false
	}
}

func urlAttr(start xml.StartElement) string {
	for _, attr := range start.Attr {
		if attr.Name.Local == "url" && attr.Name.Space == "" {
			return attr.Value
		}
	}
	return ""
}

// urlValueRange locates the quoted value of the url attribute within a
// raw start-element tag and returns its byte offsets (exclusive of the
// quotes). The decoder has already verified the tag is well-formed.
func urlValueRange(tag []byte) (int, int, bool) {
	i := 1
	for i < len(tag) && !isXMLSpace(tag[i]) && tag[i] != '>' && tag[i] != '/' {
		i++
	}
	for i < len(tag) {
		for i < len(tag) && isXMLSpace(tag[i]) {
			i++
		}
		if i >= len(tag) || tag[i] == '>' || tag[i] == '/' {
			break
		}
		nameStart := i
		for i < len(tag) && tag[i] != '=' && !isXMLSpace(tag[i]) && tag[i] != '>' {
			i++
		}
		name := string(tag[nameStart:i])
		for i < len(tag) && isXMLSpace(tag[i]) {
			i++
		}
		if i >= len(tag) || tag[i] != '=' {
			return 0, 0, false
		}
		i++
		for i < len(tag) && isXMLSpace(tag[i]) {
			i++
		}
		if i >= len(tag) || (tag[i] != '"' && tag[i] != '\'') {
			return 0, 0, false
		}
		quote := tag[i]
		i++
		valueStart := i
		for i < len(tag) && tag[i] != quote {
			i++
		}
		if i >= len(tag) {
			return 0, 0, false
		}
		if name == "url" {
			return valueStart, i, true
		}
		i++
	}
	return 0, 0, false
}

func isXMLSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	`"`, "&quot;",
	"'", "&#39;",
)

func escapeAttr(value string) string {
	return attrEscaper.Replace(value)
}
