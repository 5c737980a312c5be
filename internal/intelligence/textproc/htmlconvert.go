package textproc

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/turtacn/LegisGraph/internal/intelligence/common"
	"github.com/turtacn/LegisGraph/pkg/errors"
)

// ---------------------------------------------------------------------------
// Interfaces
// ---------------------------------------------------------------------------

// HTMLConverter renders legislative HTML into the plain-text form the
// extraction pipeline consumes. The input is Word-exported markup from the
// legislature's site: paragraph classes identify the bill's parts, and the
// converter keeps them in document order as labeled plain-text lines.
type HTMLConverter interface {
	Convert(htmlSource string) (string, error)
}

// ---------------------------------------------------------------------------
// Class sets
// ---------------------------------------------------------------------------

// Paragraph classes the legislature's document templates assign to the
// chamber header block and to the body parts of a measure.
var (
	headerClasses = map[string]bool{
		"ChamberHeading":       true,
		"MeasureNumberHeading": true,
	}
	contentClasses = map[string]bool{
		"ABILLFORANACT":     true,
		"MeasureTitle":      true,
		"BEITENACTED":       true,
		"RegularParagraphs": true,
		"1Paragraph":        true,
		"Effective":         true,
		"ReportTitle":       true,
		"Description":       true,
	}
)

var (
	spaceRunRe       = regexp.MustCompile(`\s+`)
	multiSpaceRe     = regexp.MustCompile(` {2,}`)
	excessNewlinesRe = regexp.MustCompile(`\n{3,}`)
	measureNoRe      = regexp.MustCompile(`(?i)\bNO\.$`)
)

// ---------------------------------------------------------------------------
// htmlConverter
// ---------------------------------------------------------------------------

type htmlConverter struct {
	logger common.Logger
}

// NewHTMLConverter creates a converter for legislative bill HTML.
func NewHTMLConverter(logger common.Logger) HTMLConverter {
	if logger == nil {
		logger = common.NewNoopLogger()
	}
	return &htmlConverter{logger: logger}
}

// Convert walks the parsed document once, collecting chamber-header cells
// and classed body paragraphs in document order. Script and style subtrees
// are dropped. Header cells are reassembled into the printed heading with
// the measure number joined onto its "NO." prefix, followed by the
// "A BILL FOR AN ACT" line.
func (c *htmlConverter) Convert(htmlSource string) (string, error) {
	root, err := html.Parse(strings.NewReader(htmlSource))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeHTMLConversion, "failed to parse bill HTML")
	}

	var headerParts []string
	var bodyLines []string

	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			tag := strings.ToLower(n.Data)
			if tag == "script" || tag == "style" {
				return
			}
			if tag == "p" || tag == "td" {
				if cls := matchClass(n, headerClasses); cls != "" {
					if text := collapseInline(elementText(n)); text != "" {
						headerParts = append(headerParts, text)
					}
					return
				}
			}
			if tag == "p" {
				if cls := matchClass(n, contentClasses); cls != "" {
					c.appendBodyLine(&bodyLines, cls, elementText(n), len(headerParts) > 0)
					return
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			visit(child)
		}
	}
	visit(root)

	lines := assembleHeader(headerParts)
	lines = append(lines, bodyLines...)

	text := strings.Join(lines, "\n")
	text = strings.ReplaceAll(text, " ", " ")
	text = multiSpaceRe.ReplaceAllString(text, " ")
	text = excessNewlinesRe.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	c.logger.Debug("bill html converted",
		"header_parts", len(headerParts),
		"body_lines", len(bodyLines),
		"chars", len(text),
	)
	return text, nil
}

func (c *htmlConverter) appendBodyLine(lines *[]string, class, raw string, headerPresent bool) {
	text := collapseInline(raw)
	if text == "" {
		return
	}
	switch class {
	case "ABILLFORANACT":
		// The assembled header block already ends with this line.
		if !headerPresent {
			*lines = append(*lines, text)
		}
	case "ReportTitle":
		*lines = append(*lines, "Report Title:", text)
	case "Description":
		*lines = append(*lines, "Description:", text)
	default:
		*lines = append(*lines, text)
	}
}

// assembleHeader joins a measure-number cell onto its preceding "NO."
// prefix cell and closes a non-empty heading with the act line.
func assembleHeader(parts []string) []string {
	lines := []string{}
	for i := 0; i < len(parts); i++ {
		line := parts[i]
		if i+1 < len(parts) && measureNoRe.MatchString(line) {
			line = line + " " + parts[i+1]
			i++
		}
		lines = append(lines, line)
	}
	if len(lines) > 0 {
		lines = append(lines, "", "A BILL FOR AN ACT")
	}
	return lines
}

// matchClass returns the first class on the node present in the given set.
func matchClass(n *html.Node, set map[string]bool) string {
	for _, attr := range n.Attr {
		if !strings.EqualFold(attr.Key, "class") {
			continue
		}
		for _, cls := range strings.Fields(attr.Val) {
			if set[cls] {
				return cls
			}
		}
	}
	return ""
}

// elementText flattens every text node under the element, skipping the
// Word markup carriers (o:p) that hold no prose.
func elementText(n *html.Node) string {
	var sb strings.Builder
	var flatten func(n *html.Node)
	flatten = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			return
		}
		if n.Type == html.ElementNode {
			switch strings.ToLower(n.Data) {
			case "script", "style", "o:p":
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			flatten(child)
		}
	}
	flatten(n)
	return sb.String()
}

// collapseInline normalizes non-breaking spaces, collapses whitespace
// runs to single spaces, and trims the result.
func collapseInline(text string) string {
	text = strings.ReplaceAll(text, " ", " ")
	text = spaceRunRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

var _ HTMLConverter = (*htmlConverter)(nil)
