package textproc

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/turtacn/LegisGraph/internal/intelligence/common"
)

// ---------------------------------------------------------------------------
// Interfaces
// ---------------------------------------------------------------------------

// Segmenter splits converted bill text into its titled parts and numbered
// enacting sections. Segmentation is best-effort: parts the text does not
// carry stay empty, and text with no section headers yields no sections.
type Segmenter interface {
	Segment(text string) *DocumentSections
}

// ---------------------------------------------------------------------------
// Data structures
// ---------------------------------------------------------------------------

// DocumentSections holds the labeled parts segmented out of a bill.
type DocumentSections struct {
	MeasureTitle string        `json:"measure_title,omitempty"`
	ReportTitle  string        `json:"report_title,omitempty"`
	Description  string        `json:"description,omitempty"`
	Sections     []BillSection `json:"sections"`
}

// BillSection is one numbered enacting section, header line included.
type BillSection struct {
	Number  int    `json:"number"`
	Content string `json:"content"`
}

var (
	newlineRunRe   = regexp.MustCompile(`\n+`)
	measureTitleRe = regexp.MustCompile(`(?i)RELATING TO (.+?)\.`)
	reportTitleRe  = regexp.MustCompile(`Report Title:\s*(.+)`)
	descriptionRe  = regexp.MustCompile(`Description:\s*(.+)`)
	sectionHeadRe  = regexp.MustCompile(`SECTION\s+(\d+)\.`)
)

// ---------------------------------------------------------------------------
// segmenterImpl
// ---------------------------------------------------------------------------

type segmenterImpl struct {
	logger common.Logger
}

// NewSegmenter creates a bill text segmenter.
func NewSegmenter(logger common.Logger) Segmenter {
	if logger == nil {
		logger = common.NewNoopLogger()
	}
	return &segmenterImpl{logger: logger}
}

// Segment collapses blank lines, pulls the measure title, report title,
// and description out by their printed markers, and splits the body at
// each "SECTION n." header. A section runs from its header to the next
// header or the end of the text.
func (s *segmenterImpl) Segment(text string) *DocumentSections {
	text = strings.TrimSpace(newlineRunRe.ReplaceAllString(text, "\n"))

	out := &DocumentSections{Sections: []BillSection{}}
	if m := measureTitleRe.FindStringSubmatch(text); m != nil {
		out.MeasureTitle = "RELATING TO " + strings.TrimSpace(m[1])
	}
	if m := reportTitleRe.FindStringSubmatch(text); m != nil {
		out.ReportTitle = strings.TrimSpace(m[1])
	}
	if m := descriptionRe.FindStringSubmatch(text); m != nil {
		out.Description = strings.TrimSpace(m[1])
	}

	heads := sectionHeadRe.FindAllStringSubmatchIndex(text, -1)
	for i, h := range heads {
		end := len(text)
		if i+1 < len(heads) {
			end = heads[i+1][0]
		}
		num, err := strconv.Atoi(text[h[2]:h[3]])
		if err != nil {
			num = i + 1
		}
		out.Sections = append(out.Sections, BillSection{
			Number:  num,
			Content: strings.TrimSpace(text[h[0]:end]),
		})
	}

	s.logger.Debug("bill text segmented",
		"measure_title", out.MeasureTitle != "",
		"sections", len(out.Sections),
	)
	return out
}

var _ Segmenter = (*segmenterImpl)(nil)
