package report

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// LinesPerPage is the content budget per page; the footer sits below
// it.
const LinesPerPage = 40

// sectionLead is how many lines of a section must fit on the current
// page for the section to start there: title, underline, column
// header and the first row. Shorter remainders push the whole section
// to the next page.
const sectionLead = 4

// RenderText renders the document as paginated plain text. Every page
// carries a right-aligned "Page N of M" footer; rows are atomic and
// never split across pages.
func RenderText(doc Document) (string, error) {
	blocks, err := layout(doc)
	if err != nil {
		return "", err
	}

	pages := paginate(blocks)
	width := maxWidth(blocks)

	var b strings.Builder
	for i, page := range pages {
		for _, line := range page {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		for pad := len(page); pad < LinesPerPage; pad++ {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%*s\n", width, fmt.Sprintf("Page %d of %d", i+1, len(pages)))
		if i < len(pages)-1 {
			b.WriteByte('\f')
		}
	}
	return b.String(), nil
}

// layout turns the document into line blocks: the header block, then
// one block per section. Blocks are the unit the paginator reasons
// about.
func layout(doc Document) ([][]string, error) {
	header := []string{
		doc.Title,
		strings.Repeat("=", len(doc.Title)),
		"Generated: " + doc.GeneratedAt.Format("2006-01-02 15:04"),
	}
	if doc.Period != "" {
		header = append(header, "Period: "+doc.Period)
	}
	if doc.Specialty != "" {
		header = append(header, "Specialty: "+doc.Specialty)
	}
	header = append(header, "")

	blocks := [][]string{header}
	for _, s := range doc.Sections {
		block, err := layoutSection(s)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

func layoutSection(s Section) ([]string, error) {
	lines := []string{
		s.Title,
		strings.Repeat("-", len(s.Title)),
	}

	if len(s.Rows) == 0 {
		lines = append(lines, s.Empty, "")
		return lines, nil
	}

	headers := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		headers[i] = c.Header
	}
	headerLine, err := formatRow(s, headers)
	if err != nil {
		return nil, err
	}
	lines = append(lines, headerLine)

	for i, row := range s.Rows {
		line, err := formatRow(s, row)
		if err != nil {
			return nil, fmt.Errorf("section %q row %d: %w", s.Title, i, err)
		}
		lines = append(lines, line)
	}
	lines = append(lines, "")
	return lines, nil
}

func formatRow(s Section, cells []string) (string, error) {
	if len(cells) != len(s.Columns) {
		return "", fmt.Errorf("section %q: got %d cells, want %d columns", s.Title, len(cells), len(s.Columns))
	}
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", s.Columns[i].Width, truncate(cell, s.Columns[i].Width))
	}
	return strings.TrimRight(strings.Join(parts, "  "), " "), nil
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}

// paginate chunks blocks into pages of at most LinesPerPage lines. A
// block only starts on the current page if its lead fits; rows past
// the lead flow onto following pages.
func paginate(blocks [][]string) [][]string {
	var pages [][]string
	var page []string

	flush := func() {
		if len(page) > 0 {
			pages = append(pages, page)
			page = nil
		}
	}

	for _, block := range blocks {
		lead := sectionLead
		if len(block) < lead {
			lead = len(block)
		}
		if len(page)+lead > LinesPerPage {
			flush()
		}
		for _, line := range block {
			if len(page) == LinesPerPage {
				flush()
			}
			page = append(page, line)
		}
	}
	flush()

	if len(pages) == 0 {
		pages = append(pages, []string{})
	}
	return pages
}

// maxWidth measures in runes, matching how fmt counts string widths.
func maxWidth(blocks [][]string) int {
	width := 0
	for _, block := range blocks {
		for _, line := range block {
			if n := utf8.RuneCountInString(line); n > width {
				width = n
			}
		}
	}
	return width
}
