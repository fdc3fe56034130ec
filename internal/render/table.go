package render

import (
	"regexp"
	"strings"
)

var (
	separatorRowPattern   = regexp.MustCompile(`^\|[\s\-:|]+\|$`)
	separatorCellsPattern = regexp.MustCompile(`^[\s\-:|]+$`)
)

type lineClass int

const (
	lineOther lineClass = iota
	lineCandidate
	lineSeparator
)

// classifyLine looks at a trimmed line. Separator rows are only recognized
// while a table run is open; outside one they count as plain candidates.
func classifyLine(trimmed string, inTable bool) lineClass {
	if inTable && separatorRowPattern.MatchString(trimmed) {
		return lineSeparator
	}
	if strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|") {
		return lineCandidate
	}
	return lineOther
}

// ProcessTables replaces every run of pipe-delimited lines with an HTML
// table. Runs shorter than two lines are left untouched.
func ProcessTables(text string) string {
	var b strings.Builder
	for _, seg := range splitTables(text) {
		if seg.Kind == KindTable {
			b.WriteString(tableHTML(seg.Rows))
			continue
		}
		b.WriteString(seg.Source)
	}
	return b.String()
}

// ConvertTable renders a closed run of table lines. Fewer than two lines
// are returned joined by newlines, unchanged.
func ConvertTable(lines []string) string {
	rows, ok := convertTable(lines)
	if !ok {
		return strings.Join(lines, "\n")
	}
	return tableHTML(rows)
}

func splitTables(text string) []Segment {
	if !strings.Contains(text, "|") {
		return []Segment{{Kind: KindText, Source: text}}
	}

	lines := strings.Split(text, "\n")
	starts := make([]int, len(lines))
	offset := 0
	for i, line := range lines {
		starts[i] = offset
		offset += len(line) + 1
	}

	var segs []Segment
	textStart := 0
	runFirst := -1

	closeRun := func(end int) {
		startByte := starts[runFirst]
		endByte := starts[end-1] + len(lines[end-1])
		if rows, ok := convertTable(lines[runFirst:end]); ok {
			if startByte > textStart {
				segs = append(segs, Segment{Kind: KindText, Source: text[textStart:startByte]})
			}
			segs = append(segs, Segment{Kind: KindTable, Source: text[startByte:endByte], Rows: rows})
			textStart = endByte
		}
		runFirst = -1
	}

	for i, line := range lines {
		switch classifyLine(strings.TrimSpace(line), runFirst >= 0) {
		case lineCandidate, lineSeparator:
			if runFirst < 0 {
				runFirst = i
			}
		default:
			if runFirst >= 0 {
				closeRun(i)
			}
		}
	}
	if runFirst >= 0 {
		closeRun(len(lines))
	}

	if textStart < len(text) {
		segs = append(segs, Segment{Kind: KindText, Source: text[textStart:]})
	}
	return segs
}

func convertTable(lines []string) ([]Row, bool) {
	if len(lines) < 2 {
		return nil, false
	}

	headerBySecondRow := isSeparatorCells(strings.TrimSpace(lines[1]))
	hasHeader := false
	rows := make([]Row, 0, len(lines))
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if isSeparatorCells(trimmed) {
			hasHeader = true
			continue
		}
		rows = append(rows, Row{
			Header: i == 0 && (hasHeader || headerBySecondRow),
			Cells:  splitCells(trimmed),
		})
	}
	return rows, true
}

func isSeparatorCells(trimmed string) bool {
	return separatorCellsPattern.MatchString(strings.ReplaceAll(trimmed, "|", ""))
}

func splitCells(trimmed string) []string {
	inner := ""
	if len(trimmed) >= 2 {
		inner = trimmed[1 : len(trimmed)-1]
	}
	cells := strings.Split(inner, "|")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

func tableHTML(rows []Row) string {
	var b strings.Builder
	b.WriteString(`<div class="table-container"><table class="ai-markdown-table">`)
	for _, row := range rows {
		tag := "td"
		if row.Header {
			tag = "th"
		}
		b.WriteString("<tr>")
		for _, cell := range row.Cells {
			b.WriteString("<" + tag + ">")
			b.WriteString(cell)
			b.WriteString("</" + tag + ">")
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</table></div>")
	return b.String()
}
