package render

import (
	"strings"
	"testing"
)

const (
	tableOpen  = `<div class="table-container"><table class="ai-markdown-table">`
	tableClose = `</table></div>`
)

func TestConvertTableWithHeader(t *testing.T) {
	got := ConvertTable([]string{"|A|B|", "|--|--|", "|1|2|"})
	want := tableOpen +
		"<tr><th>A</th><th>B</th></tr>" +
		"<tr><td>1</td><td>2</td></tr>" +
		tableClose
	if got != want {
		t.Fatalf("ConvertTable() = %q, want %q", got, want)
	}
}

func TestConvertTableWithoutHeader(t *testing.T) {
	got := ConvertTable([]string{"| a | b |", "| c | d |"})
	want := tableOpen +
		"<tr><td>a</td><td>b</td></tr>" +
		"<tr><td>c</td><td>d</td></tr>" +
		tableClose
	if got != want {
		t.Fatalf("ConvertTable() = %q, want %q", got, want)
	}
}

func TestConvertTableAlignmentSeparator(t *testing.T) {
	got := ConvertTable([]string{"| Name | Qty |", "|:---|---:|", "| pen | 2 |", "| ink | 5 |"})
	if !strings.Contains(got, "<tr><th>Name</th><th>Qty</th></tr>") {
		t.Fatalf("missing header row: %q", got)
	}
	if strings.Count(got, "<tr>") != 3 {
		t.Fatalf("row count = %d, want 3 (separator skipped): %q", strings.Count(got, "<tr>"), got)
	}
	if strings.Contains(got, "---") {
		t.Fatalf("separator leaked into output: %q", got)
	}
}

func TestConvertTableTooShort(t *testing.T) {
	if got := ConvertTable([]string{"|x|"}); got != "|x|" {
		t.Fatalf("ConvertTable() = %q, want passthrough", got)
	}
	if got := ConvertTable(nil); got != "" {
		t.Fatalf("ConvertTable(nil) = %q, want empty", got)
	}
}

func TestProcessTables(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "no pipes",
			in:   "just text\nmore",
			want: "just text\nmore",
		},
		{
			name: "single candidate line is not a table",
			in:   "|x|",
			want: "|x|",
		},
		{
			name: "single candidate line followed by text",
			in:   "|x|\nafter",
			want: "|x|\nafter",
		},
		{
			name: "closing line is re-emitted",
			in:   "intro\n|A|B|\n|--|--|\n|1|2|\nafter",
			want: "intro\n" + tableOpen + "<tr><th>A</th><th>B</th></tr><tr><td>1</td><td>2</td></tr>" + tableClose + "\nafter",
		},
		{
			name: "run open at end of input is still converted",
			in:   "|A|B|\n|1|2|",
			want: tableOpen + "<tr><td>A</td><td>B</td></tr><tr><td>1</td><td>2</td></tr>" + tableClose,
		},
		{
			name: "indented rows are trimmed",
			in:   "  |A|  \n  |-|  ",
			want: tableOpen + "<tr><th>A</th></tr>" + tableClose,
		},
		{
			name: "two separate tables",
			in:   "|a|\n|b|\n\n|c|\n|d|",
			want: tableOpen + "<tr><td>a</td></tr><tr><td>b</td></tr>" + tableClose + "\n\n" +
				tableOpen + "<tr><td>c</td></tr><tr><td>d</td></tr>" + tableClose,
		},
		{
			name: "pipe inside prose is not a row",
			in:   "a | b\n|c|",
			want: "a | b\n|c|",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := ProcessTables(tc.in)
			if got != tc.want {
				t.Fatalf("ProcessTables(%q) =\n%q\nwant\n%q", tc.in, got, tc.want)
			}
		})
	}
}

func TestMarkdownTableEndToEnd(t *testing.T) {
	got := Markdown("Results:\n|A|B|\n|--|--|\n|1|2|\nDone **now**")
	want := "Results:<br>" + tableOpen +
		"<tr><th>A</th><th>B</th></tr><tr><td>1</td><td>2</td></tr>" +
		tableClose + "<br>Done <strong>now</strong>"
	if got != want {
		t.Fatalf("Markdown() =\n%q\nwant\n%q", got, want)
	}
}

func TestMarkdownSingleRowKeepsPipes(t *testing.T) {
	got := Markdown("|x|")
	if strings.Contains(got, "<table") {
		t.Fatalf("Markdown(%q) = %q, want no table", "|x|", got)
	}
	if got != "|x|" {
		t.Fatalf("Markdown(%q) = %q, want passthrough", "|x|", got)
	}
}

func TestClassifyLine(t *testing.T) {
	cases := []struct {
		line    string
		inTable bool
		want    lineClass
	}{
		{"|a|b|", false, lineCandidate},
		{"|--|--|", false, lineCandidate},
		{"|--|--|", true, lineSeparator},
		{"| :-: |", true, lineSeparator},
		{"text", true, lineOther},
		{"|open", false, lineOther},
		{"", false, lineOther},
	}
	for _, tc := range cases {
		if got := classifyLine(tc.line, tc.inTable); got != tc.want {
			t.Fatalf("classifyLine(%q, %v) = %d, want %d", tc.line, tc.inTable, got, tc.want)
		}
	}
}
