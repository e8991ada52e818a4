package qm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/llll-debug/rucbase-go/internal/exec"
	"github.com/llll-debug/rucbase-go/internal/types"
)

// colWidth is spec.md §6's fixed per-column display width.
const colWidth = 16

// formatTable renders rows against cols as spec.md §6's framed,
// pipe-delimited ASCII table: a fixed 16-character column width
// truncated with "..." on overflow, bordered top/bottom/between header
// and body, ending in the "Total record(s): N" trailer.
func formatTable(cols []exec.ColDesc, rows [][]byte) string {
	var sb strings.Builder
	border := frameBorder(len(cols))
	sb.WriteString(border)
	sb.WriteString(frameRow(headerCells(cols)))
	sb.WriteString(border)
	for _, rec := range rows {
		sb.WriteString(frameRow(rowCells(cols, rec)))
	}
	if len(rows) > 0 {
		sb.WriteString(border)
	}
	fmt.Fprintf(&sb, "Total record(s): %d\n", len(rows))
	return sb.String()
}

func headerCells(cols []exec.ColDesc) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		if c.Table != "" && c.Table != c.Alias {
			out[i] = c.Alias + "." + c.Name
		} else {
			out[i] = c.Name
		}
	}
	return out
}

func rowCells(cols []exec.ColDesc, rec []byte) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		v := types.Decode(rec[c.Offset:c.Offset+c.Length], c.Type)
		out[i] = cellText(v)
	}
	return out
}

func cellText(v types.Value) string {
	switch v.Type {
	case types.TypeInt:
		return strconv.FormatInt(int64(v.I), 10)
	case types.TypeFloat:
		return strconv.FormatFloat(float64(v.F), 'f', -1, 32)
	case types.TypeChar:
		return strings.TrimRight(string(v.S), "\x00")
	default:
		return ""
	}
}

func truncateCell(s string) string {
	if len(s) <= colWidth {
		return s
	}
	if colWidth <= 3 {
		return s[:colWidth]
	}
	return s[:colWidth-3] + "..."
}

func frameBorder(n int) string {
	seg := "+" + strings.Repeat("-", colWidth+2)
	return strings.Repeat(seg, n) + "+\n"
}

func frameRow(cells []string) string {
	var sb strings.Builder
	for _, c := range cells {
		c = truncateCell(c)
		sb.WriteString("| ")
		sb.WriteString(c)
		sb.WriteString(strings.Repeat(" ", colWidth-len(c)))
		sb.WriteString(" ")
	}
	sb.WriteString("|\n")
	return sb.String()
}

// formatRows renders a plain (header, rows) string table for
// introspection statements (SHOW TABLES / SHOW INDEX FROM / DESC),
// which have no exec.ColDesc tuple to draw from.
func formatRows(headers []string, rows [][]string) string {
	var sb strings.Builder
	n := len(headers)
	border := frameBorder(n)
	sb.WriteString(border)
	sb.WriteString(frameRow(headers))
	sb.WriteString(border)
	for _, r := range rows {
		sb.WriteString(frameRow(r))
	}
	if len(rows) > 0 {
		sb.WriteString(border)
	}
	fmt.Fprintf(&sb, "Total record(s): %d\n", len(rows))
	return sb.String()
}
