package sources

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrEmptyTable is returned when the selected sheet has no header row.
var ErrEmptyTable = errors.New("sources: sheet is empty")

// Table 是从工作表读出的二维文本，首行为表头。
type Table struct {
	Sheet  string
	Header []string
	Rows   [][]string
}

// ReadTable 读取 xlsx 文件中的一个工作表；sheet 为空时取第一个工作表。
func ReadTable(path, sheet string) (Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return Table{}, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return newTable(sheet, rows)
}

func newTable(sheet string, rows [][]string) (Table, error) {
	// 去掉末尾的空行
	for len(rows) > 0 && isBlank(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	if len(rows) == 0 || isBlank(rows[0]) {
		return Table{Sheet: sheet}, ErrEmptyTable
	}
	t := Table{Sheet: sheet, Header: rows[0]}
	for _, r := range rows[1:] {
		row := make([]string, len(t.Header))
		copy(row, r)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// RowCount returns the number of data rows (header excluded).
func (t Table) RowCount() int { return len(t.Rows) }

func (t Table) ColumnCount() int { return len(t.Header) }

// Markdown 渲染为 Markdown 表格，单元格中的 | 与换行会被转义。
func (t Table) Markdown() string {
	var sb strings.Builder
	writeRow(&sb, t.Header)
	sb.WriteString("|")
	for range t.Header {
		sb.WriteString(" --- |")
	}
	sb.WriteString("\n")
	for _, r := range t.Rows {
		writeRow(&sb, r)
	}
	return sb.String()
}

var cellEscaper = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ")

func writeRow(sb *strings.Builder, cells []string) {
	sb.WriteString("|")
	for _, c := range cells {
		sb.WriteString(" ")
		sb.WriteString(cellEscaper.Replace(strings.TrimSpace(c)))
		sb.WriteString(" |")
	}
	sb.WriteString("\n")
}
