package sources

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const sampleSRT = `1
00:00:01,000 --> 00:00:03,000
大家好，今天聊聊睡眠

2
00:00:03,500 --> 00:00:06,000
第一个观点：
熬夜会透支身体

3
00:00:06,500 --> 00:00:08,000
所以要早睡
`

func TestParseSRT(t *testing.T) {
	text, err := ParseSRT(strings.NewReader(sampleSRT))
	require.NoError(t, err)
	assert.Equal(t, "大家好，今天聊聊睡眠\n第一个观点： 熬夜会透支身体\n所以要早睡", text)
}

func TestReadSRT(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.srt")
	require.NoError(t, os.WriteFile(path, []byte(sampleSRT), 0o644))

	text, err := ReadSRT(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "大家好"))

	_, err = ReadSRT(filepath.Join(t.TempDir(), "missing.srt"))
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.srt", "c.SRT", "b.srt", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "d.srt"), 0o755))

	files, err := List(dir, ".srt")
	require.NoError(t, err)
	var names []string
	for _, f := range files {
		names = append(names, f.Filename)
	}
	assert.Equal(t, []string{"c.SRT", "b.srt", "a.srt"}, names)

	files, err = List(filepath.Join(dir, "missing"), ".srt")
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.NotNil(t, files)
}

func writeWorkbook(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	path := filepath.Join(t.TempDir(), "demo.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestReadTable(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"月份", "销售额", "备注"},
		{"1月", 1200, "春节|促销"},
		{"2月", 980},
	})

	table, err := ReadTable(path, "")
	require.NoError(t, err)
	assert.Equal(t, "Sheet1", table.Sheet)
	assert.Equal(t, 2, table.RowCount())
	assert.Equal(t, 3, table.ColumnCount())
	assert.Equal(t, []string{"2月", "980", ""}, table.Rows[1])

	want := "| 月份 | 销售额 | 备注 |\n" +
		"| --- | --- | --- |\n" +
		"| 1月 | 1200 | 春节\\|促销 |\n" +
		"| 2月 | 980 |  |\n"
	assert.Equal(t, want, table.Markdown())
}

func TestReadTable_Errors(t *testing.T) {
	_, err := ReadTable(filepath.Join(t.TempDir(), "missing.xlsx"), "")
	assert.Error(t, err)

	path := writeWorkbook(t, nil)
	_, err = ReadTable(path, "")
	assert.ErrorIs(t, err, ErrEmptyTable)

	_, err = ReadTable(path, "NoSuchSheet")
	assert.Error(t, err)
}
