package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableData(t *testing.T) {
	table := NewTableData("ID", "NAME", "AVATAR")

	assert.Equal(t, []string{"ID", "NAME", "AVATAR"}, table.Headers())
	assert.Empty(t, table.Rows())

	table.AddRow("1", "banner", "a1b2.png")
	table.AddRow("2", "profile", "")

	rows := table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"1", "banner", "a1b2.png"}, rows[0])
	assert.Equal(t, []string{"2", "profile", ""}, rows[1])
}

func TestPrintTable(t *testing.T) {
	table := NewTableData("Name", "Identifier")
	table.AddRow("banner", "a1b2.png")
	table.AddRow("profile", "c3d4.jpg")

	var buf bytes.Buffer
	err := PrintTable(&buf, table)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "NAME")
	assert.Contains(t, output, "IDENTIFIER")
	assert.Contains(t, output, "banner")
	assert.Contains(t, output, "a1b2.png")
	assert.Contains(t, output, "profile")
	assert.Contains(t, output, "c3d4.jpg")
}

func TestSimpleTable(t *testing.T) {
	pairs := [][2]string{
		{"ID", "42"},
		{"Avatar", "a1b2.png"},
	}

	var buf bytes.Buffer
	err := SimpleTable(&buf, pairs)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "42")
	assert.Contains(t, output, "Avatar")
	assert.Contains(t, output, "a1b2.png")
}
