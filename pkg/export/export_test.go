package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderCSV(t *testing.T) {
	data, err := RenderCSV(Table{
		Headers: []string{"Semester", "Enrollments"},
		Rows: [][]string{
			{"S1", "4"},
			{"S2", "2"},
		},
	})

	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Semester,Enrollments", lines[0])
	assert.Equal(t, "S1,4", lines[1])
	assert.Equal(t, "S2,2", lines[2])
}

func TestRenderCSVPadsShortRows(t *testing.T) {
	data, err := RenderCSV(Table{
		Headers: []string{"A", "B", "C"},
		Rows:    [][]string{{"only"}},
	})

	require.NoError(t, err)
	assert.Contains(t, string(data), "only,,")
}

func TestRenderCSVRequiresHeaders(t *testing.T) {
	_, err := RenderCSV(Table{})

	assert.Error(t, err)
}

func TestRenderPDF(t *testing.T) {
	data, err := RenderPDF(Table{
		Title:   "Academic year 2025-2026",
		Headers: []string{"Semester", "Enrollments"},
		Rows:    [][]string{{"S1", "4"}},
	})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
}
