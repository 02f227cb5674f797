package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() Report {
	return Report{
		Title:   "Expense Report",
		Headers: []string{"ID", "Amount", "Status"},
		Rows: []map[string]string{
			{"ID": "e1", "Amount": "42.50", "Status": "Approved"},
			{"ID": "e2", "Amount": "97.50", "Status": "Pending"},
		},
		Summary: []string{"2 claims, 140.00 total"},
	}
}

func TestCSVRenderIncludesRowsAndSummary(t *testing.T) {
	payload, err := NewCSVExporter().Render(sampleReport())
	require.NoError(t, err)

	out := string(payload)
	assert.Contains(t, out, "ID,Amount,Status\n")
	assert.Contains(t, out, "e1,42.50,Approved\n")
	assert.Contains(t, out, "e2,97.50,Pending\n")
	assert.Contains(t, out, "\"2 claims, 140.00 total\"\n")
}

func TestCSVRenderRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Report{})
	require.Error(t, err)
}

func TestPDFRenderProducesDocument(t *testing.T) {
	payload, err := NewPDFExporter().Render(sampleReport())
	require.NoError(t, err)
	assert.True(t, len(payload) > 0)
	assert.Equal(t, "%PDF", string(payload[:4]))
}

func TestPDFRenderRequiresHeaders(t *testing.T) {
	_, err := NewPDFExporter().Render(Report{})
	require.Error(t, err)
}
