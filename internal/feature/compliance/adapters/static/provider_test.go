package static

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance_screener/internal/feature/compliance/domain"
)

const sample = `ticker,is_compliant,reasons,source,last_updated
AAPL,True,,manual,2026-01-03
jpm,False,Conventional bank|Interest income,manual,2026-01-03
XYZ,,,,
`

func TestLoad(t *testing.T) {
	t.Parallel()

	p, err := Load(strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, 3, p.Len())

	tests := []struct {
		symbol      string
		wantStatus  string
		wantReasons []string
		wantSource  string
	}{
		{"AAPL", "compliant", nil, "manual"},
		{"JPM", "not-compliant", []string{"Conventional bank", "Interest income"}, "manual"},
		{"xyz", "questionable", nil, Name},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			t.Parallel()

			rep, err := p.Fetch(context.Background(), tt.symbol)
			require.NoError(t, err)
			require.NotNil(t, rep)
			assert.Equal(t, tt.wantStatus, rep.RawStatus)
			assert.Equal(t, tt.wantReasons, rep.Reasons)
			assert.Equal(t, tt.wantSource, rep.Source)
		})
	}

	rep, err := p.Fetch(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, rep.ReportDate.Equal(time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)))
}

func TestFetch_UnknownSymbol(t *testing.T) {
	t.Parallel()

	p, err := Load(strings.NewReader(sample))
	require.NoError(t, err)

	rep, err := p.Fetch(context.Background(), "GOOGL")
	require.NoError(t, err)
	assert.Nil(t, rep)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"missing column", "ticker,reasons\nAAPL,\n"},
		{"bad bool", "ticker,is_compliant\nAAPL,maybe\n"},
		{"bad date", "ticker,is_compliant,reasons,source,last_updated\nAAPL,true,,,03/01/2026\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Load(strings.NewReader(tt.data))
			assert.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "compliance.csv")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	p, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Len())

	empty, err := Open(filepath.Join(dir, "missing.csv"))
	require.NoError(t, err)
	assert.Zero(t, empty.Len())
}
