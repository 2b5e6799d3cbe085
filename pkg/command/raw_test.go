package command

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRaw(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    ParsedRaw
		wantErr bool
	}{
		{
			name: "valid single stage",
			raw:  "firstStage 3\nlastStage 3\nnumReportingIntervals 10\n",
			want: ParsedRaw{FirstStage: 3, LastStage: 3, NumReportingIntervals: 10},
		},
		{
			name: "keys are case insensitive",
			raw:  "FIRSTSTAGE 1\nlaststage 1\nNumReportingIntervals 5\n",
			want: ParsedRaw{FirstStage: 1, LastStage: 1, NumReportingIntervals: 5},
		},
		{
			name: "extra spacing tolerated",
			raw:  "  firstStage   2\nlastStage  2\nnumReportingIntervals  1\nother stuff here\n",
			want: ParsedRaw{FirstStage: 2, LastStage: 2, NumReportingIntervals: 1},
		},
		{
			name:    "missing firstStage",
			raw:     "lastStage 3\nnumReportingIntervals 10\n",
			wantErr: true,
		},
		{
			name:    "missing numReportingIntervals",
			raw:     "firstStage 3\nlastStage 3\n",
			wantErr: true,
		},
		{
			name:    "multi-stage span rejected",
			raw:     "firstStage 3\nlastStage 4\nnumReportingIntervals 10\n",
			wantErr: true,
		},
		{
			name:    "non-positive first stage",
			raw:     "firstStage 0\nlastStage 0\nnumReportingIntervals 10\n",
			wantErr: true,
		},
		{
			name:    "non-positive intervals",
			raw:     "firstStage 1\nlastStage 1\nnumReportingIntervals 0\n",
			wantErr: true,
		},
		{
			name:    "non-numeric value",
			raw:     "firstStage one\nlastStage 1\nnumReportingIntervals 10\n",
			wantErr: true,
		},
		{
			name:    "empty payload",
			raw:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRaw(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteRaw(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.txt")
	raw := "firstStage 1\nlastStage 1\nnumReportingIntervals 10\n"

	require.NoError(t, WriteRaw(path, raw))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, raw, string(b))
}
