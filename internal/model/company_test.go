package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompanyLifecycle(t *testing.T) {
	t.Parallel()

	c := Company{ID: "c1"}
	assert.Equal(t, LifecycleLive, c.Lifecycle())

	now := time.Now()
	c.DeletedAt = &now
	assert.Equal(t, LifecycleTombstoned, c.Lifecycle())
}

func TestParseExecSearchStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    ExecSearchStatus
		wantErr bool
	}{
		{"yes", ExecSearchYes, false},
		{" NO ", ExecSearchNo, false},
		{"unknown", ExecSearchUnknown, false},
		{"maybe", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseExecSearchStatus(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLooseExecSearchStatus(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ExecSearchYes, LooseExecSearchStatus("Yes"))
	assert.Equal(t, ExecSearchUnknown, LooseExecSearchStatus("probably"))
	assert.False(t, ExecSearchUnknown.IsSet())
	assert.True(t, ExecSearchNo.IsSet())
}

func TestRecordPatchValidate(t *testing.T) {
	t.Parallel()
	bad := ExecSearchStatus("perhaps")
	assert.Error(t, RecordPatch{ExecSearchStatus: &bad}.Validate())

	good := ExecSearchYes
	assert.NoError(t, RecordPatch{ExecSearchStatus: &good}.Validate())
	assert.NoError(t, RecordPatch{}.Validate())
}
