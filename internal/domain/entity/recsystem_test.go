package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecsystem_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rs      Recsystem
		wantErr bool
	}{
		{
			name:    "valid, no token yet",
			rs:      Recsystem{Name: "baseline-rec", IsBaseline: true},
			wantErr: false,
		},
		{
			name:    "valid with token",
			rs:      Recsystem{Name: "acme-rec", TokenID: "0123456789abcdef0123456789abcdef01234567"[:40]},
			wantErr: false,
		},
		{
			name:    "missing name",
			rs:      Recsystem{},
			wantErr: true,
		},
		{
			name:    "malformed token",
			rs:      Recsystem{Name: "acme-rec", TokenID: "not-hex"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rs.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
