package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifier(t *testing.T) {
	v := Identifier("roomId", 8)

	tests := []struct {
		name    string
		value   string
		wantErr string
	}{
		{"valid", "room-1", ""},
		{"empty", "", "roomId: this field is required"},
		{"blank", "   ", "roomId: this field is required"},
		{"too long", strings.Repeat("r", 9), "roomId: must be no more than 8 characters"},
		{"spaces", "room 1", "roomId: must not contain spaces"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v(tt.value)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestComposeFirstErrorWins(t *testing.T) {
	v := Compose(Required(), MaxLength(1))

	err := v("")
	require.Error(t, err)
	assert.Equal(t, "this field is required", err.Error())
}

func TestMatchesDefaultMessage(t *testing.T) {
	err := Matches(`^a+$`, "")("b")
	require.Error(t, err)
	assert.Equal(t, "invalid format", err.Error())
}
