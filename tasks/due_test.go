package tasks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "20240520", want: "20240520"},
		{in: "20240520T100000Z", want: "20240520T100000Z"},
		{in: "20240520T100000", want: "20240520T100000"},
		{in: "2024-05-20", want: "20240520"},
		{in: "2024-05-20T10:00:00+02:00", want: "20240520T080000Z"},
		{in: "tomorrow", want: "20240511"},
		{in: "tomorrow at 5pm", want: "20240511T170000Z"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDue(tt.in, fixedNow)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDueUnknown(t *testing.T) {
	_, err := ParseDue("qwerty uiop", fixedNow)
	assert.ErrorIs(t, err, ErrUnknownDate)
}
