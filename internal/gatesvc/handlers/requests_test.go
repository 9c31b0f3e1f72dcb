package handlers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexStrings(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want flexStrings
	}{
		{"list", `["010","011"]`, flexStrings{"010", "011"}},
		{"numbers", `[10, 11]`, flexStrings{"10", "11"}},
		{"single", `"010"`, flexStrings{"010"}},
		{"comma list", `"010,011"`, flexStrings{"010", "011"}},
		{"null", `null`, nil},
		{"empty string", `""`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got flexStrings
			require.NoError(t, json.Unmarshal([]byte(tt.in), &got))
			assert.Equal(t, tt.want, got)
		})
	}

	var got flexStrings
	assert.Error(t, json.Unmarshal([]byte(`[{"id":1}]`), &got))
}

func TestFlexInt(t *testing.T) {
	for in, want := range map[string]flexInt{`3`: 3, `"3"`: 3, `" 4 "`: 4, `""`: 0, `null`: 0} {
		var got flexInt
		require.NoError(t, json.Unmarshal([]byte(in), &got), in)
		assert.Equal(t, want, got, in)
	}

	var got flexInt
	assert.Error(t, json.Unmarshal([]byte(`"three"`), &got))
}

func TestCheckinBodyAcceptsBothShapes(t *testing.T) {
	var wrapped checkinBody
	require.NoError(t, json.Unmarshal([]byte(`{"VisitorSessionInfo":{"PhoneNumber":" 0911 ","GroupSize":"2","IdCards":"010,011"}}`), &wrapped))
	req := wrapped.request()
	assert.Equal(t, "0911", req.PhoneNumber)
	assert.Equal(t, 2, req.GroupSize)
	assert.Equal(t, []string{"010", "011"}, req.IDCards)

	var flat checkinBody
	require.NoError(t, json.Unmarshal([]byte(`{"PhoneNumber":"0922","GroupSize":1,"IdCards":["001"]}`), &flat))
	req = flat.request()
	assert.Equal(t, "0922", req.PhoneNumber)
	assert.Equal(t, []string{"001"}, req.IDCards)
}
