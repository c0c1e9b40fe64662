package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractText(t *testing.T) {
	tests := []struct {
		name   string
		blocks []Block
		want   string
	}{
		{"empty", nil, ""},
		{"single", []Block{{Type: "text", Text: "hello"}}, "hello"},
		{"joins in order", []Block{{Type: "text", Text: "a"}, {Type: "text", Text: "b"}}, "a\nb"},
		{"drops non-text", []Block{{Type: "tool_use"}, {Type: "text", Text: "a"}, {Type: "thinking", Text: "hidden"}, {Type: "text", Text: "c"}}, "a\nc"},
		{"only non-text", []Block{{Type: "image"}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractText(tt.blocks))
		})
	}
}

func TestResponseText_Nil(t *testing.T) {
	var r *Response
	assert.Equal(t, "", r.Text())
}
