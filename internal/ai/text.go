package ai

import "strings"

// BlockTypeText is the only block type rendered into plain text.
const BlockTypeText = "text"

// Block is one typed piece of a model response.
type Block struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ExtractText joins the text blocks of a response in order, separated by
// newlines. Blocks of any other type are dropped.
func ExtractText(blocks []Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == BlockTypeText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}
