package core

// ContentBlock is one unit of assistant or tool-result content. It is a
// closed union: TextBlock, ImageBlock and ReasoningBlock are the only
// variants.
type ContentBlock interface {
	isContentBlock()
}

// TextBlock carries plain assistant text.
type TextBlock struct {
	Text string `json:"text"`
}

func (TextBlock) isContentBlock() {}

// ImageSource describes inline image data in provider wire format
// (base64 payload plus media type).
type ImageSource struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ImageBlock carries an inline image, e.g. a screenshot returned by a tool.
type ImageBlock struct {
	Source ImageSource `json:"source"`
}

func (ImageBlock) isContentBlock() {}

// ReasoningBlock carries model reasoning (extended thinking) text. Blocks are
// keyed by the provider-assigned ReasoningID so interleaved reasoning streams
// stay separable.
type ReasoningBlock struct {
	Text        string `json:"text"`
	ReasoningID string `json:"reasoning_id,omitempty"`
}

func (ReasoningBlock) isContentBlock() {}

// TextOf concatenates the text of all TextBlock entries in blocks.
func TextOf(blocks []ContentBlock) string {
	var out string
	for _, b := range blocks {
		if tb, ok := b.(TextBlock); ok {
			out += tb.Text
		}
	}
	return out
}
