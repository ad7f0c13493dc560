// Package blocks converts post HTML into the hierarchical block tree stored
// in documents.
package blocks

import "context"

// Block types.
const (
	TypeParagraph = "Paragraph"
	TypeHeading   = "Heading"
	TypeImage     = "Image"
	TypeVideo     = "Video"
	TypeCode      = "Code"
	TypeWebEmbed  = "WebEmbed"
)

// Values of the "childrenType" attribute. A block without one groups its
// children plainly.
const (
	ChildrenOrdered    = "Ordered"
	ChildrenUnordered  = "Unordered"
	ChildrenBlockquote = "Blockquote"
)

// Annotation types.
const (
	AnnotationBold      = "Bold"
	AnnotationItalic    = "Italic"
	AnnotationUnderline = "Underline"
	AnnotationStrike    = "Strike"
	AnnotationCode      = "Code"
	AnnotationLink      = "Link"
)

// Annotation marks a span of a block's text. Offsets count Unicode code
// points, not bytes.
type Annotation struct {
	Type   string `json:"type"`
	Starts []int  `json:"starts"`
	Ends   []int  `json:"ends"`
	Link   string `json:"link,omitempty"`
}

// Block is one content block.
type Block struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Text        string            `json:"text"`
	Link        string            `json:"link"`
	Revision    string            `json:"revision,omitempty"`
	Attributes  map[string]string `json:"attributes"`
	Annotations []Annotation      `json:"annotations"`
}

// Node is a block with its nested children.
type Node struct {
	Block    Block   `json:"block"`
	Children []*Node `json:"children,omitempty"`
}

// Count returns the number of blocks in the forest, children included.
func Count(nodes []*Node) int {
	n := 0
	for _, node := range nodes {
		n += 1 + Count(node.Children)
	}
	return n
}

// Image is an uploaded image.
type Image struct {
	CID string
	// Width is the intrinsic width in pixels, 0 when unknown.
	Width int
}

// Options are the per-conversion callbacks.
type Options struct {
	// BaseURL resolves relative image and link references.
	BaseURL string

	// UploadImage stores the image at an URL and returns its content id, or
	// an empty CID to keep the original URL. Nil keeps every URL.
	UploadImage func(ctx context.Context, src string) (Image, error)

	// ResolveLink rewrites link targets. Nil keeps them unchanged.
	ResolveLink func(ctx context.Context, href string) (string, error)
}

// Converter turns an HTML fragment into blocks.
type Converter interface {
	Convert(ctx context.Context, html string, opts Options) ([]*Node, error)
}
