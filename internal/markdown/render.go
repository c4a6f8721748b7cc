// Package markdown renders assistant replies for terminal display.
package markdown

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/glamour/styles"
)

// Renderer wraps a glamour terminal renderer with a cache of finalized
// messages, so re-rendering a chat on every tick only pays for the message
// still streaming.
type Renderer struct {
	glamour *glamour.TermRenderer
	width   int
	cache   map[string]string
}

// NewRenderer creates a renderer wrapping at the given width.
func NewRenderer(width int) (*Renderer, error) {
	gr, err := glamour.NewTermRenderer(
		glamour.WithStyles(customStyle()),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	return &Renderer{
		glamour: gr,
		width:   width,
		cache:   map[string]string{},
	}, nil
}

// Render renders markdown content. Finalized content is cached; pass
// finalized=false while the content is still growing.
func (r *Renderer) Render(content string, finalized bool) string {
	if finalized {
		if rendered, ok := r.cache[content]; ok {
			return rendered
		}
	}
	rendered, err := r.glamour.Render(content)
	if err != nil {
		return content
	}
	rendered = strings.Trim(rendered, "\n")
	if finalized {
		r.cache[content] = rendered
	}
	return rendered
}

// SetWidth updates the wrap width, recreating internals if it changed.
func (r *Renderer) SetWidth(width int) error {
	if r.width == width {
		return nil
	}
	renderer, err := NewRenderer(width)
	if err != nil {
		return err
	}
	*r = *renderer
	return nil
}

// customStyle returns a modified glamour style for cleaner output.
func customStyle() ansi.StyleConfig {
	style := styles.DraculaStyleConfig
	zero := uint(0)
	style.Document.Margin = &zero
	style.CodeBlock.Margin = &zero
	style.CodeBlock.Indent = &zero
	style.CodeBlock.Prefix = ""
	style.CodeBlock.BlockPrefix = ""

	style.Code.Margin = &zero
	style.Code.Indent = &zero
	style.Code.Prefix = ""
	style.Code.Suffix = ""

	style.Paragraph.BlockPrefix = ""
	style.Paragraph.BlockSuffix = ""

	return style
}
