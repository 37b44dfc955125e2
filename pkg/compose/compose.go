// Package compose walks a message's MIME tree and produces the quoted,
// attachment-stripped text and HTML bodies for a reply.
package compose

import (
	"fmt"
	"strings"

	"github.com/jhillyerd/enmime/v2"

	"github.com/massreply/massreply/pkg/banner"
)

// Body holds the composed reply bodies. A side is nil when the original
// message had no corresponding MIME part.
type Body struct {
	Text *string
	HTML *string
}

// Transform walks every part of the message depth-first and assembles the
// quoted bodies under the rendered banner. The input tree is never modified;
// stripped attachments become plain-text placeholders in the output.
func Transform(env *enmime.Envelope, b banner.Banner) *Body {
	c := &composer{banner: b}
	c.walk(env.Root)
	return &Body{Text: c.text, HTML: c.html}
}

type composer struct {
	banner banner.Banner
	text   *string
	html   *string
}

func (c *composer) walk(p *enmime.Part) {
	if p == nil {
		return
	}
	c.visit(p)
	c.walk(p.FirstChild)
	c.walk(p.NextSibling)
}

func (c *composer) visit(p *enmime.Part) {
	if strings.HasPrefix(p.Disposition, "attachment") {
		c.appendText(attachmentPlaceholder(p))
		return
	}
	switch {
	case strings.HasPrefix(p.ContentType, "text/plain"):
		c.appendText(partContent(p))
	case strings.HasPrefix(p.ContentType, "text/html"):
		c.appendHTML(partContent(p))
	}
}

// appendText adds one plain-text fragment, seeding the body with the text
// banner on first use. Every fragment is preceded by a newline.
func (c *composer) appendText(fragment string) {
	if c.text == nil {
		seed := c.banner.Text
		c.text = &seed
	}
	*c.text += "\n" + fragment
}

// appendHTML adds one HTML fragment wrapped in its own blockquote, seeding
// the body with the HTML banner on first use.
func (c *composer) appendHTML(fragment string) {
	if c.html == nil {
		seed := c.banner.HTML
		c.html = &seed
	}
	*c.html += "<blockquote>" + fragment + "</blockquote>"
}

// partContent returns the decoded part content, or an error placeholder when
// the declared charset could not decode the payload. enmime records failed
// conversions as non-severe warnings and keeps its best-effort bytes, so the
// charset error is matched by name. A bad part never fails the message.
func partContent(p *enmime.Part) string {
	for _, e := range p.Errors {
		if e.Severe || e.Name == enmime.ErrorCharsetConversion {
			return fmt.Sprintf("[decoding error: %v]", e.Name)
		}
	}
	return string(p.Content)
}

// attachmentPlaceholder formats the marker that replaces a stripped
// attachment; the byte count is measured on the decoded payload.
func attachmentPlaceholder(p *enmime.Part) string {
	return fmt.Sprintf("Attachment removed: %v (%v, %d bytes)",
		p.FileName, p.ContentType, len(p.Content))
}
