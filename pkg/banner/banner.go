// Package banner renders the quoting header summarizing the original
// message, prefixed to the quoted body in a reply.
package banner

import (
	"github.com/massreply/massreply/pkg/stringutil"
	"github.com/massreply/massreply/pkg/token"
)

// htmlTemplate is the fixed banner markup: rule, field labels, two blank
// lines before the quoted content.
const htmlTemplate = `
<hr/>
<strong>From:</strong> {from}<br/>
<strong>Date:</strong> {date}<br/>
<strong>To:</strong> {to}<br/>
<strong>Subject:</strong> {subject}<br/>
<br/>
<br/>
`

// Banner is the rendered header pair, ready to seed the composed bodies.
type Banner struct {
	HTML string
	Text string
}

// Render produces the HTML banner from the tokens and derives the text
// variant by stripping markup. The tag strip is conservative: any
// angle-bracketed run goes, including literal <...> in token values.
func Render(t *token.Tokens) Banner {
	html := stringutil.ExpandPlaceholders(htmlTemplate, t.Map())
	return Banner{
		HTML: html,
		Text: stringutil.StripTags(html),
	}
}
