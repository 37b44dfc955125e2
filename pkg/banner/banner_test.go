package banner_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/massreply/massreply/pkg/banner"
	"github.com/massreply/massreply/pkg/token"
)

func TestRender(t *testing.T) {
	date := time.Date(2020, 3, 2, 10, 30, 0, 0, time.UTC)
	tok := &token.Tokens{
		From:    "Jane Doe <j@test>",
		To:      "list@test",
		Subject: "hello",
		Date:    &date,
	}
	b := banner.Render(tok)

	assert.Contains(t, b.HTML, "<hr/>")
	assert.Contains(t, b.HTML, "<strong>From:</strong> Jane Doe")
	assert.Contains(t, b.HTML, "<strong>Subject:</strong> hello<br/>")
	assert.Contains(t, b.HTML, date.Format(time.RFC1123Z))

	// Text variant has no markup left; the angle-bracket address is a
	// casualty of the conservative tag strip.
	assert.NotContains(t, b.Text, "<")
	assert.Contains(t, b.Text, "From: Jane Doe")
	assert.Contains(t, b.Text, "Subject: hello")
}

func TestRenderNilDate(t *testing.T) {
	b := banner.Render(&token.Tokens{From: "a@test"})
	assert.Contains(t, b.HTML, "<strong>Date:</strong> <br/>")
	assert.Contains(t, b.Text, "Date: ")
}
