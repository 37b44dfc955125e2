package compose_test

import (
	"strings"
	"testing"

	"github.com/jhillyerd/enmime/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/massreply/massreply/pkg/banner"
	"github.com/massreply/massreply/pkg/compose"
)

var testBanner = banner.Banner{
	HTML: "<hr/>HTML BANNER<br/>",
	Text: "TEXT BANNER",
}

func transformString(t *testing.T, raw string) *compose.Body {
	t.Helper()
	env, err := enmime.ReadEnvelope(strings.NewReader(raw))
	require.NoError(t, err, "test message must parse")
	return compose.Transform(env, testBanner)
}

func TestPlainOnlyMessage(t *testing.T) {
	body := transformString(t,
		"From: a@test\r\n"+
			"Subject: x\r\n"+
			"Content-Type: text/plain\r\n"+
			"\r\n"+
			"original text\r\n")
	require.NotNil(t, body.Text)
	assert.Nil(t, body.HTML)
	assert.True(t, strings.HasPrefix(*body.Text, "TEXT BANNER\n"),
		"text body must be seeded with the banner")
	assert.Contains(t, *body.Text, "original text")
}

func TestAlternativeMessage(t *testing.T) {
	raw := "From: a@test\r\n" +
		"Subject: x\r\n" +
		"Content-Type: multipart/alternative; boundary=BOUND\r\n" +
		"\r\n" +
		"--BOUND\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"plain version\r\n" +
		"--BOUND\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>html version</p>\r\n" +
		"--BOUND--\r\n"
	body := transformString(t, raw)
	require.NotNil(t, body.Text)
	require.NotNil(t, body.HTML)
	assert.Contains(t, *body.Text, "plain version")
	assert.True(t, strings.HasPrefix(*body.HTML, "<hr/>HTML BANNER<br/>"),
		"html body must be seeded with the banner")
	assert.Contains(t, *body.HTML, "<blockquote><p>html version</p>")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(*body.HTML), "</blockquote>"))
}

func TestAttachmentStripped(t *testing.T) {
	payload := strings.Repeat("a", 1234)
	raw := "From: a@test\r\n" +
		"Subject: x\r\n" +
		"Content-Type: multipart/mixed; boundary=BOUND\r\n" +
		"\r\n" +
		"--BOUND\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"see attached\r\n" +
		"--BOUND\r\n" +
		"Content-Type: application/pdf; name=report.pdf\r\n" +
		"Content-Disposition: attachment; filename=report.pdf\r\n" +
		"Content-Transfer-Encoding: 7bit\r\n" +
		"\r\n" +
		payload + "\r\n" +
		"--BOUND--\r\n"
	body := transformString(t, raw)
	require.NotNil(t, body.Text)
	assert.Contains(t, *body.Text, "report.pdf")
	assert.Contains(t, *body.Text, "application/pdf")
	assert.Contains(t, *body.Text, "1234")
	assert.Contains(t, *body.Text, "Attachment removed:")
	// No disposition metadata survives into the composed body.
	assert.NotContains(t, *body.Text, "Content-Disposition")
	assert.NotContains(t, *body.Text, payload)
}

func TestNestedPartsAllQuoted(t *testing.T) {
	raw := "From: a@test\r\n" +
		"Subject: x\r\n" +
		"Content-Type: multipart/mixed; boundary=OUTER\r\n" +
		"\r\n" +
		"--OUTER\r\n" +
		"Content-Type: multipart/alternative; boundary=INNER\r\n" +
		"\r\n" +
		"--INNER\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"first plain\r\n" +
		"--INNER\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<b>first html</b>\r\n" +
		"--INNER--\r\n" +
		"--OUTER\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"second plain\r\n" +
		"--OUTER--\r\n"
	body := transformString(t, raw)
	require.NotNil(t, body.Text)
	require.NotNil(t, body.HTML)
	first := strings.Index(*body.Text, "first plain")
	second := strings.Index(*body.Text, "second plain")
	require.GreaterOrEqual(t, first, 0)
	require.Greater(t, second, first, "parts must be appended in tree order")
	assert.Contains(t, *body.HTML, "<blockquote><b>first html</b>")
}

func TestUndecodablePartGetsPlaceholder(t *testing.T) {
	raw := "From: a@test\r\n" +
		"Subject: x\r\n" +
		"Content-Type: multipart/mixed; boundary=BOUND\r\n" +
		"\r\n" +
		"--BOUND\r\n" +
		"Content-Type: text/plain; charset=no-such-charset\r\n" +
		"\r\n" +
		"secret payload\r\n" +
		"--BOUND\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"readable part\r\n" +
		"--BOUND--\r\n"
	body := transformString(t, raw)
	require.NotNil(t, body.Text)
	// The bad part fails alone; the rest of the message survives.
	assert.Contains(t, *body.Text, "[decoding error:")
	assert.NotContains(t, *body.Text, "secret payload")
	assert.Contains(t, *body.Text, "readable part")
}

func TestNoBodies(t *testing.T) {
	raw := "From: a@test\r\n" +
		"Subject: x\r\n" +
		"Content-Type: multipart/mixed; boundary=BOUND\r\n" +
		"\r\n" +
		"--BOUND\r\n" +
		"Content-Type: image/png\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"aGVsbG8=\r\n" +
		"--BOUND--\r\n"
	body := transformString(t, raw)
	assert.Nil(t, body.Text)
	assert.Nil(t, body.HTML)
}
