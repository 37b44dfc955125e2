package reply_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/jhillyerd/enmime/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/massreply/massreply/pkg/compose"
	"github.com/massreply/massreply/pkg/reply"
	"github.com/massreply/massreply/pkg/token"
)

func TestNormalizeSubject(t *testing.T) {
	testCases := []struct {
		input string
		want  string
	}{
		{input: "hello", want: "RE: hello"},
		{input: "Re: hello", want: "RE: hello"},
		{input: "Re: Re: hello", want: "RE: hello"},
		{input: "RE: re: Re: hello", want: "RE: hello"},
		{input: "", want: "RE: "},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got := reply.NormalizeSubject(tc.input)
			assert.Equal(t, tc.want, got)
			// Idempotent: normalizing the result changes nothing.
			assert.Equal(t, got, reply.NormalizeSubject(got))
		})
	}
}

func TestResolveRecipient(t *testing.T) {
	assert.Equal(t, "x@test", reply.ResolveRecipient("x@test", "y@test", "z@test"))
	assert.Equal(t, "y@test", reply.ResolveRecipient("", "y@test", "z@test"))
	assert.Equal(t, "z@test", reply.ResolveRecipient("", "", "z@test"))
}

func TestValidateUnknownToken(t *testing.T) {
	opts := reply.Options{
		TextTemplate: "Hello {sendername}",
		HTMLTemplate: "Hello {bogus}",
	}
	err := opts.Validate()
	require.Error(t, err)
	var serr *reply.SubstitutionError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "bogus", serr.Key)

	opts.HTMLTemplate = "Hello {hash}"
	assert.NoError(t, opts.Validate())
}

const origMessage = "From: Jane Doe <j@test>\r\n" +
	"Reply-To: list-bounce@test\r\n" +
	"Message-ID: <abc123@test>\r\n" +
	"Thread-Topic: hello\r\n" +
	"Subject: Re: hello\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"original\r\n"

func buildTestReply(t *testing.T, opts reply.Options) *reply.Message {
	t.Helper()
	env, err := enmime.ReadEnvelope(strings.NewReader(origMessage))
	require.NoError(t, err)
	tok := &token.Tokens{
		From:       "Jane Doe <j@test>",
		ReplyTo:    "list-bounce@test",
		Subject:    "Re: hello",
		SenderName: "Jane Doe",
		Hash:       "0123456789",
	}
	quoted := "QUOTED TEXT"
	quotedHTML := "<blockquote>QUOTED HTML</blockquote>"
	body := &compose.Body{Text: &quoted, HTML: &quotedHTML}
	msg, err := reply.Build(tok, body, env, opts, "robot@test")
	require.NoError(t, err)
	return msg
}

func TestBuildHeadersAndBody(t *testing.T) {
	msg := buildTestReply(t, reply.Options{
		TextTemplate: "Dear {sendername},\nthanks. [{hash}]",
		HTMLTemplate: "<p>Dear {sendername},</p>",
	})
	raw := string(msg.Bytes)

	assert.Equal(t, "robot@test", msg.From, "sender falls back to the transport default")
	assert.Equal(t, "list-bounce@test", msg.To, "Reply-To wins over From")
	assert.Contains(t, raw, "Subject: RE: hello")
	assert.Contains(t, raw, "In-Reply-To: <abc123@test>")
	assert.Contains(t, raw, "References: <abc123@test>")
	assert.Contains(t, raw, "Thread-Topic: hello")
	assert.Contains(t, raw, "Dear Jane Doe,")
	assert.Contains(t, raw, "[0123456789]")
	assert.Contains(t, raw, "QUOTED TEXT")
	assert.Contains(t, raw, "multipart/alternative")
}

func TestBuildSenderOverride(t *testing.T) {
	msg := buildTestReply(t, reply.Options{
		Sender:       "Survey Team <survey@test>",
		ReplyTo:      "answers@test",
		RealTarget:   "sandbox@test",
		TextTemplate: "t",
		HTMLTemplate: "<p>t</p>",
	})
	raw := string(msg.Bytes)

	assert.Equal(t, "robot@test", msg.From,
		"envelope sender stays the transport login")
	assert.Equal(t, "sandbox@test", msg.To, "override beats Reply-To and From")
	assert.Contains(t, raw, "<survey@test>",
		"override applies to the From header only")
	assert.Contains(t, raw, "Reply-To:")
	assert.Contains(t, raw, "answers@test")
}

func TestBuildMissingTokensSubstituteEmpty(t *testing.T) {
	env, err := enmime.ReadEnvelope(strings.NewReader(origMessage))
	require.NoError(t, err)
	tok := &token.Tokens{From: "j@test", Subject: "hello"}
	msg, err := reply.Build(tok, &compose.Body{}, env, reply.Options{
		TextTemplate: "to:[{to}] rt:[{replyto}] sn:[{sendername}]",
		HTMLTemplate: "x",
	}, "robot@test")
	require.NoError(t, err)
	assert.Contains(t, string(msg.Bytes), "to:[] rt:[] sn:[]")
}

func TestBuildRejectsUnknownPlaceholder(t *testing.T) {
	env, err := enmime.ReadEnvelope(strings.NewReader(origMessage))
	require.NoError(t, err)
	tok := &token.Tokens{From: "j@test"}
	_, err = reply.Build(tok, &compose.Body{}, env, reply.Options{
		TextTemplate: "{nope}",
		HTMLTemplate: "x",
	}, "robot@test")
	var serr *reply.SubstitutionError
	require.True(t, errors.As(err, &serr))
}
