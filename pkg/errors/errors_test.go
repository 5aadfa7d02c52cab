package errors

import (
	"io"
	"testing"
	"time"

	"github.com/go-lark/lark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureReporter struct {
	reported []error
}

func (c *captureReporter) Report(err error) {
	c.reported = append(c.reported, err)
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "noop"))
	assert.Nil(t, WrapAndReport(nil, "noop"))
	assert.Nil(t, WrapfAndReport(nil, "noop %d", 1))
	assert.Nil(t, WithStackAndReport(nil))
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrapf(io.EOF, "read frame %d", 3)
	require.Error(t, err)
	assert.True(t, Is(err, io.EOF))
	assert.Equal(t, io.EOF, Cause(err))
	assert.Equal(t, "read frame 3: EOF", err.Error())
}

func TestReportGoesToRegisteredReporters(t *testing.T) {
	t.Setenv(debugMode, "")
	ResetReporters()
	defer ResetReporters()
	c := &captureReporter{}
	AddReporter(c)

	_ = WrapAndReport(io.ErrUnexpectedEOF, "decode")
	_ = NewWithReport("boom")
	_ = Wrap(io.EOF, "not reported")

	require.Len(t, c.reported, 2)
	assert.Equal(t, "decode: unexpected EOF", c.reported[0].Error())
	assert.Equal(t, "boom", c.reported[1].Error())
}

func TestDebugModeDisablesReport(t *testing.T) {
	t.Setenv(debugMode, "1")
	ResetReporters()
	defer ResetReporters()
	c := &captureReporter{}
	AddReporter(c)

	_ = ErrorfAndReport("silenced %v", 1)
	assert.Empty(t, c.reported)
}

func TestStackBasedRateLimited(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newRateLimiter(time.Minute)
	l.now = func() time.Time { return now }

	limited, stats := l.StackBasedRateLimited("a")
	assert.False(t, limited)
	assert.Nil(t, stats.lastReportTime)

	now = now.Add(10 * time.Second)
	limited, _ = l.StackBasedRateLimited("a")
	assert.True(t, limited)
	limited, _ = l.StackBasedRateLimited("b")
	assert.False(t, limited, "other stacks are tracked separately")

	now = now.Add(time.Minute)
	limited, stats = l.StackBasedRateLimited("a")
	assert.False(t, limited)
	assert.Equal(t, 1, stats.occurCountSinceLastReport)
	assert.Equal(t, 2, stats.totalOccurCount)
}

func TestFullStackHasRateLimitKey(t *testing.T) {
	frames := callers().fullStack()
	assert.GreaterOrEqual(t, len(frames), 3)
}

type fakeLarkBot struct {
	posted []lark.OutcomingMessage
}

func (b *fakeLarkBot) PostNotificationV2(om lark.OutcomingMessage) (*lark.PostNotificationV2Resp, error) {
	b.posted = append(b.posted, om)
	return &lark.PostNotificationV2Resp{}, nil
}

func TestLarkReporter(t *testing.T) {
	bot := &fakeLarkBot{}
	r := newLarkReporter(bot, time.Minute)
	r.host = "shell-1"

	for i := 0; i < 3; i++ {
		r.Report(Wrap(io.ErrUnexpectedEOF, "read bridge frame"))
	}
	r.Report(nil)
	require.Len(t, bot.posted, 1)

	msg := bot.posted[0]
	assert.Equal(t, lark.MsgPost, msg.MsgType)
	require.NotNil(t, msg.Content.Post)
	body := (*msg.Content.Post)[lark.LocaleZhCN]
	assert.Equal(t, "wallet-shell alert on shell-1", body.Title)
	var text string
	for _, elem := range body.Content[0] {
		text += *elem.Text
	}
	assert.Contains(t, text, "error: read bridge frame: unexpected EOF")
	assert.Contains(t, text, "\ncause: unexpected EOF")
	assert.Contains(t, text, "occurred 1 times, 0 since last alert at none")
	assert.Contains(t, text, "TestLarkReporter")
}
