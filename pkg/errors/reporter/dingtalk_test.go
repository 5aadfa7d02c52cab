package reporter

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendTextSigned(t *testing.T) {
	var (
		gotQuery string
		gotBody  textMessage
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	robot := NewDingTalkRobot(srv.URL + "/robot/send?access_token=x").WithSecret("s3cret")
	require.NoError(t, robot.SendText("hello", nil, true))

	assert.Equal(t, msgTypeText, gotBody.MsgType)
	assert.Equal(t, "hello", gotBody.Text.Content)
	assert.True(t, gotBody.At.IsAtAll)
	assert.Contains(t, gotQuery, "timestamp=")
	assert.Contains(t, gotQuery, "sign=")
}

func TestSendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errcode":310000,"errmsg":"sign not match"}`))
	}))
	defer srv.Close()

	err := NewDingTalkRobot(srv.URL).SendMarkdown("t", "x", nil, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sign not match")
}

func TestSignedQueryDeterministic(t *testing.T) {
	now := time.Unix(1700000000, 0)
	a := signedQuery("k", now)
	b := signedQuery("k", now)
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "&timestamp=1700000000000&sign="))
}
