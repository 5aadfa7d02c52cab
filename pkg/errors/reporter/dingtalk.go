package reporter

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DingTalkRobot 钉钉机器人
// 参考 https://github.com/royeo/dingrobot ，只保留错误上报用到的消息类型
type DingTalkRobot interface {
	SendText(content string, atMobiles []string, isAtAll bool) error
	SendMarkdown(title, text string, atMobiles []string, isAtAll bool) error
	WithSecret(secret string) DingTalkRobot
}

const (
	msgTypeText     = "text"
	msgTypeMarkdown = "markdown"
)

type atParams struct {
	AtMobiles []string `json:"atMobiles,omitempty"`
	IsAtAll   bool     `json:"isAtAll,omitempty"`
}

type textParams struct {
	Content string `json:"content"`
}

type textMessage struct {
	MsgType string     `json:"msgtype"`
	Text    textParams `json:"text"`
	At      atParams   `json:"at"`
}

type markdownParams struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type markdownMessage struct {
	MsgType  string         `json:"msgtype"`
	Markdown markdownParams `json:"markdown"`
	At       atParams       `json:"at"`
}

type dingTalkRobot struct {
	webHook    string
	secret     string
	httpClient *http.Client
}

// NewDingTalkRobot returns a robot posting to the given webhook.
func NewDingTalkRobot(webHook string) DingTalkRobot {
	return &dingTalkRobot{
		webHook:    webHook,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// WithSecret enables request signing.
func (r *dingTalkRobot) WithSecret(secret string) DingTalkRobot {
	r.secret = secret
	return r
}

func (r *dingTalkRobot) SendText(content string, atMobiles []string, isAtAll bool) error {
	return r.send(&textMessage{
		MsgType: msgTypeText,
		Text:    textParams{Content: content},
		At:      atParams{AtMobiles: atMobiles, IsAtAll: isAtAll},
	})
}

func (r *dingTalkRobot) SendMarkdown(title, text string, atMobiles []string, isAtAll bool) error {
	return r.send(&markdownMessage{
		MsgType:  msgTypeMarkdown,
		Markdown: markdownParams{Title: title, Text: text},
		At:       atParams{AtMobiles: atMobiles, IsAtAll: isAtAll},
	})
}

type dingResponse struct {
	Errcode int    `json:"errcode"`
	Errmsg  string `json:"errmsg"`
}

func (r *dingTalkRobot) send(msg interface{}) error {
	m, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	webURL := r.webHook
	if len(r.secret) != 0 {
		webURL += signedQuery(r.secret, time.Now())
	}
	resp, err := r.httpClient.Post(webURL, "application/json", bytes.NewReader(m))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var dr dingResponse
	if err := json.Unmarshal(data, &dr); err != nil {
		return err
	}
	if dr.Errcode != 0 {
		return fmt.Errorf("dingrobot send failed: %v", dr.Errmsg)
	}
	return nil
}

// signedQuery 加签：timestamp + "\n" + secret 做 HmacSHA256 后 base64
func signedQuery(secret string, now time.Time) string {
	timeStr := fmt.Sprintf("%d", now.UnixNano()/1e6)
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(timeStr + "\n" + secret))
	sign := base64.StdEncoding.EncodeToString(h.Sum(nil))
	return fmt.Sprintf("&timestamp=%s&sign=%s", timeStr, url.QueryEscape(sign))
}
