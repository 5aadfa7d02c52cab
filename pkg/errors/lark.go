package errors

import (
	"fmt"
	"os"
	"time"

	"github.com/go-lark/lark"
	"moff.io/wallet-shell/pkg/log"
)

// 告警中最多展示的调用栈帧数
const maxAlertFrames = 12

// larkPoster is the part of *lark.Bot that delivers alerts.
type larkPoster interface {
	PostNotificationV2(om lark.OutcomingMessage) (*lark.PostNotificationV2Resp, error)
}

type larkReporter struct {
	poster  larkPoster
	host    string
	limiter *rateLimiter
}

// NewLarkReporter 初始化飞书告警，同一调用栈在silent时间内只告警一次
func NewLarkReporter(webhook string, silent time.Duration) {
	if webhook == "" {
		log.Warn("empty lark webhook found, skipping lark reporter initialization.")
		return
	}
	AddReporter(newLarkReporter(lark.NewNotificationBot(webhook), silent))
	log.Info("Lark error reporter initialized.")
}

func newLarkReporter(poster larkPoster, silent time.Duration) *larkReporter {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &larkReporter{poster: poster, host: host, limiter: newRateLimiter(silent)}
}

func (r *larkReporter) Report(err error) {
	if err == nil {
		return
	}
	stacks := callers().fullStack()
	limited, stats := r.limiter.StackBasedRateLimited(stacks[2])
	if limited {
		return
	}
	msg := lark.NewMsgBuffer(lark.MsgPost).Post(r.alert(err, stacks, stats)).Build()
	if _, err := r.poster.PostNotificationV2(msg); err != nil {
		log.Error(WithStack(err))
	}
}

func (r *larkReporter) alert(err error, stacks []string, stats *errorStats) *lark.PostContent {
	pb := lark.NewPostBuilder()
	pb.Title(fmt.Sprintf("wallet-shell alert on %s", r.host))
	pb.TextTag(fmt.Sprintf("error: %v", err), 1, true)
	if cause := Cause(err); cause != nil && cause.Error() != err.Error() {
		pb.TextTag(fmt.Sprintf("\ncause: %v", cause), 1, true)
	}
	pb.TextTag(fmt.Sprintf("\noccurred %d times, %d since last alert at %s",
		stats.totalOccurCount+1, stats.occurCountSinceLastReport, formatReportTime(stats.lastReportTime)), 1, true)
	pb.TextTag("\nstack:", 1, true)
	shown := stacks
	if len(shown) > maxAlertFrames {
		shown = shown[:maxAlertFrames]
	}
	for _, s := range shown {
		pb.TextTag("\n    "+s, 1, true)
	}
	if rest := len(stacks) - len(shown); rest > 0 {
		pb.TextTag(fmt.Sprintf("\n    ... %d more frames", rest), 1, true)
	}
	return pb.Render()
}

func formatReportTime(t *time.Time) string {
	if t == nil {
		return "none"
	}
	return t.Format("2006.01.02 15:04")
}
