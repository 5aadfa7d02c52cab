package errors

import (
	"bytes"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/certifi/gocertifi"
	"github.com/getsentry/sentry-go"
	"moff.io/wallet-shell/pkg/errors/reporter"
	"moff.io/wallet-shell/pkg/log"
)

var (
	reportersMu sync.RWMutex
	reporters   []Reporter
)

func init() {
	if os.Getenv(debugMode) == "" {
		log.Info("Env DEBUG not set, report errors enabled.")
	} else {
		log.Info("Env DEBUG set, report errors disabled.")
	}
}

func report(err error) {
	if err == nil {
		return
	}
	if os.Getenv(debugMode) != "" {
		return
	}
	reportersMu.RLock()
	defer reportersMu.RUnlock()
	for _, r := range reporters {
		r.Report(err)
	}
}

// Reporter 错误报告器
type Reporter interface {
	Report(error)
}

// AddReporter registers an additional reporter, mostly useful for tests and custom sinks.
func AddReporter(r Reporter) {
	reportersMu.Lock()
	defer reportersMu.Unlock()
	reporters = append(reporters, r)
}

// ResetReporters drops every registered reporter.
func ResetReporters() {
	reportersMu.Lock()
	defer reportersMu.Unlock()
	reporters = nil
}

type sentryReporter struct {
}

func (s *sentryReporter) Report(err error) {
	sentry.CaptureException(err)
}

// 设置该变量，则错误不会上报
const debugMode = "DEBUG"

// NewSentryReporter
// 初始化sentry错误报告器，DSN为空时跳过。
// 环境变量DEBUG不为空时，不会产生错误上报
func NewSentryReporter(sentryDSN string) error {
	if sentryDSN == "" {
		log.Warn("empty DSN found, skipping sentry reporter initialization.")
		return nil
	}
	sentryClientOptions := sentry.ClientOptions{
		Dsn: sentryDSN,
	}

	rootCAs, err := gocertifi.CACerts()
	if err != nil {
		return Wrap(err, "init sentry CA")
	}

	sentryClientOptions.CaCerts = rootCAs
	err = sentry.Init(sentryClientOptions)
	if err != nil {
		return Wrap(err, "init sentry")
	}
	log.Info("sentry error reporter initialized.")
	AddReporter(&sentryReporter{})
	return nil
}

// FlushSentry waits for buffered sentry events before shutdown.
func FlushSentry(timeout time.Duration) {
	sentry.Flush(timeout)
}

type dingTalkRobotReporter struct {
	limiter *rateLimiter
	reporter.DingTalkRobot
}

// NewDingTalkReporter
// 初始化钉钉机器人上报错误至指定的webhook
// 环境变量DEBUG不为空时，不会产生错误上报
func NewDingTalkReporter(webhook, secret string, reportDelay time.Duration) {
	if webhook == "" {
		log.Warn("empty dingtalk webhook found, skipping dingtalk reporter initialization.")
		return
	}
	robot := reporter.NewDingTalkRobot(webhook).WithSecret(secret)
	AddReporter(&dingTalkRobotReporter{limiter: newRateLimiter(reportDelay), DingTalkRobot: robot})
	log.Info("dingtalk error reporter initialized.")
}

const (
	errorField  = "error: "
	stacksField = "\nstacks:\n"
	breakline   = "\n"
	indent      = "	"
)

func (r *dingTalkRobotReporter) Report(err error) {
	if err == nil {
		return
	}
	stacks := callers().fullStack()
	limited, stats := r.limiter.StackBasedRateLimited(stacks[2])
	if limited {
		return
	}
	var content bytes.Buffer
	content.WriteString("wallet-shell last report:")
	content.WriteString(formatReportTime(stats.lastReportTime))
	content.WriteString(breakline)
	content.WriteString("occur since last report:")
	content.WriteString(strconv.Itoa(stats.occurCountSinceLastReport))
	content.WriteString(breakline)
	content.WriteString(errorField)
	content.WriteString(err.Error())
	content.WriteString(stacksField)
	for _, s := range stacks {
		content.WriteString(indent)
		content.WriteString(s)
		content.WriteString(breakline)
	}
	if err := r.SendText(content.String(), nil, true); err != nil {
		log.Info(WithStack(err))
	}
}
