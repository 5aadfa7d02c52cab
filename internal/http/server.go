package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v9"
	"moff.io/wallet-shell/internal/address"
	"moff.io/wallet-shell/internal/database"
	"moff.io/wallet-shell/internal/shell"
	"moff.io/wallet-shell/internal/transaction"
	"moff.io/wallet-shell/internal/walletconnect"
	"moff.io/wallet-shell/pkg/errors"
	"moff.io/wallet-shell/pkg/log"
	"moff.io/wallet-shell/pkg/log/middleware"
)

// Shell is the part of *shell.Shell the control api drives.
type Shell interface {
	Connect(ctx context.Context, display walletconnect.DisplayQRCodeFn) error
	Disconnect(ctx context.Context) error
	Send(ctx context.Context, receiver, amount string) (*shell.Receipt, error)
	SendBatch(ctx context.Context, receiver, amount string, count int) (*shell.Receipt, error)
	Status() shell.Status
}

// History lists journaled transactions. Optional.
type History interface {
	ListSent(ctx context.Context, sender string, limit int) ([]*database.SentTransaction, error)
}

// QRHost publishes the pairing QR code and returns where it can be fetched. Optional.
type QRHost interface {
	Upload(ctx context.Context, png []byte) (string, error)
}

// DisplayFn is called with every pairing code before the api responds, e.g. to write it to disk.
type DisplayFn walletconnect.DisplayQRCodeFn

type Server struct {
	shell          Shell
	history        History
	qrHost         QRHost
	display        DisplayFn
	limiter        *redis_rate.Limiter
	limit          redis_rate.Limit
	requestTimeout time.Duration

	// base 连接与签名使用的上下文，不随请求结束或超时而取消
	base context.Context

	mu sync.Mutex
	qr []byte
}

type Option func(*Server)

func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

func WithQRHost(h QRHost) Option {
	return func(s *Server) { s.qrHost = h }
}

func WithDisplay(fn DisplayFn) Option {
	return func(s *Server) { s.display = fn }
}

// WithRateLimit limits write requests per client ip to perSecond.
func WithRateLimit(limiter *redis_rate.Limiter, perSecond int) Option {
	return func(s *Server) {
		if limiter != nil && perSecond > 0 {
			s.limiter = limiter
			s.limit = redis_rate.PerSecond(perSecond)
		}
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.requestTimeout = d }
}

// NewServer builds the control api. base bounds wallet connections and signing requests, which
// the wallet client limits to its approval timeout.
func NewServer(base context.Context, sh Shell, opts ...Option) *Server {
	s := &Server{shell: sh, base: base}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(middleware.RecoveredHTTPLog(middleware.NoResponseBodyLog("/qr.png")), middleware.TimeoutHTTP(s.requestTimeout))
	router.GET("/status", s.status)
	router.GET("/qr.png", s.qrCode)
	router.GET("/transfers", s.listTransfers)

	write := router.Group("/", s.rateLimit)
	write.POST("/connect", s.connect)
	write.POST("/disconnect", s.disconnect)
	write.POST("/transfers", s.send)
	write.POST("/transfers/batch", s.sendBatch)
	return router
}

// Run serves on listen until ctx is done.
func (s *Server) Run(ctx context.Context, listen string) error {
	srv := &http.Server{Addr: listen, Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("control api listening on %v", listen)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return errors.Wrap(err, "serve control api")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type pairing struct {
	PairingURI string `json:"pairingUri"`
	QRURL      string `json:"qrUrl,omitempty"`
}

// connect 在后台发起连接，二维码生成后立即返回，用户确认在钱包中完成
func (s *Server) connect(ctx *gin.Context) {
	shown := make(chan pairing, 1)
	failed := make(chan error, 1)
	go func() {
		err := s.shell.Connect(s.base, func(uri string, png []byte) error {
			s.setQR(png)
			p := pairing{PairingURI: uri}
			if s.display != nil {
				if err := s.display(uri, png); err != nil {
					log.Warnf("display pairing code:%v", err)
				}
			}
			if s.qrHost != nil {
				url, err := s.qrHost.Upload(s.base, png)
				if err != nil {
					log.Warnf("upload pairing qr code:%v", err)
				}
				p.QRURL = url
			}
			shown <- p
			return nil
		})
		if err != nil {
			failed <- err
		}
	}()

	select {
	case p := <-shown:
		ok(ctx, http.StatusAccepted, p)
	case err := <-failed:
		fail(ctx, err)
	case <-ctx.Request.Context().Done():
		fail(ctx, ctx.Request.Context().Err())
	}
}

func (s *Server) setQR(png []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qr = png
}

func (s *Server) qrCode(ctx *gin.Context) {
	if s.shell.Status().State != shell.StateConnecting {
		ctx.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "msg": "no pairing in progress"})
		return
	}
	s.mu.Lock()
	png := s.qr
	s.mu.Unlock()
	if len(png) == 0 {
		ctx.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "msg": "no pairing in progress"})
		return
	}
	ctx.Data(http.StatusOK, "image/png", png)
}

func (s *Server) disconnect(ctx *gin.Context) {
	if err := s.shell.Disconnect(ctx.Request.Context()); err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, http.StatusOK, s.shell.Status())
}

func (s *Server) status(ctx *gin.Context) {
	ok(ctx, http.StatusOK, s.shell.Status())
}

type transferRequest struct {
	Receiver string `json:"receiver" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
	Count    int    `json:"count"`
}

func (s *Server) send(ctx *gin.Context) {
	var req transferRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	receipt, err := s.shell.Send(s.base, req.Receiver, req.Amount)
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, http.StatusOK, receipt)
}

func (s *Server) sendBatch(ctx *gin.Context) {
	var req transferRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	receipt, err := s.shell.SendBatch(s.base, req.Receiver, req.Amount, req.Count)
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, http.StatusOK, receipt)
}

func (s *Server) listTransfers(ctx *gin.Context) {
	if s.history == nil {
		ctx.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "msg": "transaction journal disabled"})
		return
	}
	sender := ctx.Query("sender")
	if sender == "" {
		sender = s.shell.Status().Address
	}
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	txs, err := s.history.ListSent(ctx.Request.Context(), sender, limit)
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, http.StatusOK, txs)
}

func (s *Server) rateLimit(ctx *gin.Context) {
	if s.limiter == nil {
		ctx.Next()
		return
	}
	res, err := s.limiter.Allow(ctx.Request.Context(), "wallet_shell:rate:"+ctx.ClientIP(), s.limit)
	if err != nil {
		// 限流失败不影响请求
		log.Warnf("rate limit %v:%v", ctx.ClientIP(), err)
		ctx.Next()
		return
	}
	if res.Allowed == 0 {
		ctx.Header("Retry-After", strconv.Itoa(int(res.RetryAfter/time.Second)+1))
		ctx.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"code": http.StatusTooManyRequests, "msg": "too many requests"})
		return
	}
	ctx.Next()
}

func ok(ctx *gin.Context, status int, data interface{}) {
	ctx.JSON(status, gin.H{"code": 0, "msg": "ok", "data": data})
}

func badRequest(ctx *gin.Context, err error) {
	ctx.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "msg": err.Error()})
}

func fail(ctx *gin.Context, err error) {
	status := statusCode(err)
	msg, _ := shell.StatusMessage(err)
	ctx.JSON(status, gin.H{"code": status, "msg": msg, "kind": shell.Classify(err).String()})
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, address.ErrInvalidAddress),
		errors.Is(err, transaction.ErrInvalidAmount),
		errors.Is(err, shell.ErrInvalidBatchSize):
		return http.StatusBadRequest
	case errors.Is(err, shell.ErrBusy),
		errors.Is(err, shell.ErrAlreadyConnected),
		errors.Is(err, shell.ErrNotConnected),
		errors.Is(err, shell.ErrSessionChanged):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	}
	switch shell.Classify(err) {
	case shell.KindAuthorization:
		return http.StatusForbidden
	case shell.KindRemoteAPI:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
