package shell

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/atomic"
	"moff.io/wallet-shell/internal/account"
	"moff.io/wallet-shell/internal/address"
	"moff.io/wallet-shell/internal/network"
	"moff.io/wallet-shell/internal/walletconnect"
	"moff.io/wallet-shell/pkg/errors"
	"moff.io/wallet-shell/pkg/log"
)

const defaultBatchSize = 3

// Shell 编排钱包会话、native auth 与网络提供者
//
// 会话状态只在 mu 下修改。每次连接或断开都会递增 epoch，进行中的操作只有在 epoch
// 未变化时才提交结果，异步的断开事件因此不会与进行中的连接或发送产生竞争。
type Shell struct {
	wallet    walletconnect.Client
	issuer    TokenIssuer
	validator TokenValidator
	provider  Provider
	journal   Journal
	notifier  Notifier
	ids       *snowflake.Node
	batchSize int
	now       func() time.Time

	busy atomic.Bool

	mu             sync.Mutex
	state          State
	epoch          uint64
	sessionAddress string
	network        *network.Config
	account        *account.Account
	pairingURI     string
	message        string
	level          Level
}

func New(wallet walletconnect.Client, issuer TokenIssuer, validator TokenValidator, p Provider, opts ...Option) (*Shell, error) {
	node, err := snowflake.NewNode(2)
	if err != nil {
		return nil, errors.Wrap(err, "create batch id generator")
	}
	s := &Shell{
		wallet:    wallet,
		issuer:    issuer,
		validator: validator,
		provider:  p,
		ids:       node,
		batchSize: defaultBatchSize,
		now:       time.Now,
		state:     StateDisconnected,
		message:   msgConnectWith,
		level:     LevelInfo,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Connect pairs with a wallet, logs in with native auth and loads the network config and account.
// display receives the pairing uri and its QR code before approval is awaited.
func (s *Shell) Connect(ctx context.Context, display walletconnect.DisplayQRCodeFn) (err error) {
	if !s.busy.CAS(false, true) {
		return ErrBusy
	}
	defer s.busy.Store(false)

	epoch, err := s.begin(msgWaiting)
	if err != nil {
		return err
	}
	approved := false
	defer func() {
		if err != nil {
			s.abort(epoch, err, approved, connectFailureMessage)
		}
	}()

	uri, err := s.wallet.PairingURI()
	if err != nil {
		return err
	}
	png, err := s.wallet.QRCode()
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.epoch == epoch {
		s.pairingURI = uri
	}
	s.mu.Unlock()
	if display != nil {
		if err := display(uri, png); err != nil {
			return errors.Wrap(err, "display pairing qr code")
		}
	}

	token, err := s.issuer.GenerateToken(ctx)
	if err != nil {
		return err
	}
	login, err := s.wallet.Connect(ctx, token)
	if err != nil {
		return err
	}
	approved = true
	if err := s.claim(epoch, login.Address); err != nil {
		return err
	}

	accessToken := s.issuer.GetAccessToken(login.Address, token, login.Signature)
	result, err := s.validator.Validate(ctx, accessToken)
	if err != nil {
		return errors.Wrap(err, "validate access token")
	}
	if err := s.establish(ctx, epoch, login.Address); err != nil {
		return err
	}
	if s.journal != nil {
		if err := s.journal.RecordLogin(ctx, result); err != nil {
			log.Warnf("record login of %v:%v", login.Address, err)
		}
	}
	return nil
}

// Restore resumes a persisted wallet session without pairing or native auth.
func (s *Shell) Restore(ctx context.Context) (restored bool, err error) {
	if !s.busy.CAS(false, true) {
		return false, ErrBusy
	}
	defer s.busy.Store(false)

	epoch, err := s.begin(msgLooking)
	if err != nil {
		return false, err
	}
	// 恢复失败只清理本地状态，保留钱包会话以便稍后重试
	defer func() {
		if err != nil {
			s.abort(epoch, err, false, StatusMessage)
		}
	}()

	login, ok, err := s.wallet.Resume(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		s.mu.Lock()
		if s.epoch == epoch {
			s.resetLocked()
			s.setMessageLocked(msgConnectWith, LevelInfo)
		}
		s.mu.Unlock()
		return false, nil
	}
	if err := s.claim(epoch, login.Address); err != nil {
		return false, err
	}
	if err := s.establish(ctx, epoch, login.Address); err != nil {
		return false, err
	}
	return true, nil
}

// begin moves Disconnected to Connecting and opens a new epoch.
func (s *Shell) begin(message string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDisconnected {
		return 0, ErrAlreadyConnected
	}
	s.epoch++
	s.state = StateConnecting
	s.setMessageLocked(message, LevelInfo)
	return s.epoch, nil
}

// claim binds the approved session address to the running attempt.
func (s *Shell) claim(epoch uint64, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return ErrSessionChanged
	}
	s.sessionAddress = addr
	return nil
}

// establish fetches the network config, then the account, and commits both if the epoch still holds.
func (s *Shell) establish(ctx context.Context, epoch uint64, bech32 string) error {
	addr, err := address.FromBech32(bech32)
	if err != nil {
		return errors.Wrapf(err, "session address %q", bech32)
	}
	cfg, err := s.provider.GetNetworkConfig(ctx)
	if err != nil {
		return err
	}
	acct, err := account.Load(ctx, s.provider, addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return ErrSessionChanged
	}
	s.state = StateConnected
	s.network = cfg
	s.account = acct
	s.pairingURI = ""
	s.setMessageLocked(msgConnected, LevelSuccess)
	s.mu.Unlock()

	log.Infof("wallet %v connected on chain %v, nonce %v", bech32, cfg.ChainID, acct.Nonce())
	s.notify(Notification{Type: NotifyConnected, Address: bech32, ChainID: cfg.ChainID})
	return nil
}

// abort resets a failed attempt. A wallet session that was already approved is torn down.
func (s *Shell) abort(epoch uint64, err error, approved bool, render func(error) (string, Level)) {
	s.mu.Lock()
	current := s.epoch == epoch
	if current {
		s.resetLocked()
		s.setMessageLocked(render(err))
	}
	s.mu.Unlock()

	log.Warnf("wallet connection failed:%v", err)
	if approved && current {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if derr := s.wallet.Disconnect(ctx); derr != nil {
			log.Warnf("disconnect wallet after failed connect:%v", derr)
		}
	}
	s.notify(Notification{Type: NotifyFailed, Kind: Classify(err).String(), Message: err.Error()})
}

// Disconnect tears down the session and clears the network config and account. Safe without a session.
func (s *Shell) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	was, addr := s.state, s.sessionAddress
	s.epoch++
	s.resetLocked()
	s.setMessageLocked(msgDisconnected, LevelWarning)
	s.mu.Unlock()

	if err := s.wallet.Disconnect(ctx); err != nil {
		return errors.Wrap(err, "disconnect wallet")
	}
	if was != StateDisconnected {
		log.Infof("wallet %v disconnected", addr)
		s.notify(Notification{Type: NotifyDisconnected, Address: addr})
	}
	return nil
}

// Run applies session events pushed by the wallet client until ctx is done.
func (s *Shell) Run(ctx context.Context) {
	events := s.wallet.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			s.handleEvent(e)
		}
	}
}

func (s *Shell) handleEvent(e walletconnect.Event) {
	switch e.Type {
	case walletconnect.EventDisconnected, walletconnect.EventExpired:
	default:
		log.Debugf("session event %v for %v", e.Type, e.Address)
		return
	}

	s.mu.Lock()
	// 会话已被本地清理，或事件属于之前的会话
	if s.sessionAddress == "" || s.sessionAddress != e.Address {
		s.mu.Unlock()
		log.Debugf("ignored stale %v event for %v", e.Type, e.Address)
		return
	}
	s.epoch++
	s.resetLocked()
	typ := NotifyDisconnected
	if e.Type == walletconnect.EventExpired {
		typ = NotifyExpired
		s.setMessageLocked(msgExpired, LevelWarning)
	} else {
		s.setMessageLocked(msgDisconnected, LevelWarning)
	}
	s.mu.Unlock()

	log.Infof("wallet %v session %v (remote=%v)", e.Address, e.Type, e.Remote)
	s.notify(Notification{Type: typ, Address: e.Address})
}

func (s *Shell) resetLocked() {
	s.state = StateDisconnected
	s.sessionAddress = ""
	s.network = nil
	s.account = nil
	s.pairingURI = ""
}

func (s *Shell) setMessageLocked(message string, level Level) {
	s.message = message
	s.level = level
}

func (s *Shell) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:      s.state,
		Address:    s.sessionAddress,
		PairingURI: s.pairingURI,
		Message:    s.message,
		Level:      s.level,
	}
	if s.network != nil {
		st.ChainID = s.network.ChainID
	}
	if s.account != nil {
		snap := s.account.Snapshot()
		st.Account = &snap
	}
	return st
}

// session is what a send needs, captured under the lock.
type session struct {
	epoch   uint64
	network *network.Config
	account *account.Account
}

func (s *Shell) current() (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return nil, ErrNotConnected
	}
	return &session{epoch: s.epoch, network: s.network, account: s.account}, nil
}

func (s *Shell) isCurrent(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch == epoch
}

func (s *Shell) notify(n Notification) {
	if s.notifier == nil {
		return
	}
	n.Timestamp = s.now().UnixMilli()
	s.notifier.Notify(n)
}
