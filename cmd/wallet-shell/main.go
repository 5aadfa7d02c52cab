package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"moff.io/wallet-shell/internal/aws"
	"moff.io/wallet-shell/internal/cache"
	"moff.io/wallet-shell/internal/chains"
	"moff.io/wallet-shell/internal/config"
	"moff.io/wallet-shell/internal/database"
	"moff.io/wallet-shell/internal/databus"
	"moff.io/wallet-shell/internal/http"
	"moff.io/wallet-shell/internal/nativeauth"
	"moff.io/wallet-shell/internal/provider"
	"moff.io/wallet-shell/internal/shell"
	"moff.io/wallet-shell/internal/starter"
	"moff.io/wallet-shell/internal/walletconnect"
	"moff.io/wallet-shell/pkg/errors"
	"moff.io/wallet-shell/pkg/log"
)

func main() {
	log.Infof("Starting wallet shell")
	startApp()
}

func startApp() {
	defer func() {
		if i := recover(); i != nil {
			log.Fatal(errors.ErrorfAndReport("%v", i))
		}
	}()
	config.Read()
	conf := config.Global
	log.SetLevelName(conf.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ssm 中的密钥需要在初始化上报器与数据库之前解析
	var clients *aws.Clients
	if conf.Aws.Enabled() {
		var err error
		if clients, err = aws.Init(ctx, conf.Aws.Region, conf.Aws.QRBucket); err != nil {
			log.Fatal(err)
		}
		if err := aws.ResolveSecrets(ctx, clients, conf); err != nil {
			log.Fatal(err)
		}
	}
	setupReporters(conf)
	defer errors.FlushSentry(2 * time.Second)

	network, err := chains.Lookup(conf.Network)
	if err != nil {
		log.Fatal(err)
	}
	network = network.WithOverrides(conf.Provider.GatewayURL, conf.Provider.APIURL)
	p := provider.NewClient(network, conf.Provider.RequestsPerSecond, conf.Provider.Timeout)

	store := walletconnect.NewMemoryStore()
	if conf.RedisCredential.Enabled() {
		if err := cache.Init(&conf.RedisCredential); err != nil {
			log.Fatal(err)
		}
		defer cache.Close()
		store = cache.NewSessionStore(cache.Redis)
	}
	wallet, err := walletconnect.NewClient(walletconnect.Options{
		BridgeURL:   conf.WalletConnect.BridgeURL,
		ChainID:     network.ChainID,
		SessionName: conf.WalletConnect.SessionName,
		Metadata: walletconnect.Metadata{
			Name:        conf.WalletConnect.Metadata.Name,
			Description: conf.WalletConnect.Metadata.Description,
			URL:         conf.WalletConnect.Metadata.URL,
			Icons:       conf.WalletConnect.Metadata.Icons,
		},
		ApprovalTimeout: conf.WalletConnect.ApprovalTimeout,
		SessionTTL:      conf.WalletConnect.SessionTTL,
		Store:           store,
	})
	if err != nil {
		log.Fatal(err)
	}

	issuer := nativeauth.NewClient(nativeauth.ClientConfig{
		Origin:         conf.NativeAuth.Origin,
		ExpirySeconds:  conf.NativeAuth.ExpirySeconds,
		BlockHashShard: conf.NativeAuth.BlockHashShard,
		ExtraInfo:      conf.NativeAuth.ExtraInfo,
	}, p)
	validator := nativeauth.NewServer(nativeauth.ServerConfig{
		AcceptedOrigins:      conf.NativeAuth.AcceptedOrigins,
		MaxExpirySeconds:     conf.NativeAuth.MaxExpirySeconds,
		SkipLegacyValidation: conf.NativeAuth.SkipLegacy,
	}, p)

	var (
		shellOpts  []shell.Option
		serverOpts = []http.Option{
			http.WithDisplay(writeQRCode(conf.QROutputPath)),
			http.WithRequestTimeout(conf.HTTP.RequestTimeout),
		}
	)
	if conf.Postgres.Enabled() {
		db, err := database.Init(&conf.Postgres)
		if err != nil {
			log.Fatal(err)
		}
		defer database.Close()
		journal := database.NewJournal(db)
		shellOpts = append(shellOpts, shell.WithJournal(journal))
		serverOpts = append(serverOpts, http.WithHistory(journal))
	}
	if conf.KafkaServer != "" {
		bus, err := databus.New(conf.KafkaServer)
		if err != nil {
			log.Fatal(err)
		}
		defer bus.Close()
		shellOpts = append(shellOpts, shell.WithNotifier(databus.NewNotifier(bus, conf.KafkaTopic)))
	}
	if clients != nil && conf.Aws.QRBucket != "" {
		serverOpts = append(serverOpts, http.WithQRHost(aws.NewQRUploader(clients, conf.WalletConnect.ApprovalTimeout)))
	}
	if cache.RateLimiter != nil {
		serverOpts = append(serverOpts, http.WithRateLimit(cache.RateLimiter, conf.HTTP.RateLimit))
	}

	sh, err := shell.New(wallet, issuer, validator, p, shellOpts...)
	if err != nil {
		log.Fatal(err)
	}
	if restored, err := sh.Restore(ctx); err != nil {
		log.Warnf("restore wallet session:%v", err)
	} else if restored {
		log.Infof("wallet session of %v restored", sh.Status().Address)
	}

	elems := []starter.Startable{starter.Func(sh.Run)}
	if clients != nil && conf.Aws.TransferQueueURL != "" {
		var dedup redis.Cmdable
		if cache.Redis != nil {
			dedup = cache.Redis
		}
		worker := aws.NewQueueWorker(clients.Queue(), dedup, conf.Aws.TransferQueueURL, aws.TransferRequestHandler(sh))
		elems = append(elems, worker)
	}
	starter.Start(ctx, conf, elems...)

	if err := http.NewServer(ctx, sh, serverOpts...).Run(ctx, conf.HTTP.Listen); err != nil {
		log.Error(err)
	}
	starter.Stop(elems...)
	log.Info("wallet shell stopped")
}

func setupReporters(conf *config.Configuration) {
	if err := errors.NewSentryReporter(conf.SentryDSN); err != nil {
		log.Error(err)
	}
	errors.NewLarkReporter(conf.LarkAlarmWebhook, time.Minute)
	errors.NewDingTalkReporter(conf.DingTalk.Webhook, conf.DingTalk.Secret, time.Minute)
}

// writeQRCode 将配对二维码写入本地文件，便于在终端环境中扫码
func writeQRCode(path string) http.DisplayFn {
	return func(uri string, png []byte) error {
		log.Infof("Connect with xPortal App: %v", uri)
		if path == "" {
			return nil
		}
		if err := os.WriteFile(path, png, 0644); err != nil {
			return errors.Wrapf(err, "write qr code to %v", path)
		}
		log.Infof("pairing qr code written to %v", path)
		return nil
	}
}
