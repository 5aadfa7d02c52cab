package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// DBCredential struct
type DBCredential struct {
	Address  string `yaml:"address"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
}

func (c *DBCredential) Dsn() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s",
		c.Address, c.Port, c.User, c.Password, c.Database)
}

// GetRedisAddress prints redis credential info.
func (c *DBCredential) GetRedisAddress() string {
	return fmt.Sprintf("%v:%v", c.Address, c.Port)
}

// Enabled is false for an empty section, optional backends are skipped then.
func (c *DBCredential) Enabled() bool {
	return c.Address != ""
}

// Configuration struct
type Configuration struct {
	LogLevel         string        `yaml:"log_level"`
	Network          string        `yaml:"network"`
	WalletConnect    WalletConnect `yaml:"wallet_connect"`
	NativeAuth       NativeAuth    `yaml:"native_auth"`
	Provider         Provider      `yaml:"provider"`
	HTTP             HTTP          `yaml:"http"`
	RedisCredential  DBCredential  `yaml:"redis"`
	Postgres         DBCredential  `yaml:"postgres"`
	KafkaServer      string        `yaml:"kafka-server"`
	KafkaTopic       string        `yaml:"kafka-topic"`
	Aws              Aws           `yaml:"aws"`
	SentryDSN        string        `yaml:"sentry_dsn"`
	LarkAlarmWebhook string        `yaml:"lark_alarm_webhook"`
	DingTalk         DingTalk      `yaml:"dingtalk"`
	QROutputPath     string        `yaml:"qr_output_path"`
}

type WalletConnect struct {
	BridgeURL       string        `yaml:"bridge_url"`
	ApprovalTimeout time.Duration `yaml:"approval_timeout"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
	SessionName     string        `yaml:"session_name"`
	Metadata        Metadata      `yaml:"metadata"`
}

type Metadata struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	URL         string   `yaml:"url"`
	Icons       []string `yaml:"icons"`
}

type NativeAuth struct {
	Origin           string            `yaml:"origin"`
	ExpirySeconds    int64             `yaml:"expiry_seconds"`
	BlockHashShard   *uint32           `yaml:"block_hash_shard"`
	ExtraInfo        map[string]string `yaml:"extra_info"`
	AcceptedOrigins  []string          `yaml:"accepted_origins"`
	MaxExpirySeconds int64             `yaml:"max_expiry_seconds"`
	SkipLegacy       bool              `yaml:"skip_legacy_validation"`
}

type Provider struct {
	GatewayURL        string        `yaml:"gateway_url"`
	APIURL            string        `yaml:"api_url"`
	RequestsPerSecond int           `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

type HTTP struct {
	Listen         string        `yaml:"listen"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// RateLimit 每个客户端IP每秒允许的写请求数，0表示不限流，需要redis
	RateLimit int `yaml:"rate_limit"`
}

type DingTalk struct {
	Webhook string `yaml:"webhook"`
	Secret  string `yaml:"secret"`
}

// aws conf
type Aws struct {
	Region           string `yaml:"region"`
	QRBucket         string `yaml:"qr_bucket"`
	TransferQueueURL string `yaml:"transfer_queue_url"`
}

// Enabled 未配置region时不初始化aws客户端
func (a Aws) Enabled() bool {
	return a.Region != ""
}

const (
	defaultApprovalTimeout = 5 * time.Minute
	defaultSessionTTL      = 4 * time.Hour
	defaultExpirySeconds   = 14400
	defaultListen          = "127.0.0.1:8080"
)

// Default 返回与原始示例一致的devnet配置
func Default() Configuration {
	return Configuration{
		LogLevel: "info",
		Network:  "devnet",
		WalletConnect: WalletConnect{
			ApprovalTimeout: defaultApprovalTimeout,
			SessionTTL:      defaultSessionTTL,
			SessionName:     "default",
			Metadata: Metadata{
				Name:        "wallet-shell",
				Description: "wallet-shell login",
			},
		},
		NativeAuth: NativeAuth{
			Origin:           "wallet-shell",
			ExpirySeconds:    defaultExpirySeconds,
			MaxExpirySeconds: 86400,
		},
		Provider: Provider{
			RequestsPerSecond: 20,
			Timeout:           10 * time.Second,
		},
		HTTP: HTTP{
			Listen:         defaultListen,
			RequestTimeout: time.Minute,
		},
		KafkaTopic:   "wallet_shell_events",
		QROutputPath: "wallet_connect_qr.png",
	}
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (Configuration, error) {
	t := Default()
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, err
	}
	if len(t.NativeAuth.AcceptedOrigins) == 0 {
		t.NativeAuth.AcceptedOrigins = []string{t.NativeAuth.Origin}
	}
	return t, nil
}

func readConfig(path string) (Configuration, error) {
	logrus.Info("Starting to load configuration file ...")
	dat, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Configuration{}, fmt.Errorf("file %s does not exist", path)
		}
		return Configuration{}, err
	}
	t, err := Parse(dat)
	if err != nil {
		return Configuration{}, fmt.Errorf("fail to decode config error: %v", err)
	}
	return t, nil
}

var Global *Configuration

// Read reads configuration information from yml.
func Read() {
	configFilePath := flag.String("config-path", "internal/config/config.yml", "The path to the configuration file")
	flag.Parse()
	logrus.Infof("Loading configuration file from %s", *configFilePath)
	globalConfig, err := readConfig(*configFilePath)
	if err != nil {
		logrus.Fatal(err)
	}
	Global = &globalConfig
}
