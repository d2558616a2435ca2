package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config: корневая структура конфигурации сервиса.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Token    TokenConfig    `mapstructure:"token"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP/gRPC серверов.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL. Пустой URL: хранилище в памяти.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig описывает подключение к Redis (шина событий и аренда писателя).
// Пустой Addr: без шины.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// AuthConfig содержит пути к RSA ключам и настройки JWT.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	Issuer         string        `mapstructure:"issuer"`
	PublicKey      []byte
	PrivateKey     []byte
}

// LedgerConfig: параметры развертывания леджера.
type LedgerConfig struct {
	Owner     string   `mapstructure:"owner"`
	Approvers []string `mapstructure:"approvers"` // пусто: голосует любой уникальный участник
	Threshold int      `mapstructure:"threshold"`
	FirstID   uint64   `mapstructure:"first_id"`
	// AllowSelfApproval: может ли инициатор/бенефициар голосовать за свою заявку
	AllowSelfApproval bool   `mapstructure:"allow_self_approval"`
	EscrowAddress     string `mapstructure:"escrow_address"`
	Treasury          string `mapstructure:"treasury"` // пусто: владелец
}

// TokenConfig описывает встроенный токен и настройки вызовов к нему.
type TokenConfig struct {
	Address string `mapstructure:"address"`
	Symbol  string `mapstructure:"symbol"`
	Supply  uint64 `mapstructure:"supply"` // весь выпуск начисляется владельцу

	// Надежность вызовов
	CallTimeout   time.Duration `mapstructure:"call_timeout"`
	RetryAttempts uint          `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	RateLimit     float64       `mapstructure:"rate_limit"`
	RateBurst     int           `mapstructure:"rate_burst"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
	MaxWait       time.Duration `mapstructure:"max_wait"` // вызовы идут под мьютексом леджера
}

// JournalConfig: буфер и пакетная запись журнала квитанций.
type JournalConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
// paths: дополнительные каталоги поиска config.yaml (проверяются первыми).
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config") // имя файла без расширения
	v.SetConfigType("yaml")   // формат
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")         // ищем в корне
	v.AddConfigPath("./configs") // и в папке с конфигами

	// 2. Настройка переменных окружения (ENV)
	// Позволяет перекрывать конфиг: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет: работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Загрузка ключей из Файла ИЛИ из ENV
	// Сначала проверяем, не лежит ли сам PEM-ключ в ENV (для Docker/K8s)
	// Если нет: читаем файл по указанному пути
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	// Список согласующих через ENV приходит одной строкой: LEDGER_APPROVERS="0xa,0xb"
	if len(cfg.Ledger.Approvers) == 1 && strings.Contains(cfg.Ledger.Approvers[0], ",") {
		cfg.Ledger.Approvers = strings.Split(cfg.Ledger.Approvers[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет то, без чего леджер не развернуть.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Ledger.Owner) == "" {
		return errors.New("config: ledger.owner is required")
	}
	if c.Ledger.Threshold < 1 {
		return fmt.Errorf("config: ledger.threshold must be positive, got %d", c.Ledger.Threshold)
	}
	if n := len(c.Ledger.Approvers); n > 0 && n < c.Ledger.Threshold {
		return fmt.Errorf("config: %d approvers can never reach threshold %d", n, c.Ledger.Threshold)
	}
	if strings.TrimSpace(c.Ledger.EscrowAddress) == "" {
		return errors.New("config: ledger.escrow_address is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Ключи без значения тоже регистрируем: иначе AutomaticEnv не увидит их при Unmarshal
	for _, key := range []string{
		"server.host", "database.url", "redis.addr", "redis.password",
		"auth.public_key_path", "auth.private_key_path", "ledger.owner", "ledger.treasury",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("ledger.approvers", []string{})
	v.SetDefault("redis.db", 0)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.metrics_port", 9100)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("redis.lock_ttl", 30*time.Second)
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.issuer", "treasury-ledger")
	v.SetDefault("ledger.threshold", 3)
	v.SetDefault("ledger.first_id", 1)
	v.SetDefault("ledger.allow_self_approval", true)
	v.SetDefault("ledger.escrow_address", "escrow")
	v.SetDefault("token.address", "usdt")
	v.SetDefault("token.symbol", "USDT")
	v.SetDefault("token.supply", 1_000_000_000)
	v.SetDefault("token.call_timeout", 2*time.Second)
	v.SetDefault("token.retry_attempts", 3)
	v.SetDefault("token.retry_delay", 100*time.Millisecond)
	v.SetDefault("token.rate_limit", 100)
	v.SetDefault("token.rate_burst", 20)
	v.SetDefault("token.cb_timeout", 30*time.Second)
	v.SetDefault("token.max_wait", 500*time.Millisecond)
	v.SetDefault("journal.buffer_size", 10000)
	v.SetDefault("journal.batch_size", 100)
	v.SetDefault("journal.flush_interval", 500*time.Millisecond)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// loadKeyResource: PEM из ENV приоритетнее файла
func loadKeyResource(path string, envDataKey string) []byte {
	// Если ключ прилетел напрямую в ENV (Base64 или PEM)
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	// Иначе читаем файл по пути из конфига
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
