package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       Server      `mapstructure:"server"`
	Postgres     Postgres    `mapstructure:"postgres"`
	Redis        Redis       `mapstructure:"redis"`
	Broker       Broker      `mapstructure:"broker"`
	Cron         Cron        `mapstructure:"cron"`
	Relay        RelayConfig `mapstructure:"relay"`
	Sink         Sink        `mapstructure:"sink"`
	HTTPClient   HTTPClient  `mapstructure:"httpClient"`
	LoggingLevel string      `mapstructure:"logging-level"`
}

type Server struct {
	Port          string `mapstructure:"port"`
	SwaggerUrl    string `mapstructure:"swagger_json"`
	SwaggerHost   string `mapstructure:"swagger_host"`
	SwaggerSchema string `mapstructure:"swagger_schema"`
	BodyLimit     int    `mapstructure:"body_limit"`
}

type Postgres struct {
	ConnString     string `mapstructure:"conn_string"`
	MaxConnections int32  `mapstructure:"max_connections"`
	MigrationsDir  string `mapstructure:"migrations_dir"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Broker struct {
	Kafka Kafka `mapstructure:"kafka"`
}

type Kafka struct {
	Brokers string `mapstructure:"brokers"`

	// Топики
	OrderCompletedTopic string `mapstructure:"orderCompletedTopic"`
	CouponIssueTopic    string `mapstructure:"couponIssueTopic"`
	DefaultTopic        string `mapstructure:"defaultTopic"` // для event_type без явного маппинга

	// Consumer groups: каждая группа независима, партиции распределяет брокер
	OrderGroup        string `mapstructure:"orderGroup"`
	CouponGroup       string `mapstructure:"couponGroup"`
	OrderConcurrency  int    `mapstructure:"orderConcurrency"`
	CouponConcurrency int    `mapstructure:"couponConcurrency"`

	ReaderUsr    string `mapstructure:"readerUsr"`
	ReaderUsrPwd string `mapstructure:"readerUsrPwd"`
	WriterUsr    string `mapstructure:"writerUsr"`
	WriterUsrPwd string `mapstructure:"writerUsrPwd"`
	MaxAttempts  int    `mapstructure:"maxAttempts"`
}

type Cron struct {
	RetentionDays int    `mapstructure:"retentionDays"` // сколько дней хранить PUBLISHED события outbox
	Schedule      string `mapstructure:"schedule"`      // cron формат с секундами, например "0 0 0 * * *"
	Interval      string `mapstructure:"interval"`      // "@every 1h"
	// Приоритет: если указан Schedule, используется он, иначе Interval
}

type RelayConfig struct {
	Workers        int           `mapstructure:"workers"`
	BatchSize      int           `mapstructure:"batchSize"`
	Lease          time.Duration `mapstructure:"lease"`
	PollPeriod     time.Duration `mapstructure:"pollPeriod"`
	MaxRetries     int           `mapstructure:"maxRetries"`
	BackoffBase    time.Duration `mapstructure:"backoffBase"`
	BackoffCap     time.Duration `mapstructure:"backoffCap"`
	PublishTimeout time.Duration `mapstructure:"publishTimeout"`
}

type Sink struct {
	URL        string        `mapstructure:"url"` // пусто: используется симулятор внешней платформы
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"maxRetries"`

	SimulatedDelay       time.Duration `mapstructure:"simulatedDelay"`
	SimulatedFailureRate float64       `mapstructure:"simulatedFailureRate"`

	BreakerConsecutiveFailures uint32        `mapstructure:"breakerConsecutiveFailures"`
	BreakerOpenTimeout         time.Duration `mapstructure:"breakerOpenTimeout"`
}

type HTTPClient struct {
	//конфиг клиента
	ConnectTimeout        time.Duration `mapstructure:"connectTimeout"`        // TCP коннект
	TLSHandshakeTimeout   time.Duration `mapstructure:"TLSHandshakeTimeout"`   // TLS рукопожатие
	ResponseHeaderTimeout time.Duration `mapstructure:"responseHeaderTimeout"` // ожидание заголовков ответа
	ExpectContinueTimeout time.Duration `mapstructure:"expectContinueTimeout"` // 100-continue

	// Пул соединений
	IdleConnTimeout     time.Duration `mapstructure:"idleConnTimeout"`
	MaxIdleConns        int           `mapstructure:"maxIdleConns"`
	MaxIdleConnsPerHost int           `mapstructure:"maxIdleConnsPerHost"`
	MaxConnsPerHost     int           `mapstructure:"maxConnsPerHost"`
	KeepAlives          bool          `mapstructure:"keepAlives"`

	// Общий таймаут клиента. 0: контролируем дедлайном через context.
	ClientTimeout time.Duration `mapstructure:"clientTimeout"`

	UserAgent string `mapstructure:"userAgent"`

	// SSL/TLS настройки
	InsecureSkipVerify bool `mapstructure:"insecureSkipVerify"` // отключить проверку SSL сертификатов
}

func NewConfig() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	// Настраиваем замену точек и дефисов на подчеркивания для переменных окружения
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")

	setDefaults(v)

	var conf Config
	err := v.ReadInConfig()
	// Игнорируем ошибку, если файл не найден - используем только переменные окружения
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return conf, err
		}
	}

	err = v.Unmarshal(&conf)

	return conf, err
}

// setDefaults регистрирует значения по умолчанию. Заодно делает ключи известными viper,
// иначе AutomaticEnv не подхватит их при Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging-level", "info")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.swagger_json", "/ecommerce/swagger/doc.json")
	v.SetDefault("server.swagger_host", "localhost:8080")
	v.SetDefault("server.swagger_schema", "http")
	v.SetDefault("server.body_limit", 4*1024*1024)

	v.SetDefault("postgres.conn_string", "")
	v.SetDefault("postgres.max_connections", 10)
	v.SetDefault("postgres.migrations_dir", "resources/migrations")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("broker.kafka.brokers", "localhost:9092")
	v.SetDefault("broker.kafka.orderCompletedTopic", "order-completed")
	v.SetDefault("broker.kafka.couponIssueTopic", "coupon-issue-request")
	v.SetDefault("broker.kafka.defaultTopic", "default-events")
	v.SetDefault("broker.kafka.orderGroup", "ecommerce-data-platform-group")
	v.SetDefault("broker.kafka.couponGroup", "coupon-issue-group")
	v.SetDefault("broker.kafka.orderConcurrency", 3)
	v.SetDefault("broker.kafka.couponConcurrency", 3)
	v.SetDefault("broker.kafka.readerUsr", "")
	v.SetDefault("broker.kafka.readerUsrPwd", "")
	v.SetDefault("broker.kafka.writerUsr", "")
	v.SetDefault("broker.kafka.writerUsrPwd", "")
	v.SetDefault("broker.kafka.maxAttempts", 1)

	v.SetDefault("cron.retentionDays", 30)
	v.SetDefault("cron.schedule", "0 0 0 * * *")
	v.SetDefault("cron.interval", "")

	v.SetDefault("relay.workers", 4)
	v.SetDefault("relay.batchSize", 100)
	v.SetDefault("relay.lease", 30*time.Second)
	v.SetDefault("relay.pollPeriod", 5*time.Second)
	v.SetDefault("relay.maxRetries", 5)
	v.SetDefault("relay.backoffBase", 10*time.Second)
	v.SetDefault("relay.backoffCap", 10*time.Minute)
	v.SetDefault("relay.publishTimeout", 10*time.Second)

	v.SetDefault("sink.url", "")
	v.SetDefault("sink.timeout", 3*time.Second)
	v.SetDefault("sink.maxRetries", 0)
	v.SetDefault("sink.simulatedDelay", 2*time.Second)
	v.SetDefault("sink.simulatedFailureRate", 0.1)
	v.SetDefault("sink.breakerConsecutiveFailures", 5)
	v.SetDefault("sink.breakerOpenTimeout", 10*time.Second)

	v.SetDefault("httpClient.connectTimeout", 2*time.Second)
	v.SetDefault("httpClient.TLSHandshakeTimeout", 2*time.Second)
	v.SetDefault("httpClient.responseHeaderTimeout", 3*time.Second)
	v.SetDefault("httpClient.expectContinueTimeout", time.Second)
	v.SetDefault("httpClient.idleConnTimeout", 90*time.Second)
	v.SetDefault("httpClient.maxIdleConns", 100)
	v.SetDefault("httpClient.maxIdleConnsPerHost", 10)
	v.SetDefault("httpClient.maxConnsPerHost", 50)
	v.SetDefault("httpClient.keepAlives", true)
	v.SetDefault("httpClient.clientTimeout", 0)
	v.SetDefault("httpClient.userAgent", "ecommerce-service")
	v.SetDefault("httpClient.insecureSkipVerify", false)
}
