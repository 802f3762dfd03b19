package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
)

// Configはアプリ全体の設定
type Config struct {
	Port     string // サーバーポート（8080）
	GoEnv    string // dev/prod
	LogLevel string // logrusのレベル

	StoreDriver string // mongo/postgres

	MongoURI string
	MongoDB  string

	DatabaseURL      string // あれば POSTGRES_* より優先
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     int
	PostgresSSLMode  string

	RedisAddr     string
	RedisPassword string

	JWTSecret  string        // JWT署名シークレット
	JWTTTL     time.Duration // アクセストークンの有効期限
	BcryptCost int

	AdminEmail    string // 管理画面ログイン用
	AdminPassword string

	SMTPHost     string // 空ならメールはログ出力のみ
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	MailFrom     string

	StripeSecretKey string
	StripeAPIBase   string
	Currency        string
	DeliveryFee     int64 // 送料（通貨単位）

	FEURL string // フロントURL（CORSや決済戻り先で使う）
}

// .envがあれば読む（無くてもよい）
func LoadDotenv(paths ...string) {
	for _, p := range paths {
		if err := godotenv.Load(p); err == nil {
			return
		}
	}
}

// Loadは環境変数
func Load() (Config, error) {
	pgPort, err := atoiDefault("POSTGRES_PORT", 5432)
	if err != nil {
		return Config{}, err
	}
	smtpPort, err := atoiDefault("SMTP_PORT", 587)
	if err != nil {
		return Config{}, err
	}
	cost, err := atoiDefault("BCRYPT_COST", 12)
	if err != nil {
		return Config{}, err
	}
	fee, err := atoiDefault("DELIVERY_FEE", 10)
	if err != nil {
		return Config{}, err
	}
	ttl, err := durationDefault("JWT_TTL", 7*24*time.Hour)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:     getenv("PORT", "8080"),
		GoEnv:    getenv("GO_ENV", "dev"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		StoreDriver: getenv("STORE_DRIVER", StoreMongo),

		MongoURI: getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:  getenv("MONGO_DB", "storefront"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     getenv("POSTGRES_USER", "postgres"),
		PostgresPassword: getenv("POSTGRES_PASSWORD", "postgres"),
		PostgresDB:       getenv("POSTGRES_DB", "storefront"),
		PostgresHost:     getenv("POSTGRES_HOST", "localhost"),
		PostgresPort:     pgPort,
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		JWTSecret:  os.Getenv("JWT_SECRET"),
		JWTTTL:     ttl,
		BcryptCost: cost,

		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     smtpPort,
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		MailFrom:     getenv("MAIL_FROM", "no-reply@localhost"),

		StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		StripeAPIBase:   getenv("STRIPE_API_BASE", "https://api.stripe.com"),
		Currency:        getenv("CURRENCY", "usd"),
		DeliveryFee:     int64(fee),

		FEURL: getenv("FE_URL", "http://localhost:5173"),
	}

	//必須チェック
	if cfg.StoreDriver != StoreMongo && cfg.StoreDriver != StorePostgres {
		return Config{}, fmt.Errorf("STORE_DRIVER must be %q or %q", StoreMongo, StorePostgres)
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.AdminEmail == "" {
		return Config{}, fmt.Errorf("ADMIN_EMAIL is required")
	}
	if cfg.AdminPassword == "" {
		return Config{}, fmt.Errorf("ADMIN_PASSWORD is required")
	}
	if cfg.DeliveryFee < 0 {
		return Config{}, fmt.Errorf("DELIVERY_FEE must be >= 0")
	}
	if cfg.GoEnv == "prod" && cfg.StripeSecretKey == "" {
		return Config{}, fmt.Errorf("STRIPE_SECRET_KEY is required in prod")
	}

	return cfg, nil
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func atoiDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func durationDefault(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be duration: %w", key, err)
	}
	return d, nil
}
