package config

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/viper"
)

// Config хранит все настройки приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Judge    JudgeConfig
	Battle   BattleConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig содержит унифицированные настройки подключения к Redis
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	// Mode: Режим работы Redis ("single", "sentinel", "cluster"). По умолчанию "single".
	Mode string `mapstructure:"mode"`

	// Addrs: Список адресов Redis (хост:порт). Используется для всех режимов.
	// Для 'single', если не пуст, используется первый адрес из списка.
	Addrs []string `mapstructure:"addrs"`

	// Addr: Альтернативный адрес для режима 'single' (для обратной совместимости).
	// Используется, если Mode="single" и Addrs пустой.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName: Имя мастер-сервера Redis (только для режима "sentinel")
	MasterName string `mapstructure:"master_name"`

	// MaxRetries: Максимальное количество попыток переподключения (-1 - бесконечно). По умолчанию 0 (без ретраев).
	MaxRetries int `mapstructure:"max_retries"`

	// MinRetryBackoff: Минимальный интервал между попытками (в миллисекундах). По умолчанию 8ms.
	MinRetryBackoff int `mapstructure:"min_retry_backoff"`

	// MaxRetryBackoff: Максимальный интервал между попытками (в миллисекундах). По умолчанию 512ms.
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"`
}

// JWTConfig содержит настройки JWT
type JWTConfig struct {
	Secret            string `mapstructure:"secret"`
	ExpirationHrs     int    `mapstructure:"expirationHrs"`
	WSTicketExpirySec int    `mapstructure:"wsTicketExpirySec"` // Время жизни тикета для WebSocket в секундах
}

// JudgeConfig содержит настройки внешнего движка исполнения кода.
// Пустой BaseURL переключает судейство в режим заглушки.
type JudgeConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	PollIntervalMs int    `mapstructure:"poll_interval_ms"` // Интервал опроса статуса исполнения
	MaxWaitMs      int    `mapstructure:"max_wait_ms"`      // Максимальное время ожидания результата
}

// BattleConfig содержит настройки битв
type BattleConfig struct {
	// MinSolversToStart: минимальное число solver'ов для старта битвы
	MinSolversToStart int `mapstructure:"min_solvers_to_start"`
	// MaxCodeSize: максимальный размер кода сабмита в символах
	MaxCodeSize int `mapstructure:"max_code_size"`
	// PresenceSweepIntervalSec: период чистки устаревших typing/online записей
	PresenceSweepIntervalSec int `mapstructure:"presence_sweep_interval_sec"`
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// Load загружает конфигурацию из файла
func Load(configPath string) (*Config, error) {
	vip := viper.New() // Используем новый экземпляр Viper, чтобы избежать глобального состояния

	// 1. Значения по умолчанию
	vip.SetDefault("battle.min_solvers_to_start", 2)
	vip.SetDefault("battle.max_code_size", 10000)
	vip.SetDefault("battle.presence_sweep_interval_sec", 30)
	vip.SetDefault("judge.poll_interval_ms", 500)
	vip.SetDefault("judge.max_wait_ms", 20000)
	vip.SetDefault("jwt.expirationHrs", 24)
	vip.SetDefault("jwt.wsTicketExpirySec", 60)

	// 2. Привязываем переменные окружения ЯВНО
	// Привязка для секции Database
	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")

	// Привязка для секции Redis
	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS") // Для массива строк
	vip.BindEnv("redis.addr", "REDIS_ADDR")   // Для одиночной строки
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	// Привязка для секции JWT
	vip.BindEnv("jwt.secret", "JWT_SECRET")
	vip.BindEnv("jwt.expirationHrs", "JWT_EXPIRATIONHRS")
	vip.BindEnv("jwt.wsTicketExpirySec", "JWT_WSTICKETEXPIRYSEC")

	// Привязка для секции Judge
	vip.BindEnv("judge.base_url", "JUDGE_BASE_URL")
	vip.BindEnv("judge.poll_interval_ms", "JUDGE_POLL_INTERVAL_MS")
	vip.BindEnv("judge.max_wait_ms", "JUDGE_MAX_WAIT_MS")

	// Привязка для секции Battle
	vip.BindEnv("battle.min_solvers_to_start", "BATTLE_MIN_SOLVERS_TO_START")
	vip.BindEnv("battle.max_code_size", "BATTLE_MAX_CODE_SIZE")
	vip.BindEnv("battle.presence_sweep_interval_sec", "BATTLE_PRESENCE_SWEEP_INTERVAL_SEC")

	// Привязка для Server
	vip.BindEnv("server.port", "SERVER_PORT")

	// 3. Устанавливаем путь к файлу конфигурации
	if configPath != "" {
		vip.SetConfigFile(configPath)
		// 4. Пытаемся прочитать файл конфигурации (не страшно, если его нет, т.к. есть BindEnv)
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				log.Printf("Файл конфигурации '%s' не найден, используются переменные окружения/умолчания.", configPath)
			} else {
				log.Printf("Предупреждение: не удалось прочитать файл конфигурации '%s': %v", configPath, err)
			}
		}
	}

	// 5. Анмаршалим конфигурацию (Viper объединит значения из файла и привязанных env vars)
	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 6. Логирование конфигурации (только в debug режиме)
	if os.Getenv("GIN_MODE") != "release" {
		log.Printf("--- Загруженные значения конфигурации ---")
		log.Printf("Database Host: %s", cfg.Database.Host)
		log.Printf("Database Port: %s", cfg.Database.Port)
		log.Printf("Database User: %s", cfg.Database.User)
		log.Printf("Database Name: %s", cfg.Database.DBName)
		log.Printf("Database SSLMode: %s", cfg.Database.SSLMode)
		log.Printf("Redis Addr: %s", cfg.Redis.Addr)
		log.Printf("Redis Mode: %s", cfg.Redis.Mode)
		log.Printf("JWT Expiration Hours: %d", cfg.JWT.ExpirationHrs)
		log.Printf("Judge Base URL Set: %t", cfg.Judge.BaseURL != "")
		log.Printf("Server Port: %s", cfg.Server.Port)
		log.Printf("-----------------------------------------")
	}

	// 7. Проверка обязательных параметров
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT secret is required in config (check JWT_SECRET env var)")
	}
	if cfg.Database.Host == "" || cfg.Database.DBName == "" || cfg.Database.User == "" {
		return nil, fmt.Errorf("database configuration (host, dbname, user) is incomplete in config (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}
	if cfg.Judge.BaseURL == "" {
		log.Println("Warning: JUDGE_BASE_URL is not set, submissions will be judged by the stub judge.")
	}
	ginMode := vip.GetString("GIN_MODE")
	if ginMode != "debug" {
		if cfg.Database.Password == "" {
			return nil, fmt.Errorf("database password is required in production mode (check DATABASE_PASSWORD env var)")
		}
		isRedisConfigured := len(cfg.Redis.Addrs) > 0 || cfg.Redis.Addr != ""
		if isRedisConfigured && cfg.Redis.Password == "" {
			log.Println("Warning: Redis is configured but REDIS_PASSWORD is not set in a non-debug environment.")
		}
	}

	return &cfg, nil
}
