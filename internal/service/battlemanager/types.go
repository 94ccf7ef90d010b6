package battlemanager

import (
	"time"

	"github.com/aheroglu/devbattle-api/internal/domain/repository"
	"github.com/aheroglu/devbattle-api/internal/websocket"
)

// Config содержит настройки компонентов координатора битв
type Config struct {
	// TypingTTL — сколько живет отметка «печатает» без обновления
	TypingTTL time.Duration

	// PresenceSweepInterval — период чистки устаревших typing/online записей
	PresenceSweepInterval time.Duration

	// TimeoutChannelBuffer — буфер канала сигналов об истечении дедлайна
	TimeoutChannelBuffer int
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		TypingTTL:             10 * time.Second,
		PresenceSweepInterval: 30 * time.Second,
		TimeoutChannelBuffer:  16,
	}
}

// Dependencies содержит зависимости компонентов координатора битв
type Dependencies struct {
	BattleRepo repository.BattleRepository
	CacheRepo  repository.CacheRepository
	WSManager  *websocket.Manager
	Config     *Config
}
