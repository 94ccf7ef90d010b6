package battlemanager

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"
)

const (
	// Ключ Redis-множества пользователей онлайн
	onlineSetKey = "presence:online"

	// TTL heartbeat-ключа пользователя
	heartbeatTTL = 90 * time.Second
)

// typingEntry — отметка «участник печатает» с временем последнего обновления
type typingEntry struct {
	battleID uint
	userID   uint
	updated  time.Time
}

// Presence отслеживает эфемерное состояние присутствия: кто онлайн и кто
// печатает в какой битве. Состояние живет в памяти и зеркалируется в Redis
// (множество онлайн + heartbeat-ключи); после рестарта оно восстанавливается
// самими подключениями, ничего не читается из БД.
type Presence struct {
	config   *Config
	deps     *Dependencies
	notifier *Notifier

	// Ключ: "battleID:userID", значение: *typingEntry
	typing sync.Map

	// Ключ: userID (uint), значение: struct{}
	online sync.Map
}

// NewPresence создает трекер присутствия
func NewPresence(config *Config, deps *Dependencies, notifier *Notifier) *Presence {
	return &Presence{
		config:   config,
		deps:     deps,
		notifier: notifier,
	}
}

// HandleConnect отмечает пользователя онлайн. Вызывается хабом при регистрации
// соединения (в том числе при replace-on-reconnect).
func (p *Presence) HandleConnect(userID string) {
	id := parseUserID(userID)
	if id == 0 {
		return
	}

	if _, alreadyOnline := p.online.LoadOrStore(id, struct{}{}); alreadyOnline {
		return
	}

	if err := p.deps.CacheRepo.SAdd(onlineSetKey, userID); err != nil {
		log.Printf("[Presence] Ошибка добавления пользователя %s в online-множество: %v", userID, err)
	}
	p.Heartbeat(userID)

	p.notifier.UserOnline(PresencePayload{UserID: id})
	log.Printf("[Presence] Пользователь #%d онлайн", id)
}

// HandleDisconnect отмечает пользователя офлайн и снимает его typing-отметки
func (p *Presence) HandleDisconnect(userID string) {
	id := parseUserID(userID)
	if id == 0 {
		return
	}

	if _, wasOnline := p.online.LoadAndDelete(id); !wasOnline {
		return
	}

	if err := p.deps.CacheRepo.SRem(onlineSetKey, userID); err != nil {
		log.Printf("[Presence] Ошибка удаления пользователя %s из online-множества: %v", userID, err)
	}

	p.evictTypingForUser(id)

	p.notifier.UserOffline(PresencePayload{UserID: id})
	log.Printf("[Presence] Пользователь #%d офлайн", id)
}

// Heartbeat продлевает отметку активности пользователя в Redis
func (p *Presence) Heartbeat(userID string) {
	key := "presence:heartbeat:" + userID
	if err := p.deps.CacheRepo.Set(key, time.Now().Unix(), heartbeatTTL); err != nil {
		log.Printf("[Presence] Ошибка обновления heartbeat пользователя %s: %v", userID, err)
	}
}

// IsOnline сообщает, отмечен ли пользователь онлайн
func (p *Presence) IsOnline(userID uint) bool {
	_, ok := p.online.Load(userID)
	return ok
}

// StartTyping ставит отметку «печатает». Событие уходит только при переходе
// из состояния «не печатал»; обновление существующей отметки события не дает.
func (p *Presence) StartTyping(battleID, userID uint) {
	key := typingKey(battleID, userID)
	entry := &typingEntry{battleID: battleID, userID: userID, updated: time.Now()}

	if existing, loaded := p.typing.LoadOrStore(key, entry); loaded {
		existing.(*typingEntry).updated = time.Now()
		return
	}

	p.notifier.TypingStarted(TypingPayload{BattleID: battleID, UserID: userID})
}

// StopTyping снимает отметку «печатает»
func (p *Presence) StopTyping(battleID, userID uint) {
	key := typingKey(battleID, userID)
	if _, loaded := p.typing.LoadAndDelete(key); loaded {
		p.notifier.TypingStopped(TypingPayload{BattleID: battleID, UserID: userID})
	}
}

// Run запускает периодическую чистку устаревшего состояния присутствия.
// Блокируется до отмены контекста.
func (p *Presence) Run(ctx context.Context) {
	interval := p.config.PresenceSweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	log.Printf("[Presence] Запуск чистки присутствия каждые %v", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.sweep()
		case <-ctx.Done():
			log.Println("[Presence] Остановка чистки присутствия")
			return
		}
	}
}

// sweep снимает протухшие typing-отметки и сверяет online-состояние
// с реестром живых соединений хаба
func (p *Presence) sweep() {
	ttl := p.config.TypingTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	cutoff := time.Now().Add(-ttl)

	evicted := 0
	p.typing.Range(func(key, value interface{}) bool {
		entry, ok := value.(*typingEntry)
		if !ok {
			p.typing.Delete(key)
			return true
		}
		if entry.updated.Before(cutoff) {
			p.typing.Delete(key)
			p.notifier.TypingStopped(TypingPayload{BattleID: entry.battleID, UserID: entry.userID})
			evicted++
		}
		return true
	})

	stale := 0
	p.online.Range(func(key, value interface{}) bool {
		id, ok := key.(uint)
		if !ok {
			p.online.Delete(key)
			return true
		}
		userID := strconv.FormatUint(uint64(id), 10)
		if !p.deps.WSManager.IsUserConnected(userID) {
			p.HandleDisconnect(userID)
			stale++
		}
		return true
	})

	if evicted > 0 || stale > 0 {
		log.Printf("[Presence] Чистка: снято %d typing-отметок, %d потерянных online-записей", evicted, stale)
	}
}

// evictTypingForUser снимает все typing-отметки пользователя
func (p *Presence) evictTypingForUser(userID uint) {
	p.typing.Range(func(key, value interface{}) bool {
		entry, ok := value.(*typingEntry)
		if ok && entry.userID == userID {
			p.typing.Delete(key)
			p.notifier.TypingStopped(TypingPayload{BattleID: entry.battleID, UserID: entry.userID})
		}
		return true
	})
}

func typingKey(battleID, userID uint) string {
	return fmt.Sprintf("%d:%d", battleID, userID)
}

func parseUserID(userID string) uint {
	id, err := strconv.ParseUint(userID, 10, 32)
	if err != nil {
		log.Printf("[Presence] Некорректный UserID %q: %v", userID, err)
		return 0
	}
	return uint(id)
}
