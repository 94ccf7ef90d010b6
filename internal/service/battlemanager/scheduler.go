package battlemanager

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/aheroglu/devbattle-api/internal/domain/entity"
)

// Scheduler отвечает за таймеры дедлайнов активных битв.
// На каждую активную битву заводится ровно один таймер; по его срабатыванию
// ID битвы уходит в канал таймаутов, который потребляет BattleService.
// Срабатывание после отмены безвредно: атомарный переход active → completed
// в БД разрешает гонку ручного и автоматического завершения.
type Scheduler struct {
	config *Config
	deps   *Dependencies

	// Базовый контекст времени жизни приложения. Таймеры битв живут в нем,
	// а не в контексте HTTP-запроса, взведшего таймер: запрос завершается
	// через миллисекунды, а дедлайн наступает через десятки минут.
	baseCtx context.Context

	// Внутреннее состояние
	battleCancels sync.Map // map[uint]context.CancelFunc

	// Канал для сигнализации об истечении дедлайна битвы
	timeoutCh chan uint
}

// NewScheduler создает новый планировщик дедлайнов. ctx — контекст времени
// жизни приложения: его отмена гасит все взведенные таймеры.
func NewScheduler(ctx context.Context, config *Config, deps *Dependencies) *Scheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	buffer := config.TimeoutChannelBuffer
	if buffer <= 0 {
		buffer = 16
	}
	return &Scheduler{
		config:    config,
		deps:      deps,
		baseCtx:   ctx,
		timeoutCh: make(chan uint, buffer),
	}
}

// GetTimeoutChannel возвращает канал уведомлений об истечении дедлайнов
func (s *Scheduler) GetTimeoutChannel() <-chan uint {
	return s.timeoutCh
}

// Arm взводит таймер дедлайна для битвы. Уже взведенный таймер
// перевзводится (старый отменяется).
func (s *Scheduler) Arm(battleID uint, deadline time.Time) {
	battleCtx, cancel := context.WithCancel(s.baseCtx)

	if old, loaded := s.battleCancels.LoadAndDelete(battleID); loaded {
		old.(context.CancelFunc)()
		log.Printf("[Scheduler] Старый таймер битвы #%d отменен перед перевзводом", battleID)
	}
	s.battleCancels.Store(battleID, cancel)

	go s.runDeadlineTimer(battleCtx, battleID, deadline)
	log.Printf("[Scheduler] Таймер битвы #%d взведен, дедлайн %v", battleID, deadline)
}

// Ensure взводит таймер для уже активной битвы, если он еще не взведен.
// Оставшееся время выводится из start_time, а не из полной длительности —
// это путь восстановления после рестарта процесса или переподключения
// клиента к битве без таймера.
func (s *Scheduler) Ensure(battle *entity.Battle) {
	if !battle.IsActive() {
		return
	}
	if _, armed := s.battleCancels.Load(battle.ID); armed {
		return
	}

	deadline, ok := battle.Deadline()
	if !ok {
		log.Printf("[Scheduler] Предупреждение: у активной битвы #%d нет start_time, таймер не взведен", battle.ID)
		return
	}

	s.Arm(battle.ID, deadline)
}

// Disarm снимает таймер дедлайна битвы. Отсутствие таймера — не ошибка.
func (s *Scheduler) Disarm(battleID uint) {
	if cancel, loaded := s.battleCancels.LoadAndDelete(battleID); loaded {
		cancel.(context.CancelFunc)()
		log.Printf("[Scheduler] Таймер битвы #%d снят", battleID)
	}
}

// runDeadlineTimer ждет дедлайна или отмены
func (s *Scheduler) runDeadlineTimer(ctx context.Context, battleID uint, deadline time.Time) {
	defer s.battleCancels.Delete(battleID)

	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}

	select {
	case <-time.After(remaining):
		log.Printf("[Scheduler] Дедлайн битвы #%d истек", battleID)
		s.fireTimeout(battleID)
	case <-ctx.Done():
		log.Printf("[Scheduler] Таймер битвы #%d отменен", battleID)
	}
}

// fireTimeout отправляет сигнал таймаута в канал.
// Неблокирующая отправка: если потребитель отстал, сигнал будет
// восстановлен при следующем Ensure по данным БД.
func (s *Scheduler) fireTimeout(battleID uint) {
	select {
	case s.timeoutCh <- battleID:
	default:
		log.Printf("[Scheduler] Предупреждение: канал таймаутов переполнен, сигнал битвы #%d потерян", battleID)
	}
}

// RearmActive взводит таймеры для всех активных битв из БД.
// Вызывается один раз при старте приложения.
func (s *Scheduler) RearmActive() error {
	battles, err := s.deps.BattleRepo.GetActive()
	if err != nil {
		return err
	}

	for i := range battles {
		s.Ensure(&battles[i])
	}

	if len(battles) > 0 {
		log.Printf("[Scheduler] Восстановлены таймеры %d активных битв", len(battles))
	}
	return nil
}
