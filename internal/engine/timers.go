package engine

import (
	"sync"
	"time"
)

// timerKind различает таймауты протоколов
type timerKind string

const (
	timerConfirmation timerKind = "confirmation"
	timerNegotiation  timerKind = "negotiation"
)

// timerRef адресует один таймер: стадия подтверждения по ключу пары
// или переговоры по активу
type timerRef struct {
	kind timerKind
	id   string
}

// timerService - явный сервис таймеров с отменой при разрешении.
//
// Каждый таймер адресуется парой (kind, id); повторный Arm заменяет
// предыдущий таймер. Срабатывание уходит через callback в inbox
// движка, поэтому позднее срабатывание просто не найдет свое
// состояние и завершится no-op.
type timerService struct {
	mu     sync.Mutex
	timers map[timerRef]*time.Timer
	fire   func(ref timerRef)
}

func newTimerService(fire func(ref timerRef)) *timerService {
	return &timerService{
		timers: make(map[timerRef]*time.Timer),
		fire:   fire,
	}
}

// Arm взводит (или перевзводит) таймер
func (s *timerService) Arm(kind timerKind, id string, d time.Duration) {
	ref := timerRef{kind: kind, id: id}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[ref]; ok {
		old.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		// Таймер мог быть отменен или заменен между срабатыванием
		// и захватом mu - стреляет только актуальный
		if s.timers[ref] != t {
			s.mu.Unlock()
			return
		}
		delete(s.timers, ref)
		s.mu.Unlock()

		s.fire(ref)
	})
	s.timers[ref] = t
}

// Cancel снимает таймер; отсутствие таймера не ошибка
func (s *timerService) Cancel(kind timerKind, id string) {
	ref := timerRef{kind: kind, id: id}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[ref]; ok {
		t.Stop()
		delete(s.timers, ref)
	}
}

// CancelAll снимает все таймеры (остановка движка)
func (s *timerService) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ref, t := range s.timers {
		t.Stop()
		delete(s.timers, ref)
	}
}

// Armed сообщает, взведен ли таймер
func (s *timerService) Armed(kind timerKind, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[timerRef{kind: kind, id: id}]
	return ok
}
