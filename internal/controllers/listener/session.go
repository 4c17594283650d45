package listener

import (
	"sync/atomic"

	"github.com/IBM/sarama"
)

// FailureTracker оборачивает обработчик одного участника группы и запоминает,
// что сессия закончилась из-за ошибки обработки. sarama в этом случае
// закрывает сессию, а Consume возвращает nil.
type FailureTracker struct {
	sarama.ConsumerGroupHandler
	failed atomic.Bool
}

func TrackFailures(h sarama.ConsumerGroupHandler) *FailureTracker {
	return &FailureTracker{ConsumerGroupHandler: h}
}

func (t *FailureTracker) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	err := t.ConsumerGroupHandler.ConsumeClaim(session, claim)
	if err != nil {
		t.failed.Store(true)
	}
	return err
}

// Failed сбрасывает признак: каждая ошибка сессии сообщается один раз
func (t *FailureTracker) Failed() bool {
	return t.failed.Swap(false)
}
