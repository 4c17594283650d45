package listener

import (
	"errors"
	"fmt"
	"sync"
)

// ErrPartitionOverlap одна партиция оказалась у двух участников сразу.
// Для купонов это значит два писателя на один ключ.
var ErrPartitionOverlap = errors.New("partition assigned to more than one member")

type partitionKey struct {
	topic     string
	partition int32
}

// Assignments реестр владельцев партиций внутри процесса
type Assignments struct {
	mu     sync.Mutex
	owners map[partitionKey]string
}

func NewAssignments() *Assignments {
	return &Assignments{owners: make(map[partitionKey]string)}
}

// Acquire закрепляет партиции за memberID. При конфликте ничего не меняет и возвращает ошибку.
func (a *Assignments) Acquire(memberID string, claims map[string][]int32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for topic, partitions := range claims {
		for _, p := range partitions {
			if owner, ok := a.owners[partitionKey{topic, p}]; ok && owner != memberID {
				return fmt.Errorf("%w: %s/%d owned by %s, requested by %s", ErrPartitionOverlap, topic, p, owner, memberID)
			}
		}
	}
	for topic, partitions := range claims {
		for _, p := range partitions {
			a.owners[partitionKey{topic, p}] = memberID
		}
	}
	return nil
}

// Release снимает только партиции, которыми memberID действительно владеет
func (a *Assignments) Release(memberID string, claims map[string][]int32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for topic, partitions := range claims {
		for _, p := range partitions {
			k := partitionKey{topic, p}
			if a.owners[k] == memberID {
				delete(a.owners, k)
			}
		}
	}
}

func (a *Assignments) Owner(topic string, partition int32) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	owner, ok := a.owners[partitionKey{topic, partition}]
	return owner, ok
}

func (a *Assignments) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.owners)
}
