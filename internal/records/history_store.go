package records

import (
	"encoding/json"
	"fmt"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/gymtrack/internal/strength"
)

const (
	oneHour            = 60 * 60
	historyCacheExpire = oneHour * 1 // default expire in hours
)

// HistoryStore caches per-exercise set history between session starts, so
// resuming or restarting a session does not re-read the whole set log from
// the database. The cache is best effort, a miss falls back to the repo.
type HistoryStore struct {
	cache *freecache.Cache
}

func NewHistoryStore(cacheSizeMegabytes int) *HistoryStore {
	megabyte := 1024 * 1024
	return &HistoryStore{
		cache: freecache.NewCache(cacheSizeMegabytes * megabyte),
	}
}

func historyCacheKey(exerciseID int) []byte {
	return []byte(fmt.Sprintf("history::%d", exerciseID))
}

func (s *HistoryStore) Get(exerciseID int) ([]strength.Set, bool) {
	historyBytes, err := s.cache.Get(historyCacheKey(exerciseID))
	if err != nil {
		return nil, false
	}

	var sets []strength.Set
	if err := json.Unmarshal(historyBytes, &sets); err != nil {
		log.Errorf("failed to unmarshal cached history for exercise %d: %s", exerciseID, err)
		return nil, false
	}
	return sets, true
}

func (s *HistoryStore) Set(exerciseID int, sets []strength.Set) {
	setsBytes, err := json.Marshal(sets)
	if err != nil {
		log.Errorf("failed to marshal history for exercise %d: %s", exerciseID, err)
		return
	}
	if err := s.cache.Set(historyCacheKey(exerciseID), setsBytes, historyCacheExpire); err != nil {
		log.Errorf("failed to cache history for exercise %d: %s", exerciseID, err)
	}
}

// Invalidate drops the cached history for an exercise. Called after new sets
// get persisted, the next session start re-reads from the repo.
func (s *HistoryStore) Invalidate(exerciseID int) {
	s.cache.Del(historyCacheKey(exerciseID))
}
