package store

import (
	"sync"
	"time"

	"campusbus/internal/domain"
)

// SurveyStore keeps submitted ride surveys in memory.
type SurveyStore struct {
	mu      sync.RWMutex
	surveys []domain.RideSurvey
	nextID  int64
}

func NewSurveyStore() *SurveyStore {
	return &SurveyStore{nextID: 1}
}

func (s *SurveyStore) Add(survey domain.RideSurvey) domain.RideSurvey {
	s.mu.Lock()
	defer s.mu.Unlock()

	survey.ID = s.nextID
	survey.CreatedAt = time.Now().UTC()
	s.nextID++
	s.surveys = append(s.surveys, survey)
	return survey
}

func (s *SurveyStore) List() []domain.RideSurvey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.RideSurvey, len(s.surveys))
	copy(result, s.surveys)
	return result
}
