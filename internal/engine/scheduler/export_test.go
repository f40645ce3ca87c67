package scheduler

import "maps"

// GetStepStatusMap returns a copy of the internal step status map.
func (s *Scheduler) GetStepStatusMap() map[string]StepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.stepStatus)
}
