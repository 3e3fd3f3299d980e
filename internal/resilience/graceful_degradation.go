package resilience

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/blind-match/internal/errors"
)

// DegradationLevel represents the current degradation state
type DegradationLevel int

const (
	LevelNormal DegradationLevel = iota
	LevelDegraded
	LevelCritical
	LevelEmergency
)

func (l DegradationLevel) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelDegraded:
		return "degraded"
	case LevelCritical:
		return "critical"
	case LevelEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// DegradationConfig holds configuration for graceful degradation
type DegradationConfig struct {
	DegradedThreshold   float64       `json:"degraded_threshold"`  // error rate 0.0-1.0
	CriticalThreshold   float64       `json:"critical_threshold"`  // error rate 0.0-1.0
	EmergencyThreshold  float64       `json:"emergency_threshold"` // error rate 0.0-1.0
	MinRequests         int64         `json:"min_requests"`        // samples before the rate is trusted
	RecoveryTimeWindow  time.Duration `json:"recovery_time_window"`
	MaxDegradedDuration time.Duration `json:"max_degraded_duration"`
}

// DefaultDegradationConfig returns sensible defaults
func DefaultDegradationConfig() DegradationConfig {
	return DegradationConfig{
		DegradedThreshold:   0.1,
		CriticalThreshold:   0.25,
		EmergencyThreshold:  0.5,
		MinRequests:         10,
		RecoveryTimeWindow:  5 * time.Minute,
		MaxDegradedDuration: 10 * time.Minute,
	}
}

// ServiceHealth represents the health status of a service
type ServiceHealth struct {
	ServiceName   string           `json:"service_name"`
	Level         DegradationLevel `json:"level"`
	LevelName     string           `json:"level_name"`
	ErrorRate     float64          `json:"error_rate"`
	TotalRequests int64            `json:"total_requests"`
	ErrorCount    int64            `json:"error_count"`
	LastError     error            `json:"-"`
	LastErrorTime time.Time        `json:"last_error_time"`
	DegradedSince *time.Time       `json:"degraded_since,omitempty"`
	StatusMessage string           `json:"status_message"`
}

// DegradationManager tracks error rates of external collaborators so callers
// can skip a failing one and serve fallback values instead.
type DegradationManager struct {
	config   DegradationConfig
	now      func() time.Time
	services map[string]*ServiceHealth
	mutex    sync.RWMutex
}

// NewDegradationManager creates a new degradation manager
func NewDegradationManager(config DegradationConfig) *DegradationManager {
	return &DegradationManager{
		config:   config,
		now:      time.Now,
		services: make(map[string]*ServiceHealth),
	}
}

// RegisterService starts tracking a service at the normal level.
func (dm *DegradationManager) RegisterService(serviceName string) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	dm.services[serviceName] = &ServiceHealth{
		ServiceName:   serviceName,
		Level:         LevelNormal,
		LevelName:     LevelNormal.String(),
		StatusMessage: "Service is healthy",
	}

	slog.Info("Registered service for degradation management", "service", serviceName)
}

// RecordRequest records a request and its success/failure
func (dm *DegradationManager) RecordRequest(serviceName string, success bool) {
	if success {
		dm.record(serviceName, nil)
		return
	}
	dm.record(serviceName, errors.NewExternalAPIError(serviceName, nil))
}

// RecordError records an error for a service
func (dm *DegradationManager) RecordError(serviceName string, err error) {
	if err == nil {
		err = errors.NewExternalAPIError(serviceName, nil)
	}
	dm.record(serviceName, err)
}

func (dm *DegradationManager) record(serviceName string, err error) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	service, exists := dm.services[serviceName]
	if !exists {
		return
	}
	now := dm.now()

	// Counters restart once the last error falls outside the recovery window.
	if service.ErrorCount > 0 && dm.config.RecoveryTimeWindow > 0 &&
		now.Sub(service.LastErrorTime) > dm.config.RecoveryTimeWindow {
		service.TotalRequests = 0
		service.ErrorCount = 0
	}

	service.TotalRequests++
	if err != nil {
		service.ErrorCount++
		service.LastError = err
		service.LastErrorTime = now
	}
	service.ErrorRate = float64(service.ErrorCount) / float64(service.TotalRequests)

	dm.updateDegradationLevel(service, now)
}

// updateDegradationLevel updates the degradation level based on current metrics
func (dm *DegradationManager) updateDegradationLevel(service *ServiceHealth, now time.Time) {
	oldLevel := service.Level

	var newLevel DegradationLevel
	var statusMessage string

	switch {
	case service.TotalRequests < dm.config.MinRequests:
		newLevel = LevelNormal
		statusMessage = "Service is healthy"
	case service.ErrorRate >= dm.config.EmergencyThreshold:
		newLevel = LevelEmergency
		statusMessage = "Service is in emergency state - high error rate"
	case service.ErrorRate >= dm.config.CriticalThreshold:
		newLevel = LevelCritical
		statusMessage = "Service is in critical state - elevated error rate"
	case service.ErrorRate >= dm.config.DegradedThreshold:
		newLevel = LevelDegraded
		statusMessage = "Service is degraded - moderate error rate"
	default:
		newLevel = LevelNormal
		statusMessage = "Service is healthy"
	}

	if newLevel == LevelDegraded && service.DegradedSince != nil &&
		now.Sub(*service.DegradedSince) > dm.config.MaxDegradedDuration {
		newLevel = LevelEmergency
		statusMessage = "Service has been degraded too long - entering emergency state"
	}

	if newLevel == LevelDegraded && oldLevel != LevelDegraded {
		service.DegradedSince = &now
	} else if newLevel != LevelDegraded {
		service.DegradedSince = nil
	}

	service.Level = newLevel
	service.LevelName = newLevel.String()
	service.StatusMessage = statusMessage

	if oldLevel != newLevel {
		slog.Warn("Service degradation level changed",
			"service", service.ServiceName,
			"old_level", oldLevel.String(),
			"new_level", newLevel.String(),
			"error_rate", service.ErrorRate,
			"total_requests", service.TotalRequests,
			"error_count", service.ErrorCount)
	}
}

// GetServiceHealth returns a copy of the health status of a service
func (dm *DegradationManager) GetServiceHealth(serviceName string) (*ServiceHealth, bool) {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	service, exists := dm.services[serviceName]
	if !exists {
		return nil, false
	}
	cp := *service
	return &cp, true
}

// GetAllServiceHealth returns health status for all services
func (dm *DegradationManager) GetAllServiceHealth() map[string]*ServiceHealth {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	result := make(map[string]*ServiceHealth, len(dm.services))
	for name, service := range dm.services {
		cp := *service
		result[name] = &cp
	}
	return result
}

// IsServiceAvailable reports false for unknown services and for services in
// emergency state whose last error is still inside the recovery window.
func (dm *DegradationManager) IsServiceAvailable(serviceName string) bool {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	service, exists := dm.services[serviceName]
	if !exists {
		return false
	}
	if service.Level != LevelEmergency {
		return true
	}
	return dm.config.RecoveryTimeWindow > 0 &&
		dm.now().Sub(service.LastErrorTime) > dm.config.RecoveryTimeWindow
}

// ResetService resets a service's health status
func (dm *DegradationManager) ResetService(serviceName string) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if service, exists := dm.services[serviceName]; exists {
		*service = ServiceHealth{
			ServiceName:   serviceName,
			Level:         LevelNormal,
			LevelName:     LevelNormal.String(),
			StatusMessage: "Service is healthy",
		}
		slog.Info("Service health reset", "service", serviceName)
	}
}
