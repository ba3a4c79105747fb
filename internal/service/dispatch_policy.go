package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shiva/ridedispatch/internal/model"
)

// DispatchPolicy is the per-operator gate in front of automatic matching.
type DispatchPolicy struct {
	settings    SettingsStore
	defaultMode model.DispatchMode
	now         Clock
}

// NewDispatchPolicy creates the gate. defaultMode applies to operators with
// no stored setting; an empty value means auto.
func NewDispatchPolicy(settings SettingsStore, defaultMode model.DispatchMode, now Clock) *DispatchPolicy {
	if defaultMode == "" {
		defaultMode = model.DispatchModeAuto
	}
	if now == nil {
		now = time.Now
	}
	return &DispatchPolicy{settings: settings, defaultMode: defaultMode, now: now}
}

// DispatchSetting is an operator's effective mode and whether it was
// explicitly configured.
type DispatchSetting struct {
	OperatorID   string             `json:"operatorId"`
	DispatchMode model.DispatchMode `json:"dispatchMode"`
	Configured   bool               `json:"configured"`
	UpdatedAt    *time.Time         `json:"updatedAt,omitempty"`
}

// Effective resolves the operator's dispatch mode, falling back to the default.
func (p *DispatchPolicy) Effective(ctx context.Context, operatorID string) (*DispatchSetting, error) {
	s, err := p.settings.GetDispatchSetting(ctx, operatorID)
	switch {
	case errors.Is(err, model.ErrSettingNotFound):
		return &DispatchSetting{OperatorID: operatorID, DispatchMode: p.defaultMode}, nil
	case err != nil:
		return nil, fmt.Errorf("dispatch policy: read setting for %s: %w", operatorID, err)
	}
	updated := s.UpdatedAt
	return &DispatchSetting{
		OperatorID:   operatorID,
		DispatchMode: s.DispatchMode,
		Configured:   true,
		UpdatedAt:    &updated,
	}, nil
}

// CanAutoAssign reports whether automatic matching is enabled for operatorID.
func (p *DispatchPolicy) CanAutoAssign(ctx context.Context, operatorID string) (bool, error) {
	s, err := p.Effective(ctx, operatorID)
	if err != nil {
		return false, err
	}
	return s.DispatchMode == model.DispatchModeAuto, nil
}

// SetMode stores an operator's dispatch mode.
func (p *DispatchPolicy) SetMode(ctx context.Context, operatorID string, mode model.DispatchMode) (*DispatchSetting, error) {
	if strings.TrimSpace(operatorID) == "" {
		return nil, model.Invalid("operatorId", "is required")
	}
	if mode != model.DispatchModeAuto && mode != model.DispatchModeManual {
		return nil, model.Invalid("dispatchMode", "must be auto or manual, got %q", mode)
	}
	s := &model.OperatorSetting{OperatorID: operatorID, DispatchMode: mode, UpdatedAt: p.now()}
	if err := p.settings.PutDispatchSetting(ctx, s); err != nil {
		return nil, fmt.Errorf("dispatch policy: store setting for %s: %w", operatorID, err)
	}
	updated := s.UpdatedAt
	return &DispatchSetting{OperatorID: operatorID, DispatchMode: mode, Configured: true, UpdatedAt: &updated}, nil
}
