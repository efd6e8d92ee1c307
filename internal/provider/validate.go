package provider

import (
	"context"

	"github.com/sirupsen/logrus"
)

// CredentialCheck is the outcome of validating one client credential
type CredentialCheck struct {
	Client string `json:"client"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// Validator exercises every registered client credential against its provider.
// Used when credentials change, so a bad key surfaces immediately instead of
// at the next scheduled sync.
type Validator struct {
	labels   []string
	managers map[string]TokenManager
	logger   *logrus.Logger
}

func NewValidator(logger *logrus.Logger) *Validator {
	return &Validator{
		managers: make(map[string]TokenManager),
		logger:   logger,
	}
}

// Register adds one client credential under a display label
func (v *Validator) Register(label string, manager TokenManager) {
	if _, ok := v.managers[label]; !ok {
		v.labels = append(v.labels, label)
	}
	v.managers[label] = manager
}

// Validate forces a fresh credential exchange for every registered client and
// reports each outcome. A failing client never aborts the checks that follow.
func (v *Validator) Validate(ctx context.Context) []CredentialCheck {
	checks := make([]CredentialCheck, 0, len(v.labels))
	for _, label := range v.labels {
		check := CredentialCheck{Client: label, OK: true}
		if _, err := v.managers[label].ValidToken(ctx, true); err != nil {
			v.logger.WithError(err).WithField("client", label).Error("Credential validation failed")
			check.OK = false
			check.Error = err.Error()
		}
		checks = append(checks, check)
	}
	return checks
}
