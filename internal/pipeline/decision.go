package pipeline

import (
	"fmt"

	"github.com/TobiSchelling/geopages/internal/database"
)

// Decision is the outcome of the publish decision for a validated item.
type Decision string

const (
	DecisionAutoPublish   Decision = "auto_publish"
	DecisionAwaitApproval Decision = "await_approval"
	DecisionBlock         Decision = "block"
)

// Decide chooses what happens to a queue item after validation. It has no
// side effects. Items that did not pass validation are blocked; malformed
// settings fail with ErrInvalidSettings.
func Decide(item *database.QueueItem, s database.Settings) (Decision, error) {
	if item.SeoValidationPassed == nil || !*item.SeoValidationPassed {
		return DecisionBlock, nil
	}
	if err := s.Validate(); err != nil {
		return DecisionAwaitApproval, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if item.AIConfidenceScore == nil {
		return DecisionAwaitApproval, nil
	}
	if s.AutoPublishEnabled && !s.RequireAdminApproval && *item.AIConfidenceScore >= s.AutoPublishThreshold {
		return DecisionAutoPublish, nil
	}
	return DecisionAwaitApproval, nil
}
