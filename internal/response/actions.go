// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package response

import (
	"github.com/tomtom215/invigilo/internal/models"
)

// Action names one automated enforcement step. The string value keys
// the cooldown table in config and labels the dispatcher metrics.
type Action string

const (
	ActionLog                      Action = "log"
	ActionEnhancedMonitoring       Action = "enhanced_monitoring"
	ActionNotifyAdmin              Action = "notify_admin"
	ActionIncreaseVerification     Action = "increase_verification"
	ActionFlagForReview            Action = "flag_for_review"
	ActionRequireExtraVerification Action = "require_extra_verification"
	ActionNotifyStudent            Action = "notify_student"
	ActionSuspendSession           Action = "suspend_session"
)

// bucketActions lists the actions each bucket introduces on top of the
// buckets below it. suspend_session is listed last within its bucket so
// in-session notices go out before the connection is torn down.
var bucketActions = map[models.RiskBucket][]Action{
	models.BucketSuspicious:  {ActionLog, ActionEnhancedMonitoring},
	models.BucketHighRisk:    {ActionNotifyAdmin, ActionIncreaseVerification},
	models.BucketCritical:    {ActionFlagForReview, ActionRequireExtraVerification},
	models.BucketAutoSuspend: {ActionNotifyAdmin, ActionNotifyStudent, ActionSuspendSession},
}

// bucketOrder fixes the union and execution order of the cumulative set.
var bucketOrder = []models.RiskBucket{
	models.BucketSuspicious,
	models.BucketHighRisk,
	models.BucketCritical,
	models.BucketAutoSuspend,
}

// ActionsFor returns the cumulative action set for a bucket: the union,
// in execution order and without duplicates, of every bucket at or
// below its rank. Normal sessions get no actions.
func ActionsFor(bucket models.RiskBucket) []Action {
	rank := bucket.Rank()
	if rank <= models.BucketNormal.Rank() {
		return nil
	}

	var out []Action
	seen := make(map[Action]bool, 8)
	for _, b := range bucketOrder {
		if b.Rank() > rank {
			break
		}
		for _, a := range bucketActions[b] {
			if seen[a] {
				continue
			}
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}
