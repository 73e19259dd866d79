package review

import (
	"fmt"

	"charterline/internal/domain"
)

type ChecklistItem string

const (
	ItemPrivacyPolicy       ChecklistItem = "privacy_policy"
	ItemTermsOfService      ChecklistItem = "terms_of_service"
	ItemSupportChannel      ChecklistItem = "support_channel"
	ItemErrorMonitoring     ChecklistItem = "error_monitoring"
	ItemBackupRestoreTested ChecklistItem = "backup_restore_tested"
	ItemAnalyticsConfigured ChecklistItem = "analytics_configured"
)

var ChecklistItems = []ChecklistItem{
	ItemPrivacyPolicy,
	ItemTermsOfService,
	ItemSupportChannel,
	ItemErrorMonitoring,
	ItemBackupRestoreTested,
	ItemAnalyticsConfigured,
}

func field(cl *domain.ReadinessChecklist, item ChecklistItem) (*bool, error) {
	switch item {
	case ItemPrivacyPolicy:
		return &cl.PrivacyPolicy, nil
	case ItemTermsOfService:
		return &cl.TermsOfService, nil
	case ItemSupportChannel:
		return &cl.SupportChannel, nil
	case ItemErrorMonitoring:
		return &cl.ErrorMonitoring, nil
	case ItemBackupRestoreTested:
		return &cl.BackupRestoreTested, nil
	case ItemAnalyticsConfigured:
		return &cl.AnalyticsConfigured, nil
	}
	return nil, domain.ValidationError{Field: "checklist_item", Reason: fmt.Sprintf("unknown item %q", item)}
}

func SetItem(cl domain.ReadinessChecklist, item ChecklistItem, done bool) (domain.ReadinessChecklist, error) {
	p, err := field(&cl, item)
	if err != nil {
		return cl, err
	}
	*p = done
	return cl, nil
}

func Item(cl domain.ReadinessChecklist, item ChecklistItem) (bool, error) {
	p, err := field(&cl, item)
	if err != nil {
		return false, err
	}
	return *p, nil
}

// Missing returns incomplete items in checklist order.
func Missing(cl domain.ReadinessChecklist) []ChecklistItem {
	var out []ChecklistItem
	for _, item := range ChecklistItems {
		if done, _ := Item(cl, item); !done {
			out = append(out, item)
		}
	}
	return out
}
