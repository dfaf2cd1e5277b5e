package corpus

import (
	"strings"

	"jobmate/match-service/internal/model"
)

// ContainsExcluded returns true if any exclude term appears (case-insensitive)
// anywhere in the combined title + company + description text.
//
// Checked before every insert; a hit discards the offer.
func ContainsExcluded(job model.Job, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	combined := strings.ToLower(job.Title + " " + job.Company + " " + job.Description)
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		if strings.Contains(combined, strings.ToLower(term)) {
			return true
		}
	}
	return false
}
