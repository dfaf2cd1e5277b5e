// Package profile reads user profiles and turns them into the text the
// matching engine projects into the shared vector space.
package profile

import (
	"strings"

	"jobmate/match-service/internal/model"
)

// DefaultRepeat is how many times the desired-roles and skills sections are
// written into the profile text.
const DefaultRepeat = 3

// Compose renders agg as a single document. The desired-roles and skills
// sections are emitted repeat times so their terms dominate the raw counts;
// locations and experiences appear once. The output is deterministic for a
// given aggregate and is empty when there is nothing to describe.
func Compose(agg model.ProfileAggregate, repeat int) string {
	if repeat < 1 {
		repeat = 1
	}

	var parts []string
	emit := func(s string, times int) {
		for i := 0; i < times; i++ {
			parts = append(parts, s)
		}
	}

	if p := agg.Profile; p != nil {
		if roles := strings.TrimSpace(p.DesiredRoles); roles != "" {
			emit("Desired roles: "+roles, repeat)
		}
		if locs := strings.TrimSpace(p.DesiredLocations); locs != "" {
			emit("Desired locations: "+locs, 1)
		}
	}

	if names := skillNames(agg.Skills); len(names) > 0 {
		emit("Skills: "+strings.Join(names, " "), repeat)
	}

	for _, exp := range agg.Experiences {
		if s := experienceText(exp); s != "" {
			emit(s, 1)
		}
	}

	return strings.Join(parts, " ")
}

// RoleKeywords splits a comma-separated desired-roles value into trimmed,
// lowercased keywords. Blank entries are dropped.
func RoleKeywords(desiredRoles string) []string {
	var out []string
	for _, r := range strings.Split(desiredRoles, ",") {
		if k := strings.ToLower(strings.TrimSpace(r)); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func skillNames(skills []model.Skill) []string {
	names := make([]string, 0, len(skills))
	for _, s := range skills {
		if n := strings.TrimSpace(s.Name); n != "" {
			names = append(names, n)
		}
	}
	return names
}

func experienceText(exp model.Experience) string {
	title := strings.TrimSpace(exp.Title)
	company := strings.TrimSpace(exp.Company)
	desc := strings.TrimSpace(exp.Description)
	if title == "" && company == "" && desc == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString("Experience:")
	if title != "" {
		b.WriteString(" " + title)
	}
	if company != "" {
		b.WriteString(" at " + company)
	}
	if desc != "" {
		b.WriteString(" " + desc)
	}
	return b.String()
}
