// Package model defines shared data structures for the match service.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Job is a normalised offer as stored in the jobs table. It is also the
// payload scraper collaborators publish on the jobs topic and the record
// shape of seed files.
type Job struct {
	ID          uuid.UUID  `json:"id" yaml:"id,omitempty"`
	Title       string     `json:"title" yaml:"title"`
	Company     string     `json:"company" yaml:"company"`
	Location    string     `json:"location" yaml:"location"`
	Description string     `json:"description" yaml:"description"`
	URL         string     `json:"url" yaml:"url"`
	Source      string     `json:"source" yaml:"source"`
	PostedDate  *time.Time `json:"postedDate,omitempty" yaml:"posted_date,omitempty"`
	ScrapedAt   time.Time  `json:"scrapedAt" yaml:"scraped_at,omitempty"`
}

// Text joins the fields used for vectorization. Empty fields contribute
// empty strings.
func (j Job) Text() string {
	return strings.Join([]string{j.Title, j.Company, j.Location, j.Description}, " ")
}

// Profile mirrors the profiles table row. UserID is the identity handed out
// by the identity provider.
type Profile struct {
	UserID           string `json:"userId"`
	DesiredRoles     string `json:"desiredRoles"` // comma-separated role hints
	DesiredLocations string `json:"desiredLocations"`
	MinSalary        *int   `json:"minSalary,omitempty"`
}

// Skill is one named skill of a profile.
type Skill struct {
	Name  string `json:"name"`
	Level string `json:"level,omitempty"` // e.g. "beginner", "expert"
}

// Experience is one employment entry of a profile.
type Experience struct {
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	Location    string     `json:"location,omitempty"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	Description string     `json:"description,omitempty"`
}

// ProfileAggregate is everything the matcher needs about one user.
// Profile is nil when the user has no preferences row yet.
type ProfileAggregate struct {
	Profile     *Profile
	Skills      []Skill
	Experiences []Experience
}

// ScoredJob is one ranked entry produced by the matching engine.
type ScoredJob struct {
	JobID uuid.UUID
	Score float64
}
