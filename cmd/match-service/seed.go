package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"

	"jobmate/match-service/internal/model"
	"jobmate/match-service/internal/profile"
)

// seedFile is the YAML layout accepted by `seed --file`:
//
//	jobs:
//	  - title: Backend Engineer
//	    company: Acme
//	    url: https://acme.example/jobs/1
//	profiles:
//	  - user_id: 7c0e…
//	    desired_roles: Backend Engineer, Platform Engineer
//	    skills: [Go, PostgreSQL]
//	    experiences:
//	      - title: Developer
//	        company: Globex
//	        start_date: 2021-03-01
type seedFile struct {
	Source   string        `yaml:"source"`
	Jobs     []model.Job   `yaml:"jobs"`
	Profiles []seedProfile `yaml:"profiles"`
}

type seedProfile struct {
	UserID           string           `yaml:"user_id"`
	DesiredRoles     string           `yaml:"desired_roles"`
	DesiredLocations string           `yaml:"desired_locations"`
	MinSalary        *int             `yaml:"min_salary"`
	Skills           []string         `yaml:"skills"`
	Experiences      []seedExperience `yaml:"experiences"`
}

type seedExperience struct {
	Title       string `yaml:"title"`
	Company     string `yaml:"company"`
	Location    string `yaml:"location"`
	StartDate   string `yaml:"start_date"`
	EndDate     string `yaml:"end_date"`
	Description string `yaml:"description"`
}

const seedDateLayout = "2006-01-02"

func parseSeed(data []byte) (*seedFile, error) {
	var sf seedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if sf.Source == "" {
		sf.Source = "seed"
	}
	for i, p := range sf.Profiles {
		if strings.TrimSpace(p.UserID) == "" {
			return nil, fmt.Errorf("profile #%d: user_id is required", i+1)
		}
		for _, e := range p.Experiences {
			if _, err := parseSeedDate(e.StartDate); err != nil {
				return nil, fmt.Errorf("profile %s: %w", p.UserID, err)
			}
			if _, err := parseSeedDate(e.EndDate); err != nil {
				return nil, fmt.Errorf("profile %s: %w", p.UserID, err)
			}
		}
	}
	return &sf, nil
}

func parseSeedDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(seedDateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("date %q must be YYYY-MM-DD", s)
	}
	return &t, nil
}

func (p seedProfile) skills() []model.Skill {
	out := make([]model.Skill, 0, len(p.Skills))
	for _, s := range p.Skills {
		out = append(out, model.Skill{Name: s})
	}
	return profile.DedupSkills(out)
}

func (e seedExperience) toModel() model.Experience {
	start, _ := parseSeedDate(e.StartDate)
	end, _ := parseSeedDate(e.EndDate)
	return model.Experience{
		Title:       e.Title,
		Company:     e.Company,
		Location:    e.Location,
		StartDate:   start,
		EndDate:     end,
		Description: e.Description,
	}
}

var seedPath string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load jobs and profiles from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(seedPath)
		if err != nil {
			return fmt.Errorf("read seed file: %w", err)
		}
		sf, err := parseSeed(data)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, log, false)
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.ingester.Ingest(ctx, sf.Source, sf.Jobs)
		if err != nil {
			return err
		}

		for _, p := range sf.Profiles {
			err := a.profiles.UpsertPreferences(ctx, model.Profile{
				UserID:           p.UserID,
				DesiredRoles:     p.DesiredRoles,
				DesiredLocations: p.DesiredLocations,
				MinSalary:        p.MinSalary,
			})
			if err != nil {
				return err
			}
			added, err := a.profiles.AddSkills(ctx, p.UserID, p.skills())
			if err != nil {
				return err
			}
			for _, e := range p.Experiences {
				if err := a.profiles.AddExperience(ctx, p.UserID, e.toModel()); err != nil {
					return err
				}
			}
			log.Info("profile seeded", zap.String("user_id", p.UserID), zap.Int("new_skills", added))
		}

		fmt.Printf("jobs: inserted=%d duplicates=%d filtered=%d invalid=%d; profiles: %d\n",
			res.Inserted, res.Duplicates, res.Filtered, res.Invalid, len(sf.Profiles))
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedPath, "file", "", "YAML file with jobs and profiles")
	_ = seedCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(seedCmd)
}
