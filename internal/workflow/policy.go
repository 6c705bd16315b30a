package workflow

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy is the tunable part of the workflow, loaded from
// WORKFLOW_POLICY_FILE.
type Policy struct {
	FundApproval FundApprovalPolicy `yaml:"fund_approval"`
	Scoring      ScoreBands         `yaml:"scoring"`
	Rewards      Rewards            `yaml:"rewards"`
}

type FundApprovalPolicy struct {
	// SuperadminThreshold above which only a superadmin may approve. Zero
	// disables the check.
	SuperadminThreshold float64 `yaml:"superadmin_threshold"`
}

type Range[T int | float64] struct {
	Min T `yaml:"min"`
	Max T `yaml:"max"`
}

type ScoreBands struct {
	Rating     Range[float64] `yaml:"rating"`
	Efficiency Range[int]     `yaml:"efficiency"`
}

type Rewards struct {
	ReportPoints int `yaml:"report_points"`
}

func DefaultPolicy() Policy {
	return Policy{
		Scoring: ScoreBands{
			Rating:     Range[float64]{Min: 4.0, Max: 5.0},
			Efficiency: Range[int]{Min: 85, Max: 100},
		},
		Rewards: Rewards{ReportPoints: 10},
	}
}

// LoadPolicy reads a YAML policy file over the defaults. An empty path
// returns the defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p Policy) Validate() error {
	var errs []error
	if p.FundApproval.SuperadminThreshold < 0 {
		errs = append(errs, errors.New("fund_approval.superadmin_threshold must not be negative"))
	}
	r := p.Scoring.Rating
	if r.Min < 0 || r.Max > 5 || r.Min > r.Max {
		errs = append(errs, fmt.Errorf("scoring.rating must satisfy 0 <= min <= max <= 5, got [%v, %v]", r.Min, r.Max))
	}
	e := p.Scoring.Efficiency
	if e.Min < 0 || e.Max > 100 || e.Min > e.Max {
		errs = append(errs, fmt.Errorf("scoring.efficiency must satisfy 0 <= min <= max <= 100, got [%d, %d]", e.Min, e.Max))
	}
	if p.Rewards.ReportPoints < 0 {
		errs = append(errs, errors.New("rewards.report_points must not be negative"))
	}
	return errors.Join(errs...)
}

// ApprovalPolicy returns the fund approval hook the policy describes.
func (p Policy) ApprovalPolicy() ApprovalPolicy {
	if p.FundApproval.SuperadminThreshold > 0 {
		return SuperadminThreshold{Limit: p.FundApproval.SuperadminThreshold}
	}
	return AllowAll{}
}
