package service

import (
	"CloudVault/internal/common"
	"CloudVault/internal/dto"
	"CloudVault/internal/storage"
	"context"
	"fmt"
	"strings"
)

// ProvisionState is how far bucket group creation got.
type ProvisionState string

const (
	Unprovisioned    ProvisionState = "unprovisioned"
	PrivateCreated   ProvisionState = "private_created"
	PrivatePolicySet ProvisionState = "private_policy_set"
	PublicCreated    ProvisionState = "public_created"
	PublicPolicySet  ProvisionState = "public_policy_set"
)

// ProvisionStep is one attempted step.
type ProvisionStep struct {
	Target ProvisionState `json:"target"`
	Bucket string         `json:"bucket"`
	Err    error          `json:"-"`
	Error  string         `json:"error,omitempty"`
}

// ProvisionReport lists the steps of a CreateBucket call. State is the last
// state reached; there is no rollback.
type ProvisionReport struct {
	Group         string          `json:"group"`
	PrivateBucket string          `json:"private_bucket"`
	PublicBucket  string          `json:"public_bucket"`
	State         ProvisionState  `json:"state"`
	Steps         []ProvisionStep `json:"steps"`
}

// Complete reports whether both buckets exist with their policies.
func (r *ProvisionReport) Complete() bool {
	return r.State == PublicPolicySet
}

// CreateBucket provisions <name>.private and <name>.public, each followed by
// its policy. A failure on the first step returns that error unchanged; any
// later failure returns ErrPartialProvisioning with the report of what exists.
func (s *FileVersionService) CreateBucket(ctx context.Context, p dto.CreateBucketPayload) (*ProvisionReport, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty bucket group name", common.ErrInvalidName)
	}
	private, public := storage.BucketNames(name)
	publicPolicy := p.PublicBucketPolicy
	if publicPolicy == "" {
		publicPolicy = storage.PublicReadPolicy(public)
	}

	report := &ProvisionReport{Group: name, PrivateBucket: private, PublicBucket: public, State: Unprovisioned}
	steps := []struct {
		target ProvisionState
		bucket string
		run    func() error
	}{
		{PrivateCreated, private, func() error { return s.backend.CreateBucket(ctx, private, p.Region) }},
		{PrivatePolicySet, private, func() error { return s.backend.SetBucketPolicy(ctx, p.PrivateBucketPolicy, private) }},
		{PublicCreated, public, func() error { return s.backend.CreateBucket(ctx, public, p.Region) }},
		{PublicPolicySet, public, func() error { return s.backend.SetBucketPolicy(ctx, publicPolicy, public) }},
	}

	for _, step := range steps {
		err := step.run()
		rec := ProvisionStep{Target: step.target, Bucket: step.bucket, Err: err}
		if err != nil {
			rec.Error = err.Error()
		}
		report.Steps = append(report.Steps, rec)
		if err != nil {
			s.log.Warn(ctx, "bucket provisioning stopped", "group", name, "state", report.State, "step", step.target, "error", err)
			if report.State == Unprovisioned {
				return report, err
			}
			return report, fmt.Errorf("%w: %s stopped at %s: %w", common.ErrPartialProvisioning, name, report.State, err)
		}
		report.State = step.target
	}
	s.log.Info(ctx, "bucket group provisioned", "group", name)
	return report, nil
}
