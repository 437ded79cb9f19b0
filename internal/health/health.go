// Package health reports whether the local dependencies of the wallet are usable.
package health

import (
	"context"
	"time"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is satisfied by the limits policy evaluator.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Status is the overall result of a check.
type Status string

const (
	StatusServing    Status = "SERVING"
	StatusNotServing Status = "NOT_SERVING"
)

// Probe is the result of one dependency check.
type Probe struct {
	Name string
	Err  error
}

// Report is the result of Check.
type Report struct {
	Status Status
	Probes []Probe
}

// Checker probes the local store and the limits policy. Either may be nil and is then skipped.
type Checker struct {
	pinger  Pinger
	policy  PolicyChecker
	timeout time.Duration
}

// NewChecker returns a Checker.
func NewChecker(pinger Pinger, policy PolicyChecker) *Checker {
	return &Checker{pinger: pinger, policy: policy, timeout: 3 * time.Second}
}

// Check runs every configured probe. A failed probe makes the report NOT_SERVING.
func (c *Checker) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	r := Report{Status: StatusServing}
	if c.pinger != nil {
		r.add("database", c.pinger.PingContext(ctx))
	}
	if c.policy != nil {
		r.add("limits_policy", c.policy.HealthCheck(ctx))
	}
	return r
}

func (r *Report) add(name string, err error) {
	r.Probes = append(r.Probes, Probe{Name: name, Err: err})
	if err != nil {
		r.Status = StatusNotServing
	}
}
