package workspace

import (
	"fmt"
	"strings"
)

// Step identifies one provisioning phase.
type Step string

const (
	StepRootGroup    Step = "root_group"
	StepNestedGroup  Step = "nested_group"
	StepAttachNested Step = "attach_nested"
	StepPermission   Step = "permission"
	StepRole         Step = "role"
	StepBindRole     Step = "bind_role"
	StepOwnership    Step = "ownership"
)

// StepResult records the outcome of a single provisioning action against a
// single target (a group, permission or role name).
type StepResult struct {
	Step   Step   `json:"step"`
	Target string `json:"target"`
	Error  string `json:"error,omitempty"`
}

// Failed reports whether this step errored.
func (r StepResult) Failed() bool { return r.Error != "" }

// Ledger is the per-step record of a provisioning run. Steps after the
// root group are best-effort; the ledger makes partial success explicit
// instead of burying it in logs.
type Ledger struct {
	Org   string       `json:"org"`
	Steps []StepResult `json:"steps"`
}

func (l *Ledger) record(step Step, target string, err error) {
	result := StepResult{Step: step, Target: target}
	if err != nil {
		result.Error = err.Error()
	}
	l.Steps = append(l.Steps, result)
}

// Failures returns the steps that errored.
func (l *Ledger) Failures() []StepResult {
	var failed []StepResult
	for _, s := range l.Steps {
		if s.Failed() {
			failed = append(failed, s)
		}
	}
	return failed
}

// Complete reports whether every recorded step succeeded.
func (l *Ledger) Complete() bool { return len(l.Failures()) == 0 }

// Err returns a *PartialFailureError describing the failed steps, or nil
// when the run was complete.
func (l *Ledger) Err() error {
	failures := l.Failures()
	if len(failures) == 0 {
		return nil
	}
	return &PartialFailureError{Org: l.Org, Failures: failures}
}

// PartialFailureError reports that an organization was provisioned with
// gaps. The root group exists; reconciliation will converge the rest.
type PartialFailureError struct {
	Org      string
	Failures []StepResult
}

func (e *PartialFailureError) Error() string {
	targets := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		targets = append(targets, fmt.Sprintf("%s(%s)", f.Step, f.Target))
	}
	return fmt.Sprintf("workspace %s provisioned with %d failed steps: %s",
		e.Org, len(e.Failures), strings.Join(targets, ", "))
}
