package pipeline

import (
	"context"
	"strings"

	"github.com/sells-group/prospect-cli/internal/compliance"
	"github.com/sells-group/prospect-cli/internal/model"
)

// ComplianceGate blocks drafts that violate the outreach policy and appends
// the footer to those that pass.
type ComplianceGate struct {
	engine *compliance.Engine
}

// NewComplianceGate creates the compliance stage.
func NewComplianceGate(e *compliance.Engine) *ComplianceGate {
	return &ComplianceGate{engine: e}
}

// Name implements Stage.
func (g *ComplianceGate) Name() string { return model.StageCompliance }

// Run implements Stage. Every violation is collected before deciding; the
// footer is appended only when there are none.
func (g *ComplianceGate) Run(ctx context.Context, r *model.Record, emit Emit) (map[string]any, error) {
	if r.Draft == nil {
		reason := "No email draft to check"
		if err := r.Exit(model.StatusBlocked, reason); err != nil {
			return nil, err
		}
		emit(model.EventPolicyBlock, "Blocked: "+reason, map[string]any{"reason": reason})
		return map[string]any{"violations": 1}, nil
	}

	violations, err := g.engine.Check(ctx, r)
	if err != nil {
		return nil, err
	}

	if len(violations) > 0 {
		reason := strings.Join(violations, "; ")
		if err := r.Exit(model.StatusBlocked, reason); err != nil {
			return nil, err
		}
		emit(model.EventPolicyBlock, "Blocked: "+reason, map[string]any{
			"reason":     reason,
			"violations": violations,
		})
		return map[string]any{"violations": len(violations)}, nil
	}

	if err := r.Advance(model.StatusCompliant); err != nil {
		return nil, err
	}
	r.Draft.Body = g.engine.AppendFooter(r.Draft.Body)
	emit(model.EventPolicyPass, "All compliance checks passed", nil)
	return map[string]any{"violations": 0, "footer_appended": true}, nil
}
