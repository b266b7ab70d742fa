// Package evaluator scores a finished session against the declarative
// success criteria carried by its scenario definition.
package evaluator

import (
	"context"
	"strings"

	"github.com/samber/lo"
	"github.com/vetsimlabs/vetrec/internal/domain"
	"go.uber.org/zap"
)

// Probe answers questions about the live page the session ran against.
// Production uses the DevTools-backed probe in internal/browser; tests use
// a fake.
type Probe interface {
	SelectorExists(ctx context.Context, selector string) (bool, error)
	CurrentURL(ctx context.Context) (string, error)
}

// Evaluator checks criteria through a probe
type Evaluator struct {
	probe Probe
	log   *zap.SugaredLogger
}

func New(probe Probe, log *zap.SugaredLogger) *Evaluator {
	return &Evaluator{probe: probe, log: log}
}

// Evaluate scores the scenario's criteria at call time. A nil scenario or an
// empty criteria list yields "unknown". Unknown criterion kinds count as
// failed, never as a silent pass.
func (e *Evaluator) Evaluate(ctx context.Context, scenario *domain.Scenario) domain.Evaluation {
	if scenario == nil || len(scenario.SuccessCriteria) == 0 {
		return domain.Evaluation{Result: domain.EvalUnknown}
	}
	if e.probe == nil {
		e.log.Warnw("no probe attached, criteria not checkable", "scenario", scenario.ID)
		return domain.Evaluation{Result: domain.EvalUnknown}
	}

	outcomes := lo.Map(scenario.SuccessCriteria, func(c domain.Criterion, _ int) bool {
		return e.check(ctx, c)
	})
	met := lo.Count(outcomes, true)
	failed := len(outcomes) - met

	return domain.Evaluation{
		Result:         deriveResult(met, failed),
		CriteriaMet:    met,
		CriteriaFailed: failed,
	}
}

func (e *Evaluator) check(ctx context.Context, c domain.Criterion) bool {
	switch c.Type {
	case domain.CriterionSelector:
		exists, err := e.probe.SelectorExists(ctx, c.Selector)
		if err != nil {
			e.log.Warnw("selector criterion not checkable", "selector", c.Selector, "error", err)
			return false
		}
		return exists == c.WantExist()
	case domain.CriterionURLContains:
		url, err := e.probe.CurrentURL(ctx)
		if err != nil {
			e.log.Warnw("url criterion not checkable", "error", err)
			return false
		}
		return strings.Contains(url, c.Value)
	default:
		e.log.Warnw("unknown criterion type counts as failed", "type", c.Type)
		return false
	}
}

func deriveResult(met, failed int) domain.EvalResult {
	switch {
	case failed == 0 && met > 0:
		return domain.EvalSuccess
	case met == 0 && failed > 0:
		return domain.EvalFailure
	case met > 0 && failed > 0:
		return domain.EvalPartial
	default:
		return domain.EvalUnknown
	}
}
