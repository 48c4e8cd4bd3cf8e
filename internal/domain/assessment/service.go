package assessment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MinEligibleAgeYears is the youngest age the adult rule set covers.
// Paediatric dosing is weight-based in a different way and is out of
// scope, so younger patients are rejected before any rule runs.
const MinEligibleAgeYears = 18

// Observer receives decision outcomes as they are made, for metrics
// sinks. Calls happen inline on the request path, so implementations must
// not block.
type Observer interface {
	DecisionMade(recommendation Recommendation)
	IndicationEvaluated(indicated bool)
	ContinuationEvaluated(continued bool)
}

// Service wires the engine to session storage. The engine owns the
// clinical rules; the service owns scope checks, session lifecycle and
// error translation for unknown ids.
type Service struct {
	engine *Engine
	store  FlowStore
	obs    Observer
}

// NewService creates the assessment service.
func NewService(engine *Engine, store FlowStore) *Service {
	return &Service{engine: engine, store: store}
}

// SetObserver attaches a decision observer. Pass nil to detach.
func (s *Service) SetObserver(obs Observer) {
	s.obs = obs
}

// Parameters returns the active rule parameters.
func (s *Service) Parameters() ParameterSet {
	return s.engine.Parameters()
}

// TreatmentLine exposes the nomogram for display endpoints.
func (s *Service) TreatmentLine(hours float64) (float64, bool) {
	return s.engine.TreatmentLine(hours)
}

// DosingProtocol validates the query and returns the infusion protocol
// for a body weight. The whole band row comes back regardless of phase;
// the phase is validated here and echoed by the transport layer so a
// mistyped query fails instead of silently defaulting.
func (s *Service) DosingProtocol(weightKg float64, phase Phase) (DosingProtocol, error) {
	if !(weightKg > 0) {
		return DosingProtocol{}, &ValidationError{Field: "weight_kg", Reason: "must be greater than zero"}
	}
	if _, err := ParsePhase(string(phase)); err != nil {
		return DosingProtocol{}, err
	}
	return s.engine.DosingProtocolFor(weightKg), nil
}

// checkEligibility rejects intakes the adult rule set does not cover.
func checkEligibility(intake PatientIntake) error {
	if intake.AgeYears < MinEligibleAgeYears {
		return &ValidationError{
			Field:  "age_years",
			Reason: fmt.Sprintf("must be at least %d; paediatric assessment is out of scope", MinEligibleAgeYears),
		}
	}
	return nil
}

// CreateAssessment opens a session, runs the initial triage and persists
// the result.
func (s *Service) CreateAssessment(ctx context.Context, intake PatientIntake) (*FlowSession, Decision, error) {
	if err := checkEligibility(intake); err != nil {
		return nil, Decision{}, err
	}

	session := NewFlowSession()
	decision, err := session.Flow.SubmitIntake(s.engine, intake)
	if err != nil {
		return nil, Decision{}, err
	}
	session.UpdatedAt = time.Now().UTC()
	if err := s.store.Create(ctx, session); err != nil {
		return nil, Decision{}, fmt.Errorf("create session: %w", err)
	}
	if s.obs != nil {
		s.obs.DecisionMade(decision.Recommendation)
	}
	return session, decision, nil
}

// GetAssessment returns a session by id.
func (s *Service) GetAssessment(ctx context.Context, id uuid.UUID) (*FlowSession, error) {
	session, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// ListAssessments returns a page of sessions plus the unexpired total.
func (s *Service) ListAssessments(ctx context.Context, limit, offset int) ([]*FlowSession, int, error) {
	sessions, total, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, total, nil
}

// SubmitIntake records the presentation facts on an existing session that
// is waiting at intake, which only happens after a restart. New
// assessments go through CreateAssessment instead.
func (s *Service) SubmitIntake(ctx context.Context, id uuid.UUID, intake PatientIntake) (*FlowSession, Decision, error) {
	if err := checkEligibility(intake); err != nil {
		return nil, Decision{}, err
	}
	session, err := s.GetAssessment(ctx, id)
	if err != nil {
		return nil, Decision{}, err
	}
	decision, err := session.Flow.SubmitIntake(s.engine, intake)
	if err != nil {
		return nil, Decision{}, err
	}
	session.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, session); err != nil {
		return nil, Decision{}, fmt.Errorf("update session: %w", err)
	}
	if s.obs != nil {
		s.obs.DecisionMade(decision.Recommendation)
	}
	return session, decision, nil
}

// SubmitAdmissionBloods records the admission panel on a session and runs
// the indication decision.
func (s *Service) SubmitAdmissionBloods(ctx context.Context, id uuid.UUID, bloods BloodPanel, signs *ClinicalSigns) (*FlowSession, NacIndication, error) {
	session, err := s.GetAssessment(ctx, id)
	if err != nil {
		return nil, NacIndication{}, err
	}
	indication, err := session.Flow.SubmitAdmissionBloods(s.engine, bloods, signs)
	if err != nil {
		return nil, NacIndication{}, err
	}
	session.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, session); err != nil {
		return nil, NacIndication{}, fmt.Errorf("update session: %w", err)
	}
	if s.obs != nil {
		s.obs.IndicationEvaluated(indication.Indicated)
	}
	return session, indication, nil
}

// SubmitReassessmentBloods records the end-of-infusion panel on a session
// and runs the continuation decision.
func (s *Service) SubmitReassessmentBloods(ctx context.Context, id uuid.UUID, bloods BloodPanel) (*FlowSession, NacContinuation, error) {
	session, err := s.GetAssessment(ctx, id)
	if err != nil {
		return nil, NacContinuation{}, err
	}
	continuation, err := session.Flow.SubmitReassessmentBloods(s.engine, bloods)
	if err != nil {
		return nil, NacContinuation{}, err
	}
	session.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, session); err != nil {
		return nil, NacContinuation{}, fmt.Errorf("update session: %w", err)
	}
	if s.obs != nil {
		s.obs.ContinuationEvaluated(continuation.Continue)
	}
	return session, continuation, nil
}

// RestartAssessment clears every recorded fact and returns the session to
// the intake state. The session keeps its id, so a corrected history can
// be resubmitted under the same reference.
func (s *Service) RestartAssessment(ctx context.Context, id uuid.UUID) (*FlowSession, error) {
	session, err := s.GetAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	session.Flow.Restart()
	session.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	return session, nil
}

// DeleteAssessment removes a session.
func (s *Service) DeleteAssessment(ctx context.Context, id uuid.UUID) error {
	if _, err := s.GetAssessment(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
