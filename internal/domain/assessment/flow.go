package assessment

import (
	"time"

	"github.com/google/uuid"
)

// FlowState is where an assessment session is waiting. Decision stages
// run synchronously inside the submit calls, so the persisted states are
// the points at which the flow pauses for new facts.
type FlowState string

const (
	// StateIntake awaits the presentation facts.
	StateIntake FlowState = "intake"
	// StateBloodCollection awaits admission bloods (and an examination
	// when the initial decision asked for one).
	StateBloodCollection FlowState = "blood_collection"
	// StateReassessment awaits the end-of-infusion blood panel.
	StateReassessment FlowState = "reassessment"
	// StateComplete means no further facts are expected.
	StateComplete FlowState = "complete"
)

// Flow sequences one assessment from intake to completion. It owns the
// ordering and the accumulated facts; every clinical judgement is
// delegated to the engine. Zero value is not usable, construct with
// NewFlow.
type Flow struct {
	State              FlowState        `json:"state"`
	Intake             *PatientIntake   `json:"intake,omitempty"`
	InitialDecision    *Decision        `json:"initial_decision,omitempty"`
	AdmissionBloods    *BloodPanel      `json:"admission_bloods,omitempty"`
	ClinicalSigns      *ClinicalSigns   `json:"clinical_signs,omitempty"`
	NacIndication      *NacIndication   `json:"nac_indication,omitempty"`
	ReassessmentBloods *BloodPanel      `json:"reassessment_bloods,omitempty"`
	NacContinuation    *NacContinuation `json:"nac_continuation,omitempty"`
}

// NewFlow returns a flow waiting for intake.
func NewFlow() Flow {
	return Flow{State: StateIntake}
}

// SubmitIntake records the presentation facts and runs the initial
// triage. The flow moves to blood collection when the decision needs
// bloods and completes otherwise.
func (f *Flow) SubmitIntake(e *Engine, intake PatientIntake) (Decision, error) {
	if f.State != StateIntake {
		return Decision{}, &StateError{State: f.State, Event: "submit intake"}
	}
	decision, err := e.InitialDecision(&intake)
	if err != nil {
		return Decision{}, err
	}
	f.Intake = &intake
	f.InitialDecision = &decision
	if decision.BloodTestsNeeded {
		f.State = StateBloodCollection
	} else {
		f.State = StateComplete
	}
	return decision, nil
}

// SubmitAdmissionBloods records the admission panel (plus examination
// findings when provided) and runs the indication decision. The flow
// moves to reassessment when acetylcysteine is indicated and completes
// otherwise.
func (f *Flow) SubmitAdmissionBloods(e *Engine, bloods BloodPanel, signs *ClinicalSigns) (NacIndication, error) {
	if f.State != StateBloodCollection {
		return NacIndication{}, &StateError{State: f.State, Event: "submit admission bloods"}
	}
	indication, err := e.AssessNacIndication(f.Intake, bloods, signs)
	if err != nil {
		return NacIndication{}, err
	}
	f.AdmissionBloods = &bloods
	f.ClinicalSigns = signs
	f.NacIndication = &indication
	if indication.Indicated {
		f.State = StateReassessment
	} else {
		f.State = StateComplete
	}
	return indication, nil
}

// SubmitReassessmentBloods records the end-of-infusion panel and runs the
// continuation decision. The flow completes either way; a continued
// infusion is reassessed by restarting this stage on a fresh session or
// by clinical follow-up outside the tool.
func (f *Flow) SubmitReassessmentBloods(e *Engine, bloods BloodPanel) (NacContinuation, error) {
	if f.State != StateReassessment {
		return NacContinuation{}, &StateError{State: f.State, Event: "submit reassessment bloods"}
	}
	continuation, err := e.AssessNacContinuation(bloods, f.AdmissionBloods)
	if err != nil {
		return NacContinuation{}, err
	}
	f.ReassessmentBloods = &bloods
	f.NacContinuation = &continuation
	f.State = StateComplete
	return continuation, nil
}

// Restart discards every recorded fact and returns the flow to intake.
// It is valid from any state.
func (f *Flow) Restart() {
	*f = NewFlow()
}

// FlowSession is the stored unit: one flow plus its identity and
// timestamps. Stores serialise the whole struct, so everything reachable
// from here must round-trip through JSON.
type FlowSession struct {
	ID        uuid.UUID `json:"id"`
	Flow      Flow      `json:"flow"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewFlowSession returns a fresh session in the intake state.
func NewFlowSession() *FlowSession {
	now := time.Now().UTC()
	return &FlowSession{
		ID:        uuid.New(),
		Flow:      NewFlow(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
