package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dr-abraham74/paracetamol-OD/internal/config"
	"github.com/dr-abraham74/paracetamol-OD/internal/domain/assessment"
)

func assessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assess",
		Short: "Run an interactive assessment at the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			engine, err := assessment.NewEngine(cfg.AssessmentParameters())
			if err != nil {
				return err
			}
			store := assessment.NewMemoryFlowStore(cfg.SessionTTL())
			defer store.Close()

			svc := assessment.NewService(engine, store)
			return newConsole(cmd.InOrStdin(), cmd.OutOrStdout(), svc).run()
		},
	}
}

// errInputClosed marks end of input; the console exits without complaint.
var errInputClosed = errors.New("input closed")

// console walks a clinician through assessments at a terminal. It goes
// through the same service as the HTTP API, so eligibility checks and
// stage ordering behave identically on both front ends.
type console struct {
	in  *bufio.Scanner
	out io.Writer
	svc *assessment.Service
}

func newConsole(in io.Reader, out io.Writer, svc *assessment.Service) *console {
	return &console{
		in:  bufio.NewScanner(in),
		out: out,
		svc: svc,
	}
}

func (c *console) run() error {
	fmt.Fprintln(c.out, "=== Paracetamol Overdose Treatment Decision Tool ===")
	for {
		fmt.Fprintln(c.out)
		fmt.Fprintln(c.out, strings.Repeat("=", 50))
		fmt.Fprintln(c.out, "1. Assess patient")
		fmt.Fprintln(c.out, "2. Show parameters")
		fmt.Fprintln(c.out, "3. Exit")

		choice, err := c.prompt("Select option (1-3): ")
		if err != nil {
			return nil
		}

		switch strings.TrimSpace(choice) {
		case "1":
			if err := c.assessPatient(); err != nil {
				if errors.Is(err, errInputClosed) {
					return nil
				}
				fmt.Fprintf(c.out, "Error: %v\n", err)
			}
		case "2":
			renderParameters(c.out, c.svc.Parameters())
		case "3":
			fmt.Fprintln(c.out, "Goodbye.")
			return nil
		default:
			fmt.Fprintln(c.out, "Invalid choice. Please select 1, 2, or 3.")
		}
	}
}

// assessPatient walks one full assessment: intake, then each blood stage
// the decisions call for.
func (c *console) assessPatient() error {
	ctx := context.Background()

	intake, err := c.collectIntake()
	if err != nil {
		return err
	}

	session, decision, err := c.svc.CreateAssessment(ctx, *intake)
	if err != nil {
		return err
	}
	renderDecision(c.out, session.Flow.Intake, decision)

	if session.Flow.State != assessment.StateBloodCollection {
		return nil
	}

	var signs *assessment.ClinicalSigns
	if decision.ClinicalSignsNeeded != nil && *decision.ClinicalSignsNeeded {
		signs, err = c.collectClinicalSigns()
		if err != nil {
			return err
		}
	}
	bloods, err := c.collectBloodPanel("admission")
	if err != nil {
		return err
	}

	session, indication, err := c.svc.SubmitAdmissionBloods(ctx, session.ID, *bloods, signs)
	if err != nil {
		return err
	}
	var protocol *assessment.DosingProtocol
	if indication.Indicated {
		p, err := c.svc.DosingProtocol(intake.WeightKg, assessment.PhaseInitial)
		if err == nil {
			protocol = &p
		}
	}
	renderIndication(c.out, indication, protocol)

	if session.Flow.State != assessment.StateReassessment {
		return nil
	}

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "At the end of the second infusion, repeat the bloods.")
	reassess, err := c.collectBloodPanel("reassessment")
	if err != nil {
		return err
	}

	_, continuation, err := c.svc.SubmitReassessmentBloods(ctx, session.ID, *reassess)
	if err != nil {
		return err
	}
	renderContinuation(c.out, continuation)
	return nil
}

// -- Fact collection --

func (c *console) collectIntake() (*assessment.PatientIntake, error) {
	fmt.Fprintln(c.out)
	age, err := c.promptInt("Enter patient age (years): ")
	if err != nil {
		return nil, err
	}
	weight, err := c.promptFloat("Enter patient weight (kg): ")
	if err != nil {
		return nil, err
	}
	dose, err := c.promptFloat("Enter paracetamol dose taken (mg): ")
	if err != nil {
		return nil, err
	}
	hours, err := c.promptFloat("Enter time since ingestion (hours): ")
	if err != nil {
		return nil, err
	}
	selfHarm, err := c.promptYesNo("Was this intentional self-harm?")
	if err != nil {
		return nil, err
	}

	intake := &assessment.PatientIntake{
		AgeYears:       age,
		WeightKg:       weight,
		DoseMg:         dose,
		TimeHours:      hours,
		IsSelfHarm:     selfHarm,
		IsDoseReliable: true,
	}

	if selfHarm {
		staggered, err := c.promptYesNo("Was the ingestion staggered (spread over more than one hour)?")
		if err != nil {
			return nil, err
		}
		reliable, err := c.promptYesNo("Is the reported dose and timing reliable?")
		if err != nil {
			return nil, err
		}
		intake.IsStaggered = staggered
		intake.IsDoseReliable = reliable
	} else {
		symptomatic, err := c.promptYesNo("Does the patient have symptoms (nausea, vomiting, abdominal pain)?")
		if err != nil {
			return nil, err
		}
		intake.IsSymptomatic = symptomatic
	}
	return intake, nil
}

func (c *console) collectClinicalSigns() (*assessment.ClinicalSigns, error) {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "Examine the patient.")
	jaundice, err := c.promptYesNo("Is jaundice present?")
	if err != nil {
		return nil, err
	}
	tender, err := c.promptYesNo("Is the liver tender?")
	if err != nil {
		return nil, err
	}
	return &assessment.ClinicalSigns{
		HasJaundice:        jaundice,
		HasLiverTenderness: tender,
	}, nil
}

func (c *console) collectBloodPanel(stage string) (*assessment.BloodPanel, error) {
	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "Enter the %s blood results.\n", stage)
	level, err := c.promptFloat("Paracetamol level (mg/L): ")
	if err != nil {
		return nil, err
	}
	inr, err := c.promptFloat("INR: ")
	if err != nil {
		return nil, err
	}
	alt, err := c.promptInt("ALT (IU/L): ")
	if err != nil {
		return nil, err
	}
	creatinine, err := c.promptInt("Creatinine (umol/L): ")
	if err != nil {
		return nil, err
	}
	return &assessment.BloodPanel{
		ParacetamolLevelMgL: level,
		INR:                 inr,
		ALTIuL:              alt,
		CreatinineUmolL:     creatinine,
	}, nil
}

// -- Prompts --

func (c *console) prompt(label string) (string, error) {
	fmt.Fprint(c.out, label)
	if !c.in.Scan() {
		return "", errInputClosed
	}
	return c.in.Text(), nil
}

func (c *console) promptFloat(label string) (float64, error) {
	for {
		raw, err := c.prompt(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			fmt.Fprintln(c.out, "Please enter a number.")
			continue
		}
		return v, nil
	}
}

func (c *console) promptInt(label string) (int, error) {
	for {
		raw, err := c.prompt(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			fmt.Fprintln(c.out, "Please enter a whole number.")
			continue
		}
		return v, nil
	}
}

func (c *console) promptYesNo(label string) (bool, error) {
	for {
		raw, err := c.prompt(label + " (Y/N): ")
		if err != nil {
			return false, err
		}
		switch strings.ToUpper(strings.TrimSpace(raw)) {
		case "Y":
			return true, nil
		case "N":
			return false, nil
		}
		fmt.Fprintln(c.out, "Please enter Y or N only.")
	}
}

// -- Rendering --

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func renderDecision(w io.Writer, intake *assessment.PatientIntake, decision assessment.Decision) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w, "TREATMENT RECOMMENDATION")
	fmt.Fprintln(w, strings.Repeat("=", 50))

	if intake != nil {
		fmt.Fprintf(w, "Patient: %d years old\n", intake.AgeYears)
		fmt.Fprintf(w, "Weight: %g kg\n", intake.WeightKg)
		fmt.Fprintf(w, "Dose taken: %g mg\n", intake.DoseMg)
		fmt.Fprintf(w, "Time since ingestion: %g hours\n", intake.TimeHours)
		fmt.Fprintf(w, "Self-harm: %s    Staggered: %s\n", yesNo(intake.IsSelfHarm), yesNo(intake.IsStaggered))
		fmt.Fprintf(w, "Dose per kg: %.1f mg/kg\n", intake.DosePerKg)
	}

	fmt.Fprintf(w, "\nRECOMMENDATION: %s\n", decision.Recommendation)
	fmt.Fprintf(w, "REASON: %s\n", decision.Reason)
	if decision.BloodDelayHours != nil {
		fmt.Fprintf(w, "BLOODS: %g h after ingestion\n", *decision.BloodDelayHours)
	}

	if lines := assessment.Guidance(decision.Recommendation); len(lines) > 0 {
		fmt.Fprintln(w)
		for _, line := range lines {
			fmt.Fprintf(w, "- %s\n", line)
		}
	}
	fmt.Fprintf(w, "\nDISCLAIMER: %s\n", assessment.Disclaimer)
}

func renderIndication(w io.Writer, indication assessment.NacIndication, protocol *assessment.DosingProtocol) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w, "ACETYLCYSTEINE DECISION")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "INDICATED: %s\n", yesNo(indication.Indicated))
	fmt.Fprintf(w, "REASON: %s\n", indication.Reason)

	if protocol != nil {
		fmt.Fprintf(w, "\nInfusion protocol (%s):\n", protocol.WeightRangeLabel)
		fmt.Fprintf(w, "  First phase:  %g mg in %g ml at %g ml/h over 2 h\n",
			protocol.FirstDoseMg, protocol.FirstVolumeMl, protocol.FirstRateMlHr)
		fmt.Fprintf(w, "  Second phase: %g mg in %g ml at %g ml/h over 10 h\n",
			protocol.SecondDoseMg, protocol.SecondVolumeMl, protocol.SecondRateMlHr)
	}
	fmt.Fprintf(w, "\nDISCLAIMER: %s\n", assessment.Disclaimer)
}

func renderContinuation(w io.Writer, continuation assessment.NacContinuation) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w, "CONTINUATION DECISION")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "CONTINUE: %s\n", yesNo(continuation.Continue))
	fmt.Fprintf(w, "REASON: %s\n", continuation.Reason)
	fmt.Fprintf(w, "\nDISCLAIMER: %s\n", assessment.Disclaimer)
}

func renderParameters(w io.Writer, p assessment.ParameterSet) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Clinical Parameters ===")
	fmt.Fprintf(w, "High-risk dose threshold:       %g mg/kg\n", p.HighRiskDoseMgPerKg)
	fmt.Fprintf(w, "High-risk elapsed time:         %g h\n", p.HighRiskElapsedHours)
	fmt.Fprintf(w, "Significant dose threshold:     %g mg/kg\n", p.SignificantDoseMgPerKg)
	fmt.Fprintf(w, "Blood test wait:                %g h\n", p.BloodTestWaitHours)
	fmt.Fprintf(w, "Late presentation window:       %g h\n", p.LatePresentationHours)
	fmt.Fprintf(w, "Licensed 24 h dose:             %g mg\n", p.LicensedDose24hMg)
	fmt.Fprintf(w, "Staggered level cutoff:         %g mg/L\n", p.StaggeredLevelCutoffMgL)
	fmt.Fprintf(w, "Late level cutoff:              %g mg/L\n", p.LateLevelCutoffMgL)
	fmt.Fprintf(w, "Therapeutic action level:       %g mg/L\n", p.TherapeuticLevelCutoffMgL)
	fmt.Fprintf(w, "Continuation level cutoff:      %g mg/L\n", p.ContinuationLevelCutoffMgL)
	fmt.Fprintf(w, "INR upper limit:                %g\n", p.INRUpperLimit)
	fmt.Fprintf(w, "ALT upper limit:                %d IU/L\n", p.ALTUpperLimitIuL)

	fmt.Fprintln(w, "\nTreatment line (acute ingestion):")
	for _, pt := range p.Nomogram {
		fmt.Fprintf(w, "  %2d h  %g mg/L\n", pt.Hour, pt.LevelMgL)
	}

	fmt.Fprintln(w, "\nInfusion protocol by weight band:")
	for _, band := range p.DosingBands {
		pr := band.Protocol
		fmt.Fprintf(w, "  %-10s  first %g mg / %g ml / %g ml/h   second %g mg / %g ml / %g ml/h\n",
			pr.WeightRangeLabel,
			pr.FirstDoseMg, pr.FirstVolumeMl, pr.FirstRateMlHr,
			pr.SecondDoseMg, pr.SecondVolumeMl, pr.SecondRateMlHr)
	}
}
