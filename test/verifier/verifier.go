package verifier

import (
	"fmt"
	"io"

	p "github.com/Kevin27954/convergence-sim-test/pkg"
	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"
)

type Verdict string

const (
	// The replica simulated a failure and was not checked.
	INFORMATIONAL Verdict = "informational"
	// Same as the representative value.
	CONSISTENT Verdict = "consistent"
	// Matched the expectation and became the representative value.
	REPRESENTATIVE Verdict = "representative"
	// Matched the expectation but not the representative value.
	INCONSISTENT Verdict = "inconsistent"
	MISMATCH     Verdict = "mismatch"
	MISSING      Verdict = "missing"
)

type Result struct {
	Id      string
	Verdict Verdict
}

// Report is the outcome of verifying one run.
type Report struct {
	Results        []Result
	Representative string
}

// OK is true when no replica mismatched the expectation and none is missing.
func (r Report) OK() bool {
	for _, res := range r.Results {
		if res.Verdict == MISMATCH || res.Verdict == MISSING {
			return false
		}
	}

	return true
}

func (r Report) Count(v Verdict) int {
	n := 0
	for _, res := range r.Results {
		if res.Verdict == v {
			n++
		}
	}

	return n
}

func (r Report) VerdictOf(id string) (Verdict, bool) {
	for _, res := range r.Results {
		if res.Id == id {
			return res.Verdict, true
		}
	}

	return "", false
}

func (r Report) Render(w io.Writer) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Replica", "Verdict"})
	for _, res := range r.Results {
		id := res.Id
		if id == r.Representative {
			id += " *"
		}
		tw.AppendRow(table.Row{id, string(res.Verdict)})
	}
	tw.AppendFooter(table.Row{"OK", fmt.Sprint(r.OK())})
	tw.Render()
}

// Verifier judges reported outcomes against the expected outcome and against
// each other.
type Verifier struct {
	log *zap.Logger
}

func Init(log *zap.Logger) *Verifier {
	return &Verifier{log: log.Named("verifier")}
}

// Verify checks each record in order. The first healthy record that matches
// the expectation becomes the representative value, later healthy records are
// compared against it first. No record stops the evaluation of the others.
func (v *Verifier) Verify(expected []p.OwnerValue, records []p.OutcomeRecord) Report {
	v.checkProvenance(expected, records)

	var report Report
	var representative []p.OwnerValue
	nominated := false

	for _, record := range records {
		log := v.log.With(zap.String("node", record.Id))

		if record.HadFailure {
			log.Info(fmt.Sprintf("Ignored result of node %s, as it simulated a failure.", record.Id))
			report.Results = append(report.Results, Result{Id: record.Id, Verdict: INFORMATIONAL})
			continue
		}

		if nominated && SameResult(record.FinalValue, representative, false) {
			log.Info(fmt.Sprintf("Resulting value from node %s is as expected!", record.Id))
			report.Results = append(report.Results, Result{Id: record.Id, Verdict: CONSISTENT})
			continue
		}

		if !SameResult(record.FinalValue, expected, true) {
			log.Error(fmt.Sprintf("Resulting value from node %s does not match expected value!", record.Id))
			report.Results = append(report.Results, Result{Id: record.Id, Verdict: MISMATCH})
			continue
		}

		if !nominated {
			representative = record.FinalValue
			nominated = true
			report.Representative = record.Id
			log.Info(fmt.Sprintf("Resulting value from node %s is as expected! Will be used as representative value!", record.Id))
			report.Results = append(report.Results, Result{Id: record.Id, Verdict: REPRESENTATIVE})
			continue
		}

		log.Warn(fmt.Sprintf("Resulting value from node %s is as expected, but not consistent with representative value!", record.Id))
		report.Results = append(report.Results, Result{Id: record.Id, Verdict: INCONSISTENT})
	}

	return report
}

// checkProvenance warns when an owner carries a different failure flag in some
// record than in the expectation or an earlier record. Announcements are
// written once by their owner, so a conflict means a corrupted entry.
func (v *Verifier) checkProvenance(expected []p.OwnerValue, records []p.OutcomeRecord) {
	type origin struct {
		failed bool
		source string
	}

	seen := make(map[string]origin)
	for _, ov := range expected {
		seen[ov.Owner] = origin{failed: ov.ContainedSimulatedFailure, source: "expected outcome"}
	}

	for _, record := range records {
		for _, ov := range record.FinalValue {
			first, ok := seen[ov.Owner]
			if !ok {
				seen[ov.Owner] = origin{failed: ov.ContainedSimulatedFailure, source: "node " + record.Id}
				continue
			}
			if first.failed != ov.ContainedSimulatedFailure {
				v.log.Warn(fmt.Sprintf("Owner %s has conflicting failure flags in node %s and %s!", ov.Owner, record.Id, first.source),
					zap.String("owner", ov.Owner),
					zap.Bool("flag", ov.ContainedSimulatedFailure),
					zap.Bool("first_flag", first.failed))
			}
		}
	}
}
