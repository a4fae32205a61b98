package verifier

import (
	"bytes"
	"strings"
	"testing"

	p "github.com/Kevin27954/convergence-sim-test/pkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func healthy(ids ...string) []p.OwnerValue {
	values := make([]p.OwnerValue, 0, len(ids))
	for _, id := range ids {
		values = append(values, ov(id, false, "a (0)", "b (0)"))
	}
	return values
}

func record(id string, failed bool, value []p.OwnerValue) p.OutcomeRecord {
	return p.OutcomeRecord{Id: id, HadFailure: failed, FinalValue: value}
}

func TestVerifyAllHealthy(t *testing.T) {
	expected := healthy("a", "b", "c")
	records := []p.OutcomeRecord{
		record("b", false, healthy("c", "a", "b")),
		record("a", false, healthy("a", "b", "c")),
		record("c", false, healthy("b", "c", "a")),
	}

	report := Init(zap.NewNop()).Verify(expected, records)

	assert.True(t, report.OK())
	assert.Equal(t, "b", report.Representative)
	assert.Equal(t, []Result{
		{Id: "b", Verdict: REPRESENTATIVE},
		{Id: "a", Verdict: CONSISTENT},
		{Id: "c", Verdict: CONSISTENT},
	}, report.Results)
}

func TestVerifyFailingNodeIsInformational(t *testing.T) {
	expected := append(healthy("a", "b"), ov("c", true, "a (0)", "b (0)"))
	partial := append(healthy("a", "b"), ov("c", true))

	records := []p.OutcomeRecord{
		record("c", true, []p.OwnerValue{ov("c", true, "a (0)")}),
		record("a", false, partial),
		record("b", false, partial),
	}

	report := Init(zap.NewNop()).Verify(expected, records)

	assert.True(t, report.OK())
	v, ok := report.VerdictOf("c")
	require.True(t, ok)
	assert.Equal(t, INFORMATIONAL, v)
	assert.Equal(t, "a", report.Representative)
	assert.Equal(t, 1, report.Count(CONSISTENT))
}

func TestVerifyMismatchDoesNotHideOthers(t *testing.T) {
	expected := healthy("a", "b", "c")
	records := []p.OutcomeRecord{
		record("a", false, healthy("a", "b")),
		record("b", false, healthy("a", "b", "c")),
		record("c", false, []p.OwnerValue{ov("a", false), ov("b", false), ov("c", false)}),
	}

	report := Init(zap.NewNop()).Verify(expected, records)

	assert.False(t, report.OK())
	assert.Equal(t, []Result{
		{Id: "a", Verdict: MISMATCH},
		{Id: "b", Verdict: REPRESENTATIVE},
		{Id: "c", Verdict: MISMATCH},
	}, report.Results)
}

func TestVerifyInconsistentWithRepresentative(t *testing.T) {
	// c's failed entry differs between a and b, which the expectation ignores
	// but the representative comparison does not.
	expected := append(healthy("a", "b"), ov("c", true, "a (0)"))
	records := []p.OutcomeRecord{
		record("a", false, append(healthy("a", "b"), ov("c", true))),
		record("b", false, append(healthy("a", "b"), ov("c", true, "a (0)"))),
	}

	core, logs := observer.New(zap.DebugLevel)
	report := Init(zap.New(core)).Verify(expected, records)

	assert.True(t, report.OK())
	assert.Equal(t, "a", report.Representative)
	assert.Equal(t, []Result{
		{Id: "a", Verdict: REPRESENTATIVE},
		{Id: "b", Verdict: INCONSISTENT},
	}, report.Results)
	assert.Equal(t, 1, logs.FilterMessage("Resulting value from node b is as expected, but not consistent with representative value!").Len())
}

func TestVerifyRepresentativeNominatedOnce(t *testing.T) {
	expected := append(healthy("a"), ov("f", true))
	records := []p.OutcomeRecord{
		record("a", false, append(healthy("a"), ov("f", true, "1"))),
		record("b", false, append(healthy("a"), ov("f", true, "2"))),
		record("c", false, append(healthy("a"), ov("f", true, "3"))),
	}

	report := Init(zap.NewNop()).Verify(expected, records)

	assert.Equal(t, "a", report.Representative)
	assert.Equal(t, 1, report.Count(REPRESENTATIVE))
	assert.Equal(t, 2, report.Count(INCONSISTENT))
}

func TestReportMissingIsNotOK(t *testing.T) {
	report := Report{Results: []Result{{Id: "a", Verdict: REPRESENTATIVE}, {Id: "d", Verdict: MISSING}}}
	assert.False(t, report.OK())
}

func TestReportRender(t *testing.T) {
	report := Report{
		Results:        []Result{{Id: "a", Verdict: REPRESENTATIVE}, {Id: "b", Verdict: MISMATCH}},
		Representative: "a",
	}

	var buf bytes.Buffer
	report.Render(&buf)

	out := strings.ToLower(buf.String())
	assert.Contains(t, out, "a *")
	assert.Contains(t, out, "representative")
	assert.Contains(t, out, "mismatch")
	assert.Contains(t, out, "false")
}

func TestVerifyWarnsOnConflictingFailureFlag(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	expected := healthy("a", "b")
	records := []p.OutcomeRecord{
		record("a", false, healthy("a", "b")),
		record("b", false, []p.OwnerValue{ov("a", true, "a (0)", "b (0)"), ov("b", false, "a (0)", "b (0)")}),
	}

	Init(zap.New(core)).Verify(expected, records)

	warned := logs.FilterMessage("Owner a has conflicting failure flags in node b and expected outcome!")
	assert.Equal(t, 1, warned.Len())
}

func TestVerifyConsistentFlagsDoNotWarn(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	expected := healthy("a", "b")
	records := []p.OutcomeRecord{
		record("a", false, healthy("a", "b")),
		record("b", false, healthy("b", "a")),
	}

	Init(zap.New(core)).Verify(expected, records)

	assert.Equal(t, 0, logs.FilterLevelExact(zap.WarnLevel).Len())
}
