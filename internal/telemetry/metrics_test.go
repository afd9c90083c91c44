package telemetry

import (
	"strings"
	"testing"
	"time"
)

func TestRenderPrometheus_LabelOrderingStable(t *testing.T) {
	defaultRegistry = newRegistry()

	IncToolCall("text_to_cad", "ok")
	IncToolCall("text_to_cad", "failure")
	IncUpstreamError("text_to_cad", 502)
	IncUpstreamError("text_to_cad", 0)

	out := RenderPrometheus()

	failure := strings.Index(out, `gnucleus_tool_calls_total{tool="text_to_cad",status="failure"} 1`)
	ok := strings.Index(out, `gnucleus_tool_calls_total{tool="text_to_cad",status="ok"} 1`)
	if failure < 0 || ok < 0 {
		t.Fatalf("tool call metrics missing from output:\n%s", out)
	}
	if failure >= ok {
		t.Fatal("tool call status labels are not rendered in stable lexical order")
	}

	unreachable := strings.Index(out, `gnucleus_upstream_errors_total{endpoint="text_to_cad",status_code="0"} 1`)
	badGateway := strings.Index(out, `gnucleus_upstream_errors_total{endpoint="text_to_cad",status_code="502"} 1`)
	if unreachable < 0 || badGateway < 0 {
		t.Fatalf("upstream error metrics missing from output:\n%s", out)
	}
	if unreachable >= badGateway {
		t.Fatal("upstream status codes are not rendered in ascending order")
	}
}

func TestObserveToolDurationBuckets(t *testing.T) {
	defaultRegistry = newRegistry()

	ObserveToolDuration("text_to_cad", 200*time.Millisecond)
	ObserveToolDuration("text_to_cad", 45*time.Second)
	ObserveToolDuration("text_to_cad", 10*time.Minute)

	out := RenderPrometheus()
	for _, want := range []string{
		`gnucleus_tool_duration_seconds_bucket{tool="text_to_cad",le="0.5"} 1`,
		`gnucleus_tool_duration_seconds_bucket{tool="text_to_cad",le="60"} 1`,
		`gnucleus_tool_duration_seconds_bucket{tool="text_to_cad",le="+Inf"} 1`,
		`gnucleus_tool_duration_seconds_bucket{tool="text_to_cad",le="300"} 0`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestReset(t *testing.T) {
	defaultRegistry = newRegistry()
	IncToolCall("text_to_cad", "ok")

	Reset()

	if out := RenderPrometheus(); strings.Contains(out, "text_to_cad") {
		t.Fatalf("expected empty registry after Reset, got:\n%s", out)
	}
}
