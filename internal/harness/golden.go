package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a script and compares its rendered event trace
// against the golden file testdata/golden/{script.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Golden files are the source of truth for expected trace behavior: a
// diff means either the kernel's event emission changed or the script
// did, and both deserve a human look.
func RunWithGolden(t *testing.T, script *Script) *Result {
	t.Helper()

	result, err := Run(script)
	if err != nil {
		t.Fatalf("run script %s: %v", script.Name, err)
	}

	for _, failure := range CheckAssertions(script, result) {
		t.Error(failure)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, script.Name, result.Recorder.Render())

	return result
}
