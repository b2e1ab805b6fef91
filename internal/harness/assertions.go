package harness

import (
	"fmt"

	"github.com/tmacphail/suzerain/internal/diplomacy"
	"github.com/tmacphail/suzerain/internal/fixed"
	"github.com/tmacphail/suzerain/internal/world"
)

// CheckAssertions evaluates every assertion in the script against a run's
// result and returns one error per failed assertion.
func CheckAssertions(script *Script, result *Result) []error {
	var failures []error
	for i, a := range script.Assertions {
		if err := checkAssertion(&a, result); err != nil {
			failures = append(failures, fmt.Errorf("assertions[%d] (%s): %w", i, a.Type, err))
		}
	}
	return failures
}

func checkAssertion(a *Assertion, result *Result) error {
	switch a.Type {
	case AssertOwner:
		got := result.Context.Provinces.Owner(world.ID(a.Province))
		if got != world.ID(a.Country) {
			return fmt.Errorf("province %d owned by %d, want %d", a.Province, got, a.Country)
		}

	case AssertTreasury:
		want, err := fixed.Parse(a.Value)
		if err != nil {
			return fmt.Errorf("bad value: %w", err)
		}
		got := result.Context.Countries.Treasury(world.ID(a.Country))
		if got != want {
			return fmt.Errorf("country %d treasury is %s, want %s", a.Country, got, want)
		}

	case AssertAtWar:
		store, err := diplomacy.FromContext(result.Context)
		if err != nil {
			return err
		}
		if !store.AtWar(world.ID(a.A), world.ID(a.B)) {
			return fmt.Errorf("countries %d and %d are not at war", a.A, a.B)
		}

	case AssertAllied:
		store, err := diplomacy.FromContext(result.Context)
		if err != nil {
			return err
		}
		if !store.Allied(world.ID(a.A), world.ID(a.B)) {
			return fmt.Errorf("countries %d and %d are not allied", a.A, a.B)
		}

	case AssertOpinion:
		store, err := diplomacy.FromContext(result.Context)
		if err != nil {
			return err
		}
		want, err := fixed.Parse(a.Value)
		if err != nil {
			return fmt.Errorf("bad value: %w", err)
		}
		got := store.Opinion(world.ID(a.A), world.ID(a.B), result.Context.Tick())
		if got != want {
			return fmt.Errorf("opinion between %d and %d is %s, want %s", a.A, a.B, got, want)
		}

	case AssertTraceCount:
		got := result.Recorder.Count(a.Event)
		if got != a.Count {
			return fmt.Errorf("event %s appeared %d time(s), want %d", a.Event, got, a.Count)
		}

	case AssertDigest:
		if result.Digest != a.Digest {
			return fmt.Errorf("digest is %s, want %s", result.Digest, a.Digest)
		}

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}

	return nil
}
