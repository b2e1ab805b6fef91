package harness

import (
	"fmt"

	"github.com/tmacphail/suzerain/internal/command"
	"github.com/tmacphail/suzerain/internal/diplomacy"
	"github.com/tmacphail/suzerain/internal/fixed"
	"github.com/tmacphail/suzerain/internal/scenario"
	"github.com/tmacphail/suzerain/internal/sim"
	"github.com/tmacphail/suzerain/internal/world"
)

// Result is the outcome of running a script.
type Result struct {
	Context  *sim.Context
	Pipeline *command.Pipeline
	Recorder *Recorder
	Reports  []command.TickReport
	Digest   string
}

// Run loads the script's scenario, attaches the diplomacy system, plays
// the scripted ticks through a pipeline, and returns the final state,
// trace, and digest.
//
// A command step marked rejected must be rejected at submission; any
// other submission failure, or an execution-time rejection, fails the
// run. Scripts state exactly what happens, so a surprise rejection is a
// broken script or a broken kernel, never noise to tolerate.
func Run(script *Script) (*Result, error) {
	scn, err := scenario.Load(script.Scenario)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", script.Name, err)
	}

	ctx, err := scenario.Apply(scn, sim.Config{})
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", script.Name, err)
	}

	diplo := diplomacy.NewStore(ctx.Bus, 64)
	if err := diplo.Attach(ctx); err != nil {
		return nil, fmt.Errorf("run %s: %w", script.Name, err)
	}

	recorder, err := NewRecorder(ctx.Bus)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", script.Name, err)
	}

	pipeline, err := command.NewPipeline(ctx)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", script.Name, err)
	}

	result := &Result{
		Context:  ctx,
		Pipeline: pipeline,
		Recorder: recorder,
	}

	for tickIdx, tick := range script.Ticks {
		for stepIdx, step := range tick.Commands {
			cmd, err := buildCommand(&step, ctx.Tick())
			if err != nil {
				return nil, fmt.Errorf("run %s: ticks[%d].commands[%d]: %w",
					script.Name, tickIdx, stepIdx, err)
			}

			err = pipeline.Submit(cmd)
			if step.Rejected {
				if err == nil {
					return nil, fmt.Errorf("run %s: ticks[%d].commands[%d] (%s): expected rejection, but command was accepted",
						script.Name, tickIdx, stepIdx, step.Kind)
				}
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("run %s: ticks[%d].commands[%d] (%s): %w",
					script.Name, tickIdx, stepIdx, step.Kind, err)
			}
		}

		report := pipeline.EndTick()
		if len(report.Rejected) > 0 {
			return nil, fmt.Errorf("run %s: tick %d rejected %d command(s) at execution, first: %s",
				script.Name, report.Tick, len(report.Rejected), report.Rejected[0].Reason)
		}
		result.Reports = append(result.Reports, report)
	}

	result.Digest = ctx.Digest()
	return result, nil
}

// buildCommand constructs a command from a script step. Opinion
// modifiers are applied at the submitting tick.
func buildCommand(step *CommandStep, tick uint32) (command.Command, error) {
	switch step.Kind {
	case "change_owner":
		return command.NewChangeOwner(world.ID(step.Province), world.ID(step.Owner)), nil
	case "set_controller":
		return command.NewSetController(world.ID(step.Province), world.ID(step.Owner)), nil
	case "set_development":
		value, err := parseValue(step.Value)
		if err != nil {
			return nil, err
		}
		return command.NewSetDevelopment(world.ID(step.Province), value), nil
	case "construct_building":
		return command.NewConstructBuilding(world.ID(step.Province), step.Slot, step.Building), nil
	case "transfer_provinces":
		provinces := make([]world.ID, len(step.Provinces))
		for i, p := range step.Provinces {
			provinces[i] = world.ID(p)
		}
		return command.NewTransferProvinces(world.ID(step.From), world.ID(step.To), provinces), nil
	case "adjust_treasury":
		value, err := parseValue(step.Value)
		if err != nil {
			return nil, err
		}
		return command.NewAdjustTreasury(world.ID(step.Country), value), nil
	case "declare_war":
		return diplomacy.NewDeclareWar(world.ID(step.A), world.ID(step.B)), nil
	case "make_peace":
		return diplomacy.NewMakePeace(world.ID(step.A), world.ID(step.B)), nil
	case "form_alliance":
		return diplomacy.NewFormAlliance(world.ID(step.A), world.ID(step.B)), nil
	case "break_alliance":
		return diplomacy.NewBreakAlliance(world.ID(step.A), world.ID(step.B)), nil
	case "add_opinion":
		value, err := parseValue(step.Value)
		if err != nil {
			return nil, err
		}
		return diplomacy.NewAddOpinion(world.ID(step.A), world.ID(step.B), step.Type, value, tick, step.DecayRate), nil
	default:
		return nil, fmt.Errorf("unknown command kind %q", step.Kind)
	}
}

func parseValue(s string) (fixed.Fixed, error) {
	if s == "" {
		return fixed.Zero, fmt.Errorf("value is required")
	}
	return fixed.Parse(s)
}
