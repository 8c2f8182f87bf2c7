package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/demonlord/internal/game/combat"
	"github.com/cory-johannsen/demonlord/internal/game/lifecycle"
)

// Scenario is a scripted encounter: a turn order and a list of steps run against an App.
type Scenario struct {
	Name       string              `yaml:"name"`
	Scene      string              `yaml:"scene"`
	Combatants []*combat.Combatant `yaml:"combatants"`
	Steps      []Step              `yaml:"steps"`
}

// Step is one scenario action. Exactly one field should be set.
type Step struct {
	Grant       *GrantStep `yaml:"grant,omitempty"`
	NextTurn    int        `yaml:"next_turn,omitempty"`
	AdvanceTime int64      `yaml:"advance_time,omitempty"`
	Defeat      string     `yaml:"defeat,omitempty"`
	EndCombat   bool       `yaml:"end_combat,omitempty"`
}

// GrantStep fires the triggers of one item.
type GrantStep struct {
	User    string            `yaml:"user"`
	Source  string            `yaml:"source"`
	Item    string            `yaml:"item"`
	Effects []string          `yaml:"effects"`
	Outcome lifecycle.Outcome `yaml:"outcome"`
	Targets []string          `yaml:"targets"`
}

// LoadScenario parses a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario %q: %w", path, err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario %q: %w", path, err)
	}
	if sc.Scene == "" {
		sc.Scene = sc.Name
	}
	for _, c := range sc.Combatants {
		if c.ID == "" {
			c.ID = c.SubjectID
		}
		if c.Name == "" {
			c.Name = c.SubjectID
		}
	}
	return &sc, nil
}

// RunScenario plays sc against a and writes a transcript to w. The combat starts before the
// first step when sc has combatants.
//
// Postcondition: Returns the first step error; the transcript covers every step before it.
func (a *App) RunScenario(ctx context.Context, sc *Scenario, w io.Writer) error {
	a.Tracker.Subscribe(combat.HandlerFunc(func(_ context.Context, tr combat.Transition) error {
		line := fmt.Sprintf("round %d %s", tr.Clock.Round, tr.Kind)
		if _, ok := tr.Kind.Phase(); ok {
			line += " " + tr.Combatant.Name
		}
		fmt.Fprintln(w, line)
		return nil
	}))

	if len(sc.Combatants) > 0 {
		if _, err := a.Tracker.StartCombat(ctx, sc.Scene, sc.Combatants); err != nil {
			return fmt.Errorf("starting combat: %w", err)
		}
	}
	for i, step := range sc.Steps {
		if err := a.runStep(ctx, sc.Scene, step, w); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return a.writeSummary(ctx, w)
}

func (a *App) runStep(ctx context.Context, scene string, step Step, w io.Writer) error {
	switch {
	case step.Grant != nil:
		req := lifecycle.GrantRequest{
			UserID:    step.Grant.User,
			SourceID:  step.Grant.Source,
			ItemID:    step.Grant.Item,
			EffectIDs: step.Grant.Effects,
			Outcome:   step.Grant.Outcome,
			TargetIDs: step.Grant.Targets,
			WorldTime: a.Clock.Now(),
		}
		if clock, ok := a.Tracker.Clock(scene); ok {
			req.Clock = &clock
		}
		granted, err := a.Granter.Grant(ctx, req)
		if err != nil {
			return err
		}
		for _, g := range granted {
			fmt.Fprintf(w, "granted %s to %s\n", g.Effect.Name, g.SubjectID)
		}
	case step.NextTurn > 0:
		for n := 0; n < step.NextTurn; n++ {
			if _, err := a.Tracker.NextTurn(ctx, scene); err != nil {
				return err
			}
		}
	case step.AdvanceTime > 0:
		report, err := a.Clock.Advance(ctx, step.AdvanceTime)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "world time +%ds, %d expired\n", step.AdvanceTime, len(report.Expired))
	case step.Defeat != "":
		return a.Tracker.SetDefeated(scene, step.Defeat, true)
	case step.EndCombat:
		return a.Tracker.EndCombat(ctx, scene)
	default:
		return fmt.Errorf("empty step")
	}
	return nil
}

// writeSummary lists each subject's effects and derived changes.
func (a *App) writeSummary(ctx context.Context, w io.Writer) error {
	subjects, err := a.Store.ListSubjects(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "---")
	for _, s := range subjects {
		var effects []string
		for _, e := range s.Effects {
			state := "active"
			if e.Disabled {
				state = "disabled"
			}
			effects = append(effects, fmt.Sprintf("%s(%s)", e.Name, state))
		}
		fmt.Fprintf(w, "%s: %s\n", s.Name, strings.Join(effects, ", "))

		derived, err := a.Resolver.Prepare(ctx, s)
		if err != nil {
			return err
		}
		paths := make(map[string]bool)
		for _, ch := range derived.Applied {
			paths[ch.Path] = true
		}
		sorted := make([]string, 0, len(paths))
		for p := range paths {
			sorted = append(sorted, p)
		}
		sort.Strings(sorted)
		for _, p := range sorted {
			fmt.Fprintf(w, "  %s = %s\n", p, derived.Values[p])
		}
	}
	return nil
}
