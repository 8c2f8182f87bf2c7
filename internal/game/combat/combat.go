// Package combat implements the combat clock: turn order, turn advance, and the
// transitions that drive effect expiration.
package combat

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/demonlord/internal/game/effect"
)

// ErrNoEligibleCombatant is returned when every combatant is skipped by the turn options.
var ErrNoEligibleCombatant = errors.New("no eligible combatant")

// Disposition is a combatant's side in the encounter.
type Disposition int

const (
	DispositionEnemy Disposition = iota
	DispositionAlly
)

// String returns "ally" or "enemy".
func (d Disposition) String() string {
	if d == DispositionAlly {
		return "ally"
	}
	return "enemy"
}

// UnmarshalYAML decodes "ally" or "enemy".
func (d *Disposition) UnmarshalYAML(node *yaml.Node) error {
	switch strings.ToLower(node.Value) {
	case "ally", "friendly":
		*d = DispositionAlly
	case "enemy", "hostile", "":
		*d = DispositionEnemy
	default:
		return fmt.Errorf("line %d: unknown disposition %q", node.Line, node.Value)
	}
	return nil
}

// Combatant is one participant in the turn order. SubjectID links it to the stat subject
// whose effects the combatant carries.
type Combatant struct {
	ID          string      `yaml:"id"`
	SubjectID   string      `yaml:"subject"`
	Name        string      `yaml:"name"`
	Disposition Disposition `yaml:"disposition"`
	Initiative  int         `yaml:"initiative"`
	Defeated    bool        `yaml:"defeated"`
	// Acted is true once the combatant's turn has ended this round.
	Acted bool `yaml:"-"`
}

// Options controls which combatants the turn pointer skips.
type Options struct {
	SkipDefeated bool
	SkipActed    bool
}

// TransitionKind names a clock transition.
type TransitionKind int

const (
	TransitionCombatStart TransitionKind = iota
	TransitionTurnStart
	TransitionTurnEnd
	TransitionRoundAdvance
	TransitionCombatEnd
)

// String returns a short label for logs.
func (k TransitionKind) String() string {
	switch k {
	case TransitionCombatStart:
		return "combat_start"
	case TransitionTurnStart:
		return "turn_start"
	case TransitionTurnEnd:
		return "turn_end"
	case TransitionRoundAdvance:
		return "round_advance"
	case TransitionCombatEnd:
		return "combat_end"
	default:
		return "unknown"
	}
}

// Phase returns the turn phase of turn transitions.
func (k TransitionKind) Phase() (effect.Phase, bool) {
	switch k {
	case TransitionTurnStart:
		return effect.PhaseStart, true
	case TransitionTurnEnd:
		return effect.PhaseEnd, true
	default:
		return "", false
	}
}

// Transition is one clock event. For turn transitions Combatant is the mover and Turn its
// position in the order; Clock is the state at the moment of the event.
type Transition struct {
	Kind      TransitionKind
	Clock     Clock
	Combatant Combatant
	Turn      int
}

// Clock is an immutable snapshot of a combat's round, turn, and order.
type Clock struct {
	CombatID      string
	SceneID       string
	Round         int
	Turn          int
	PreviousRound *int
	PreviousTurn  *int
	Combatants    []Combatant
}

// Mover returns the combatant at Turn.
func (c Clock) Mover() (Combatant, bool) {
	if c.Turn < 0 || c.Turn >= len(c.Combatants) {
		return Combatant{}, false
	}
	return c.Combatants[c.Turn], true
}

// IndexOfSubject returns the turn position of the combatant carrying subjectID.
func (c Clock) IndexOfSubject(subjectID string) (int, bool) {
	for i, cbt := range c.Combatants {
		if cbt.SubjectID == subjectID {
			return i, true
		}
	}
	return -1, false
}

// SubjectIDs returns the distinct subject ids in turn order.
func (c Clock) SubjectIDs() []string {
	seen := make(map[string]bool, len(c.Combatants))
	out := make([]string, 0, len(c.Combatants))
	for _, cbt := range c.Combatants {
		if cbt.SubjectID == "" || seen[cbt.SubjectID] {
			continue
		}
		seen[cbt.SubjectID] = true
		out = append(out, cbt.SubjectID)
	}
	return out
}

// Combat holds the live state of one encounter. It is not safe for concurrent use;
// Tracker serialises access.
type Combat struct {
	ID            string
	SceneID       string
	Round         int
	Turn          int
	PreviousRound *int
	PreviousTurn  *int
	Combatants    []*Combatant
}

// NewCombat creates an unstarted combat holding copies of combatants.
//
// Precondition: combatants must be non-empty and have unique IDs.
func NewCombat(id, sceneID string, combatants []*Combatant) (*Combat, error) {
	if len(combatants) == 0 {
		return nil, fmt.Errorf("combat %q: no combatants", id)
	}
	seen := make(map[string]bool, len(combatants))
	cp := make([]*Combatant, len(combatants))
	for i, cbt := range combatants {
		if seen[cbt.ID] {
			return nil, fmt.Errorf("combat %q: duplicate combatant %q", id, cbt.ID)
		}
		seen[cbt.ID] = true
		c := *cbt
		cp[i] = &c
	}
	return &Combat{ID: id, SceneID: sceneID, Turn: -1, Combatants: cp}, nil
}

// Clock returns a snapshot of c.
func (c *Combat) Clock() Clock {
	out := Clock{
		CombatID:   c.ID,
		SceneID:    c.SceneID,
		Round:      c.Round,
		Turn:       c.Turn,
		Combatants: make([]Combatant, len(c.Combatants)),
	}
	if c.PreviousRound != nil {
		out.PreviousRound = effect.Ptr(*c.PreviousRound)
	}
	if c.PreviousTurn != nil {
		out.PreviousTurn = effect.Ptr(*c.PreviousTurn)
	}
	for i, cbt := range c.Combatants {
		out.Combatants[i] = *cbt
	}
	return out
}

// Find returns the combatant with id.
func (c *Combat) Find(id string) (*Combatant, bool) {
	for _, cbt := range c.Combatants {
		if cbt.ID == id {
			return cbt, true
		}
	}
	return nil, false
}

// Mover returns the combatant whose turn it is, or nil before Start.
func (c *Combat) Mover() *Combatant {
	if c.Turn < 0 || c.Turn >= len(c.Combatants) {
		return nil
	}
	return c.Combatants[c.Turn]
}

func (c *Combat) eligible(cbt *Combatant, opts Options) bool {
	if opts.SkipDefeated && cbt.Defeated {
		return false
	}
	if opts.SkipActed && cbt.Acted {
		return false
	}
	return true
}

// nextEligible returns the first eligible index at or after from, or -1.
func (c *Combat) nextEligible(from int, opts Options) int {
	for i := from; i < len(c.Combatants); i++ {
		if c.eligible(c.Combatants[i], opts) {
			return i
		}
	}
	return -1
}

func (c *Combat) anyEligibleAfterReset(opts Options) bool {
	for _, cbt := range c.Combatants {
		if !opts.SkipDefeated || !cbt.Defeated {
			return true
		}
	}
	return false
}

// Start sorts the order, enters round 1, and gives the turn to the first eligible combatant.
//
// Postcondition: Round == 1; returns [CombatStart, TurnStart(mover)].
func (c *Combat) Start(opts Options) ([]Transition, error) {
	if c.Round != 0 {
		return nil, fmt.Errorf("combat %q already started", c.ID)
	}
	for _, cbt := range c.Combatants {
		cbt.Acted = false
	}
	SortInitiative(c.Combatants, "")
	first := c.nextEligible(0, opts)
	if first < 0 {
		return nil, fmt.Errorf("combat %q: %w", c.ID, ErrNoEligibleCombatant)
	}
	c.Round = 1
	c.Turn = first
	out := []Transition{{Kind: TransitionCombatStart, Clock: c.Clock(), Turn: -1}}
	return append(out, c.turnTransition(TransitionTurnStart)), nil
}

// NextTurn ends the current mover's turn and advances the pointer, skipping combatants per
// opts. When no eligible combatant remains in the round, the round advances, the pointer
// resets, and every combatant's Acted flag is cleared.
//
// Precondition: Start has been called.
// Postcondition: Returns TurnEnd(previous mover), optionally RoundAdvance, then TurnStart(new mover).
func (c *Combat) NextTurn(opts Options) ([]Transition, error) {
	if c.Round == 0 {
		return nil, fmt.Errorf("combat %q not started", c.ID)
	}
	if !c.anyEligibleAfterReset(opts) {
		return nil, fmt.Errorf("combat %q: %w", c.ID, ErrNoEligibleCombatant)
	}
	var out []Transition
	prevTurn := c.Turn
	if mover := c.Mover(); mover != nil {
		out = append(out, c.turnTransition(TransitionTurnEnd))
		mover.Acted = true
	}

	next := c.nextEligible(c.Turn+1, opts)
	if next < 0 {
		prevRound := c.Round
		c.PreviousRound = &prevRound
		c.Round++
		for _, cbt := range c.Combatants {
			cbt.Acted = false
		}
		c.Turn = -1
		out = append(out, Transition{Kind: TransitionRoundAdvance, Clock: c.Clock(), Turn: -1})
		next = c.nextEligible(0, opts)
	}
	c.PreviousTurn = &prevTurn
	c.Turn = next
	return append(out, c.turnTransition(TransitionTurnStart)), nil
}

func (c *Combat) turnTransition(kind TransitionKind) Transition {
	mover := c.Mover()
	return Transition{Kind: kind, Clock: c.Clock(), Combatant: *mover, Turn: c.Turn}
}

// Reorder re-sorts the order by initiative bands keeping the current mover's turn.
//
// Postcondition: Mover() is unchanged.
func (c *Combat) Reorder() {
	holder := ""
	if m := c.Mover(); m != nil {
		holder = m.ID
	}
	SortInitiative(c.Combatants, holder)
	if holder == "" {
		return
	}
	for i, cbt := range c.Combatants {
		if cbt.ID == holder {
			c.Turn = i
			return
		}
	}
}
