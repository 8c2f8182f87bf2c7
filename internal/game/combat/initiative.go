package combat

import "sort"

// Initiative bands. Scores within a band never cross into another band.
const (
	BandEnemy   = 1000
	BandAlly    = 2000
	BandCurrent = 3000
	bandWidth   = 1000
)

// InitiativeScore places c into its band: the current turn holder first, then allies, then
// enemies, ordered within a band by initiative clamped to [0, 999].
//
// Postcondition: Returns a value in [band, band+999].
func InitiativeScore(c *Combatant, currentHolderID string) int {
	band := BandEnemy
	switch {
	case currentHolderID != "" && c.ID == currentHolderID:
		band = BandCurrent
	case c.Disposition == DispositionAlly:
		band = BandAlly
	}
	ini := c.Initiative
	if ini < 0 {
		ini = 0
	}
	if ini >= bandWidth {
		ini = bandWidth - 1
	}
	return band + ini
}

// SortInitiative sorts combatants in place by descending InitiativeScore, ties broken by ID.
func SortInitiative(combatants []*Combatant, currentHolderID string) {
	sort.SliceStable(combatants, func(i, j int) bool {
		si := InitiativeScore(combatants[i], currentHolderID)
		sj := InitiativeScore(combatants[j], currentHolderID)
		if si != sj {
			return si > sj
		}
		return combatants[i].ID < combatants[j].ID
	})
}
