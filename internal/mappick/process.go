// Package mappick runs the alternating ban/pick map selection of a match.
package mappick

import (
	"github.com/edvart/strike-inhouse/internal/intent"
	"github.com/edvart/strike-inhouse/internal/store"
)

// InitialBans is the number of bans every process starts with.
const InitialBans = 2

// NewProcess creates an unsaved process over mapIDs where pickerA acts
// first. Candidates are numbered from 1 in the given order.
func NewProcess(pickerA, pickerB int64, mapIDs []int64) *store.MapPickProcess {
	maps := make([]store.MapPick, len(mapIDs))
	for i, id := range mapIDs {
		maps[i] = store.MapPick{ID: int64(i + 1), MapID: id}
	}
	return &store.MapPickProcess{
		PickerA:    pickerA,
		PickerB:    pickerB,
		Turn:       pickerA,
		NextAction: store.ActionBan,
		Maps:       maps,
	}
}

// NextAction decides what follows a selection, given the counts including
// that selection. ActionNull means the remaining candidate is the decider.
func NextAction(banned, picked, mapCount, poolSize int) store.PickAction {
	switch {
	case banned < InitialBans:
		return store.ActionBan
	case picked < mapCount-1:
		return store.ActionPick
	case banned+picked == poolSize-1:
		return store.ActionNull
	default:
		return store.ActionBan
	}
}

// Counts returns how many candidates were banned and picked so far.
func Counts(p *store.MapPickProcess) (banned, picked int) {
	for _, m := range p.Maps {
		if m.Picked == nil {
			continue
		}
		if *m.Picked {
			picked++
		} else {
			banned++
		}
	}
	return banned, picked
}

// Select applies actor's selection of candidateID on behalf of teamID. On
// rejection p is left untouched.
func Select(p *store.MapPickProcess, candidateID, actor, teamID int64, mapCount int) intent.Response {
	if p.Finished {
		return intent.Fail("Map pick process is finished")
	}
	if p.Turn == 0 {
		return intent.Fail("You are not allowed to pick yet")
	}
	if p.Turn != actor {
		return intent.Fail("Wait for your turn")
	}
	if teamID == 0 {
		return intent.Fail("Player is not in this match")
	}
	candidate := p.Candidate(candidateID)
	if candidate == nil {
		return intent.Fail("Map is not part of this process")
	}
	if candidate.Selected() {
		return intent.Fail("Map was already selected")
	}

	banned, picked := Counts(p)
	isPick := p.NextAction == store.ActionPick
	action := store.ActionBan
	if isPick {
		action = store.ActionPick
		picked++
	} else {
		banned++
	}

	candidate.Picked = &isPick
	candidate.SelectedBy = teamID
	candidate.Action = action
	candidate.Order = banned + picked

	p.NextAction = NextAction(banned, picked, mapCount, len(p.Maps))
	if p.NextAction != store.ActionNull {
		p.Turn = p.OtherPicker(actor)
		return intent.Succeed("Map selected").With("action", action.String())
	}

	decide(p, banned+picked+1)
	return intent.Succeed("Map selected").With("action", action.String()).With("finished", true)
}

// decide marks the last unselected candidate as picked by default and ends
// the process. With no candidate left the process just ends.
func decide(p *store.MapPickProcess, order int) {
	for i := range p.Maps {
		m := &p.Maps[i]
		if m.Selected() {
			continue
		}
		picked := true
		m.Picked = &picked
		m.SelectedBy = 0
		m.Action = store.ActionDefault
		m.Order = order
		break
	}
	p.Turn = 0
	p.Finished = true
	p.NextAction = store.ActionNull
}

// Sequence returns the actions of all selected candidates in selection
// order.
func Sequence(p *store.MapPickProcess) []store.PickAction {
	seq := make([]store.PickAction, 0, len(p.Maps))
	for order := 1; order <= len(p.Maps); order++ {
		for _, m := range p.Maps {
			if m.Order == order {
				seq = append(seq, m.Action)
			}
		}
	}
	return seq
}
