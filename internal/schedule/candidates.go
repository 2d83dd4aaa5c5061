package schedule

// Reason explains why a candidate is free in the requested slot.
type Reason string

const (
	// ReasonSpecialistFree marks a specialist whose own cell is free.
	ReasonSpecialistFree Reason = "specialist_free"
	// ReasonHomeroomFreed marks a homeroom teacher whose class is being taught
	// by a specialist.
	ReasonHomeroomFreed Reason = "homeroom_freed_by_specialist"
)

// Match is one eligible teacher found by FindCandidates.
type Match struct {
	TeacherID string
	Reason    Reason
	// FreedBy lists the specialists teaching the homeroom class. Empty for
	// specialist matches.
	FreedBy []string
	// Class is the homeroom class for homeroom matches.
	Class ClassRef
}

// FindCandidates lists the teachers free at (day, slot). Specialists with a
// free cell come first in input order, followed by homeroom teachers whose
// class is taught by a specialist in that cell, in order of discovery. Every
// teacher appears at most once. Homeroom sources whose class does not parse
// are ignored. The caller is responsible for checking that slot is a current
// registry label.
func FindCandidates(day Day, slot string, specialists []SpecialistSource, homerooms []HomeroomSource) []Match {
	if !day.Valid() {
		return nil
	}

	owners := make(map[ClassRef][]string)
	for _, h := range homerooms {
		class, err := ClassRefFromParts(h.Grade, h.ClassNumber)
		if err != nil {
			continue
		}
		owners[class] = appendUnique(owners[class], h.TeacherID)
	}

	var matches []Match
	index := make(map[string]int)

	for _, s := range specialists {
		if !s.Grid.At(day, slot).IsFree() {
			continue
		}
		if _, ok := index[s.TeacherID]; ok {
			continue
		}
		index[s.TeacherID] = len(matches)
		matches = append(matches, Match{TeacherID: s.TeacherID, Reason: ReasonSpecialistFree})
	}

	for _, s := range specialists {
		for _, class := range s.Grid.At(day, slot).TeachingClasses() {
			for _, ownerID := range owners[class] {
				if i, ok := index[ownerID]; ok {
					if matches[i].Reason == ReasonHomeroomFreed {
						matches[i].FreedBy = appendUnique(matches[i].FreedBy, s.TeacherID)
					}
					continue
				}
				index[ownerID] = len(matches)
				matches = append(matches, Match{
					TeacherID: ownerID,
					Reason:    ReasonHomeroomFreed,
					FreedBy:   []string{s.TeacherID},
					Class:     class,
				})
			}
		}
	}

	return matches
}
