package schedule

// SpecialistSource is the derivation input for one specialist teacher.
type SpecialistSource struct {
	TeacherID string
	Grid      *SpecialistGrid
}

// HomeroomSource is the derivation input for one homeroom teacher. Grade and
// ClassNumber are the raw stored fields; they are parsed here so that broken
// records surface as warnings instead of aborting the pass.
type HomeroomSource struct {
	TeacherID   string
	Grade       string
	ClassNumber string
}

// IntegrityWarning describes a homeroom teacher left out of a derivation pass.
type IntegrityWarning struct {
	TeacherID   string `json:"teacherId"`
	Grade       string `json:"grade"`
	ClassNumber string `json:"classNumber"`
	Reason      string `json:"reason"`
}

// Derivation is the result of DeriveAll.
type Derivation struct {
	// Grids holds a fresh grid for every homeroom teacher whose class parsed.
	Grids map[string]*HomeroomGrid
	// Skipped lists homeroom teachers that keep their previous grid.
	Skipped []IntegrityWarning
}

// Coverage indexes, per day and slot, the classes a specialist is teaching.
type Coverage map[Day]map[string]map[ClassRef][]string

// Covering returns the specialists teaching class c at (day, slot).
func (c Coverage) Covering(day Day, slot string, class ClassRef) []string {
	return c[day][slot][class]
}

// BuildCoverage collects teaching assignments of the given specialists over
// the current slot labels only. Stale labels are ignored.
func BuildCoverage(slots []string, specialists []SpecialistSource) Coverage {
	cov := make(Coverage, len(Weekdays))
	for _, day := range Weekdays {
		bySlot := make(map[string]map[ClassRef][]string, len(slots))
		for _, slot := range slots {
			classes := make(map[ClassRef][]string)
			for _, s := range specialists {
				for _, class := range s.Grid.At(day, slot).TeachingClasses() {
					classes[class] = appendUnique(classes[class], s.TeacherID)
				}
			}
			bySlot[slot] = classes
		}
		cov[day] = bySlot
	}
	return cov
}

// DeriveAll recomputes every homeroom grid from the specialist grids. For a
// homeroom class C a cell is Free when some specialist teaches C in that cell
// and Teaching({C}) otherwise. The output covers exactly the given slots.
func DeriveAll(slots []string, specialists []SpecialistSource, homerooms []HomeroomSource) Derivation {
	cov := BuildCoverage(slots, specialists)
	result := Derivation{Grids: make(map[string]*HomeroomGrid, len(homerooms))}

	for _, h := range homerooms {
		class, err := ClassRefFromParts(h.Grade, h.ClassNumber)
		if err != nil {
			result.Skipped = append(result.Skipped, IntegrityWarning{
				TeacherID:   h.TeacherID,
				Grade:       h.Grade,
				ClassNumber: h.ClassNumber,
				Reason:      err.Error(),
			})
			continue
		}

		grid := &HomeroomGrid{week: make(Week, len(Weekdays))}
		own := Teaching(class)
		for _, day := range Weekdays {
			for _, slot := range slots {
				if len(cov.Covering(day, slot, class)) > 0 {
					grid.week.put(day, slot, Free())
				} else {
					grid.week.put(day, slot, own)
				}
			}
		}
		result.Grids[h.TeacherID] = grid
	}

	return result
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
