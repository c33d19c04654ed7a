package attendance

// UnassignedLocation keys records whose credential has no location.
const UnassignedLocation = "unassigned"

// Report is a filtered record sequence with counts derived from it.
type Report struct {
	Entries    []Entry        `json:"entries"`
	Total      int            `json:"total"`
	ByRole     map[string]int `json:"by_role"`
	ByCourse   map[string]int `json:"by_course"`
	ByLocation map[string]int `json:"by_location"`
}

// BuildReport counts entries per user role, course code and location id.
func BuildReport(entries []Entry) Report {
	rep := Report{
		Entries:    entries,
		Total:      len(entries),
		ByRole:     map[string]int{},
		ByCourse:   map[string]int{},
		ByLocation: map[string]int{},
	}
	if rep.Entries == nil {
		rep.Entries = []Entry{}
	}
	for _, e := range entries {
		rep.ByRole[e.UserRole]++
		rep.ByCourse[e.CourseCode]++
		loc := UnassignedLocation
		if e.LocationID != nil {
			loc = *e.LocationID
		}
		rep.ByLocation[loc]++
	}
	return rep
}

func page(entries []Entry, limit, offset int) []Entry {
	if offset >= len(entries) {
		return []Entry{}
	}
	if offset > 0 {
		entries = entries[offset:]
	}
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries
}
