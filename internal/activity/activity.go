package activity

import (
	"strings"
)

const (
	Running  = "Running"
	Cycling  = "Cycling"
	Skipping = "Skipping"
	Walking  = "Walking"
	Gym      = "Gym"
	Hiking   = "Hiking"
	Yoga     = "Yoga"
)

// DefaultMET is used for activities outside the known vocabulary.
const DefaultMET = 6.0

// Fields tells which numeric entry fields make sense for an activity.
type Fields struct {
	Duration bool `json:"duration"`
	Distance bool `json:"distance"`
	Steps    bool `json:"steps"`
}

type Info struct {
	Name   string  `json:"name"`
	MET    float64 `json:"met"`
	Fields Fields  `json:"fields"`
}

var allFields = Fields{Duration: true, Distance: true, Steps: true}

// ordered as presented to the user
var known = []Info{
	{Name: Running, MET: 9.8, Fields: Fields{Duration: true, Distance: true}},
	{Name: Cycling, MET: 7.5, Fields: Fields{Duration: true, Distance: true}},
	{Name: Skipping, MET: 8.0, Fields: Fields{Duration: true, Steps: true}},
	{Name: Walking, MET: 3.5, Fields: allFields},
	{Name: Gym, MET: 6, Fields: Fields{Duration: true}},
	{Name: Hiking, MET: 6, Fields: Fields{Duration: true, Distance: true}},
	{Name: Yoga, MET: 3, Fields: Fields{Duration: true}},
}

var byKey = func() map[string]Info {
	m := make(map[string]Info, len(known))
	for _, info := range known {
		m[Key(info.Name)] = info
	}
	return m
}()

// Key returns the canonical form of an activity name, used for every
// comparison and lookup of activities.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Normalize returns the vocabulary spelling for known activities, and the
// trimmed name for free-form ones.
func Normalize(name string) string {
	if info, ok := byKey[Key(name)]; ok {
		return info.Name
	}
	return strings.TrimSpace(name)
}

func Same(a, b string) bool {
	return Key(a) == Key(b)
}

func IsKnown(name string) bool {
	_, ok := byKey[Key(name)]
	return ok
}

func MET(name string) float64 {
	if info, ok := byKey[Key(name)]; ok {
		return info.MET
	}
	return DefaultMET
}

// FieldsFor returns the recognized fields of the activity. Free-form
// activities accept all of them.
func FieldsFor(name string) Fields {
	if info, ok := byKey[Key(name)]; ok {
		return info.Fields
	}
	return allFields
}

func Known() []Info {
	infos := make([]Info, len(known))
	copy(infos, known)
	return infos
}
