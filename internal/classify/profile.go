// Package classify turns raw detections into judged, annotated frames.
// A Profile parameterizes the judgment per industry domain; the Classifier
// applies it frame by frame, drawing the verdicts and emitting violation
// events for the recorder.
package classify

import (
	"fmt"
	"sort"
)

// SubjectClass is the class tracked as the monitored subject in every
// domain. Subjects are drawn but never recorded as violations.
const SubjectClass = "Person"

// DefaultThreshold is the minimum confidence a detection needs before it
// is judged at all.
const DefaultThreshold = 0.6

// Profile describes which equipment classes a domain cares about and at
// what confidence detections start to count.
type Profile struct {
	name      string
	threshold float64
	positive  map[string]struct{}
	negative  map[string]struct{}
}

// NewProfile builds a profile from the positive (compliant equipment) and
// negative (violation) class lists. Threshold values outside (0, 1] fall
// back to the default.
func NewProfile(name string, threshold float64, positive, negative []string) *Profile {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	p := &Profile{
		name:      name,
		threshold: threshold,
		positive:  make(map[string]struct{}, len(positive)),
		negative:  make(map[string]struct{}, len(negative)),
	}
	for _, class := range positive {
		p.positive[class] = struct{}{}
	}
	for _, class := range negative {
		p.negative[class] = struct{}{}
	}
	return p
}

// Name returns the human-readable domain name.
func (p *Profile) Name() string { return p.name }

// Threshold returns the confidence floor for this domain.
func (p *Profile) Threshold() float64 { return p.threshold }

// Classes returns the union of all classes this profile knows, sorted.
func (p *Profile) Classes() []string {
	classes := make([]string, 0, len(p.positive)+len(p.negative))
	for class := range p.positive {
		classes = append(classes, class)
	}
	for class := range p.negative {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	return classes
}

// Builtin returns the built-in domain profiles keyed by their registry
// identifier.
func Builtin() map[string]*Profile {
	return map[string]*Profile{
		"manufacturing": NewProfile("Manufacturing", DefaultThreshold,
			[]string{
				"Person", "Mask", "Hardhat", "Gloves", "Safety goggles",
				"Ear protection", "Face shield", "Steel-toe boots", "Apron",
				"Protective suit", "Respirator", "Safety Vest",
			},
			[]string{"NO-hardhat", "NO-Mask", "NO-Safety Vest"},
		),
		"construction": NewProfile("Construction", DefaultThreshold,
			[]string{"Person", "Hardhat", "Safety Vest", "Safety boots"},
			[]string{"NO-hardhat", "NO-Mask", "NO-Safety Vest"},
		),
		"healthcare": NewProfile("Healthcare", DefaultThreshold,
			[]string{
				"Person", "Mask", "Gloves", "Face shield", "Gown", "N95 mask",
				"Safety goggles", "Shoe cover", "Hair net", "Hazmat suit",
			},
			[]string{"NO-Mask", "NO-Gown", "NO-Gloves"},
		),
		"oilgas": NewProfile("Oil & Gas", DefaultThreshold,
			[]string{
				"Person", "Hardhat", "Flame-resistant clothing",
				"Safety goggles", "Ear protection", "Safety boots", "Gloves",
				"Respirator", "Full-body suit", "Face shield",
			},
			[]string{"NO-hardhat", "NO-Mask", "NO-Safety Vest"},
		),
	}
}

// ProfileFor looks up a built-in profile by its registry identifier.
func ProfileFor(id string) (*Profile, error) {
	p, ok := Builtin()[id]
	if !ok {
		return nil, fmt.Errorf("classify: unknown domain %q", id)
	}
	return p, nil
}
