// Package station holds the static definition of the four inspection
// stations a panel passes through, including the pass/fail criteria checked
// at each one. The registry is fixed reference data: stations are never
// added, reordered or mutated at runtime.
package station

import "github.com/quality-dot/solar-panel-production-tracking-sub010/barcode"

// StageType identifies the kind of work performed at a station.
type StageType string

const (
	StageAssemblyEL       StageType = "assembly_el"
	StageFraming          StageType = "framing"
	StageJunctionBox      StageType = "junction_box"
	StagePerformanceFinal StageType = "performance_final"
)

// Station numbering. Progression is strictly First..Final.
const (
	First = 1
	Final = 4
	Count = 4
)

// CriterionKind tags how a criterion is evaluated.
type CriterionKind string

const (
	KindPassFail CriterionKind = "pass_fail"
	KindNumeric  CriterionKind = "numeric"
)

// Criterion is a single check performed at a station. Line is empty when the
// check applies to both production lines; otherwise the criterion is
// not-applicable for the other line.
type Criterion struct {
	Description string        `json:"description"`
	Kind        CriterionKind `json:"kind"`
	Line        string        `json:"line,omitempty"`
}

// Definition is one station stage with its ordered criteria list.
type Definition struct {
	ID       int         `json:"id"`
	Stage    StageType   `json:"stage"`
	Criteria []Criterion `json:"criteria"`
}

var registry = []Definition{
	{
		ID:    1,
		Stage: StageAssemblyEL,
		Criteria: []Criterion{
			{Description: "cell alignment", Kind: KindPassFail},
			{Description: "el micro-crack scan", Kind: KindPassFail},
			{Description: "solder joint integrity", Kind: KindPassFail},
			{Description: "string spacing", Kind: KindNumeric},
			{Description: "half-cell string continuity", Kind: KindPassFail, Line: barcode.LineB},
		},
	},
	{
		ID:    2,
		Stage: StageFraming,
		Criteria: []Criterion{
			{Description: "frame corner fit", Kind: KindPassFail},
			{Description: "sealant coverage", Kind: KindPassFail},
			{Description: "frame rail torque", Kind: KindNumeric},
			{Description: "40mm frame profile", Kind: KindPassFail, Line: barcode.LineA},
			{Description: "35mm frame profile", Kind: KindPassFail, Line: barcode.LineB},
		},
	},
	{
		ID:    3,
		Stage: StageJunctionBox,
		Criteria: []Criterion{
			{Description: "junction box adhesion", Kind: KindPassFail},
			{Description: "diode polarity", Kind: KindPassFail},
			{Description: "cable gland torque", Kind: KindNumeric},
			{Description: "connector mate force", Kind: KindNumeric},
			{Description: "split junction box placement", Kind: KindPassFail, Line: barcode.LineB},
		},
	},
	{
		ID:    4,
		Stage: StagePerformanceFinal,
		Criteria: []Criterion{
			{Description: "flash test wattage", Kind: KindNumeric},
			{Description: "vmp tolerance", Kind: KindNumeric},
			{Description: "imp tolerance", Kind: KindNumeric},
			{Description: "hipot insulation", Kind: KindPassFail},
			{Description: "final visual", Kind: KindPassFail},
		},
	},
}

// All returns the four station definitions in progression order.
func All() []Definition {
	out := make([]Definition, len(registry))
	copy(out, registry)
	return out
}

// Lookup returns the definition for a station number. The boolean is false
// for numbers outside 1..4; callers treat that as a programmer error.
func Lookup(id int) (Definition, bool) {
	if id < First || id > Final {
		return Definition{}, false
	}
	return registry[id-1], true
}

// CriteriaForLine filters the station's criteria down to the ones that apply
// on the given production line, preserving order.
func (d Definition) CriteriaForLine(line string) []Criterion {
	out := make([]Criterion, 0, len(d.Criteria))
	for _, c := range d.Criteria {
		if c.Line == "" || c.Line == line {
			out = append(out, c)
		}
	}
	return out
}

// HasCriterion reports whether a criterion description is valid for this
// station on the given line.
func (d Definition) HasCriterion(line, description string) bool {
	for _, c := range d.CriteriaForLine(line) {
		if c.Description == description {
			return true
		}
	}
	return false
}
