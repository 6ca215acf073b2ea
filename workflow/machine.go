package workflow

import (
	"time"

	"github.com/quality-dot/solar-panel-production-tracking-sub010/repository/models"
	"github.com/quality-dot/solar-panel-production-tracking-sub010/station"
)

// Physical bounds for electrical readings. Values outside these ranges are
// rejected, never clamped.
const (
	MinWattage = 5.0
	MaxWattage = 1000.0
	MinVmp     = 5.0
	MaxVmp     = 100.0
	MinImp     = 0.1
	MaxImp     = 30.0
)

// ElectricalReadings carries the performance measurements taken at the final
// station. Fields are optional so readings can arrive ahead of the final
// inspection.
type ElectricalReadings struct {
	Wattage *float64 `json:"wattage,omitempty"`
	Vmp     *float64 `json:"vmp,omitempty"`
	Imp     *float64 `json:"imp,omitempty"`
}

// Validate checks each supplied reading against its physical bounds,
// naming the first out-of-range field.
func (r *ElectricalReadings) Validate() error {
	if r.Wattage != nil && (*r.Wattage < MinWattage || *r.Wattage > MaxWattage) {
		return NewError(KindValueOutOfRange, "wattage", "wattage %.2f outside %.0f-%.0f W", *r.Wattage, MinWattage, MaxWattage)
	}
	if r.Vmp != nil && (*r.Vmp < MinVmp || *r.Vmp > MaxVmp) {
		return NewError(KindValueOutOfRange, "vmp", "vmp %.2f outside %.0f-%.0f V", *r.Vmp, MinVmp, MaxVmp)
	}
	if r.Imp != nil && (*r.Imp < MinImp || *r.Imp > MaxImp) {
		return NewError(KindValueOutOfRange, "imp", "imp %.2f outside %.1f-%.0f A", *r.Imp, MinImp, MaxImp)
	}
	return nil
}

// checkPanelAcceptsInspection rejects inspections on panels whose lifecycle
// state forbids them. Rework panels must be re-scanned before re-inspection.
func checkPanelAcceptsInspection(panel *models.Panel) error {
	switch panel.Status {
	case models.PanelStatusPending, models.PanelStatusInProgress:
		return nil
	case models.PanelStatusRework:
		return NewError(KindPrecondViolation, "rework_rescan",
			"panel %s is flagged for rework and must be re-scanned before inspection", panel.SerialNumber)
	case models.PanelStatusCompleted, models.PanelStatusFailed:
		return NewError(KindPrecondViolation, "terminal_state",
			"panel %s is %s; terminal panels accept no further inspections", panel.SerialNumber, panel.Status)
	default:
		return NewError(KindInternal, "", "panel %s has unknown status %q", panel.SerialNumber, panel.Status)
	}
}

// checkNoDuplicateInspection enforces one inspection per (panel, station)
// pair within the current rework cycle.
func checkNoDuplicateInspection(inspections []models.Inspection, stationID, cycle int) error {
	for _, insp := range inspections {
		if insp.StationID == stationID && insp.Attempt == cycle {
			return NewError(KindDuplicateInspection, "one_inspection_per_station",
				"station %d already has inspection %s for this cycle", stationID, insp.ID)
		}
	}
	return nil
}

// checkProgression enforces the station ordering guard: every lower-numbered
// station must already hold a passing inspection. Station 1 has no
// precondition.
func checkProgression(inspections []models.Inspection, stationID int) error {
	for lower := station.First; lower < stationID; lower++ {
		if !hasPass(inspections, lower) {
			return NewError(KindPrecondViolation, "station_order",
				"station %d has no passing inspection yet", lower)
		}
	}
	return nil
}

func hasPass(inspections []models.Inspection, stationID int) bool {
	for _, insp := range inspections {
		if insp.StationID == stationID && insp.Result == models.ResultPass {
			return true
		}
	}
	return false
}

// applyPass advances the panel after a passing inspection: it stamps the
// station completion time (monotonically non-decreasing), moves the current
// station forward, and performs the Completed transition after the final
// station. The caller has already verified the progression guard.
func applyPass(panel *models.Panel, stationID int, now time.Time) error {
	// Timestamps never regress, even across clock adjustments.
	for lower := station.First; lower < stationID; lower++ {
		if prev := panel.StationCompletedAt(lower); prev != nil && now.Before(*prev) {
			now = *prev
		}
	}
	panel.SetStationCompletedAt(stationID, now)

	if stationID < station.Final {
		next := stationID + 1
		panel.Status = models.PanelStatusInProgress
		panel.CurrentStation = &next
		return nil
	}

	// Final station: Completed requires the full timestamp set and complete,
	// range-valid electrical readings.
	if !panel.HasElectricalReadings() {
		return NewError(KindPrecondViolation, "electrical_readings",
			"panel %s cannot complete without wattage, vmp and imp", panel.SerialNumber)
	}
	if !panel.HasAllStationTimestamps() {
		return NewError(KindInternal, "",
			"panel %s passed station %d with missing station timestamps", panel.SerialNumber, stationID)
	}
	panel.Status = models.PanelStatusCompleted
	panel.CurrentStation = nil
	return nil
}

// applyFailure parks the panel in Failed at its point of failure. Notes are
// appended to the quality log so the defect stays on record.
func applyFailure(panel *models.Panel, stationID int, notes string) {
	panel.Status = models.PanelStatusFailed
	panel.CurrentStation = &stationID
	appendQualityNote(panel, notes)
}

// applyRework flags the panel for rework at the failed station. History is
// preserved; the next scan re-admits the panel at CurrentStation.
func applyRework(panel *models.Panel, stationID int, reason string) {
	panel.Status = models.PanelStatusRework
	panel.CurrentStation = &stationID
	panel.ReworkReason = reason
	appendQualityNote(panel, reason)
}

// readmit moves a Rework panel back to InProgress at its recorded station.
// The progression guard holds because earlier stations' passing inspections
// remain on record from the first cycle.
func readmit(panel *models.Panel) error {
	if panel.Status != models.PanelStatusRework {
		return NewError(KindPrecondViolation, "rework_reentry",
			"panel %s is %s, only rework panels re-enter the flow", panel.SerialNumber, panel.Status)
	}
	if panel.CurrentStation == nil {
		return NewError(KindInternal, "", "rework panel %s has no recorded station", panel.SerialNumber)
	}
	panel.Status = models.PanelStatusInProgress
	panel.ReworkCycle++
	return nil
}

func appendQualityNote(panel *models.Panel, note string) {
	if note == "" {
		return
	}
	if panel.QualityNotes == "" {
		panel.QualityNotes = note
		return
	}
	panel.QualityNotes += "\n" + note
}
