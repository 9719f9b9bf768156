// Package pause implements day accounting for membership card suspension
// intervals. All functions are pure: they operate on the card snapshot they
// are handed and return an updated copy for the caller to persist.
package pause

import (
	"errors"

	"github.com/google/uuid"
	"github.com/jasonk0/card-count/internal/models"
)

// ErrPauseNotFound indicates the referenced pause record does not exist on
// the card.
var ErrPauseNotFound = errors.New("pause record not found")

// NewPause holds the inputs for scheduling a pause. EndDate is optional; when
// nil the pause is open-ended until resumed.
type NewPause struct {
	StartDate models.Date
	EndDate   *models.Date
	Reason    string
}

// IsPaused reports whether any pause record covers asOf. An open-ended record
// matches when asOf is strictly after its start; a closed record matches the
// closed interval [start, end]. Overlapping records are tolerated, not merged.
func IsPaused(card models.MembershipCard, asOf models.Date) bool {
	for _, record := range card.Pauses() {
		if record.EndDate == nil {
			if asOf.After(record.StartDate) {
				return true
			}
			continue
		}
		if !asOf.Before(record.StartDate) && !asOf.After(*record.EndDate) {
			return true
		}
	}
	return false
}

// Schedule appends a new pause record to the card and, for a closed interval
// of n > 0 days, extends the card's end date by n so total validity is
// preserved. Degenerate intervals (end before or equal to start) are kept but
// have no effect on the end date. Open-ended pauses leave the end date alone
// until resumed.
func Schedule(card models.MembershipCard, newPause NewPause, today models.Date) models.MembershipCard {
	record := models.PauseRecord{
		ID:        uuid.NewString(),
		StartDate: newPause.StartDate,
		EndDate:   newPause.EndDate,
		Reason:    newPause.Reason,
	}

	if newPause.EndDate != nil {
		pauseDays := newPause.StartDate.DaysUntil(*newPause.EndDate)
		if pauseDays > 0 {
			card.EndDate = card.EndDate.AddDays(pauseDays)
		}
	}

	card.SetPauses(append(append([]models.PauseRecord{}, card.Pauses()...), record))
	card.IsActive = !IsPaused(card, today)
	return card
}

// Resume closes the identified pause record at resumeDate. When the record
// originally had a planned end date and the resume is early, the card's end
// date shrinks by the unused portion. Resuming late or on schedule applies no
// further adjustment: the planned days were already reserved by Schedule.
func Resume(card models.MembershipCard, pauseID string, resumeDate, today models.Date) (models.MembershipCard, error) {
	records := append([]models.PauseRecord{}, card.Pauses()...)
	index := indexOf(records, pauseID)
	if index < 0 {
		return card, ErrPauseNotFound
	}

	original := records[index]
	if original.EndDate != nil {
		plannedDays := original.StartDate.DaysUntil(*original.EndDate)
		actualDays := original.StartDate.DaysUntil(resumeDate)
		if actualDays < plannedDays {
			card.EndDate = card.EndDate.AddDays(actualDays - plannedDays)
		}
	}

	end := resumeDate
	records[index].EndDate = &end
	card.SetPauses(records)
	card.IsActive = !IsPaused(card, today)
	return card, nil
}

// RemainingDays computes the card's usable days as of today. While the card
// is paused the stored value is frozen. Otherwise the days until the end date
// are reduced by the total length of pauses scheduled strictly after today,
// so a planned future pause lowers the displayed count before it starts.
func RemainingDays(card models.MembershipCard, today models.Date) int {
	if IsPaused(card, today) {
		return card.RemainingDays
	}

	totalDaysLeft := today.DaysUntil(card.EndDate)

	futurePauseDays := 0
	for _, record := range card.Pauses() {
		if !record.StartDate.After(today) {
			continue
		}
		end := card.EndDate
		if record.EndDate != nil {
			end = *record.EndDate
		}
		if duration := record.StartDate.DaysUntil(end); duration > 0 {
			futurePauseDays += duration
		}
	}

	if remaining := totalDaysLeft - futurePauseDays; remaining > 0 {
		return remaining
	}
	return 0
}

// EditRecord replaces the pause record matching updated.ID and refreshes the
// active flag. End-date accounting is intentionally not re-run: edits are
// corrections to the history, not scheduling operations.
func EditRecord(card models.MembershipCard, updated models.PauseRecord, today models.Date) (models.MembershipCard, error) {
	records := append([]models.PauseRecord{}, card.Pauses()...)
	index := indexOf(records, updated.ID)
	if index < 0 {
		return card, ErrPauseNotFound
	}
	records[index] = updated
	card.SetPauses(records)
	card.IsActive = !IsPaused(card, today)
	return card, nil
}

// DeleteRecord removes the identified pause record and refreshes the active
// flag, with no end-date adjustment.
func DeleteRecord(card models.MembershipCard, pauseID string, today models.Date) (models.MembershipCard, error) {
	records := card.Pauses()
	if indexOf(records, pauseID) < 0 {
		return card, ErrPauseNotFound
	}
	kept := make([]models.PauseRecord, 0, len(records)-1)
	for _, record := range records {
		if record.ID != pauseID {
			kept = append(kept, record)
		}
	}
	card.SetPauses(kept)
	card.IsActive = !IsPaused(card, today)
	return card, nil
}

// Refresh recomputes the cached RemainingDays and IsActive fields. Callers
// persist the card only when the result differs from the stored snapshot.
func Refresh(card models.MembershipCard, today models.Date) models.MembershipCard {
	paused := IsPaused(card, today)
	card.IsActive = !paused
	if !paused {
		card.RemainingDays = RemainingDays(card, today)
	}
	return card
}

// indexOf returns the position of the pause record with the given id, or -1.
func indexOf(records []models.PauseRecord, pauseID string) int {
	for i, record := range records {
		if record.ID == pauseID {
			return i
		}
	}
	return -1
}
