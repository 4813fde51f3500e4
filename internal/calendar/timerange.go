package calendar

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

var (
	ErrInvalidTimeRange = errors.New("invalid time range")
	ErrSlotDuration     = errors.New("slot duration must be positive")
)

// TimeRange представляет временной интервал [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// NewTimeRange создаёт интервал и делает простую валидацию.
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return TimeRange{}, ErrInvalidTimeRange
	}
	return TimeRange{Start: start, End: end}, nil
}

func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// NormalizeTimeRange нормализует интервал:
//   - меняет местами границы, если они перепутаны;
//   - переводит в заданный часовой пояс loc;
//   - при превышении maxDuration обрезает интервал до start+maxDuration.
//
// Если maxDuration <= 0, ограничение по длительности не применяется.
func NormalizeTimeRange(
	start, end time.Time,
	loc *time.Location,
	maxDuration time.Duration,
) (TimeRange, error) {
	if start.IsZero() || end.IsZero() {
		return TimeRange{}, ErrInvalidTimeRange
	}

	if end.Before(start) {
		start, end = end, start
	}

	if loc != nil {
		start = start.In(loc)
		end = end.In(loc)
	}

	if maxDuration > 0 && end.Sub(start) > maxDuration {
		end = start.Add(maxDuration)
	}

	if !end.After(start) {
		return TimeRange{}, ErrInvalidTimeRange
	}

	return TimeRange{Start: start, End: end}, nil
}

// SplitToTimeSlots нарезает интервал на слоты [t, t+d) с шагом d, начиная с Start.
// "Хвост" короче slotDuration отбрасывается, слот не выходит за End.
func SplitToTimeSlots(tr TimeRange, slotDuration time.Duration) ([]TimeRange, error) {
	if slotDuration <= 0 {
		return nil, ErrSlotDuration
	}
	if !tr.End.After(tr.Start) {
		return []TimeRange{}, nil
	}

	slots := make([]TimeRange, 0, int(tr.Duration()/slotDuration))
	for cur := tr.Start; !cur.Add(slotDuration).After(tr.End); cur = cur.Add(slotDuration) {
		slots = append(slots, TimeRange{Start: cur, End: cur.Add(slotDuration)})
	}
	return slots, nil
}

// HasOverlap проверяет, пересекается ли newRange с existing.
// inclusive = true: касание концами считается пересечением.
func HasOverlap(
	newRange TimeRange,
	existing []TimeRange,
	inclusive bool,
) (bool, []TimeRange) {
	var conflicts []TimeRange

	for _, tr := range existing {
		if rangesOverlap(newRange, tr, inclusive) {
			conflicts = append(conflicts, tr)
		}
	}

	return len(conflicts) > 0, conflicts
}

func rangesOverlap(a, b TimeRange, inclusive bool) bool {
	if inclusive {
		// [a.Start, a.End] и [b.Start, b.End] пересекаются,
		// если a.Start <= b.End && b.Start <= a.End
		return !a.Start.After(b.End) && !b.Start.After(a.End)
	}

	// Полуоткрытые интервалы [Start, End)
	// пересекаются, если a.Start < b.End && b.Start < a.End
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// DayBounds возвращает [полночь, следующая полночь) календарного дня date в loc.
// Через DST день может длиться 23 или 25 часов.
func DayBounds(date datatypes.Date, loc *time.Location) TimeRange {
	y, m, d := time.Time(date).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return TimeRange{Start: start, End: time.Date(y, m, d+1, 0, 0, 0, 0, loc)}
}

// WindowOn переводит окно времени суток [from, to) на календарный день date в loc.
func WindowOn(date datatypes.Date, loc *time.Location, from, to datatypes.Time) TimeRange {
	return TimeRange{Start: At(date, loc, from), End: At(date, loc, to)}
}

// At: момент времени суток tod в день date по стенным часам loc.
func At(date datatypes.Date, loc *time.Location, tod datatypes.Time) time.Time {
	y, m, d := time.Time(date).Date()
	off := time.Duration(tod)
	h := int(off / time.Hour)
	min := int(off % time.Hour / time.Minute)
	sec := int(off % time.Minute / time.Second)
	return time.Date(y, m, d, h, min, sec, 0, loc)
}

// FormatSlot форматирует интервал для писем, например "Monday, 07 Jul 2025, 09:00–09:30".
func FormatSlot(tr TimeRange, loc *time.Location) string {
	start, end := tr.Start, tr.End
	if loc != nil {
		start = start.In(loc)
		end = end.In(loc)
	}
	return fmt.Sprintf("%s, %s, %s–%s",
		start.Weekday(),
		start.Format("02 Jan 2006"),
		start.Format("15:04"),
		end.Format("15:04"),
	)
}
