// Package overtime implements OvertimeEngine, the pure-function component
// that turns a base hourly wage and a month's attendance minutes into
// itemized overtime premium pay.
package overtime

import "math"

// Statutory overtime over this many minutes in a month (60 hours) earns
// the higher over-60h premium instead of the standard statutory rate.
const MonthlyOvertimeThresholdMinutes = 3600

const (
	statutoryOvertimeRate = 0.25
	nightRate             = 0.25
	statutoryHolidayRate  = 0.35
	over60hRate           = 0.50
	nightOvertimeRate     = 0.50
	nightHolidayRate      = 0.60
)

// nightOvertimeHolidayRate is the compound premium for work that is
// simultaneously night, overtime and statutory-holiday work.
var nightOvertimeHolidayRate = nightRate + statutoryHolidayRate + statutoryOvertimeRate

// Attendance carries the eight minute fields OvertimeEngine composes from.
// Field names mirror spec.md §4.2's input list.
type Attendance struct {
	OvertimeWithinStatutoryMinutes int
	OvertimeStatutoryMinutes       int
	NightMinutes                   int
	StatutoryHolidayMinutes        int
	NonStatutoryHolidayMinutes     int
	NightOvertimeMinutes           int
	NightHolidayMinutes            int
	NightOvertimeHolidayMinutes    int
}

// Breakdown holds each premium component plus the aggregate total, all in
// integer yen.
type Breakdown struct {
	OvertimeWithinStatutoryPay int64
	OvertimeStatutoryPay       int64
	NightPay                   int64
	StatutoryHolidayPay        int64
	NonStatutoryHolidayPay     int64
	Over60hPremiumPay          int64
	NightOvertimePay           int64
	NightHolidayPay            int64
	NightOvertimeHolidayPay    int64
	TotalOvertimePay           int64
}

// Compute applies the premium table in spec.md §4.2 to attendance minutes
// at the given base hourly yen rate. It is a pure function: no I/O, no
// rate-table lookups, identical output for identical input.
func Compute(baseHourlyYen int64, a Attendance) Breakdown {
	minuteRate := float64(baseHourlyYen) / 60.0

	over60h := a.OvertimeStatutoryMinutes - MonthlyOvertimeThresholdMinutes
	if over60h < 0 {
		over60h = 0
	}
	normalStatutory := a.OvertimeStatutoryMinutes - over60h

	b := Breakdown{
		OvertimeWithinStatutoryPay: floorPay(minuteRate, a.OvertimeWithinStatutoryMinutes, 1.0),
		OvertimeStatutoryPay:       floorPay(minuteRate, normalStatutory, 1.0+statutoryOvertimeRate),
		NightPay:                   floorPay(minuteRate, a.NightMinutes, nightRate),
		StatutoryHolidayPay:        floorPay(minuteRate, a.StatutoryHolidayMinutes, 1.0+statutoryHolidayRate),
		NonStatutoryHolidayPay:     floorPay(minuteRate, a.NonStatutoryHolidayMinutes, 1.0),
		Over60hPremiumPay:          floorPay(minuteRate, over60h, 1.0+over60hRate),
		NightOvertimePay:           floorPay(minuteRate, a.NightOvertimeMinutes, nightOvertimeRate),
		NightHolidayPay:            floorPay(minuteRate, a.NightHolidayMinutes, nightHolidayRate),
		NightOvertimeHolidayPay:    floorPay(minuteRate, a.NightOvertimeHolidayMinutes, nightOvertimeHolidayRate),
	}

	b.TotalOvertimePay = b.OvertimeWithinStatutoryPay + b.OvertimeStatutoryPay + b.NightPay +
		b.StatutoryHolidayPay + b.NonStatutoryHolidayPay + b.Over60hPremiumPay +
		b.NightOvertimePay + b.NightHolidayPay + b.NightOvertimeHolidayPay

	return b
}

func floorPay(minuteRate float64, minutes int, multiplier float64) int64 {
	if minutes <= 0 {
		return 0
	}
	return int64(math.Floor(minuteRate * float64(minutes) * multiplier))
}

// Item is a single named, non-zero overtime line item ready to become a
// PayrollRecordItem. Components computed as zero are never emitted: spec.md
// §4.5 step 4 says "non-zero components become earning items".
type Item struct {
	Code   string
	Name   string
	Amount int64
}

// Items converts a Breakdown into the ordered list of non-zero earning
// items, in the fixed display order the original system uses.
func (b Breakdown) Items() []Item {
	candidates := []Item{
		{"overtime_statutory", "時間外手当", b.OvertimeStatutoryPay},
		{"overtime_within_statutory", "法定内残業手当", b.OvertimeWithinStatutoryPay},
		{"night_work", "深夜手当", b.NightPay},
		{"holiday_work", "休日手当", b.StatutoryHolidayPay},
		{"non_statutory_holiday", "所定休日手当", b.NonStatutoryHolidayPay},
		{"over60h_premium", "60時間超割増", b.Over60hPremiumPay},
		{"night_overtime", "深夜残業手当", b.NightOvertimePay},
		{"night_holiday", "深夜休日手当", b.NightHolidayPay},
		{"night_overtime_holiday", "深夜時間外休日手当", b.NightOvertimeHolidayPay},
	}
	items := make([]Item, 0, len(candidates))
	for _, it := range candidates {
		if it.Amount > 0 {
			items = append(items, it)
		}
	}
	return items
}
