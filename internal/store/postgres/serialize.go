package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/coriolis-sched/coriolis/internal/calendar"
	"github.com/coriolis-sched/coriolis/internal/domain"
	"github.com/coriolis-sched/coriolis/internal/trigger"
)

// Trigger-type discriminators (spec.md §6).
const (
	typeSimple     = "SIMPLE"
	typeCron       = "CRON"
	typeCalInt     = "CAL_INT"
	typeDailyI     = "DAILY_I"
	typeCustomCal  = "CUSTOM_CAL"
)

// triggerRow mirrors qrtz_triggers; schedule-specific fields live in a
// sibling table chosen by TriggerType (see subtypeRowOf below).
type triggerRow struct {
	TriggerName, TriggerGroup string
	JobName, JobGroup         string
	Description               string
	NextFireTime, PrevFireTime *int64
	Priority                  int
	TriggerState              string
	TriggerType               string
	StartTime                 int64
	EndTime                   *int64
	CalendarName              string
	MisfireInstr              int
}

func coreRowOf(t domain.Trigger) (triggerRow, error) {
	row := triggerRow{
		TriggerName:  t.Key().Name,
		TriggerGroup: t.Key().Group,
		JobName:      t.JobKey().Name,
		JobGroup:     t.JobKey().Group,
		NextFireTime: millisPtr(t.GetNextFireTime()),
		PrevFireTime: millisPtr(t.GetPreviousFireTime()),
		Priority:     t.GetPriority(),
		TriggerState: string(t.State()),
		StartTime:    millis(t.GetStartTime()),
		EndTime:      millisPtr(t.GetEndTime()),
		CalendarName: t.CalendarName(),
		MisfireInstr: int(t.GetMisfireInstruction()),
	}
	switch v := t.(type) {
	case *trigger.Simple:
		row.TriggerType = typeSimple
		row.Description = v.Description
	case *trigger.Cron:
		row.TriggerType = typeCron
		row.Description = v.Description
	case *trigger.CalendarInterval:
		row.TriggerType = typeCalInt
		row.Description = v.Description
	case *trigger.DailyTimeInterval:
		row.TriggerType = typeDailyI
		row.Description = v.Description
	case *trigger.CustomCalendar:
		row.TriggerType = typeCustomCal
		row.Description = v.Description
	default:
		return row, fmt.Errorf("postgres store: unknown trigger implementation %T", t)
	}
	return row, nil
}

// simpleRow mirrors qrtz_simple_triggers.
type simpleRow struct {
	RepeatCount, RepeatInterval, TimesTriggered int64
}

// cronRow mirrors qrtz_cron_triggers.
type cronRow struct {
	Expression string
	TimeZoneID string
}

// propsRow mirrors qrtz_simprop_triggers. Column reuse per variant:
//
//	CalendarInterval: str1=unit, int1=interval, bool1=preserveHourOfDay,
//	  bool2=skipDayIfHourDoesNotExist, long1=timesTriggered
//	DailyTimeInterval: str1=unit, str2=startTOD, str3=endTOD, int1=interval,
//	  int2=repeatCount, long1=timesTriggered, long2=daysOfWeek bitmask,
//	  time_zone_id=location
//	CustomCalendar: str1=intervalUnit, str2=byMonthDay, str3=byDay,
//	  int1=interval, int2=timesTriggered, long1=repeatCount, long2=byMonth,
//	  time_zone_id=tz
type propsRow struct {
	Str1, Str2, Str3     string
	Int1, Int2           int
	Long1, Long2         int64
	Bool1, Bool2         bool
	TimeZoneID           string
}

func subtypeRowOf(t domain.Trigger) (simple *simpleRow, cron *cronRow, props *propsRow) {
	switch v := t.(type) {
	case *trigger.Simple:
		return &simpleRow{
			RepeatCount:    int64(v.RepeatCount),
			RepeatInterval: v.RepeatInterval.Milliseconds(),
			TimesTriggered: int64(v.TimesTriggered()),
		}, nil, nil
	case *trigger.Cron:
		tz := ""
		if v.Location != nil {
			tz = v.Location.String()
		}
		return nil, &cronRow{Expression: v.Expression, TimeZoneID: tz}, nil
	case *trigger.CalendarInterval:
		return nil, nil, &propsRow{
			Str1:  string(v.RepeatIntervalUnit),
			Int1:  v.RepeatInterval,
			Bool1: v.PreserveHourOfDayAcrossDST,
			Bool2: v.SkipDayIfHourDoesNotExist,
			Long1: int64(v.TimesTriggered),
		}
	case *trigger.DailyTimeInterval:
		tz := "UTC"
		if v.Location != nil {
			tz = v.Location.String()
		}
		return nil, nil, &propsRow{
			Str1:       string(v.RepeatIntervalUnit),
			Str2:       todString(v.StartTimeOfDay),
			Str3:       todString(v.EndTimeOfDay),
			Int1:       v.RepeatInterval,
			Int2:       v.RepeatCount,
			Long1:      int64(v.TimesTriggered),
			Long2:      int64(weekdayBitmask(v.DaysOfWeek)),
			TimeZoneID: tz,
		}
	case *trigger.CustomCalendar:
		tz := "UTC"
		if v.TimeZone() != nil {
			tz = v.TimeZone().String()
		}
		return nil, nil, &propsRow{
			Str1:       string(v.IntervalUnit),
			Str2:       v.ByMonthDay,
			Str3:       v.ByDay,
			Int1:       v.Interval,
			Int2:       v.TimesTriggered(),
			Long1:      int64(v.RepeatCount),
			Long2:      int64(v.ByMonth),
			TimeZoneID: tz,
		}
	}
	return nil, nil, nil
}

func todString(t trigger.TimeOfDay) string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

func parseTOD(s string) trigger.TimeOfDay {
	var h, m, sec int
	fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec)
	return trigger.TimeOfDay{Hour: h, Minute: m, Second: sec}
}

func weekdayBitmask(days map[time.Weekday]bool) int {
	mask := 0
	for d, on := range days {
		if on {
			mask |= 1 << uint(d)
		}
	}
	return mask
}

func weekdaysFromBitmask(mask int64) map[time.Weekday]bool {
	out := make(map[time.Weekday]bool)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if mask&(1<<uint(d)) != 0 {
			out[d] = true
		}
	}
	return out
}

func loadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// buildTrigger reconstructs a domain.Trigger from its stored rows, restoring
// nextFireTime/previousFireTime/state verbatim rather than recomputing them.
func buildTrigger(row triggerRow, simple *simpleRow, cron *cronRow, props *propsRow) (domain.Trigger, error) {
	key := domain.NewTriggerKey(row.TriggerName, row.TriggerGroup)
	jobKey := domain.NewJobKey(row.JobName, row.JobGroup)
	start := fromMillis(row.StartTime)

	var t domain.Trigger
	switch row.TriggerType {
	case typeSimple:
		if simple == nil {
			return nil, fmt.Errorf("postgres store: missing simple trigger row for %s", key)
		}
		st := trigger.NewSimple(key, jobKey, start, int(simple.RepeatCount), time.Duration(simple.RepeatInterval)*time.Millisecond)
		st.SetTimesTriggered(int(simple.TimesTriggered))
		t = st
	case typeCron:
		if cron == nil {
			return nil, fmt.Errorf("postgres store: missing cron trigger row for %s", key)
		}
		ct, err := trigger.NewCron(key, jobKey, cron.Expression, loadLocation(cron.TimeZoneID))
		if err != nil {
			return nil, fmt.Errorf("postgres store: rebuild cron trigger %s: %w", key, err)
		}
		ct.SetStartTime(start)
		t = ct
	case typeCalInt:
		if props == nil {
			return nil, fmt.Errorf("postgres store: missing simprop row for %s", key)
		}
		ci := trigger.NewCalendarInterval(key, jobKey, start, props.Int1, domain.IntervalUnit(props.Str1))
		ci.PreserveHourOfDayAcrossDST = props.Bool1
		ci.SkipDayIfHourDoesNotExist = props.Bool2
		ci.TimesTriggered = int(props.Long1)
		t = ci
	case typeDailyI:
		if props == nil {
			return nil, fmt.Errorf("postgres store: missing simprop row for %s", key)
		}
		dt := trigger.NewDailyTimeInterval(key, jobKey, start, props.Int1, domain.IntervalUnit(props.Str1),
			parseTOD(props.Str2), parseTOD(props.Str3))
		dt.Location = loadLocation(props.TimeZoneID)
		dt.DaysOfWeek = weekdaysFromBitmask(props.Long2)
		dt.RepeatCount = props.Int2
		dt.TimesTriggered = int(props.Long1)
		t = dt
	case typeCustomCal:
		if props == nil {
			return nil, fmt.Errorf("postgres store: missing simprop row for %s", key)
		}
		cc := trigger.NewCustomCalendar(key, jobKey, start, domain.IntervalUnit(props.Str1), props.Int1, loadLocation(props.TimeZoneID))
		cc.ByMonth = int(props.Long2)
		cc.ByMonthDay = props.Str2
		cc.ByDay = props.Str3
		cc.RepeatCount = int(props.Long1)
		cc.SetTimesTriggered(props.Int2)
		t = cc
	default:
		return nil, fmt.Errorf("postgres store: unknown trigger_type %q", row.TriggerType)
	}

	t.SetEndTime(timePtr(row.EndTime))
	t.SetPriority(row.Priority)
	t.SetMisfireInstruction(domain.MisfireInstruction(row.MisfireInstr))
	t.SetCalendarName(row.CalendarName)
	t.SetState(domain.TriggerState(row.TriggerState))
	t.SetPreviousFireTime(timePtr(row.PrevFireTime))
	if setter, ok := t.(interface{ SetNextFireTime(*time.Time) }); ok {
		setter.SetNextFireTime(timePtr(row.NextFireTime))
	}
	return t, nil
}

// calendarDTO is the JSON shape stored in qrtz_calendars.calendar. Each
// variant's payload fields are only populated for that Type.
type calendarDTO struct {
	Type        string       `json:"type"`
	Description string       `json:"description"`
	Base        *calendarDTO `json:"base,omitempty"`

	AnnualExcluded  [][2]int `json:"annualExcluded,omitempty"`
	MonthlyExcluded []int    `json:"monthlyExcluded,omitempty"`
	WeeklyExcluded  []int    `json:"weeklyExcluded,omitempty"`
	HolidayExcluded []int64  `json:"holidayExcluded,omitempty"`
	DailyStart      string   `json:"dailyStart,omitempty"`
	DailyEnd        string   `json:"dailyEnd,omitempty"`
	CronExpression  string   `json:"cronExpression,omitempty"`
	CronTimeZone    string   `json:"cronTimeZone,omitempty"`
}

func marshalCalendar(cal domain.Calendar) (*calendarDTO, error) {
	if cal == nil {
		return nil, nil
	}
	dto := &calendarDTO{Description: cal.Description()}

	switch v := cal.(type) {
	case *calendar.Annual:
		dto.Type = "annual"
		dto.AnnualExcluded = v.ExcludedPairs()
	case *calendar.Monthly:
		dto.Type = "monthly"
		dto.MonthlyExcluded = v.ExcludedDays()
	case *calendar.Weekly:
		dto.Type = "weekly"
		for _, d := range v.ExcludedWeekdays() {
			dto.WeeklyExcluded = append(dto.WeeklyExcluded, int(d))
		}
	case *calendar.Daily:
		dto.Type = "daily"
		dto.DailyStart = v.StartTime()
		dto.DailyEnd = v.EndTime()
	case *calendar.Holiday:
		dto.Type = "holiday"
		for _, d := range v.ExcludedDates() {
			dto.HolidayExcluded = append(dto.HolidayExcluded, d.UnixMilli())
		}
	case *calendar.Cron:
		dto.Type = "cron"
		dto.CronExpression = v.Expression()
		if v.Location() != nil {
			dto.CronTimeZone = v.Location().String()
		}
	default:
		return nil, fmt.Errorf("postgres store: unknown calendar implementation %T", cal)
	}

	if base := cal.GetBaseCalendar(); base != nil {
		baseDTO, err := marshalCalendar(base)
		if err != nil {
			return nil, err
		}
		dto.Base = baseDTO
	}
	return dto, nil
}

func unmarshalCalendar(dto *calendarDTO) (domain.Calendar, error) {
	if dto == nil {
		return nil, nil
	}
	var cal domain.Calendar
	switch dto.Type {
	case "annual":
		a := calendar.NewAnnual(dto.Description)
		for _, md := range dto.AnnualExcluded {
			a.SetDayExcluded(time.Month(md[0]), md[1], true)
		}
		cal = a
	case "monthly":
		m := calendar.NewMonthly(dto.Description)
		for _, d := range dto.MonthlyExcluded {
			m.SetDayExcluded(d, true)
		}
		cal = m
	case "weekly":
		w := calendar.NewWeekly(dto.Description)
		for _, d := range dto.WeeklyExcluded {
			w.SetDayExcluded(time.Weekday(d), true)
		}
		cal = w
	case "daily":
		d, err := calendar.NewDaily(dto.Description, dto.DailyStart, dto.DailyEnd)
		if err != nil {
			return nil, fmt.Errorf("postgres store: rebuild daily calendar: %w", err)
		}
		cal = d
	case "holiday":
		h := calendar.NewHoliday(dto.Description)
		for _, ms := range dto.HolidayExcluded {
			h.AddExcludedDate(time.UnixMilli(ms).UTC())
		}
		cal = h
	case "cron":
		c, err := calendar.NewCron(dto.Description, dto.CronExpression, loadLocation(dto.CronTimeZone))
		if err != nil {
			return nil, fmt.Errorf("postgres store: rebuild cron calendar: %w", err)
		}
		cal = c
	default:
		return nil, fmt.Errorf("postgres store: unknown calendar type %q", dto.Type)
	}

	if dto.Base != nil {
		base, err := unmarshalCalendar(dto.Base)
		if err != nil {
			return nil, err
		}
		cal.SetBaseCalendar(base)
	}
	return cal, nil
}

func marshalCalendarJSON(cal domain.Calendar) ([]byte, error) {
	dto, err := marshalCalendar(cal)
	if err != nil {
		return nil, err
	}
	return json.Marshal(dto)
}

func unmarshalCalendarJSON(data []byte) (domain.Calendar, error) {
	var dto calendarDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("postgres store: unmarshal calendar: %w", err)
	}
	return unmarshalCalendar(&dto)
}

func marshalJobData(m domain.JobDataMap) ([]byte, error) {
	if m == nil {
		m = domain.JobDataMap{}
	}
	return json.Marshal(m)
}

func unmarshalJobData(data []byte) (domain.JobDataMap, error) {
	if len(data) == 0 {
		return domain.JobDataMap{}, nil
	}
	m := domain.JobDataMap{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("postgres store: unmarshal job data: %w", err)
	}
	return m, nil
}
