package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/coriolis-sched/coriolis/internal/calendar"
	"github.com/coriolis-sched/coriolis/internal/domain"
	"github.com/coriolis-sched/coriolis/internal/trigger"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestTimeOfDayRoundTrip(t *testing.T) {
	tod := trigger.TimeOfDay{Hour: 9, Minute: 30, Second: 5}
	got := parseTOD(todString(tod))
	if got != tod {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, tod)
	}
}

func TestWeekdayBitmaskRoundTrip(t *testing.T) {
	days := map[time.Weekday]bool{time.Monday: true, time.Wednesday: true, time.Friday: true}
	mask := weekdayBitmask(days)
	got := weekdaysFromBitmask(int64(mask))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if got[d] != days[d] {
			t.Fatalf("day %s: got %v, want %v", d, got[d], days[d])
		}
	}
}

func TestMillisRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	got := fromMillis(millis(now))
	if !got.Equal(now) {
		t.Fatalf("round trip mismatch: got %v, want %v", got, now)
	}
	if millisPtr(nil) != nil {
		t.Fatal("millisPtr(nil) should stay nil")
	}
	if timePtr(nil) != nil {
		t.Fatal("timePtr(nil) should stay nil")
	}
}

func TestIsTransientClassification(t *testing.T) {
	cases := []struct {
		code string
		want bool
	}{
		{codeSerializationFailure, true},
		{codeDeadlockDetected, true},
		{"23505", false},
	}
	for _, tc := range cases {
		err := &pgconn.PgError{Code: tc.code}
		if got := isTransient(err); got != tc.want {
			t.Errorf("code %s: got %v, want %v", tc.code, got, tc.want)
		}
	}
	if isTransient(errors.New("not a pg error")) {
		t.Error("plain error should not be classified transient")
	}
}

func TestCoreRowAndSubtypeRoundTripSimple(t *testing.T) {
	key := domain.NewTriggerKey("t1", "g1")
	jobKey := domain.NewJobKey("j1", "g1")
	start := time.Now().UTC().Truncate(time.Millisecond)
	simple := trigger.NewSimple(key, jobKey, start, 3, time.Minute)
	simple.SetTimesTriggered(2)

	row, err := coreRowOf(simple)
	if err != nil {
		t.Fatal(err)
	}
	if row.TriggerType != typeSimple {
		t.Fatalf("got type %q, want %q", row.TriggerType, typeSimple)
	}

	simpleSub, cron, props := subtypeRowOf(simple)
	if simpleSub == nil || cron != nil || props != nil {
		t.Fatalf("expected only simpleRow populated, got %+v %+v %+v", simpleSub, cron, props)
	}

	rebuilt, err := buildTrigger(row, simpleSub, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	rs, ok := rebuilt.(*trigger.Simple)
	if !ok {
		t.Fatalf("rebuilt trigger has type %T, want *trigger.Simple", rebuilt)
	}
	if rs.TimesTriggered() != 2 {
		t.Errorf("got TimesTriggered=%d, want 2", rs.TimesTriggered())
	}
	if rs.Key() != key || rs.JobKey() != jobKey {
		t.Errorf("key mismatch: got %v/%v, want %v/%v", rs.Key(), rs.JobKey(), key, jobKey)
	}
}

func TestCoreRowAndSubtypeRoundTripCron(t *testing.T) {
	key := domain.NewTriggerKey("cronT", "g1")
	jobKey := domain.NewJobKey("j1", "g1")
	ct, err := trigger.NewCron(key, jobKey, "0 */5 * * * *", time.UTC)
	if err != nil {
		t.Fatal(err)
	}

	row, err := coreRowOf(ct)
	if err != nil {
		t.Fatal(err)
	}
	simpleSub, cronSub, props := subtypeRowOf(ct)
	if simpleSub != nil || cronSub == nil || props != nil {
		t.Fatalf("expected only cronRow populated, got %+v %+v %+v", simpleSub, cronSub, props)
	}
	if cronSub.Expression != "0 */5 * * * *" {
		t.Errorf("got expression %q", cronSub.Expression)
	}

	rebuilt, err := buildTrigger(row, nil, cronSub, nil)
	if err != nil {
		t.Fatal(err)
	}
	rc, ok := rebuilt.(*trigger.Cron)
	if !ok {
		t.Fatalf("rebuilt trigger has type %T, want *trigger.Cron", rebuilt)
	}
	if rc.Expression != ct.Expression {
		t.Errorf("got expression %q, want %q", rc.Expression, ct.Expression)
	}
}

func TestCoreRowAndSubtypeRoundTripCustomCalendar(t *testing.T) {
	key := domain.NewTriggerKey("ccT", "g1")
	jobKey := domain.NewJobKey("j1", "g1")
	start := time.Now().UTC().Truncate(time.Millisecond)
	cc := trigger.NewCustomCalendar(key, jobKey, start, domain.IntervalMonth, 1, time.UTC)
	cc.ByMonthDay = "15"
	cc.SetTimesTriggered(7)

	row, err := coreRowOf(cc)
	if err != nil {
		t.Fatal(err)
	}
	_, _, props := subtypeRowOf(cc)
	if props == nil {
		t.Fatal("expected propsRow populated for CustomCalendar")
	}
	if props.Str2 != "15" {
		t.Errorf("got ByMonthDay %q, want %q", props.Str2, "15")
	}
	if props.Int2 != 7 {
		t.Errorf("got TimesTriggered %d, want 7", props.Int2)
	}

	rebuilt, err := buildTrigger(row, nil, nil, props)
	if err != nil {
		t.Fatal(err)
	}
	rcc, ok := rebuilt.(*trigger.CustomCalendar)
	if !ok {
		t.Fatalf("rebuilt trigger has type %T, want *trigger.CustomCalendar", rebuilt)
	}
	if rcc.ByMonthDay != "15" || rcc.TimesTriggered() != 7 {
		t.Errorf("got ByMonthDay=%q TimesTriggered=%d", rcc.ByMonthDay, rcc.TimesTriggered())
	}
}

func TestCalendarRoundTripAnnualWithBase(t *testing.T) {
	base := calendar.NewHoliday("base holidays")
	base.AddExcludedDate(time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC))

	annual := calendar.NewAnnual("annual blackout")
	annual.SetDayExcluded(time.July, 4, true)
	annual.SetBaseCalendar(base)

	data, err := marshalCalendarJSON(annual)
	if err != nil {
		t.Fatal(err)
	}
	rebuilt, err := unmarshalCalendarJSON(data)
	if err != nil {
		t.Fatal(err)
	}
	ra, ok := rebuilt.(*calendar.Annual)
	if !ok {
		t.Fatalf("rebuilt calendar has type %T, want *calendar.Annual", rebuilt)
	}
	pairs := ra.ExcludedPairs()
	if len(pairs) != 1 || pairs[0][0] != int(time.July) || pairs[0][1] != 4 {
		t.Errorf("got excluded pairs %v", pairs)
	}
	rbase, ok := ra.GetBaseCalendar().(*calendar.Holiday)
	if !ok {
		t.Fatalf("base calendar has type %T, want *calendar.Holiday", ra.GetBaseCalendar())
	}
	if len(rbase.ExcludedDates()) != 1 {
		t.Errorf("got %d excluded base dates, want 1", len(rbase.ExcludedDates()))
	}
}

func TestJobDataRoundTrip(t *testing.T) {
	m := domain.JobDataMap{"retries": "3", "url": "https://example.test"}
	data, err := marshalJobData(m)
	if err != nil {
		t.Fatal(err)
	}
	got, err := unmarshalJobData(data)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range m {
		if got[k] != v {
			t.Errorf("key %s: got %q, want %q", k, got[k], v)
		}
	}
}

func TestLoadLocationFallsBackToUTC(t *testing.T) {
	if loc := loadLocation(""); loc != time.UTC {
		t.Errorf("empty name should fall back to UTC, got %v", loc)
	}
	if loc := loadLocation("Not/AZone"); loc != time.UTC {
		t.Errorf("unknown zone should fall back to UTC, got %v", loc)
	}
}
