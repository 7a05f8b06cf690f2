package chat

import "time"

// Bucket labels.
const (
	LabelToday     = "Today"
	LabelYesterday = "Yesterday"
	LabelRecent    = "Recent"
)

// DateLayout formats buckets older than yesterday.
const DateLayout = "Jan 2, 2006"

// Group is one date bucket.
type Group struct {
	Label    string
	Messages []Entry
}

// GroupByDay partitions entries by calendar day in loc relative to now.
// Buckets appear in the order their first message appears; messages keep
// their order within a bucket. A zero timestamp lands in Recent.
func GroupByDay(entries []Entry, now time.Time, loc *time.Location) []Group {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	yesterday := now.AddDate(0, 0, -1)

	var groups []Group
	index := make(map[string]int)
	for _, e := range entries {
		label := DayLabel(e.CreatedAt, now, yesterday, loc)
		i, ok := index[label]
		if !ok {
			i = len(groups)
			index[label] = i
			groups = append(groups, Group{Label: label})
		}
		groups[i].Messages = append(groups[i].Messages, e)
	}
	return groups
}

// DayLabel names the bucket for t.
func DayLabel(t, now, yesterday time.Time, loc *time.Location) string {
	if t.IsZero() {
		return LabelRecent
	}
	t = t.In(loc)
	switch {
	case sameDay(t, now):
		return LabelToday
	case sameDay(t, yesterday):
		return LabelYesterday
	default:
		return t.Format(DateLayout)
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
