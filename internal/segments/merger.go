// Package segments coalesces raw per-slot booking records into the
// human-facing appointment blocks operators see and act on. The same
// logical appointment may exist as several one-hour rows (legacy per-hour
// storage) or once per channel; after merging it is one block with the set
// of contributing channels preserved.
package segments

import (
	"sort"
	"strings"

	"salonbook/internal/models"
	"salonbook/internal/slots"
)

// Record is one raw booking-like row normalized for merging.
type Record struct {
	ID            string
	Channel       string
	Date          string
	ProviderID    string
	CustomerName  string
	Phone         string
	ChannelUserID string
	Note          string
	StartMin      int
	EndMin        int
}

// Ref identifies a source row inside a merged segment, so an operator
// cancelling the block can delete every contributing record in its channel.
type Ref struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
}

// Segment is one merged appointment block.
type Segment struct {
	Refs          []Ref    `json:"refs"`
	Date          string   `json:"date"`
	ProviderID    string   `json:"provider_id"`
	CustomerName  string   `json:"customer_name"`
	Phone         string   `json:"phone,omitempty"`
	ChannelUserID string   `json:"channel_user_id,omitempty"`
	Note          string   `json:"note,omitempty"`
	StartTime     string   `json:"start_time"`
	EndTime       string   `json:"end_time"`
	TotalHours    float64  `json:"total_hours"`
	Channels      []string `json:"channels"`
	Channel       string   `json:"channel"`
}

// groupKey ties together rows describing the same logical appointment. The
// key is explicit by design: date, provider and customer identity fields,
// never incidental array order.
func groupKey(r Record) string {
	return strings.Join([]string{r.Date, r.ProviderID, r.CustomerName, r.Phone, r.ChannelUserID}, "|")
}

// Merge groups records by identity key, then greedily coalesces each
// group's time-sorted rows: a row starting at or before the current block's
// end extends it; a gap starts a new block. Output is sorted by start time.
func Merge(records []Record) []Segment {
	groups := make(map[string][]Record)
	var order []string
	for _, r := range records {
		k := groupKey(r)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	var out []Segment
	for _, k := range order {
		rows := groups[k]
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].StartMin < rows[j].StartMin })

		var cur *builder
		for _, row := range rows {
			if cur != nil && row.StartMin <= cur.endMin {
				cur.absorb(row)
				continue
			}
			if cur != nil {
				out = append(out, cur.segment())
			}
			cur = newBuilder(row)
		}
		if cur != nil {
			out = append(out, cur.segment())
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out
}

type builder struct {
	base     Record
	refs     []Ref
	startMin int
	endMin   int
	channels map[string]struct{}
}

func newBuilder(r Record) *builder {
	return &builder{
		base:     r,
		refs:     []Ref{{ID: r.ID, Channel: r.Channel}},
		startMin: r.StartMin,
		endMin:   r.EndMin,
		channels: map[string]struct{}{r.Channel: {}},
	}
}

func (b *builder) absorb(r Record) {
	b.refs = append(b.refs, Ref{ID: r.ID, Channel: r.Channel})
	if r.EndMin > b.endMin {
		b.endMin = r.EndMin
	}
	b.channels[r.Channel] = struct{}{}
}

func (b *builder) segment() Segment {
	channels := make([]string, 0, len(b.channels))
	for ch := range b.channels {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	label := models.ChannelMixed
	if len(channels) == 1 {
		label = channels[0]
	}

	return Segment{
		Refs:          b.refs,
		Date:          b.base.Date,
		ProviderID:    b.base.ProviderID,
		CustomerName:  b.base.CustomerName,
		Phone:         b.base.Phone,
		ChannelUserID: b.base.ChannelUserID,
		Note:          b.base.Note,
		StartTime:     slots.FormatClock(b.startMin),
		EndTime:       slots.FormatClock(b.endMin),
		TotalHours:    float64(b.endMin-b.startMin) / 60,
		Channels:      channels,
		Channel:       label,
	}
}

// FromReservation converts a reservation row into a mergeable record.
// Cancelled rows are dropped.
func FromReservation(r models.Reservation, hours slots.BusinessHours) (Record, bool) {
	if models.IsCancelledStatus(r.PaymentStatus) {
		return Record{}, false
	}
	startMin, err := slots.ParseClock(r.StartTime)
	if err != nil {
		return Record{}, false
	}

	duration := r.DurationHours
	if duration < 1 {
		duration = 1
	}
	endMin, err := slots.ParseClock(hours.EndLabel(r.StartTime, duration))
	if err != nil {
		endMin = startMin + duration*60
	}

	channel := r.Channel
	if channel == "" {
		channel = models.ChannelLine
	}
	return Record{
		ID:            r.ID,
		Channel:       channel,
		Date:          r.Date,
		ProviderID:    r.ProviderID,
		CustomerName:  r.CustomerName,
		Phone:         r.Phone,
		ChannelUserID: r.ChannelUserID,
		Note:          r.Note,
		StartMin:      startMin,
		EndMin:        endMin,
	}, true
}

// FromPayment converts a settled payment row into a mergeable record.
// Unmatched or cancelled attempts are dropped.
func FromPayment(p models.PaymentRecord, hours slots.BusinessHours) (Record, bool) {
	if models.IsCancelledStatus(p.Status) {
		return Record{}, false
	}
	if !p.Matched && !models.IsPaidStatus(p.Status) {
		return Record{}, false
	}
	startMin, err := slots.ParseClock(p.Time)
	if err != nil {
		return Record{}, false
	}

	h := p.Hours
	if h < 1 {
		h = 1
	}
	endMin, err := slots.ParseClock(hours.EndLabel(p.Time, h))
	if err != nil {
		endMin = startMin + h*60
	}

	return Record{
		ID:           p.ID,
		Channel:      models.ChannelWeb,
		Date:         p.Date,
		ProviderID:   p.ProviderID,
		CustomerName: p.CustomerName,
		Phone:        p.Phone,
		StartMin:     startMin,
		EndMin:       endMin,
	}, true
}
