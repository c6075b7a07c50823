package cbor

import (
	"fmt"
	"time"
)

// DateTime is CBOR Tag 0: an RFC 3339 date-time string. Used throughout the
// MSO's ValidityInfo (signed, validFrom, validUntil, expectedUpdate).
type DateTime struct {
	time.Time
}

// NewDateTime wraps t as a Tag-0 value, truncating to second precision as
// RFC 3339 date-time strings in mdoc documents conventionally do.
func NewDateTime(t time.Time) DateTime {
	return DateTime{t.UTC().Truncate(time.Second)}
}

// MarshalCBOR implements cbor.Marshaler.
func (d DateTime) MarshalCBOR() ([]byte, error) {
	s := d.Time.UTC().Format(time.RFC3339)
	content, err := Marshal(s)
	if err != nil {
		return nil, err
	}
	return EncodeTag(TagDateTime, content)
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (d *DateTime) UnmarshalCBOR(data []byte) error {
	content, err := ExpectTag(data, TagDateTime)
	if err != nil {
		return fmt.Errorf("cbor: date-time: %w", err)
	}
	var s string
	if err := Unmarshal(content, &s); err != nil {
		return fmt.Errorf("cbor: date-time: tag 0 content is not a text string: %w", err)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("cbor: date-time: %q is not RFC 3339: %w", s, err)
	}
	d.Time = t
	return nil
}

// FullDate is CBOR Tag 1004: an RFC 3339 full-date string ("2024-03-15"),
// used for calendar-only values such as birth_date or issue_date/expiry_date
// data elements that carry no time-of-day component.
type FullDate struct {
	Year  int
	Month time.Month
	Day   int
}

const fullDateLayout = "2006-01-02"

// NewFullDate builds a FullDate from a calendar date.
func NewFullDate(year int, month time.Month, day int) FullDate {
	return FullDate{Year: year, Month: month, Day: day}
}

// MarshalCBOR implements cbor.Marshaler.
func (d FullDate) MarshalCBOR() ([]byte, error) {
	s := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Format(fullDateLayout)
	content, err := Marshal(s)
	if err != nil {
		return nil, err
	}
	return EncodeTag(TagFullDate, content)
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (d *FullDate) UnmarshalCBOR(data []byte) error {
	content, err := ExpectTag(data, TagFullDate)
	if err != nil {
		return fmt.Errorf("cbor: full-date: %w", err)
	}
	return d.fromContent(content)
}

func (d *FullDate) fromContent(content RawMessage) error {
	var s string
	if err := Unmarshal(content, &s); err != nil {
		return fmt.Errorf("cbor: full-date: tag 1004 content is not a text string: %w", err)
	}
	t, err := time.Parse(fullDateLayout, s)
	if err != nil {
		return fmt.Errorf("cbor: full-date: %q is not a full-date: %w", s, err)
	}
	d.Year, d.Month, d.Day = t.Date()
	return nil
}

// String renders the full-date as "YYYY-MM-DD".
func (d FullDate) String() string {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Format(fullDateLayout)
}

// DateOnly is the Tag 1004 extension mentioned in spec §2.10: some issuers
// encode calendar dates as a bare full-date string without the Tag 1004
// wrapper. DateOnly accepts either form on decode and always re-encodes
// with the Tag 1004 wrapper, matching the reference implementation's
// lenient read / strict write behavior.
type DateOnly struct {
	FullDate
}

// MarshalCBOR implements cbor.Marshaler.
func (d DateOnly) MarshalCBOR() ([]byte, error) {
	return d.FullDate.MarshalCBOR()
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (d *DateOnly) UnmarshalCBOR(data []byte) error {
	if content, err := ExpectTag(data, TagFullDate); err == nil {
		return d.FullDate.fromContent(content)
	}
	// Extension: accept an untagged full-date text string.
	var s string
	if err := Unmarshal(data, &s); err != nil {
		return fmt.Errorf("cbor: date-only: neither Tag(1004, tstr) nor a bare text string: %w", err)
	}
	t, err := time.Parse(fullDateLayout, s)
	if err != nil {
		return fmt.Errorf("cbor: date-only: %q is not a full-date: %w", s, err)
	}
	d.Year, d.Month, d.Day = t.Date()
	return nil
}
