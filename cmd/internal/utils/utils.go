package utils

import (
	"reflect"
	"strings"
	"time"
)

const epochLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatEpoch renders epoch milliseconds as RFC 3339 in UTC, keeping
// millisecond precision.
func FormatEpoch(millis int64) string {
	return time.UnixMilli(millis).
		UTC().
		Format(epochLayout)
}

func NowUTC() int64 {
	return time.Now().
		UTC().
		UnixMilli()
}

// FromEpoch parses an RFC 3339 timestamp into epoch milliseconds.
// Sub-millisecond precision is truncated.
func FromEpoch(rfc string) (int64, error) {
	t, err := time.Parse(time.RFC3339Nano, rfc)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

// IsStepAligned checks if the wall clock of t sits exactly on a multiple of
// step counted from local midnight (e.g., 14:30:00.000 for a 30 minute step).
func IsStepAligned(t time.Time, step time.Duration) bool {
	if step <= 0 {
		return true
	}
	sinceMidnight := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
	return sinceMidnight%step == 0
}

// NormalizeEmail is applied to every email before it is stored or queried.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsBlank reports whether s holds nothing but whitespace.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func Sanitize(o any) {
	v := reflect.ValueOf(o)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		panic("sanitize: expected pointer to struct")
	}

	v = v.Elem()
	if v.Kind() != reflect.Struct {
		panic("sanitize: expected struct")
	}

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}
		switch field.Kind() {
		case reflect.String:
			field.SetString(sanitizeString(field.String()))

		case reflect.Ptr:
			if !field.IsNil() && field.Elem().Kind() == reflect.String {
				field.Elem().SetString(sanitizeString(field.Elem().String()))
			}

		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				for j := 0; j < field.Len(); j++ {
					field.Index(j).SetString(sanitizeString(field.Index(j).String()))
				}
			}
		}
	}
}

func sanitizeString(s string) string {
	return strings.TrimSpace(s)
}
