package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		kind   Kind
		min    int
		max    int
		reason string // empty means accepted
	}{
		{name: "text ok", raw: "Oslo", kind: KindText},
		{name: "text too short", raw: "ab", kind: KindText, min: 3, reason: ReasonTooShort},
		{name: "text too long", raw: "abcdef", kind: KindText, max: 5, reason: ReasonTooLong},
		{name: "text empty", raw: "   ", kind: KindText, reason: ReasonEmpty},
		{name: "email ok", raw: "user@example.org", kind: KindEmail},
		{name: "email no at", raw: "user.example.org", kind: KindEmail, reason: ReasonFormat},
		{name: "email no tld", raw: "user@example", kind: KindEmail, reason: ReasonFormat},
		{name: "phone ok", raw: "+47 912 345 678", kind: KindPhone},
		{name: "phone ok plain", raw: "4791234567", kind: KindPhone},
		{name: "phone too few digits", raw: "12345", kind: KindPhone, reason: ReasonFormat},
		{name: "phone letters", raw: "call me maybe", kind: KindPhone, reason: ReasonFormat},
		{name: "number ok int", raw: "23", kind: KindNumber},
		{name: "number ok float", raw: "3.14", kind: KindNumber},
		{name: "number rejected", raw: "abc", kind: KindNumber, reason: ReasonFormat},
		{name: "date iso", raw: "2026-08-28", kind: KindDate},
		{name: "date dotted", raw: "28.08.2026", kind: KindDate},
		{name: "date rejected", raw: "yesterday", kind: KindDate, reason: ReasonFormat},
		{name: "unknown kind", raw: "x", kind: Kind("uuid"), reason: ReasonFormat},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Check(tc.raw, tc.kind, tc.min, tc.max)
			if tc.reason == "" {
				assert.NoError(t, err)
				return
			}
			var verr *Error
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.reason, verr.Reason)
			assert.Equal(t, tc.kind, verr.Kind)
		})
	}
}

func TestErrorCode(t *testing.T) {
	err := Check("abc", KindNumber, 0, 0)
	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "VALIDATION_FORMAT", verr.Code())
}

func TestKindValid(t *testing.T) {
	for _, k := range []Kind{KindText, KindEmail, KindPhone, KindNumber, KindDate} {
		assert.True(t, k.Valid(), string(k))
	}
	assert.False(t, Kind("uuid").Valid())
}

func TestParseFlexibleDate(t *testing.T) {
	for _, input := range []string{"2026-08-28", "2026-8-28 09:30", "28.08.2026", "2.1.2026 18:00"} {
		_, ok := ParseFlexibleDate(input)
		assert.True(t, ok, input)
	}
	_, ok := ParseFlexibleDate("soon")
	assert.False(t, ok)
}
