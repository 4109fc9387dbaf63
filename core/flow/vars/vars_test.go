package vars

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrap(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain text", raw: "Oslo", want: "Oslo"},
		{name: "json string", raw: `"Oslo"`, want: "Oslo"},
		{name: "json number", raw: `23`, want: "23"},
		{name: "json float keeps precision", raw: `3.14`, want: "3.14"},
		{name: "json bool", raw: `true`, want: "true"},
		{name: "value wrapper", raw: `{"value":"Oslo"}`, want: "Oslo"},
		{name: "value wrapper number", raw: `{"value":23}`, want: "23"},
		{name: "nested wrapper", raw: `{"value":{"value":"deep"}}`, want: "deep"},
		{name: "wrapper with extras", raw: `{"value":"Oslo","ts":1}`, want: "Oslo"},
		{name: "null", raw: `null`, want: ""},
		{name: "empty", raw: "", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Unwrap([]byte(tc.raw)))
		})
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, ok, err := m.Get(ctx, 1, "city")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, 1, "city", "Oslo"))
	v, ok, err := m.Get(ctx, 1, "city")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Oslo", v)

	// a structured value unwraps the same way a scalar does
	require.NoError(t, m.Set(ctx, 1, "age", `{"value":"23"}`))
	v, ok, err = m.Get(ctx, 1, "age")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "23", v)
}

func TestMemoryHasValue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	has, err := m.HasValue(ctx, 7, "city")
	require.NoError(t, err)
	assert.False(t, has, "absent variable")

	require.NoError(t, m.Set(ctx, 7, "city", "   "))
	has, err = m.HasValue(ctx, 7, "city")
	require.NoError(t, err)
	assert.False(t, has, "whitespace-only value")

	require.NoError(t, m.Set(ctx, 7, "city", `{"value":""}`))
	has, err = m.HasValue(ctx, 7, "city")
	require.NoError(t, err)
	assert.False(t, has, "wrapped empty value")

	require.NoError(t, m.Set(ctx, 7, "city", `{"value":"Oslo"}`))
	has, err = m.HasValue(ctx, 7, "city")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestMemoryClear(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, 1, "a", "1"))
	require.NoError(t, m.Set(ctx, 2, "a", "2"))
	require.NoError(t, m.Clear(ctx, 1))

	_, ok, _ := m.Get(ctx, 1, "a")
	assert.False(t, ok)
	v, ok, _ := m.Get(ctx, 2, "a")
	assert.True(t, ok)
	assert.Equal(t, "2", v)
}

// failingStore simulates a durable backend outage.
type failingStore struct {
	errs  bool
	inner *Memory
}

func (f *failingStore) Get(ctx context.Context, userID int64, name string) (string, bool, error) {
	if f.errs {
		return "", false, errors.New("connection refused")
	}
	return f.inner.Get(ctx, userID, name)
}

func (f *failingStore) Set(ctx context.Context, userID int64, name, value string) error {
	if f.errs {
		return errors.New("connection refused")
	}
	return f.inner.Set(ctx, userID, name, value)
}

func (f *failingStore) HasValue(ctx context.Context, userID int64, name string) (bool, error) {
	v, ok, err := f.Get(ctx, userID, name)
	if err != nil || !ok {
		return false, err
	}
	return v != "", nil
}

func (f *failingStore) Clear(ctx context.Context, userID int64) error {
	if f.errs {
		return errors.New("connection refused")
	}
	return f.inner.Clear(ctx, userID)
}

func TestFallbackWritesBothWhenHealthy(t *testing.T) {
	ctx := context.Background()
	durable := &failingStore{inner: NewMemory()}
	fb := NewFallback(durable)

	require.NoError(t, fb.Set(ctx, 1, "city", "Oslo"))

	v, ok, err := durable.inner.Get(ctx, 1, "city")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Oslo", v)

	v, ok, err = fb.memory.Get(ctx, 1, "city")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Oslo", v)
}

func TestFallbackDegradesToMemory(t *testing.T) {
	ctx := context.Background()
	durable := &failingStore{inner: NewMemory()}
	fb := NewFallback(durable)

	require.NoError(t, fb.Set(ctx, 1, "city", "Oslo"))
	durable.errs = true

	// set during the outage still succeeds
	require.NoError(t, fb.Set(ctx, 1, "age", "23"))

	v, ok, err := fb.Get(ctx, 1, "age")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "23", v)

	has, err := fb.HasValue(ctx, 1, "city")
	require.NoError(t, err)
	assert.True(t, has, "pre-outage value should survive via memory")
}

func TestFallbackMemoryOnly(t *testing.T) {
	ctx := context.Background()
	fb := NewFallback(nil)
	require.NoError(t, fb.Set(ctx, 9, "name", "Astrid"))
	has, err := fb.HasValue(ctx, 9, "name")
	require.NoError(t, err)
	assert.True(t, has)
}
