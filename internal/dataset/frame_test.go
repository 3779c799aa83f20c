package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddColumnLengthMismatch(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.AddFloats("a", []float64{1, 2, 3}, nil))
	assert.Error(t, f.AddFloats("b", []float64{1, 2}, nil))
	assert.Error(t, f.AddFloats("a", []float64{4, 5, 6}, nil), "duplicate column must be rejected")
}

func TestFloatAtRespectsNulls(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.AddFloats("x", []float64{1, 2, 3}, []bool{false, true, false}))

	v, ok := f.FloatAt("x", 0)
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)

	_, ok = f.FloatAt("x", 1)
	assert.False(t, ok, "null cell must report ok=false")

	_, ok = f.FloatAt("missing", 0)
	assert.False(t, ok)

	_, ok = f.FloatAt("x", 99)
	assert.False(t, ok)
}

func TestStringAtRespectsNulls(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.AddStrings("team", []string{"KC", ""}, []bool{false, true}))

	v, ok := f.StringAt("team", 0)
	assert.True(t, ok)
	assert.Equal(t, "KC", v)

	_, ok = f.StringAt("team", 1)
	assert.False(t, ok)
}

func TestRename(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.AddFloats("carries", []float64{5}, nil))
	require.NoError(t, f.AddFloats("targets", []float64{3}, nil))

	require.NoError(t, f.Rename("carries", "rush_attempts"))
	assert.False(t, f.HasColumn("carries"))
	v, ok := f.FloatAt("rush_attempts", 0)
	assert.True(t, ok)
	assert.Equal(t, 5.0, v)

	assert.NoError(t, f.Rename("absent", "whatever"), "renaming a missing column is a no-op")
	assert.Error(t, f.Rename("rush_attempts", "targets"), "renaming onto an existing column must fail")
}

func TestMatrixImputation(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.AddFloats("a", []float64{1, 2}, []bool{false, true}))
	require.NoError(t, f.AddStrings("team", []string{"KC", "BUF"}, nil))

	// "b" is absent, "team" is a string column: both become zeros; the null in
	// "a" is imputed to zero
	m := f.Matrix([]string{"a", "b", "team"})
	require.Len(t, m, 2)
	assert.Equal(t, []float64{1, 0, 0}, m[0])
	assert.Equal(t, []float64{0, 0, 0}, m[1])
}

func TestFloatVectorFillsNulls(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.AddFloats("y", []float64{7, 8}, []bool{true, false}))
	assert.Equal(t, []float64{0, 8}, f.FloatVector("y"))
	assert.Equal(t, []float64{0, 0}, f.FloatVector("missing"))
}

func TestFilterRows(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.AddFloats("week", []float64{1, 2, 3}, nil))
	require.NoError(t, f.AddStrings("id", []string{"a", "b", "c"}, nil))

	out := f.FilterRows(func(i int) bool {
		w, _ := f.FloatAt("week", i)
		return w >= 2
	})
	assert.Equal(t, 2, out.NumRows())
	id, _ := out.StringAt("id", 0)
	assert.Equal(t, "b", id)
}

func TestConcatUnionsColumns(t *testing.T) {
	a := NewFrame()
	require.NoError(t, a.AddFloats("x", []float64{1}, nil))
	require.NoError(t, a.AddFloats("y", []float64{10}, nil))

	b := NewFrame()
	require.NoError(t, b.AddFloats("x", []float64{2}, nil))
	require.NoError(t, b.AddFloats("z", []float64{20}, nil))

	out, err := Concat([]*Frame{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, out.NumRows())
	assert.Equal(t, []string{"x", "y", "z"}, out.Columns())

	// Rows from the frame lacking a column are null there
	_, ok := out.FloatAt("y", 1)
	assert.False(t, ok)
	_, ok = out.FloatAt("z", 0)
	assert.False(t, ok)
	v, ok := out.FloatAt("z", 1)
	assert.True(t, ok)
	assert.Equal(t, 20.0, v)
}

func TestConcatKindConflict(t *testing.T) {
	a := NewFrame()
	require.NoError(t, a.AddFloats("x", []float64{1}, nil))
	b := NewFrame()
	require.NoError(t, b.AddStrings("x", []string{"one"}, nil))

	_, err := Concat([]*Frame{a, b})
	assert.Error(t, err)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.AddFloats("week", []float64{1, 2}, []bool{false, true}))
	require.NoError(t, f.AddStrings("player_id", []string{"p1", "p2"}, nil))

	data, err := f.Encode()
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, f.Columns(), out.Columns())
	assert.Equal(t, f.NumRows(), out.NumRows())

	_, ok := out.FloatAt("week", 1)
	assert.False(t, ok, "null mask must survive the round trip")
	id, ok := out.StringAt("player_id", 1)
	assert.True(t, ok)
	assert.Equal(t, "p2", id)
}

func TestEncodeIsDeterministic(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.AddFloats("a", []float64{1.5, 2.5, 3.5}, nil))
	require.NoError(t, f.AddStrings("b", []string{"x", "y", "z"}, nil))

	first, err := f.Encode()
	require.NoError(t, err)
	second, err := f.Encode()
	require.NoError(t, err)
	assert.Equal(t, first, second, "re-encoding the same frame must be byte-identical")
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	_, err := Decode([]byte("not gzip"))
	assert.Error(t, err)
}
