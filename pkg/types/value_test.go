package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind ValueKind
	}{
		{"null", `null`, KindNull},
		{"number", `2.5`, KindNumber},
		{"string", `"north"`, KindString},
		{"bool", `true`, KindBool},
		{"nested map", `{"helicopters":2,"escort":{"armored":true}}`, KindMap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Value
			require.NoError(t, json.Unmarshal([]byte(tt.in), &v))
			assert.Equal(t, tt.kind, v.Kind())

			out, err := json.Marshal(v)
			require.NoError(t, err)
			assert.JSONEq(t, tt.in, string(out))
		})
	}
}

func TestValueRejectsArrays(t *testing.T) {
	var vs Values
	err := json.Unmarshal([]byte(`{"route":["a","b"]}`), &vs)
	assert.ErrorIs(t, err, ErrUnsupportedValue)

	_, err = FromAny(map[string]any{"nested": map[string]any{"list": []any{1}}})
	assert.ErrorIs(t, err, ErrUnsupportedValue)
	assert.Contains(t, err.Error(), `key "nested"`)
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(7)
	require.NoError(t, err)
	n, ok := v.Int64()
	assert.True(t, ok)
	assert.Equal(t, int64(7), n)

	v, err = FromAny(json.Number("1.25"))
	require.NoError(t, err)
	f, ok := v.Float()
	assert.True(t, ok)
	assert.Equal(t, 1.25, f)

	v, err = FromAny(String("kept"))
	require.NoError(t, err)
	assert.True(t, v.Equal(String("kept")))

	v, err = FromAny(nil)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestValueAccessors(t *testing.T) {
	_, ok := Number(2.5).Int64()
	assert.False(t, ok, "fractional numbers are not integers")

	_, ok = String("3").Float()
	assert.False(t, ok)

	s, ok := Time(time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)).Str()
	assert.True(t, ok)
	assert.Equal(t, "2026-05-10T12:00:00Z", s)

	b, ok := Bool(true).Boolean()
	assert.True(t, ok)
	assert.True(t, b)

	_, ok = Bool(true).Entries()
	assert.False(t, ok)

	assert.Equal(t, "null", Null().String())
	assert.Equal(t, "map", KindMap.String())
}

func TestMapIsCopied(t *testing.T) {
	inner := Values{"armored": Bool(true)}
	v := Map(inner)
	inner["armored"] = Bool(false)

	entries, ok := v.Entries()
	require.True(t, ok)
	assert.True(t, entries["armored"].Equal(Bool(true)))

	entries["armored"] = Bool(false)
	again, _ := v.Entries()
	assert.True(t, again["armored"].Equal(Bool(true)), "Entries returns a copy")
}

func TestValuesMergeAndKeys(t *testing.T) {
	vs := Values{"route": String("north"), "eta": Int(4)}
	nested := Values{"trucks": Int(3)}
	vs.Merge(Values{"route": String("south"), "supply": Map(nested)})

	assert.Equal(t, []string{"eta", "route", "supply"}, vs.Keys())
	assert.True(t, vs["route"].Equal(String("south")), "last write wins")

	clone := vs.Clone()
	clone["eta"] = Null()
	assert.True(t, vs["eta"].Equal(Int(4)))
	assert.True(t, clone["supply"].Equal(vs["supply"]))
	assert.False(t, clone["supply"].Equal(Map(Values{"trucks": Int(4)})))
}

func TestMissionStatus(t *testing.T) {
	for _, s := range MissionStatuses() {
		assert.True(t, s.IsValid(), s)
	}
	assert.False(t, MissionStatus("archived").IsValid())

	assert.True(t, MissionCompleted.IsTerminal())
	assert.True(t, MissionCancelled.IsTerminal())
	assert.False(t, MissionSuspended.IsTerminal())
}

func TestMissionClone(t *testing.T) {
	start := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	m := &Mission{ID: 1, Status: MissionPlanning, StartTime: &start}

	c := m.Clone()
	*c.StartTime = start.Add(time.Hour)
	assert.Equal(t, start, *m.StartTime)

	var nilMission *Mission
	assert.Nil(t, nilMission.Clone())
}
