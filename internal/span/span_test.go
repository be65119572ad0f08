package span

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordConversion(t *testing.T) {
	e := Entity{EntityType: "PERSON", Start: 5, End: 9, Score: 0.85}
	r := ToRecord(e)
	assert.Equal(t, Record{EntityType: "PERSON", Start: 5, End: 9}, r)

	back := FromRecord(r)
	assert.Equal(t, "PERSON", back.EntityType)
	assert.Equal(t, 5, back.Start)
	assert.Equal(t, 9, back.End)
	assert.Zero(t, back.Score, "score is not persisted")
}

func TestRecordJSONShape(t *testing.T) {
	data, err := json.Marshal(Record{EntityType: "EMAIL_ADDRESS", Start: 1, End: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"entity_type":"EMAIL_ADDRESS","start":1,"end":3}`, string(data))
}

func TestFromRecords(t *testing.T) {
	assert.NotNil(t, FromRecords(nil))
	got := FromRecords([]Record{{EntityType: "A", Start: 0, End: 2}, {EntityType: "B", Start: 4, End: 6}})
	assert.Equal(t, []Entity{{EntityType: "A", Start: 0, End: 2}, {EntityType: "B", Start: 4, End: 6}}, got)
}

func TestValid(t *testing.T) {
	tests := []struct {
		name string
		e    Entity
		n    int
		want bool
	}{
		{"inside", Entity{Start: 0, End: 4}, 4, true},
		{"empty span", Entity{Start: 2, End: 2}, 4, false},
		{"negative start", Entity{Start: -1, End: 2}, 4, false},
		{"past end", Entity{Start: 2, End: 5}, 4, false},
		{"reversed", Entity{Start: 3, End: 1}, 4, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.e.Valid(tt.n))
		})
	}
}

func TestOverlaps(t *testing.T) {
	a := Entity{Start: 0, End: 10}
	assert.True(t, a.Overlaps(Entity{Start: 5, End: 15}))
	assert.True(t, a.Overlaps(Entity{Start: 2, End: 3}))
	assert.False(t, a.Overlaps(Entity{Start: 10, End: 12}), "adjacent spans do not overlap")
}

func TestSortByStart(t *testing.T) {
	spans := []Entity{
		{EntityType: "C", Start: 7, End: 9},
		{EntityType: "B", Start: 0, End: 4},
		{EntityType: "A", Start: 0, End: 10},
	}
	SortByStart(spans)
	assert.Equal(t, []string{"A", "B", "C"}, Types(spans))

	SortByStartDesc(spans)
	assert.Equal(t, 7, spans[0].Start)
}
