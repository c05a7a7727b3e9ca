package trace

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strato-bus/strato/internal/envelope"
	"github.com/strato-bus/strato/internal/routing"
)

func fixedNow() time.Time {
	return time.UnixMilli(1700000000000)
}

func msgAt(topic, source string, ts int64) *envelope.Message {
	return &envelope.Message{Topic: topic, Source: source, TS: ts}
}

func TestRecorder_RingOverwritesOldest(t *testing.T) {
	r := New(WithCapacity(3), WithNow(fixedNow))
	for i := 0; i < 5; i++ {
		r.Observe(msgAt("t.x", "", int64(i)), nil)
	}

	entries := r.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(2), entries[0].Seq)
	assert.Equal(t, uint64(4), entries[2].Seq)
	assert.Equal(t, 3, r.Len())
}

func TestRecorder_DisabledRecordsNothing(t *testing.T) {
	r := New(WithCapacity(3), WithNow(fixedNow))
	r.SetEnabled(false)
	r.Observe(msgAt("t.x", "", 0), nil)
	assert.False(t, r.Enabled())
	assert.Zero(t, r.Len())

	r.SetEnabled(true)
	r.Observe(msgAt("t.x", "", 0), nil)
	assert.Equal(t, 1, r.Len())
}

func TestRecorder_Sampling(t *testing.T) {
	// Deterministic alternating source: below the rate, above the rate.
	draws := []float64{0.2, 0.8, 0.2, 0.8}
	i := 0
	rng := func() float64 {
		v := draws[i%len(draws)]
		i++
		return v
	}

	r := New(WithCapacity(10), WithSampleRate(0.5), WithRand(rng), WithNow(fixedNow))
	for n := 0; n < 4; n++ {
		r.Observe(msgAt("t.x", "", 0), nil)
	}
	assert.Equal(t, 2, r.Len())

	// Rate 1 never consults the sampling source.
	full := New(WithCapacity(10), WithRand(func() float64 {
		t.Fatal("sampling source consulted at rate 1")
		return 0
	}), WithNow(fixedNow))
	full.Observe(msgAt("t.x", "", 0), nil)
	assert.Equal(t, 1, full.Len())
}

func TestRecorder_Find(t *testing.T) {
	r := New(WithCapacity(10), WithNow(fixedNow))

	r.Observe(&envelope.Message{Topic: "orders.item.save", Source: "web", TS: 100}, []routing.Outcome{
		{RouteID: "r-1", RouteName: "audit", ActionsExecuted: 1},
	})
	r.Observe(&envelope.Message{Topic: "orders.item.delete", Source: "mobile", TS: 200}, []routing.Outcome{
		{RouteID: "r-2", RouteName: "audit", ActionsExecuted: 1, Error: "broken"},
	})
	r.Observe(&envelope.Message{Topic: "users.list.get", Source: "web", TS: 300}, nil)

	assert.Len(t, r.Find(Query{}), 3)
	assert.Len(t, r.Find(Query{Topic: "orders.*"}), 2)
	assert.Len(t, r.Find(Query{Source: "web"}), 2)

	hasErr := true
	found := r.Find(Query{HasError: &hasErr})
	require.Len(t, found, 1)
	assert.Equal(t, "orders.item.delete", found[0].Message.Topic)

	noErr := false
	assert.Len(t, r.Find(Query{HasError: &noErr}), 2)

	// Time bounds apply to the recording timestamp.
	ts := fixedNow().UnixMilli()
	assert.Len(t, r.Find(Query{Since: ts, Until: ts}), 3)
	assert.Empty(t, r.Find(Query{Until: ts - 1}))
}

func TestSnapshot_RoundTrip(t *testing.T) {
	r := New(WithCapacity(3), WithNow(fixedNow))
	for i := 0; i < 5; i++ {
		r.Observe(msgAt("t.x", "web", int64(i)), []routing.Outcome{
			{RouteID: "r-1", RouteName: "audit", ActionsExecuted: 1},
		})
	}

	data, err := r.ExportJSON()
	require.NoError(t, err)

	imported, err := ImportJSON(data)
	require.NoError(t, err)
	assert.False(t, imported.Enabled(), "imported recorders are read-only by default")

	entries := imported.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(2), entries[0].Seq)
	assert.Len(t, imported.Find(Query{Topic: "t.*"}), 3)
}

func TestSnapshot_ImportRejectsBadInput(t *testing.T) {
	_, err := Import(Snapshot{Version: 99, Capacity: 10})
	require.ErrorContains(t, err, "unsupported snapshot version")

	_, err = Import(Snapshot{Version: SnapshotVersion, Capacity: 0})
	require.Error(t, err)

	_, err = ImportJSON([]byte("{not json"))
	require.ErrorContains(t, err, "decode snapshot")
}

func TestSnapshot_ExportGolden(t *testing.T) {
	r := New(WithCapacity(3), WithNow(fixedNow))

	r.Observe(&envelope.Message{
		Topic:  "orders.item.save",
		Data:   map[string]any{"sku": "A-1"},
		ID:     "m-1",
		TS:     1699999999000,
		Source: "web",
	}, []routing.Outcome{
		{RouteID: "r-1", RouteName: "high-value", ActionsExecuted: 1},
	})
	r.Observe(&envelope.Message{
		Topic: "jobs.run",
		ID:    "m-2",
		TS:    1699999999500,
	}, []routing.Outcome{
		{RouteID: "r-2", RouteName: "call-worker", ActionsExecuted: 1, Error: "handler not registered"},
	})

	data, err := r.ExportJSON()
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "export", data)
}
