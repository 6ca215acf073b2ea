package journal

import (
	"testing"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/stretchr/testify/require"

	"github.com/quality-dot/solar-panel-production-tracking-sub010/workflow"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := OpenInMemory(cmtlog.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestPanelHistoryPreservesAppendOrder(t *testing.T) {
	j := openTestJournal(t)

	serial := "CRS25WT36-00042"
	at := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	events := []workflow.Event{
		{Type: workflow.EventPanelCreated, PanelSerial: serial, OrderID: "ORD-100", At: at},
		{Type: workflow.EventStationPassed, PanelSerial: serial, OrderID: "ORD-100", StationID: 1, At: at.Add(time.Minute)},
		{Type: workflow.EventStationPassed, PanelSerial: serial, OrderID: "ORD-100", StationID: 2, At: at.Add(2 * time.Minute)},
	}
	for _, ev := range events {
		require.NoError(t, j.Append(ev))
	}

	entries, err := j.PanelHistory(serial)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, entry := range entries {
		require.Equal(t, events[i].Type, entry.Event.Type)
		require.Equal(t, events[i].StationID, entry.Event.StationID)
	}
	require.Less(t, entries[0].Seq, entries[1].Seq)
	require.Less(t, entries[1].Seq, entries[2].Seq)
}

func TestHistoriesAreScopedToTheirSubject(t *testing.T) {
	j := openTestJournal(t)

	now := time.Now().UTC()
	require.NoError(t, j.Append(workflow.Event{Type: workflow.EventPanelCreated, PanelSerial: "CRS25BW60-00001", OrderID: "ORD-1", At: now}))
	require.NoError(t, j.Append(workflow.Event{Type: workflow.EventPanelCreated, PanelSerial: "CRS25BW60-00002", OrderID: "ORD-1", At: now}))
	require.NoError(t, j.Append(workflow.Event{Type: workflow.EventOrderLowStock, OrderID: "ORD-1", At: now}))

	entries, err := j.PanelHistory("CRS25BW60-00001")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	orderEntries, err := j.OrderHistory("ORD-1")
	require.NoError(t, err)
	require.Len(t, orderEntries, 1)
	require.Equal(t, workflow.EventOrderLowStock, orderEntries[0].Event.Type)

	empty, err := j.PanelHistory("CRS25BW60-09999")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestHandlerAppendsBusEvents(t *testing.T) {
	j := openTestJournal(t)

	bus := workflow.NewBus()
	require.NoError(t, bus.Subscribe("journal", j.Handler()))

	errs := bus.Publish(workflow.Event{
		Type:        workflow.EventPanelFailed,
		PanelSerial: "CRS26WT72-00010",
		OrderID:     "ORD-7",
		StationID:   3,
		At:          time.Now().UTC(),
	})
	require.Empty(t, errs)

	entries, err := j.PanelHistory("CRS26WT72-00010")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, workflow.EventPanelFailed, entries[0].Event.Type)
}
