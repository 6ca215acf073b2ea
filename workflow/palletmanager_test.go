package workflow_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quality-dot/solar-panel-production-tracking-sub010/repository/models"
	"github.com/quality-dot/solar-panel-production-tracking-sub010/workflow"
)

func TestAssignRequiresCompletedPanel(t *testing.T) {
	e, _, _ := newTestEngine(t, workflow.Config{})
	ctx := context.Background()
	require.NoError(t, e.CreateOrder(ctx, testOrder("ORD-1", 36, 10)))
	_, err := e.ScanPanel(ctx, serial36(1), "ORD-1")
	require.NoError(t, err)
	passStation(t, e, serial36(1), 1)

	_, err = e.Pallets().Assign(ctx, workflow.AssignInput{PanelSerial: serial36(1)})
	require.Error(t, err)
	require.Equal(t, workflow.KindNotCompleted, workflow.KindOf(err))
}

func TestAssignAutoOpensPalletAndAllocatesPositions(t *testing.T) {
	e, _, rec := newTestEngine(t, workflow.Config{})
	ctx := context.Background()
	require.NoError(t, e.CreateOrder(ctx, testOrder("ORD-1", 36, 10)))

	completePanel(t, e, serial36(1), "ORD-1")
	completePanel(t, e, serial36(2), "ORD-1")

	first, err := e.Pallets().Assign(ctx, workflow.AssignInput{PanelSerial: serial36(1)})
	require.NoError(t, err)
	require.Equal(t, 0, first.PosX)
	require.Equal(t, 0, first.PosY)
	require.Equal(t, 1, rec.count(workflow.EventPalletOpened))

	second, err := e.Pallets().Assign(ctx, workflow.AssignInput{PanelSerial: serial36(2)})
	require.NoError(t, err)
	require.Equal(t, first.PalletID, second.PalletID)
	require.Equal(t, 1, second.PosX)
	require.Equal(t, 0, second.PosY)
	require.Equal(t, 1, rec.count(workflow.EventPalletOpened))
	require.Equal(t, 2, rec.count(workflow.EventPalletAssigned))

	// Line A defaults apply when no capacity is given.
	pallet, _, err := palletState(ctx, e, first.PalletID)
	require.NoError(t, err)
	require.Equal(t, models.DefaultCapacityLineA, pallet.Capacity)
	require.Equal(t, 2, pallet.AssignedCount)
}

func palletState(ctx context.Context, e *workflow.Engine, palletID string) (*models.Pallet, []workflow.ManifestEntry, error) {
	manifest, err := e.Pallets().BuildManifest(ctx, palletID)
	if err != nil {
		return nil, nil, err
	}
	return manifest.Pallet, manifest.Entries, nil
}

func TestPanelIsAssignedAtMostOnce(t *testing.T) {
	e, _, _ := newTestEngine(t, workflow.Config{})
	ctx := context.Background()
	require.NoError(t, e.CreateOrder(ctx, testOrder("ORD-1", 36, 10)))
	completePanel(t, e, serial36(1), "ORD-1")

	_, err := e.Pallets().Assign(ctx, workflow.AssignInput{PanelSerial: serial36(1)})
	require.NoError(t, err)

	_, err = e.Pallets().Assign(ctx, workflow.AssignInput{PanelSerial: serial36(1)})
	require.Error(t, err)
	require.Equal(t, workflow.KindPrecondViolation, workflow.KindOf(err))
}

func TestPalletAutoClosesAtCapacity(t *testing.T) {
	e, _, rec := newTestEngine(t, workflow.Config{})
	ctx := context.Background()
	require.NoError(t, e.CreateOrder(ctx, testOrder("ORD-1", 36, 10)))
	for i := 1; i <= 3; i++ {
		completePanel(t, e, serial36(i), "ORD-1")
	}

	first, err := e.Pallets().Assign(ctx, workflow.AssignInput{PanelSerial: serial36(1), Capacity: 2})
	require.NoError(t, err)
	_, err = e.Pallets().Assign(ctx, workflow.AssignInput{PanelSerial: serial36(2)})
	require.NoError(t, err)
	require.Equal(t, 1, rec.count(workflow.EventPalletClosed))

	pallet, _, err := palletState(ctx, e, first.PalletID)
	require.NoError(t, err)
	require.Equal(t, models.PalletStatusCompleted, pallet.Status)
	require.False(t, pallet.ClosedManually)

	// Explicit assignment to the closed pallet is rejected.
	_, err = e.Pallets().Assign(ctx, workflow.AssignInput{PanelSerial: serial36(3), PalletID: first.PalletID})
	require.Error(t, err)
	require.Equal(t, workflow.KindPalletClosed, workflow.KindOf(err))

	// Auto-assignment rolls over to a fresh pallet.
	third, err := e.Pallets().Assign(ctx, workflow.AssignInput{PanelSerial: serial36(3)})
	require.NoError(t, err)
	require.NotEqual(t, first.PalletID, third.PalletID)
	require.Equal(t, 0, third.PosX)
	require.Equal(t, 0, third.PosY)
}

func TestManualCloseIsTerminal(t *testing.T) {
	e, _, _ := newTestEngine(t, workflow.Config{})
	ctx := context.Background()
	require.NoError(t, e.CreateOrder(ctx, testOrder("ORD-1", 36, 10)))
	completePanel(t, e, serial36(1), "ORD-1")

	asg, err := e.Pallets().Assign(ctx, workflow.AssignInput{PanelSerial: serial36(1)})
	require.NoError(t, err)

	pallet, err := e.Pallets().CloseManually(ctx, asg.PalletID)
	require.NoError(t, err)
	require.Equal(t, models.PalletStatusCompleted, pallet.Status)
	require.True(t, pallet.ClosedManually)

	_, err = e.Pallets().CloseManually(ctx, asg.PalletID)
	require.Error(t, err)
	require.Equal(t, workflow.KindAlreadyClosed, workflow.KindOf(err))
}

func TestAssignRejectsPalletFromAnotherOrder(t *testing.T) {
	e, _, _ := newTestEngine(t, workflow.Config{})
	ctx := context.Background()
	require.NoError(t, e.CreateOrder(ctx, testOrder("ORD-1", 36, 10)))
	require.NoError(t, e.CreateOrder(ctx, testOrder("ORD-2", 36, 10)))
	completePanel(t, e, serial36(1), "ORD-1")
	completePanel(t, e, serial36(2), "ORD-2")

	asg, err := e.Pallets().Assign(ctx, workflow.AssignInput{PanelSerial: serial36(1)})
	require.NoError(t, err)

	_, err = e.Pallets().Assign(ctx, workflow.AssignInput{PanelSerial: serial36(2), PalletID: asg.PalletID})
	require.Error(t, err)
	require.Equal(t, workflow.KindPrecondViolation, workflow.KindOf(err))
}

func TestAssignRejectsBadCapacity(t *testing.T) {
	e, _, _ := newTestEngine(t, workflow.Config{})
	ctx := context.Background()
	require.NoError(t, e.CreateOrder(ctx, testOrder("ORD-1", 36, 10)))
	completePanel(t, e, serial36(1), "ORD-1")

	_, err := e.Pallets().Assign(ctx, workflow.AssignInput{PanelSerial: serial36(1), Capacity: 500})
	require.Error(t, err)
	require.Equal(t, workflow.KindMalformedInput, workflow.KindOf(err))
}

func TestLineBDefaultCapacity(t *testing.T) {
	e, _, _ := newTestEngine(t, workflow.Config{})
	ctx := context.Background()
	require.NoError(t, e.CreateOrder(ctx, testOrder("ORD-B", 144, 10)))

	serial := "CRS25WT144-00001"
	_, err := e.ScanPanel(ctx, serial, "ORD-B")
	require.NoError(t, err)
	for st := 1; st <= 4; st++ {
		passStation(t, e, serial, st)
	}

	asg, err := e.Pallets().Assign(ctx, workflow.AssignInput{PanelSerial: serial})
	require.NoError(t, err)

	pallet, _, err := palletState(ctx, e, asg.PalletID)
	require.NoError(t, err)
	require.Equal(t, models.DefaultCapacityLineB, pallet.Capacity)
}

func TestConcurrentAssignmentsKeepPositionsUnique(t *testing.T) {
	e, _, rec := newTestEngine(t, workflow.Config{})
	ctx := context.Background()

	// Five more panels than the line A default capacity, so the racing
	// assignments must fill and auto-close the first pallet, then roll the
	// remainder onto a second one.
	const panels = models.DefaultCapacityLineA + 5
	require.NoError(t, e.CreateOrder(ctx, testOrder("ORD-1", 36, panels)))
	serials := make([]string, panels)
	for i := 0; i < panels; i++ {
		serials[i] = serial36(i + 1)
		completePanel(t, e, serials[i], "ORD-1")
	}

	var wg sync.WaitGroup
	assignments := make([]*models.PalletAssignment, panels)
	for i, s := range serials {
		wg.Add(1)
		go func(slot int, serial string) {
			defer wg.Done()
			asg, err := e.Pallets().Assign(ctx, workflow.AssignInput{PanelSerial: serial})
			if err != nil {
				t.Errorf("assigning %s: %v", serial, err)
				return
			}
			assignments[slot] = asg
		}(i, s)
	}
	wg.Wait()

	// Every panel got a slot and no (pallet, position) pair was handed out
	// twice.
	taken := make(map[string]bool, panels)
	perPallet := make(map[string]int)
	for _, asg := range assignments {
		require.NotNil(t, asg)
		slot := fmt.Sprintf("%s:%d,%d", asg.PalletID, asg.PosX, asg.PosY)
		require.False(t, taken[slot], "position %s assigned twice", slot)
		taken[slot] = true
		perPallet[asg.PalletID]++
	}
	require.Len(t, perPallet, 2)

	for palletID, count := range perPallet {
		pallet, entries, err := palletState(ctx, e, palletID)
		require.NoError(t, err)
		require.Equal(t, count, pallet.AssignedCount)
		require.LessOrEqual(t, pallet.AssignedCount, pallet.Capacity)
		require.Len(t, entries, count)
		if pallet.AssignedCount == pallet.Capacity {
			require.Equal(t, models.PalletStatusCompleted, pallet.Status)
		} else {
			require.Equal(t, models.PalletStatusInProgress, pallet.Status)
		}
	}

	require.Equal(t, 2, rec.count(workflow.EventPalletOpened))
	require.Equal(t, panels, rec.count(workflow.EventPalletAssigned))
	require.Equal(t, 1, rec.count(workflow.EventPalletClosed))
}

func TestManifestCarriesReadingsAndPositions(t *testing.T) {
	e, _, _ := newTestEngine(t, workflow.Config{})
	ctx := context.Background()
	require.NoError(t, e.CreateOrder(ctx, testOrder("ORD-1", 36, 10)))

	var palletID string
	for i := 1; i <= 3; i++ {
		completePanel(t, e, serial36(i), "ORD-1")
		asg, err := e.Pallets().Assign(ctx, workflow.AssignInput{PanelSerial: serial36(i)})
		require.NoError(t, err)
		palletID = asg.PalletID
	}

	manifest, err := e.Pallets().BuildManifest(ctx, palletID)
	require.NoError(t, err)
	require.Len(t, manifest.Entries, 3)
	for i, entry := range manifest.Entries {
		require.Equal(t, fmt.Sprintf("CRS25WT36-%05d", i+1), entry.PanelSerial)
		require.Equal(t, i, entry.PosX)
		require.Equal(t, 0, entry.PosY)
		require.NotNil(t, entry.Wattage)
		require.Equal(t, 310.0, *entry.Wattage)
		require.NotNil(t, entry.CompletedAt)
	}
}
