package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/ChuLiYu/mission-planner/internal/snapshot"
	"github.com/ChuLiYu/mission-planner/pkg/types"
)

func mission(id types.MissionID, status types.MissionStatus) *types.Mission {
	return &types.Mission{ID: id, Name: "Op", Type: types.TypePatrol, Status: status}
}

// ============================================================================
// MemoryStore
// ============================================================================

func TestMemoryStoreFindAndSave(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.FindByID(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, types.ErrMissionNotFound)

	require.NoError(t, s.Save(ctx, mission(1, types.MissionPlanning)))

	got, err := s.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.MissionPlanning, got.Status)

	// callers own the copy
	got.Status = types.MissionCancelled
	again, err := s.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.MissionPlanning, again.Status)
}

func TestMemoryStoreRejectsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	tests := []struct {
		name string
		m    *types.Mission
	}{
		{"nil", nil},
		{"zero id", mission(0, types.MissionPlanning)},
		{"unknown status", mission(1, "drafting")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, s.Save(ctx, tt.m), ErrInvalidRecord)
		})
	}
}

func TestMemoryStoreListByStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i, st := range []types.MissionStatus{
		types.MissionActive, types.MissionPlanning, types.MissionActive, types.MissionCompleted,
	} {
		require.NoError(t, s.Save(ctx, mission(types.MissionID(4-i), st)))
	}

	active, err := s.ListByStatus(ctx, types.MissionActive)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, types.MissionID(2), active[0].ID)
	assert.Equal(t, types.MissionID(4), active[1].ID)

	all, err := s.ListByStatus(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, types.MissionID(1), all[0].ID)
}

func TestMemoryStoreActiveUnitCount(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	n, err := s.ActiveUnitCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.PutUnit(ctx, types.Unit{ID: 1, Designation: "A", Status: types.UnitActive}))
	require.NoError(t, s.PutUnit(ctx, types.Unit{ID: 2, Designation: "B", Status: types.UnitDeployed}))
	require.NoError(t, s.PutUnit(ctx, types.Unit{ID: 3, Designation: "C", Status: types.UnitActive}))
	require.NoError(t, s.PutUnit(ctx, types.Unit{ID: 3, Designation: "C", Status: types.UnitMaintenance}))

	n, err = s.ActiveUnitCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStoreConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(id types.MissionID) {
			defer wg.Done()
			assert.NoError(t, s.Save(ctx, mission(id, types.MissionPlanning)))
			_, err := s.FindByID(ctx, id)
			assert.NoError(t, err)
		}(types.MissionID(i))
	}
	wg.Wait()

	all, err := s.ListByStatus(ctx, types.MissionPlanning)
	require.NoError(t, err)
	assert.Len(t, all, 50)
}

// ============================================================================
// File-backed MemoryStore
// ============================================================================

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "missions.json")

	s, err := OpenFileStore(path)
	require.NoError(t, err)

	end := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	m := mission(7, types.MissionCompleted)
	m.EndTime = &end
	m.CompletionPercentage = 100
	require.NoError(t, s.Save(ctx, m))
	require.NoError(t, s.PutUnit(ctx, types.Unit{ID: 1, Designation: "A", Status: types.UnitActive}))

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)

	got, err := reopened.FindByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, types.MissionCompleted, got.Status)
	assert.Equal(t, 100, got.CompletionPercentage)
	require.NotNil(t, got.EndTime)
	assert.True(t, end.Equal(*got.EndTime))

	n, err := reopened.ActiveUnitCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFileStoreLoadsSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, snapshot.NewManager(path).Write(snapshot.Data{
		Missions: []*types.Mission{mission(1, types.MissionPlanning), mission(2, types.MissionApproved)},
	}))

	s, err := OpenFileStore(path)
	require.NoError(t, err)

	approved, err := s.ListByStatus(context.Background(), types.MissionApproved)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, types.MissionID(2), approved[0].ID)
}

func TestFileStoreRejectsBadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"schema_version":1,"missions":[{"id":1,"status":"bogus"}]}`), 0644))

	_, err := OpenFileStore(path)
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestFileStoreSaveFailureKeepsMemoryUnchanged(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.Mkdir(dir, 0755))

	s, err := OpenFileStore(filepath.Join(dir, "missions.json"))
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, mission(1, types.MissionPlanning)))

	require.NoError(t, os.Chmod(dir, 0555))
	defer os.Chmod(dir, 0755)

	assert.Error(t, s.Save(ctx, mission(1, types.MissionApproved)))
	got, err := s.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.MissionPlanning, got.Status)
}

// ============================================================================
// StaticUnitOracle
// ============================================================================

func TestStaticUnitOracle(t *testing.T) {
	n, err := StaticUnitOracle(4).ActiveUnitCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

// ============================================================================
// GormStore
// ============================================================================

func TestRecordMappingRoundTrip(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	m := &types.Mission{
		ID:                   9,
		Code:                 "OP-009",
		Name:                 "Quiet Harbor",
		Type:                 types.TypeSearchAndRescue,
		Status:               types.MissionActive,
		Priority:             types.PriorityCritical,
		StartTime:            &start,
		TargetLocation:       "Bay 4",
		CompletionPercentage: 40,
		Notes:                "tide window 0600",
		UpdatedAt:            start,
	}

	rec := toRecord(m)
	assert.Equal(t, int64(9), rec.ID)
	assert.Equal(t, "search_and_rescue", rec.Type)
	assert.Equal(t, "active", rec.Status)

	back := fromRecord(rec)
	assert.Equal(t, m, back)
	assert.NotSame(t, m.StartTime, back.StartTime)
}

func TestEnsureParam(t *testing.T) {
	tests := []struct {
		dsn, key, val, want string
	}{
		{"u:p@tcp(db)/planner", "parseTime", "true", "u:p@tcp(db)/planner?parseTime=true"},
		{"u:p@tcp(db)/planner?loc=UTC", "parseTime", "true", "u:p@tcp(db)/planner?loc=UTC&parseTime=true"},
		{"u:p@tcp(db)/planner?parseTime=false", "parseTime", "true", "u:p@tcp(db)/planner?parseTime=false"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ensureParam(tt.dsn, tt.key, tt.val))
	}
}

// dryRunDB builds statements without connecting to a server.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "planner:planner@tcp(127.0.0.1:3306)/planner?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return db
}

func TestStatusInScope(t *testing.T) {
	db := dryRunDB(t)

	filtered := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var recs []missionRecord
		return tx.Scopes(statusIn([]types.MissionStatus{types.MissionApproved, types.MissionActive})).
			Order("id").Find(&recs)
	})
	assert.Contains(t, filtered, "FROM `missions`")
	assert.Contains(t, filtered, "status IN ('approved','active')")

	all := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var recs []missionRecord
		return tx.Scopes(statusIn(nil)).Order("id").Find(&recs)
	})
	assert.NotContains(t, all, "WHERE")
}
