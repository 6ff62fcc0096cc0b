package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"fermentlab/internal/gc"
	"fermentlab/internal/infra/persistence/postgres/testutil"
	"fermentlab/internal/persistence/core"
)

func newStubStore(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		if driverName != "pgx" {
			t.Fatalf("unexpected driver %s", driverName)
		}
		return db, nil
	})
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, conn
}

func sampleRun(id, experiment string, created time.Time) core.Run {
	return core.Run{
		ID:         id,
		Experiment: experiment,
		CreatedAt:  created,
		Files:      []string{"a.txt"},
		Catalog:    []string{"Ethanol"},
		Rows:       []gc.Row{{SampleID: 2, Concentrations: map[string]float64{"Ethanol": 12.5}, Sources: []string{"a.txt"}}},
	}
}

func TestNewStoreAppliesSchema(t *testing.T) {
	_, conn := newStubStore(t)
	var sawTable, sawIndex bool
	for _, stmt := range conn.Execs {
		up := strings.ToUpper(stmt)
		sawTable = sawTable || strings.Contains(up, "CREATE TABLE IF NOT EXISTS RUNS")
		sawIndex = sawIndex || strings.Contains(up, "CREATE INDEX")
	}
	if !sawTable || !sawIndex {
		t.Fatalf("schema not applied, execs: %v", conn.Execs)
	}
}

func TestSaveGetListDelete(t *testing.T) {
	ctx := context.Background()
	store, conn := newStubStore(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := store.SaveRun(ctx, sampleRun("r2", "exp1", base.Add(time.Hour))); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveRun(ctx, sampleRun("r1", "exp1", base)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveRun(ctx, sampleRun("r3", "exp2", base)); err != nil {
		t.Fatalf("save: %v", err)
	}
	updated := sampleRun("r2", "exp1", base.Add(time.Hour))
	updated.Artifacts = []string{"exp1/exp1_data.csv"}
	if err := store.SaveRun(ctx, updated); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if got := len(conn.Rows("runs")); got != 3 {
		t.Fatalf("expected 3 stored rows after upsert, got %d", got)
	}

	run, err := store.GetRun(ctx, "r2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(run.Artifacts) != 1 || run.Rows[0].Concentrations["Ethanol"] != 12.5 {
		t.Fatalf("unexpected run %+v", run)
	}

	runs, err := store.ListRuns(ctx, "exp1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "r1" || runs[1].ID != "r2" {
		t.Fatalf("unexpected list %+v", runs)
	}
	all, err := store.ListRuns(ctx, "")
	if err != nil || len(all) != 3 {
		t.Fatalf("list all: %v %d", err, len(all))
	}

	ok, err := store.DeleteRun(ctx, "r1")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = store.DeleteRun(ctx, "r1")
	if err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
	var nf core.ErrNotFound
	if _, err := store.GetRun(ctx, "r1"); !errors.As(err, &nf) || nf.ID != "r1" {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNewStorePingFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), "postgres://x"); err == nil || !strings.Contains(err.Error(), "ping") {
		t.Fatalf("expected ping error, got %v", err)
	}
}

func TestSaveRunExecFailure(t *testing.T) {
	store, conn := newStubStore(t)
	conn.FailTables = map[string]bool{"runs": true}
	if err := store.SaveRun(context.Background(), sampleRun("x", "e", time.Now())); err == nil {
		t.Fatalf("expected upsert failure")
	}
	if _, err := store.ListRuns(context.Background(), ""); err == nil {
		t.Fatalf("expected select failure")
	}
}
