package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/heartrisk/heartrisk/internal/domain/assessment"
	"github.com/heartrisk/heartrisk/internal/platform/db"
	"github.com/heartrisk/heartrisk/internal/platform/sandbox"
)

func highRiskInput() assessment.Input {
	in := assessment.DefaultInput()
	in.Age = 68
	in.RestingBP = 155
	in.Cholesterol = 270
	in.STDepression = 2.0
	in.ChestPainType = assessment.ChestPainNonAnginal
	in.FastingBloodSugar = true
	in.ExerciseAngina = true
	in.MajorVessels = 2
	in.Thalassemia = assessment.ThalassemiaFixedDefect
	return in
}

func TestAssessmentLifecycle(t *testing.T) {
	tdb := requireDB(t)
	ctx := context.Background()
	truncateAssessments(t, ctx)

	svc := assessment.NewService(assessment.NewRepoPG(tdb.Pool))

	// Create
	created, err := svc.Create(ctx, highRiskInput(), ptrStr("Patient/42"), ptrStr("Stress test follow-up."))
	if err != nil {
		t.Fatalf("create assessment: %v", err)
	}
	if created.RiskLevel != assessment.RiskHigh {
		t.Errorf("risk level = %s, want high", created.RiskLevel)
	}
	if created.Score != 0.95 {
		t.Errorf("score = %v, want capped 0.95", created.Score)
	}
	if created.FHIRID == "" {
		t.Error("expected FHIR ID to be assigned")
	}

	// Get by ID and by FHIR ID
	got, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get assessment: %v", err)
	}
	if got.Age != 68 || got.Cholesterol != 270 {
		t.Errorf("stored inputs do not round-trip: age=%d cholesterol=%d", got.Age, got.Cholesterol)
	}
	if got.SubjectRef == nil || *got.SubjectRef != "Patient/42" {
		t.Errorf("subject ref = %v, want Patient/42", got.SubjectRef)
	}

	byFHIR, err := svc.GetByFHIRID(ctx, created.FHIRID)
	if err != nil {
		t.Fatalf("get by fhir id: %v", err)
	}
	if byFHIR.ID != created.ID {
		t.Errorf("fhir id lookup returned %s, want %s", byFHIR.ID, created.ID)
	}

	// Update status and note
	updated, err := svc.Update(ctx, created.ID, "amended", nil, ptrStr("Amended after review."))
	if err != nil {
		t.Fatalf("update assessment: %v", err)
	}
	if updated.Status != "amended" {
		t.Errorf("status = %s, want amended", updated.Status)
	}
	if updated.Note == nil || *updated.Note != "Amended after review." {
		t.Errorf("note = %v, want amended note", updated.Note)
	}

	reread, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if reread.Status != "amended" {
		t.Errorf("stored status = %s, want amended", reread.Status)
	}
	if !reread.UpdatedAt.After(reread.CreatedAt) {
		t.Error("updated_at should advance past created_at")
	}

	// Delete
	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete assessment: %v", err)
	}
	if _, err := svc.Get(ctx, created.ID); !errors.Is(err, assessment.ErrNotFound) {
		t.Errorf("get after delete = %v, want ErrNotFound", err)
	}
}

func TestAssessmentListAndSearch(t *testing.T) {
	tdb := requireDB(t)
	ctx := context.Background()
	truncateAssessments(t, ctx)

	svc := assessment.NewService(assessment.NewRepoPG(tdb.Pool))

	// One low risk, two high risk.
	if _, err := svc.Create(ctx, assessment.DefaultInput(), nil, nil); err != nil {
		t.Fatalf("create low risk: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := svc.Create(ctx, highRiskInput(), ptrStr("Patient/7"), nil); err != nil {
			t.Fatalf("create high risk: %v", err)
		}
	}

	// Unfiltered list
	all, total, err := svc.List(ctx, assessment.ListFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(all) != 3 {
		t.Fatalf("list returned %d/%d, want 3/3", len(all), total)
	}

	// Risk level filter
	high, total, err := svc.List(ctx, assessment.ListFilter{RiskLevel: assessment.RiskHigh}, 10, 0)
	if err != nil {
		t.Fatalf("list high: %v", err)
	}
	if total != 2 {
		t.Errorf("high risk total = %d, want 2", total)
	}
	for _, a := range high {
		if a.RiskLevel != assessment.RiskHigh {
			t.Errorf("filter leaked risk level %s", a.RiskLevel)
		}
	}

	// Date window excluding everything
	past := time.Now().Add(-48 * time.Hour)
	cutoff := time.Now().Add(-24 * time.Hour)
	_, total, err = svc.List(ctx, assessment.ListFilter{From: &past, To: &cutoff}, 10, 0)
	if err != nil {
		t.Fatalf("list window: %v", err)
	}
	if total != 0 {
		t.Errorf("stale window total = %d, want 0", total)
	}

	// Pagination
	page, total, err := svc.List(ctx, assessment.ListFilter{}, 2, 0)
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 2 || total != 3 {
		t.Errorf("page returned %d/%d, want 2/3", len(page), total)
	}

	// FHIR search parameters
	results, total, err := svc.Search(ctx, map[string]string{"risk": "high"}, 10, 0)
	if err != nil {
		t.Fatalf("search risk: %v", err)
	}
	if total != 2 || len(results) != 2 {
		t.Errorf("search risk=high returned %d/%d, want 2/2", len(results), total)
	}

	results, total, err = svc.Search(ctx, map[string]string{"probability": "ge0.5"}, 10, 0)
	if err != nil {
		t.Fatalf("search probability: %v", err)
	}
	if total != 2 {
		t.Errorf("search probability=ge0.5 total = %d, want 2", total)
	}
	for _, a := range results {
		if a.Score < 0.5 {
			t.Errorf("search leaked score %v", a.Score)
		}
	}

	results, total, err = svc.Search(ctx, map[string]string{"subject": "Patient/7"}, 10, 0)
	if err != nil {
		t.Fatalf("search subject: %v", err)
	}
	if total != 2 {
		t.Errorf("search subject total = %d, want 2", total)
	}
	_ = results
}

func TestMigrationsIdempotent(t *testing.T) {
	tdb := requireDB(t)
	ctx := context.Background()

	migrator := db.NewMigrator(tdb.Pool, tdb.MigrationsDir)
	count, err := migrator.Up(ctx)
	if err != nil {
		t.Fatalf("second migrate up: %v", err)
	}
	if count != 0 {
		t.Errorf("second migrate up applied %d migrations, want 0", count)
	}

	statuses, err := migrator.Status(ctx)
	if err != nil {
		t.Fatalf("migration status: %v", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			t.Errorf("migration %d (%s) not applied", s.Version, s.Name)
		}
	}
}

func TestWithTxRollback(t *testing.T) {
	tdb := requireDB(t)
	ctx := context.Background()
	truncateAssessments(t, ctx)

	svc := assessment.NewService(assessment.NewRepoPG(tdb.Pool))

	errRollback := errors.New("trigger rollback")
	err := db.WithTx(ctx, tdb.Pool, func(txCtx context.Context) error {
		if _, err := svc.Create(txCtx, highRiskInput(), nil, nil); err != nil {
			return err
		}
		return errRollback
	})
	if err == nil {
		t.Fatal("expected WithTx to propagate the callback error")
	}

	_, total, err := svc.List(ctx, assessment.ListFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("list after rollback: %v", err)
	}
	if total != 0 {
		t.Errorf("rolled-back create is visible: total = %d, want 0", total)
	}
}

func TestSeederPopulatesHistory(t *testing.T) {
	tdb := requireDB(t)
	ctx := context.Background()
	truncateAssessments(t, ctx)

	svc := assessment.NewService(assessment.NewRepoPG(tdb.Pool))
	seeder := sandbox.NewSeeder(svc, tdb.Pool, sandbox.SeedConfig{Count: 20, Seed: 7}, zerolog.Nop())

	result, err := seeder.Seed(ctx)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if result.Created != 20 {
		t.Errorf("created = %d, want 20", result.Created)
	}

	levels := 0
	for _, n := range result.ByRisk {
		levels += n
	}
	if levels != 20 {
		t.Errorf("risk tally sums to %d, want 20", levels)
	}

	_, total, err := svc.List(ctx, assessment.ListFilter{}, 100, 0)
	if err != nil {
		t.Fatalf("list seeded: %v", err)
	}
	if total != 20 {
		t.Errorf("stored total = %d, want 20", total)
	}
}
