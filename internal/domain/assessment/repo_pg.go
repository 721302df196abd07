package assessment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartrisk/heartrisk/internal/platform/db"
	"github.com/heartrisk/heartrisk/internal/platform/fhir"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type assessmentRepoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates a PostgreSQL-backed assessment repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &assessmentRepoPG{pool: pool}
}

func (r *assessmentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const assessmentCols = `id, fhir_id, status, age, sex, resting_bp, cholesterol,
	max_heart_rate, st_depression, chest_pain_type, fasting_blood_sugar,
	exercise_angina, major_vessels, thalassemia, score, risk_level,
	recommendation, subject_ref, note, created_at, updated_at`

func (r *assessmentRepoPG) scanAssessment(row pgx.Row) (*Assessment, error) {
	var a Assessment
	err := row.Scan(&a.ID, &a.FHIRID, &a.Status, &a.Age, &a.Sex, &a.RestingBP, &a.Cholesterol,
		&a.MaxHeartRate, &a.STDepression, &a.ChestPainType, &a.FastingBloodSugar,
		&a.ExerciseAngina, &a.MajorVessels, &a.Thalassemia, &a.Score, &a.RiskLevel,
		&a.Recommendation, &a.SubjectRef, &a.Note, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &a, err
}

func (r *assessmentRepoPG) Create(ctx context.Context, a *Assessment) error {
	a.ID = uuid.New()
	if a.FHIRID == "" {
		a.FHIRID = a.ID.String()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO assessment (id, fhir_id, status, age, sex, resting_bp, cholesterol,
			max_heart_rate, st_depression, chest_pain_type, fasting_blood_sugar,
			exercise_angina, major_vessels, thalassemia, score, risk_level,
			recommendation, subject_ref, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		a.ID, a.FHIRID, a.Status, a.Age, a.Sex, a.RestingBP, a.Cholesterol,
		a.MaxHeartRate, a.STDepression, a.ChestPainType, a.FastingBloodSugar,
		a.ExerciseAngina, a.MajorVessels, a.Thalassemia, a.Score, a.RiskLevel,
		a.Recommendation, a.SubjectRef, a.Note)
	return err
}

func (r *assessmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	return r.scanAssessment(r.conn(ctx).QueryRow(ctx, `SELECT `+assessmentCols+` FROM assessment WHERE id = $1`, id))
}

func (r *assessmentRepoPG) GetByFHIRID(ctx context.Context, fhirID string) (*Assessment, error) {
	return r.scanAssessment(r.conn(ctx).QueryRow(ctx, `SELECT `+assessmentCols+` FROM assessment WHERE fhir_id = $1`, fhirID))
}

// Update writes the mutable fields only; inputs and the computed score are
// immutable once stored.
func (r *assessmentRepoPG) Update(ctx context.Context, a *Assessment) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE assessment SET status=$2, subject_ref=$3, note=$4, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.Status, a.SubjectRef, a.Note)
	return err
}

func (r *assessmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM assessment WHERE id = $1`, id)
	return err
}

func (r *assessmentRepoPG) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Assessment, int, error) {
	qb := fhir.NewSearchQuery("assessment", assessmentCols)
	if filter.RiskLevel != "" {
		qb.Add(fmt.Sprintf("risk_level = $%d", qb.Idx()), filter.RiskLevel)
	}
	if filter.From != nil {
		qb.Add(fmt.Sprintf("created_at >= $%d", qb.Idx()), *filter.From)
	}
	if filter.To != nil {
		qb.Add(fmt.Sprintf("created_at <= $%d", qb.Idx()), *filter.To)
	}
	qb.OrderBy("created_at DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, qb.DataSQL(limit, offset), qb.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Assessment
	for rows.Next() {
		a, err := r.scanAssessment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, nil
}

var assessmentSearchParams = map[string]fhir.SearchParamConfig{
	"date":        {Type: fhir.SearchParamDate, Column: "created_at"},
	"probability": {Type: fhir.SearchParamNumber, Column: "score"},
	"risk":        {Type: fhir.SearchParamToken, Column: "risk_level"},
	"status":      {Type: fhir.SearchParamToken, Column: "status"},
	"subject":     {Type: fhir.SearchParamString, Column: "subject_ref"},
}

func (r *assessmentRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Assessment, int, error) {
	qb := fhir.NewSearchQuery("assessment", assessmentCols)
	qb.ApplyParams(params, assessmentSearchParams)
	qb.ApplySort(params["_sort"], "created_at DESC", assessmentSearchParams)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, qb.DataSQL(limit, offset), qb.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Assessment
	for rows.Next() {
		a, err := r.scanAssessment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, nil
}
