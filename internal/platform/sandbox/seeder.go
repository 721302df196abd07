// Package sandbox provides synthetic assessment generation for sandbox/demo
// environments. It produces reproducible, clinically plausible submissions
// suitable for integration testing, developer on-boarding, and UI demos.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/heartrisk/heartrisk/internal/domain/assessment"
	"github.com/heartrisk/heartrisk/internal/platform/db"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls the volume and shape of generated synthetic assessments.
type SeedConfig struct {
	Count         int    `json:"count"`
	Seed          int64  `json:"seed"`
	SubjectPrefix string `json:"subjectPrefix"`
	BatchSize     int    `json:"batchSize"`
}

// DefaultSeedConfig returns a SeedConfig with sensible demo defaults.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Count:         50,
		SubjectPrefix: "Patient/demo",
		BatchSize:     100,
	}
}

func (c SeedConfig) withDefaults() SeedConfig {
	d := DefaultSeedConfig()
	if c.Count <= 0 {
		c.Count = d.Count
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = d.SubjectPrefix
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	return c
}

// SeedResult summarizes the output of a seed run.
type SeedResult struct {
	Created  int            `json:"created"`
	ByRisk   map[string]int `json:"byRisk"`
	Duration time.Duration  `json:"duration"`
}

// ---------------------------------------------------------------------------
// Generator
// ---------------------------------------------------------------------------

// Feature distributions approximate the Cleveland heart disease cohort, so
// seeded data spreads across all three risk bands instead of clustering.
var (
	chestPainWeights = []int{47, 17, 29, 7} // typical, atypical, non-anginal, asymptomatic
	vesselWeights    = []int{59, 22, 13, 6}
	thalWeights      = []int{55, 6, 39} // normal, fixed defect, reversible defect
)

var notePool = []string{
	"Routine cardiology follow-up.",
	"Referred from primary care for elevated blood pressure.",
	"Annual wellness visit screening.",
	"Post-exercise stress test review.",
	"Lipid management follow-up.",
}

// Generator produces deterministic synthetic risk submissions.
type Generator struct {
	rng     *rand.Rand
	counter int
	prefix  string
}

// NewGenerator returns a generator seeded for reproducibility. If seed is 0 a
// time-based seed is chosen.
func NewGenerator(seed int64, subjectPrefix string) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		rng:    rand.New(rand.NewSource(seed)),
		prefix: subjectPrefix,
	}
}

func (g *Generator) gaussInt(mean, sd float64, lo, hi int) int {
	v := int(math.Round(g.rng.NormFloat64()*sd + mean))
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}

func (g *Generator) chance(p float64) bool {
	return g.rng.Float64() < p
}

func (g *Generator) weighted(weights []int) int {
	total := 0
	for _, w := range weights {
		total += w
	}
	n := g.rng.Intn(total)
	for i, w := range weights {
		if n < w {
			return i
		}
		n -= w
	}
	return len(weights) - 1
}

// NextInput produces one synthetic submission. Values always pass input
// validation.
func (g *Generator) NextInput() assessment.Input {
	sex := "female"
	if g.chance(0.68) {
		sex = "male"
	}

	st := g.rng.NormFloat64()*1.1 + 1.0
	if st < 0 {
		st = 0
	}
	if st > 6 {
		st = 6
	}

	return assessment.Input{
		Age:               g.gaussInt(54, 9, 29, 77),
		Sex:               sex,
		RestingBP:         g.gaussInt(131, 17, 94, 200),
		Cholesterol:       g.gaussInt(246, 51, 126, 564),
		MaxHeartRate:      g.gaussInt(149, 22, 71, 202),
		STDepression:      math.Round(st*10) / 10,
		ChestPainType:     g.weighted(chestPainWeights),
		FastingBloodSugar: g.chance(0.15),
		ExerciseAngina:    g.chance(0.33),
		MajorVessels:      g.weighted(vesselWeights),
		Thalassemia:       g.weighted(thalWeights),
	}
}

// NextSubject returns the next sequential subject reference, e.g.
// "Patient/demo-0001".
func (g *Generator) NextSubject() string {
	g.counter++
	return fmt.Sprintf("%s-%04d", g.prefix, g.counter)
}

func (g *Generator) maybeNote() *string {
	if !g.chance(0.25) {
		return nil
	}
	n := notePool[g.rng.Intn(len(notePool))]
	return &n
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// Seeder generates synthetic assessments and stores them through the
// assessment service.
type Seeder struct {
	svc    *assessment.Service
	pool   *pgxpool.Pool
	gen    *Generator
	cfg    SeedConfig
	logger zerolog.Logger
}

func NewSeeder(svc *assessment.Service, pool *pgxpool.Pool, cfg SeedConfig, logger zerolog.Logger) *Seeder {
	cfg = cfg.withDefaults()
	return &Seeder{
		svc:    svc,
		pool:   pool,
		gen:    NewGenerator(cfg.Seed, cfg.SubjectPrefix),
		cfg:    cfg,
		logger: logger,
	}
}

// Seed generates and stores cfg.Count synthetic assessments. Each batch runs
// in a single transaction so a failure never leaves a partial batch behind.
func (s *Seeder) Seed(ctx context.Context) (*SeedResult, error) {
	start := time.Now()
	result := &SeedResult{ByRisk: make(map[string]int)}

	for done := 0; done < s.cfg.Count; {
		n := s.cfg.BatchSize
		if remaining := s.cfg.Count - done; remaining < n {
			n = remaining
		}

		err := db.WithTx(ctx, s.pool, func(ctx context.Context) error {
			for i := 0; i < n; i++ {
				subject := s.gen.NextSubject()
				a, err := s.svc.Create(ctx, s.gen.NextInput(), &subject, s.gen.maybeNote())
				if err != nil {
					return fmt.Errorf("seed assessment %d: %w", done+i+1, err)
				}
				result.Created++
				result.ByRisk[a.RiskLevel]++
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		done += n

		s.logger.Debug().Int("done", done).Int("total", s.cfg.Count).Msg("seed batch committed")
	}

	result.Duration = time.Since(start)
	s.logger.Info().
		Int("created", result.Created).
		Interface("by_risk", result.ByRisk).
		Dur("duration", result.Duration).
		Msg("sandbox seed complete")
	return result, nil
}

// ---------------------------------------------------------------------------
// Export
// ---------------------------------------------------------------------------

// ExportNDJSON writes cfg.Count generated assessments as newline-delimited
// FHIR RiskAssessment resources without persisting anything. Dry runs of the
// seed command use this to preview synthetic data when no database is wired.
func ExportNDJSON(w io.Writer, cfg SeedConfig) error {
	cfg = cfg.withDefaults()
	gen := NewGenerator(cfg.Seed, cfg.SubjectPrefix)
	enc := json.NewEncoder(w)
	now := time.Now().UTC()

	for i := 0; i < cfg.Count; i++ {
		in := gen.NextInput()
		r := assessment.Evaluate(in)
		subject := gen.NextSubject()

		a := assessment.Assessment{
			FHIRID:            fmt.Sprintf("demo-%04d", i+1),
			Status:            "final",
			Age:               in.Age,
			Sex:               in.Sex,
			RestingBP:         in.RestingBP,
			Cholesterol:       in.Cholesterol,
			MaxHeartRate:      in.MaxHeartRate,
			STDepression:      in.STDepression,
			ChestPainType:     in.ChestPainType,
			FastingBloodSugar: in.FastingBloodSugar,
			ExerciseAngina:    in.ExerciseAngina,
			MajorVessels:      in.MajorVessels,
			Thalassemia:       in.Thalassemia,
			Score:             r.Score,
			RiskLevel:         r.RiskLevel,
			Recommendation:    r.Recommendation,
			SubjectRef:        &subject,
			Note:              gen.maybeNote(),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := enc.Encode(a.ToFHIR()); err != nil {
			return fmt.Errorf("encoding resource %d: %w", i+1, err)
		}
	}
	return nil
}
