package sql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iranianx/rate/storage/types"
)

type Storage struct {
	pool *pgxpool.Pool
}

func NewStorage(pool *pgxpool.Pool) *Storage {
	return &Storage{
		pool: pool,
	}
}

func (s *Storage) SaveSample(ctx context.Context, sample *types.Sample) error {
	_, err := s.pool.Exec(
		ctx,
		`INSERT INTO samples (kind, source, value, link, excerpt, taken_at, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (kind, source, taken_at) DO UPDATE
		 SET value = EXCLUDED.value, link = EXCLUDED.link,
		     excerpt = EXCLUDED.excerpt, fetched_at = EXCLUDED.fetched_at`,
		sample.Kind.String(),
		sample.Source.String(),
		floatToNumeric(sample.Value),
		sample.Link,
		sample.Excerpt,
		timeToTimestampz(sample.Time),
		timeToTimestampz(sample.FetchedAt),
	)
	if err != nil {
		return fmt.Errorf("unable to save sample: %w", err)
	}

	return nil
}

func (s *Storage) SamplesSince(
	ctx context.Context,
	kind types.Kind,
	cutoff time.Time,
) ([]*types.Sample, error) {
	rows, err := s.pool.Query(
		ctx,
		`SELECT kind, source, value, link, excerpt, taken_at, fetched_at
		 FROM samples
		 WHERE kind = $1 AND taken_at >= $2
		 ORDER BY taken_at DESC, source ASC`,
		kind.String(),
		timeToTimestampz(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch samples: %w", err)
	}
	defer rows.Close()

	var out []*types.Sample

	for rows.Next() {
		var (
			sample             types.Sample
			value              pgtype.Numeric
			takenAt, fetchedAt pgtype.Timestamptz
		)

		err := rows.Scan(
			&sample.Kind,
			&sample.Source,
			&value,
			&sample.Link,
			&sample.Excerpt,
			&takenAt,
			&fetchedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("unable to scan sample row: %w", err)
		}

		sample.Value = numericToFloat(value)
		sample.Time = timestampzToTime(takenAt)
		sample.FetchedAt = timestampzToTime(fetchedAt)

		out = append(out, &sample)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unable to iterate sample rows: %w", err)
	}

	return out, nil
}

func (s *Storage) SaveRun(ctx context.Context, run *types.RunResult) error {
	deltas, err := json.Marshal(run.Deltas)
	if err != nil {
		return fmt.Errorf("unable to marshal deltas: %w", err)
	}

	verdicts, err := json.Marshal(run.Verdicts)
	if err != nil {
		return fmt.Errorf("unable to marshal verdicts: %w", err)
	}

	spots, err := json.Marshal(run.Spots)
	if err != nil {
		return fmt.Errorf("unable to marshal spots: %w", err)
	}

	_, err = s.pool.Exec(
		ctx,
		`INSERT INTO runs (id, run_at, deltas, verdicts, spots)
		 VALUES ($1, $2, $3, $4, $5)`,
		run.ID,
		timeToTimestampz(run.Time),
		deltas,
		verdicts,
		spots,
	)
	if err != nil {
		return fmt.Errorf("unable to save run: %w", err)
	}

	return nil
}

func (s *Storage) LatestRun(ctx context.Context) (*types.RunResult, error) {
	row := s.pool.QueryRow(
		ctx,
		`SELECT id, run_at, deltas, verdicts, spots
		 FROM runs
		 ORDER BY run_at DESC
		 LIMIT 1`,
	)

	var (
		run   types.RunResult
		runAt pgtype.Timestamptz

		deltas, verdicts, spots []byte
	)

	err := row.Scan(&run.ID, &runAt, &deltas, &verdicts, &spots)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // valid case
		}

		return nil, fmt.Errorf("unable to fetch latest run: %w", err)
	}

	run.Time = timestampzToTime(runAt)

	if err := json.Unmarshal(deltas, &run.Deltas); err != nil {
		return nil, fmt.Errorf("unable to unmarshal deltas: %w", err)
	}

	if err := json.Unmarshal(verdicts, &run.Verdicts); err != nil {
		return nil, fmt.Errorf("unable to unmarshal verdicts: %w", err)
	}

	if err := json.Unmarshal(spots, &run.Spots); err != nil {
		return nil, fmt.Errorf("unable to unmarshal spots: %w", err)
	}

	return &run, nil
}

func (s *Storage) ListSources(ctx context.Context) ([]types.Source, error) {
	rows, err := s.pool.Query(
		ctx,
		`SELECT DISTINCT source FROM samples ORDER BY source ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch sources: %w", err)
	}
	defer rows.Close()

	var out []types.Source

	for rows.Next() {
		var src string

		if err := rows.Scan(&src); err != nil {
			return nil, fmt.Errorf("unable to scan source row: %w", err)
		}

		out = append(out, types.Source(src))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unable to iterate source rows: %w", err)
	}

	return out, nil
}

func (s *Storage) SaveSpot(ctx context.Context, point *types.SpotPoint) error {
	_, err := s.pool.Exec(
		ctx,
		`INSERT INTO spots (code, value, taken_at) VALUES ($1, $2, $3)`,
		point.Code,
		point.Value,
		timeToTimestampz(point.Time),
	)
	if err != nil {
		return fmt.Errorf("unable to save spot point: %w", err)
	}

	return nil
}

func (s *Storage) SpotHistory(
	ctx context.Context,
	code string,
	limit int32,
) (*types.Page[*types.SpotPoint], error) {
	if limit <= 0 {
		limit = 100
	}

	if limit > 500 {
		limit = 500
	}

	rows, err := s.pool.Query(
		ctx,
		`SELECT code, value, taken_at, COUNT(*) OVER () AS total
		 FROM spots
		 WHERE code = $1
		 ORDER BY taken_at DESC
		 LIMIT $2`,
		code,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch spot history: %w", err)
	}
	defer rows.Close()

	var (
		out   []*types.SpotPoint
		total int64
	)

	for rows.Next() {
		var (
			point   types.SpotPoint
			takenAt pgtype.Timestamptz
		)

		if err := rows.Scan(&point.Code, &point.Value, &takenAt, &total); err != nil {
			return nil, fmt.Errorf("unable to scan spot row: %w", err)
		}

		point.Time = timestampzToTime(takenAt)

		out = append(out, &point)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unable to iterate spot rows: %w", err)
	}

	return &types.Page[*types.SpotPoint]{
		Results: out,
		Total:   total,
	}, nil
}

// floatToNumeric converts the float value to postgres numeric
func floatToNumeric(value float64) pgtype.Numeric {
	// round to 4dp and store as integer with exponent -4
	i := int64(math.Round(value * 1e4))

	return pgtype.Numeric{
		Int:   big.NewInt(i),
		Exp:   -4,
		Valid: true,
	}
}

// numericToFloat converts the postgres value to float
func numericToFloat(value pgtype.Numeric) float64 {
	if !value.Valid || value.Int == nil {
		return 0
	}

	f, _ := new(big.Rat).SetInt(value.Int).Float64()

	if value.Exp > 0 {
		f *= math.Pow10(int(value.Exp))
	} else if value.Exp < 0 {
		f /= math.Pow10(int(-value.Exp))
	}

	return f
}

// timeToTimestampz converts the time value to postgres timestamp
func timeToTimestampz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{
		Time:  t.UTC(),
		Valid: true,
	}
}

// timestampzToTime converts the postgres timestamp value to time
func timestampzToTime(ts pgtype.Timestamptz) time.Time {
	if !ts.Valid {
		return time.Time{}
	}

	return ts.Time
}
