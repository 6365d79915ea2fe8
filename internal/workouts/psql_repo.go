package workouts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/healthpulse/internal/activity"
	"github.com/2beens/healthpulse/internal/telemetry/tracing"
	"github.com/2beens/healthpulse/pkg"
)

type PsqlRepo struct {
	db *pgxpool.Pool
}

func NewPsqlRepo(db *pgxpool.Pool) *PsqlRepo {
	return &PsqlRepo{
		db: db,
	}
}

func (r *PsqlRepo) GetProfile(ctx context.Context, username string) (_ *Profile, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.getProfile")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("username", username))

	// profile, goals and entries are read from the same snapshot
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	profile := &Profile{
		Username:   username,
		Goals:      []Goal{},
		Activities: []Entry{},
	}
	if err := tx.QueryRow(
		ctx,
		`SELECT age, height, weight FROM profile WHERE username = $1;`,
		username,
	).Scan(&profile.Age, &profile.Height, &profile.Weight); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("select profile: %w", err)
	}

	goalRows, err := tx.Query(
		ctx,
		`SELECT activity, duration, distance, steps FROM goal
			WHERE username = $1
			ORDER BY created_at, activity_key;`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("select goals: %w", err)
	}
	profile.Goals, err = pgx.CollectRows(goalRows, func(row pgx.CollectableRow) (Goal, error) {
		var g Goal
		err := row.Scan(&g.Activity, &g.Duration, &g.Distance, &g.Steps)
		return g, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect goals: %w", err)
	}

	entryRows, err := tx.Query(
		ctx,
		`SELECT id, activity, entry_date, duration, distance, steps FROM entry
			WHERE username = $1
			ORDER BY entry_date, id;`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}
	profile.Activities, err = pgx.CollectRows(entryRows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.ID, &e.Activity, &e.Date, &e.Duration, &e.Distance, &e.Steps)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect entries: %w", err)
	}

	span.SetAttributes(
		attribute.Int("goals", len(profile.Goals)),
		attribute.Int("entries", len(profile.Activities)),
	)

	return profile, nil
}

func (r *PsqlRepo) UpsertGoal(ctx context.Context, params UpsertGoalParams) (_ *Goal, created bool, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.upsertGoal")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("username", params.Username),
		attribute.String("activity", params.Goal.Activity),
	)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err := tx.Exec(
		ctx,
		`INSERT INTO profile (username, age, height, weight)
				VALUES ($1, COALESCE($2::integer, 0), COALESCE($3::double precision, 0), COALESCE($4::double precision, 0))
			ON CONFLICT (username) DO UPDATE SET
				age = COALESCE($2::integer, profile.age),
				height = COALESCE($3::double precision, profile.height),
				weight = COALESCE($4::double precision, profile.weight);`,
		params.Username, params.Age, params.Height, params.Weight,
	); err != nil {
		return nil, false, fmt.Errorf("upsert profile: %w", err)
	}

	goal := params.Goal
	// xmax is 0 only for freshly inserted rows
	if err := tx.QueryRow(
		ctx,
		`INSERT INTO goal (username, activity, activity_key, duration, distance, steps)
				VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (username, activity_key) DO UPDATE SET
				activity = EXCLUDED.activity,
				duration = EXCLUDED.duration,
				distance = EXCLUDED.distance,
				steps = EXCLUDED.steps,
				updated_at = now()
			RETURNING (xmax = 0) AS inserted;`,
		params.Username, goal.Activity, activity.Key(goal.Activity), goal.Duration, goal.Distance, goal.Steps,
	).Scan(&created); err != nil {
		return nil, false, fmt.Errorf("upsert goal: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}

	span.SetAttributes(attribute.Bool("created", created))
	return &goal, created, nil
}

func (r *PsqlRepo) AppendEntry(ctx context.Context, username string, entry Entry) (_ *Entry, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.appendEntry")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("username", username),
		attribute.String("activity", entry.Activity),
		attribute.String("date", entry.Date.Format("2006-01-02")),
	)

	// the goal check and the insert are one statement, and the unique
	// (username, activity_key, entry_date) index rejects duplicates
	err = r.db.QueryRow(
		ctx,
		`INSERT INTO entry (username, activity, activity_key, entry_date, duration, distance, steps)
			SELECT $1::varchar, $2::varchar, $3::varchar, $4::date, $5::double precision, $6::double precision, $7::integer
			WHERE EXISTS (SELECT 1 FROM goal WHERE username = $1::varchar AND activity_key = $3::varchar)
			RETURNING id;`,
		username, entry.Activity, activity.Key(entry.Activity), entry.Date, entry.Duration, entry.Distance, entry.Steps,
	).Scan(&entry.ID)
	if err != nil {
		if pkg.IsUniqueViolationError(err) {
			return nil, ErrDuplicateEntry
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.noGoalError(ctx, username)
		}
		return nil, fmt.Errorf("insert entry: %w", err)
	}

	span.SetAttributes(attribute.Int("entry.id", entry.ID))
	return &entry, nil
}

func (r *PsqlRepo) noGoalError(ctx context.Context, username string) error {
	var profileExists bool
	if err := r.db.QueryRow(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM profile WHERE username = $1);`,
		username,
	).Scan(&profileExists); err != nil {
		return fmt.Errorf("check profile exists: %w", err)
	}

	if !profileExists {
		return ErrNoGoals
	}
	return ErrNoGoal
}
