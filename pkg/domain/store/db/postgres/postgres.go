package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	kpool "github.com/opst/knitfleet/pkg/conn/db/postgres/pool"
	"github.com/opst/knitfleet/pkg/domain"
	pgerr "github.com/opst/knitfleet/pkg/domain/errors/dberrors/postgres"
	kdb "github.com/opst/knitfleet/pkg/domain/store/db"
	xe "github.com/opst/knitfleet/pkg/errors"
)

type pgStore struct {
	reader
	pool kpool.Pool
}

var _ kdb.Interface = &pgStore{}

func New(pool kpool.Pool) kdb.Interface {
	return &pgStore{reader: reader{q: pool}, pool: pool}
}

func (s *pgStore) Begin(ctx context.Context) (kdb.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return &pgTx{reader: reader{q: tx}, tx: tx}, nil
}

type reader struct {
	q kpool.Queryer
}

const componentColumns = `
	"component_id", "instance_id", "name", "kind", "settings",
	"enabled", "url", "created_at", "updated_at"`

func scanComponent(row pgx.Row) (domain.Component, error) {
	var kind string
	var settings pgtype.JSONB
	var url pgtype.Text
	c := domain.Component{}
	if err := row.Scan(
		&c.Id, &c.InstanceId, &c.Name, &kind, &settings,
		&c.Enabled, &url, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return domain.Component{}, err
	}

	k, err := domain.AsKind(kind)
	if err != nil {
		return domain.Component{}, xe.Wrap(err)
	}
	c.Kind = k

	s, err := domain.UnmarshalSettings(k, settings.Bytes)
	if err != nil {
		return domain.Component{}, err
	}
	c.Settings = s

	if url.Status == pgtype.Present {
		u := url.String
		c.URL = &u
	}
	return c, nil
}

func scanComponents(rows pgx.Rows) ([]domain.Component, error) {
	defer rows.Close()
	cs := []domain.Component{}
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, xe.Wrap(err)
		}
		cs = append(cs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, xe.Wrap(err)
	}
	return cs, nil
}

func (r reader) GetInstance(ctx context.Context, instanceId string) (domain.Instance, error) {
	i := domain.Instance{}
	if err := r.q.QueryRow(
		ctx,
		`
		select
			"i"."instance_id", "i"."environment_id", "i"."image", "i"."version", "i"."enabled",
			"a"."application_id", "a"."name"
		from "instance" as "i"
		inner join "application" as "a" using ("application_id")
		where "i"."instance_id" = $1
		`,
		instanceId,
	).Scan(
		&i.Id, &i.EnvironmentId, &i.Image, &i.Version, &i.Enabled,
		&i.Application.Id, &i.Application.Name,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Instance{}, xe.Wrap(pgerr.Missing{Table: "instance", Identity: instanceId})
		}
		return domain.Instance{}, xe.Wrap(err)
	}
	return i, nil
}

func (r reader) GetComponent(ctx context.Context, componentId string) (domain.Component, error) {
	c, err := scanComponent(r.q.QueryRow(
		ctx,
		`select `+componentColumns+` from "component" where "component_id" = $1`,
		componentId,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Component{}, xe.Wrap(pgerr.Missing{Table: "component", Identity: componentId})
		}
		return domain.Component{}, xe.Wrap(err)
	}
	return c, nil
}

func (r reader) FindComponents(ctx context.Context, kind domain.Kind) ([]domain.Component, error) {
	rows, err := r.q.Query(
		ctx,
		`select `+componentColumns+` from "component" where "kind" = $1
		order by "created_at", "component_id"`,
		string(kind),
	)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return scanComponents(rows)
}

func (r reader) FindComponentsByInstance(ctx context.Context, instanceId string) ([]domain.Component, error) {
	rows, err := r.q.Query(
		ctx,
		`select `+componentColumns+` from "component" where "instance_id" = $1
		order by "name"`,
		instanceId,
	)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return scanComponents(rows)
}

func (r reader) GetCluster(ctx context.Context, clusterId string) (domain.Cluster, error) {
	c := domain.Cluster{}
	if err := r.q.QueryRow(
		ctx,
		`
		select "cluster_id", "name", "api_address", "token", "environment_id"
		from "cluster" where "cluster_id" = $1
		`,
		clusterId,
	).Scan(&c.Id, &c.Name, &c.APIAddress, &c.Token, &c.EnvironmentId); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Cluster{}, xe.Wrap(pgerr.Missing{Table: "cluster", Identity: clusterId})
		}
		return domain.Cluster{}, xe.Wrap(err)
	}
	return c, nil
}

func (r reader) FindClustersByEnvironment(ctx context.Context, environmentId string) ([]domain.Cluster, error) {
	rows, err := r.q.Query(
		ctx,
		`
		select "cluster_id", "name", "api_address", "token", "environment_id"
		from "cluster" where "environment_id" = $1
		order by "name"
		`,
		environmentId,
	)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer rows.Close()

	cs := []domain.Cluster{}
	for rows.Next() {
		c := domain.Cluster{}
		if err := rows.Scan(&c.Id, &c.Name, &c.APIAddress, &c.Token, &c.EnvironmentId); err != nil {
			return nil, xe.Wrap(err)
		}
		cs = append(cs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, xe.Wrap(err)
	}
	return cs, nil
}

func (r reader) FindSettingsByEnvironment(ctx context.Context, environmentId string) ([]domain.Setting, error) {
	rows, err := r.q.Query(
		ctx,
		`
		select "setting_id", "environment_id", "key", "value", "description"
		from "setting" where "environment_id" = $1
		order by "key"
		`,
		environmentId,
	)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer rows.Close()

	ss := []domain.Setting{}
	for rows.Next() {
		s := domain.Setting{}
		if err := rows.Scan(&s.Id, &s.EnvironmentId, &s.Key, &s.Value, &s.Description); err != nil {
			return nil, xe.Wrap(err)
		}
		ss = append(ss, s)
	}
	if err := rows.Err(); err != nil {
		return nil, xe.Wrap(err)
	}
	return ss, nil
}

func (r reader) FindPlacementByComponent(ctx context.Context, componentId string) (domain.Placement, bool, error) {
	p := domain.Placement{}
	if err := r.q.QueryRow(
		ctx,
		`
		select "placement_id", "component_id", "cluster_id", "created_at"
		from "placement" where "component_id" = $1
		`,
		componentId,
	).Scan(&p.Id, &p.ComponentId, &p.ClusterId, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Placement{}, false, nil
		}
		return domain.Placement{}, false, xe.Wrap(err)
	}
	return p, true, nil
}

type pgTx struct {
	reader
	tx kpool.Tx
}

var _ kdb.Tx = &pgTx{}

func (t *pgTx) Commit(ctx context.Context) error {
	return xe.Wrap(t.tx.Commit(ctx))
}

func (t *pgTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return xe.Wrap(err)
	}
	return nil
}

func (t *pgTx) LockComponent(ctx context.Context, componentId string) (domain.Component, error) {
	c, err := scanComponent(t.q.QueryRow(
		ctx,
		`select `+componentColumns+` from "component" where "component_id" = $1 for update`,
		componentId,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Component{}, xe.Wrap(pgerr.Missing{Table: "component", Identity: componentId})
		}
		return domain.Component{}, xe.Wrap(err)
	}
	return c, nil
}

func componentParams(c domain.Component) (pgtype.JSONB, pgtype.Text, error) {
	doc, err := domain.MarshalSettings(c.Settings)
	if err != nil {
		return pgtype.JSONB{}, pgtype.Text{}, err
	}
	settings := pgtype.JSONB{Bytes: doc, Status: pgtype.Present}

	url := pgtype.Text{Status: pgtype.Null}
	if c.URL != nil {
		url = pgtype.Text{String: *c.URL, Status: pgtype.Present}
	}
	return settings, url, nil
}

// translate constraint violations into domain errors.
func asDomainError(err error, table string, missing string) error {
	if pe := new(pgconn.PgError); errors.As(err, &pe) {
		switch pe.Code {
		case pgerrcode.UniqueViolation:
			return xe.WrapAsOuter(pgerr.Conflict{Table: table, Constraint: pe.ConstraintName}, 1)
		case pgerrcode.ForeignKeyViolation:
			return xe.WrapAsOuter(pgerr.Missing{Table: pe.TableName, Identity: missing}, 1)
		}
	}
	return xe.WrapAsOuter(err, 1)
}

func (t *pgTx) CreateComponent(ctx context.Context, c domain.Component) (domain.Component, error) {
	settings, url, err := componentParams(c)
	if err != nil {
		return domain.Component{}, err
	}

	var createdAt, updatedAt time.Time
	if err := t.q.QueryRow(
		ctx,
		`
		insert into "component"
			("component_id", "instance_id", "name", "kind", "settings", "enabled", "url")
		values ($1, $2, $3, $4, $5, $6, $7)
		returning "created_at", "updated_at"
		`,
		c.Id, c.InstanceId, c.Name, string(c.Kind), settings, c.Enabled, url,
	).Scan(&createdAt, &updatedAt); err != nil {
		return domain.Component{}, asDomainError(err, "component", c.InstanceId)
	}

	c.CreatedAt = createdAt
	c.UpdatedAt = updatedAt
	return c, nil
}

func (t *pgTx) UpdateComponent(ctx context.Context, c domain.Component) (domain.Component, error) {
	settings, url, err := componentParams(c)
	if err != nil {
		return domain.Component{}, err
	}

	var createdAt, updatedAt time.Time
	if err := t.q.QueryRow(
		ctx,
		`
		update "component"
		set "name" = $2, "settings" = $3, "enabled" = $4, "url" = $5, "updated_at" = now()
		where "component_id" = $1
		returning "created_at", "updated_at"
		`,
		c.Id, c.Name, settings, c.Enabled, url,
	).Scan(&createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Component{}, xe.Wrap(pgerr.Missing{Table: "component", Identity: c.Id})
		}
		return domain.Component{}, asDomainError(err, "component", c.Id)
	}

	c.CreatedAt = createdAt
	c.UpdatedAt = updatedAt
	return c, nil
}

func (t *pgTx) DeleteComponent(ctx context.Context, componentId string) error {
	ctag, err := t.q.Exec(
		ctx, `delete from "component" where "component_id" = $1`, componentId,
	)
	if err != nil {
		return xe.Wrap(err)
	}
	if ctag.RowsAffected() == 0 {
		return xe.Wrap(pgerr.Missing{Table: "component", Identity: componentId})
	}
	return nil
}

func (t *pgTx) CreatePlacement(ctx context.Context, p domain.Placement) (domain.Placement, error) {
	if err := t.q.QueryRow(
		ctx,
		`
		insert into "placement" ("placement_id", "component_id", "cluster_id")
		values ($1, $2, $3)
		on conflict ("component_id") do nothing
		returning "created_at"
		`,
		p.Id, p.ComponentId, p.ClusterId,
	).Scan(&p.CreatedAt); err != nil {
		// "do nothing" keeps the transaction alive, so callers can read the existing one.
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Placement{}, xe.Wrap(pgerr.Conflict{
				Table: "placement", Constraint: "placement_component_unique",
			})
		}
		return domain.Placement{}, asDomainError(err, "placement", p.ComponentId)
	}
	return p, nil
}

func (t *pgTx) DeletePlacement(ctx context.Context, componentId string) error {
	if _, err := t.q.Exec(
		ctx, `delete from "placement" where "component_id" = $1`, componentId,
	); err != nil {
		return xe.Wrap(err)
	}
	return nil
}
