package rentalrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/reysilvaa/rosantibike-motorent/core"
	"github.com/reysilvaa/rosantibike-motorent/core/rental"
	"github.com/reysilvaa/rosantibike-motorent/db"
	"github.com/rs/zerolog/log"

	lru "github.com/hashicorp/golang-lru"
)

type dbRepo struct {
	conn  core.Conn
	types *lru.Cache
}

func NewPostgresRepo(conn core.Conn) rental.Repository {
	l, err := lru.New(128)
	if err != nil {
		log.Warn().Err(err).Msg("unable to configure cache")
	}
	return &dbRepo{
		conn:  conn,
		types: l,
	}
}

func (d *dbRepo) BeginTransaction(ctx context.Context) (core.Transaction, error) {
	tx, err := d.conn.Begin(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return tx, nil
}

const unitColumns = `u.id, u.plate_number, u.daily_rate, u.status, u.created_at, u.updated_at,
	COALESCE(t.id, 0), COALESCE(t.merk, ''), COALESCE(t.model, ''), COALESCE(t.cc, 0)`

func selectUnits() squirrel.SelectBuilder {
	return db.Builder.Select(unitColumns).
		From("motor_units u").
		LeftJoin("motor_types t ON t.id = u.type_id")
}

// lockUnits locks only the unit rows; the joined type is never written under a unit lock.
func lockUnits(b squirrel.SelectBuilder, forUpdate string) squirrel.SelectBuilder {
	if forUpdate == "" {
		return b
	}
	return b.Suffix(forUpdate + " OF u")
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUnit(row scanner) (rental.MotorUnit, error) {
	u := rental.MotorUnit{}
	var status string
	err := row.Scan(&u.ID, &u.PlateNumber, &u.DailyRate, &status, &u.Created, &u.Updated,
		&u.Type.ID, &u.Type.Merk, &u.Type.Model, &u.Type.CC)
	u.Status = rental.UnitStatus(status)
	return u, err
}

func (d *dbRepo) GetUnit(ctx context.Context, ID uint64, options ...core.QueryOptions) (rental.MotorUnit, error) {
	m := db.StartMetric("GetUnit")
	tx, forUpdate := db.GetQueryOptions(d.conn, options...)

	query, args, err := lockUnits(selectUnits().Where(squirrel.Eq{"u.id": ID}), forUpdate).ToSql()
	if err != nil {
		m.Complete(err)
		return rental.MotorUnit{}, errors.WithStack(err)
	}

	u, err := scanUnit(tx.QueryRow(ctx, query, args...))
	m.Complete(err)
	if err != nil {
		return rental.MotorUnit{}, db.NotFound(err)
	}
	return u, nil
}

func (d *dbRepo) GetUnits(ctx context.Context, unitOptions rental.UnitListOptions, limit, offset int, options ...core.QueryOptions) ([]rental.MotorUnit, error) {
	m := db.StartMetric("GetUnits")
	tx, forUpdate := db.GetQueryOptions(d.conn, options...)

	b := selectUnits().OrderBy("u.id")
	if unitOptions.TypeID != 0 {
		b = b.Where(squirrel.Eq{"u.type_id": unitOptions.TypeID})
	}
	if unitOptions.Status != "" {
		b = b.Where(squirrel.Eq{"u.status": string(unitOptions.Status)})
	}
	b = page(b, limit, offset)

	query, args, err := lockUnits(b, forUpdate).ToSql()
	if err != nil {
		m.Complete(err)
		return nil, errors.WithStack(err)
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		m.Complete(err)
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	units := make([]rental.MotorUnit, 0)
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			m.Complete(err)
			return nil, errors.WithStack(err)
		}
		units = append(units, u)
	}
	if err = rows.Err(); err != nil {
		m.Complete(err)
		return nil, errors.WithStack(err)
	}

	m.Complete(nil)
	return units, nil
}

type typeKey struct {
	merk  string
	model string
	cc    int
}

func (d *dbRepo) SaveMotorType(ctx context.Context, motorType *rental.MotorType, options ...core.UpdateOptions) error {
	m := db.StartMetric("SaveMotorType")
	tx := db.GetUpdateOptions(d.conn, options...)

	key := typeKey{merk: motorType.Merk, model: motorType.Model, cc: motorType.CC}
	if motorType.ID == 0 {
		if cached, ok := d.cachedType(key); ok {
			motorType.ID = cached.ID
			m.Complete(nil)
			return nil
		}
	}

	var err error
	if motorType.ID == 0 {
		err = tx.QueryRow(ctx, `
			INSERT INTO motor_types (merk, model, cc)
			                 VALUES ($1, $2, $3)
			ON CONFLICT (merk, model, cc) DO UPDATE SET merk = EXCLUDED.merk
			RETURNING id;`,
			motorType.Merk, motorType.Model, motorType.CC).Scan(&motorType.ID)
	} else {
		_, err = tx.Exec(ctx, `
			INSERT INTO motor_types (id, merk, model, cc)
			                 VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET merk = $2, model = $3, cc = $4;`,
			motorType.ID, motorType.Merk, motorType.Model, motorType.CC)
		if err == nil {
			err = d.syncSequence(ctx, tx, "motor_types")
		}
	}
	m.Complete(err)
	if err != nil {
		return errors.WithStack(err)
	}

	if d.types != nil {
		d.types.Add(key, *motorType)
	}
	return nil
}

func (d *dbRepo) cachedType(key typeKey) (rental.MotorType, bool) {
	if d.types == nil {
		return rental.MotorType{}, false
	}
	v, ok := d.types.Get(key)
	if !ok {
		return rental.MotorType{}, false
	}
	t, ok := v.(rental.MotorType)
	return t, ok
}

func (d *dbRepo) SaveUnit(ctx context.Context, unit *rental.MotorUnit, options ...core.UpdateOptions) error {
	m := db.StartMetric("SaveUnit")
	tx := db.GetUpdateOptions(d.conn, options...)

	var typeID interface{}
	if unit.Type.ID != 0 {
		typeID = unit.Type.ID
	}

	var err error
	if unit.ID == 0 {
		err = tx.QueryRow(ctx, `
			INSERT INTO motor_units (type_id, plate_number, daily_rate, status, created_at, updated_at)
			                 VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id;`,
			typeID, unit.PlateNumber, unit.DailyRate, string(unit.Status), unit.Created, unit.Updated).Scan(&unit.ID)
	} else {
		_, err = tx.Exec(ctx, `
			INSERT INTO motor_units (id, type_id, plate_number, daily_rate, status, created_at, updated_at)
			                 VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE
			    SET type_id = $2, plate_number = $3, daily_rate = $4, status = $5, updated_at = $7;`,
			unit.ID, typeID, unit.PlateNumber, unit.DailyRate, string(unit.Status), unit.Created, unit.Updated)
		if err == nil {
			err = d.syncSequence(ctx, tx, "motor_units")
		}
	}
	m.Complete(err)
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// syncSequence moves a serial id sequence past ids inserted explicitly by the catalog.
func (d *dbRepo) syncSequence(ctx context.Context, tx core.Conn, table string) error {
	_, err := tx.Exec(ctx, fmt.Sprintf(
		`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), GREATEST((SELECT MAX(id) FROM %[1]s), 1));`, table))
	return err
}

func (d *dbRepo) UpdateUnitStatus(ctx context.Context, ID uint64, status rental.UnitStatus, updated time.Time, options ...core.UpdateOptions) error {
	m := db.StartMetric("UpdateUnitStatus")
	tx := db.GetUpdateOptions(d.conn, options...)

	ct, err := tx.Exec(ctx, `UPDATE motor_units SET status = $2, updated_at = $3 WHERE id = $1;`,
		ID, string(status), updated)
	m.Complete(err)
	if err != nil {
		return errors.WithStack(err)
	}
	if ct.RowsAffected() == 0 {
		return errors.WithStack(core.ErrNotFound)
	}
	return nil
}

func page(b squirrel.SelectBuilder, limit, offset int) squirrel.SelectBuilder {
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	if offset > 0 {
		b = b.Offset(uint64(offset))
	}
	return b
}
