package rentalrepo

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/reysilvaa/rosantibike-motorent/core"
	"github.com/reysilvaa/rosantibike-motorent/core/rental"
	"github.com/reysilvaa/rosantibike-motorent/db"
)

const transactionColumns = `id, renter_name, renter_phone, unit_id, start_at, end_at, start_time, end_time, status,
	total_price, denda, helmets, raincoats, price_override, completed_at, created_at, updated_at`

func selectTransactions() squirrel.SelectBuilder {
	return db.Builder.Select(transactionColumns).From("rental_transactions")
}

func withLock(b squirrel.SelectBuilder, forUpdate string) squirrel.SelectBuilder {
	if forUpdate == "" {
		return b
	}
	return b.Suffix(forUpdate)
}

func scanTransaction(row scanner) (rental.Transaction, error) {
	t := rental.Transaction{}
	var status string
	err := row.Scan(&t.ID, &t.RenterName, &t.RenterPhone, &t.UnitID, &t.Start, &t.End, &t.StartTime, &t.EndTime,
		&status, &t.TotalPrice, &t.Denda, &t.Helmets, &t.Raincoats, &t.PriceOverride, &t.CompletedAt,
		&t.Created, &t.Updated)
	t.Status = rental.Status(status)
	return t, err
}

func (d *dbRepo) GetTransaction(ctx context.Context, ID uint64, options ...core.QueryOptions) (rental.Transaction, error) {
	m := db.StartMetric("GetTransaction")
	tx, forUpdate := db.GetQueryOptions(d.conn, options...)

	query, args, err := withLock(selectTransactions().Where(squirrel.Eq{"id": ID}), forUpdate).ToSql()
	if err != nil {
		m.Complete(err)
		return rental.Transaction{}, errors.WithStack(err)
	}

	t, err := scanTransaction(tx.QueryRow(ctx, query, args...))
	m.Complete(err)
	if err != nil {
		return rental.Transaction{}, db.NotFound(err)
	}
	return t, nil
}

func (d *dbRepo) GetTransactions(ctx context.Context, listOptions rental.ListOptions, limit, offset int, options ...core.QueryOptions) ([]rental.Transaction, error) {
	m := db.StartMetric("GetTransactions")
	tx, forUpdate := db.GetQueryOptions(d.conn, options...)

	b := selectTransactions().OrderBy("start_at", "id")
	if listOptions.UnitID != 0 {
		b = b.Where(squirrel.Eq{"unit_id": listOptions.UnitID})
	}
	if len(listOptions.Statuses) > 0 {
		statuses := make([]string, 0, len(listOptions.Statuses))
		for _, s := range listOptions.Statuses {
			statuses = append(statuses, string(s))
		}
		b = b.Where(squirrel.Eq{"status": statuses})
	}
	if listOptions.From != nil {
		b = b.Where(squirrel.GtOrEq{"end_at": *listOptions.From})
	}
	if listOptions.To != nil {
		b = b.Where(squirrel.LtOrEq{"start_at": *listOptions.To})
	}
	b = page(b, limit, offset)

	query, args, err := withLock(b, forUpdate).ToSql()
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

	list := make([]rental.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			m.Complete(err)
			return nil, errors.WithStack(err)
		}
		list = append(list, t)
	}
	if err = rows.Err(); err != nil {
		m.Complete(err)
		return nil, errors.WithStack(err)
	}

	m.Complete(nil)
	return list, nil
}

func (d *dbRepo) GetLatestCompletedTransaction(ctx context.Context, unitID uint64, options ...core.QueryOptions) (rental.Transaction, error) {
	m := db.StartMetric("GetLatestCompletedTransaction")
	tx, forUpdate := db.GetQueryOptions(d.conn, options...)

	b := selectTransactions().
		Where(squirrel.Eq{"unit_id": unitID, "status": string(rental.Completed)}).
		Where(squirrel.NotEq{"completed_at": nil}).
		OrderBy("completed_at DESC").
		Limit(1)

	query, args, err := withLock(b, forUpdate).ToSql()
	if err != nil {
		m.Complete(err)
		return rental.Transaction{}, errors.WithStack(err)
	}

	t, err := scanTransaction(tx.QueryRow(ctx, query, args...))
	m.Complete(err)
	if err != nil {
		return rental.Transaction{}, db.NotFound(err)
	}
	return t, nil
}

func (d *dbRepo) SaveTransaction(ctx context.Context, t *rental.Transaction, options ...core.UpdateOptions) error {
	m := db.StartMetric("SaveTransaction")
	tx := db.GetUpdateOptions(d.conn, options...)

	query, args, err := db.Builder.Insert("rental_transactions").
		Columns("renter_name", "renter_phone", "unit_id", "start_at", "end_at", "start_time", "end_time", "status",
			"total_price", "denda", "helmets", "raincoats", "price_override", "completed_at", "created_at", "updated_at").
		Values(t.RenterName, t.RenterPhone, t.UnitID, t.Start, t.End, t.StartTime, t.EndTime, string(t.Status),
			t.TotalPrice, t.Denda, t.Helmets, t.Raincoats, t.PriceOverride, t.CompletedAt, t.Created, t.Updated).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		m.Complete(err)
		return errors.WithStack(err)
	}

	err = tx.QueryRow(ctx, query, args...).Scan(&t.ID)
	m.Complete(err)
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (d *dbRepo) UpdateTransaction(ctx context.Context, t rental.Transaction, options ...core.UpdateOptions) error {
	m := db.StartMetric("UpdateTransaction")
	tx := db.GetUpdateOptions(d.conn, options...)

	query, args, err := db.Builder.Update("rental_transactions").
		SetMap(map[string]interface{}{
			"renter_name":    t.RenterName,
			"renter_phone":   t.RenterPhone,
			"unit_id":        t.UnitID,
			"start_at":       t.Start,
			"end_at":         t.End,
			"start_time":     t.StartTime,
			"end_time":       t.EndTime,
			"status":         string(t.Status),
			"total_price":    t.TotalPrice,
			"denda":          t.Denda,
			"helmets":        t.Helmets,
			"raincoats":      t.Raincoats,
			"price_override": t.PriceOverride,
			"completed_at":   t.CompletedAt,
			"updated_at":     t.Updated,
		}).
		Where(squirrel.Eq{"id": t.ID}).
		ToSql()
	if err != nil {
		m.Complete(err)
		return errors.WithStack(err)
	}

	ct, err := tx.Exec(ctx, query, args...)
	m.Complete(err)
	if err != nil {
		return errors.WithStack(err)
	}
	if ct.RowsAffected() == 0 {
		return errors.WithStack(core.ErrNotFound)
	}
	return nil
}

func (d *dbRepo) DeleteTransaction(ctx context.Context, ID uint64, options ...core.UpdateOptions) error {
	m := db.StartMetric("DeleteTransaction")
	tx := db.GetUpdateOptions(d.conn, options...)

	ct, err := tx.Exec(ctx, `DELETE FROM rental_transactions WHERE id = $1;`, ID)
	m.Complete(err)
	if err != nil {
		return errors.WithStack(err)
	}
	if ct.RowsAffected() == 0 {
		return errors.WithStack(core.ErrNotFound)
	}
	return nil
}
