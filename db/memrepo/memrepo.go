// Package memrepo keeps units, transactions, scheduled jobs and users in process memory. It backs the
// application when db.inMemory is set and the service tests. Transactions are serialized store wide: a
// transaction holds the store until it commits or rolls back, and a rollback restores the snapshot taken when
// it began. Reads outside a transaction only see committed state, and writes outside one commit on their own
// once no transaction is running.
package memrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/pkg/errors"
	"github.com/reysilvaa/rosantibike-motorent/core"
	"github.com/reysilvaa/rosantibike-motorent/core/rental"
)

var errRawSQL = errors.New("memrepo: raw sql is not supported")

type data struct {
	types        map[uint64]rental.MotorType
	units        map[uint64]rental.MotorUnit
	transactions map[uint64]rental.Transaction
	nextTypeID   uint64
	nextUnitID   uint64
	nextTxID     uint64
}

func (d data) clone() data {
	c := data{
		types:        make(map[uint64]rental.MotorType, len(d.types)),
		units:        make(map[uint64]rental.MotorUnit, len(d.units)),
		transactions: make(map[uint64]rental.Transaction, len(d.transactions)),
		nextTypeID:   d.nextTypeID,
		nextUnitID:   d.nextUnitID,
		nextTxID:     d.nextTxID,
	}
	for k, v := range d.types {
		c.types[k] = v
	}
	for k, v := range d.units {
		c.units[k] = v
	}
	for k, v := range d.transactions {
		c.transactions[k] = v
	}
	return c
}

type RentalRepo struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	// d is the working state the running transaction writes to, committed what everyone else reads.
	d         data
	committed data
}

func NewRentalRepo() *RentalRepo {
	d := data{
		types:        make(map[uint64]rental.MotorType),
		units:        make(map[uint64]rental.MotorUnit),
		transactions: make(map[uint64]rental.Transaction),
	}
	return &RentalRepo{d: d, committed: d.clone()}
}

func (r *RentalRepo) BeginTransaction(_ context.Context) (core.Transaction, error) {
	r.txMu.Lock()
	r.mu.RLock()
	snap := r.d.clone()
	r.mu.RUnlock()
	return &memTx{repo: r, snapshot: snap}, nil
}

// view picks the state a read sees. Callers hold mu.
func (r *RentalRepo) view(options []core.QueryOptions) data {
	if len(options) > 0 && options[0].Tx != nil {
		return r.d
	}
	return r.committed
}

// write applies fn to the working state. Outside a transaction it waits for the running one to finish and
// commits straight away.
func (r *RentalRepo) write(options []core.UpdateOptions, fn func(d *data) error) error {
	if len(options) > 0 && options[0].Tx != nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		return fn(&r.d)
	}

	r.txMu.Lock()
	defer r.txMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := fn(&r.d); err != nil {
		return err
	}
	r.committed = r.d.clone()
	return nil
}

type memTx struct {
	repo     *RentalRepo
	snapshot data
	done     bool
}

func (t *memTx) Commit(_ context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.repo.mu.Lock()
	t.repo.committed = t.repo.d.clone()
	t.repo.mu.Unlock()
	t.repo.txMu.Unlock()
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.repo.mu.Lock()
	t.repo.d = t.snapshot
	t.repo.mu.Unlock()
	t.repo.txMu.Unlock()
	return nil
}

func (t *memTx) Query(_ context.Context, _ string, _ ...interface{}) (pgx.Rows, error) {
	return nil, errRawSQL
}

func (t *memTx) QueryRow(_ context.Context, _ string, _ ...interface{}) pgx.Row {
	return errRow{}
}

func (t *memTx) Exec(_ context.Context, _ string, _ ...interface{}) (pgconn.CommandTag, error) {
	return nil, errRawSQL
}

func (t *memTx) Begin(_ context.Context) (pgx.Tx, error) {
	return nil, errRawSQL
}

type errRow struct{}

func (errRow) Scan(_ ...interface{}) error {
	return errRawSQL
}

func (r *RentalRepo) GetUnit(_ context.Context, ID uint64, options ...core.QueryOptions) (rental.MotorUnit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d := r.view(options)
	u, ok := d.units[ID]
	if !ok {
		return rental.MotorUnit{}, errors.WithStack(core.ErrNotFound)
	}
	return d.withType(u), nil
}

func (r *RentalRepo) GetUnits(_ context.Context, unitOptions rental.UnitListOptions, limit, offset int, options ...core.QueryOptions) ([]rental.MotorUnit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d := r.view(options)
	units := make([]rental.MotorUnit, 0, len(d.units))
	for _, u := range d.units {
		if unitOptions.TypeID != 0 && u.Type.ID != unitOptions.TypeID {
			continue
		}
		if unitOptions.Status != "" && u.Status != unitOptions.Status {
			continue
		}
		units = append(units, d.withType(u))
	}
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })

	return page(units, limit, offset), nil
}

func (d data) withType(u rental.MotorUnit) rental.MotorUnit {
	if t, ok := d.types[u.Type.ID]; ok {
		u.Type = t
	}
	return u
}

func (r *RentalRepo) SaveMotorType(_ context.Context, motorType *rental.MotorType, options ...core.UpdateOptions) error {
	return r.write(options, func(d *data) error {
		if motorType.ID == 0 {
			d.nextTypeID++
			motorType.ID = d.nextTypeID
		} else if motorType.ID > d.nextTypeID {
			d.nextTypeID = motorType.ID
		}
		d.types[motorType.ID] = *motorType
		return nil
	})
}

func (r *RentalRepo) SaveUnit(_ context.Context, unit *rental.MotorUnit, options ...core.UpdateOptions) error {
	return r.write(options, func(d *data) error {
		for id, u := range d.units {
			if u.PlateNumber == unit.PlateNumber && id != unit.ID {
				return errors.Errorf("memrepo: plate number %s already belongs to unit %d", unit.PlateNumber, id)
			}
		}

		if unit.ID == 0 {
			d.nextUnitID++
			unit.ID = d.nextUnitID
		} else if unit.ID > d.nextUnitID {
			d.nextUnitID = unit.ID
		}
		d.units[unit.ID] = *unit
		return nil
	})
}

func (r *RentalRepo) UpdateUnitStatus(_ context.Context, ID uint64, status rental.UnitStatus, updated time.Time, options ...core.UpdateOptions) error {
	return r.write(options, func(d *data) error {
		u, ok := d.units[ID]
		if !ok {
			return errors.WithStack(core.ErrNotFound)
		}
		u.Status = status
		u.Updated = updated
		d.units[ID] = u
		return nil
	})
}

func (r *RentalRepo) GetTransaction(_ context.Context, ID uint64, options ...core.QueryOptions) (rental.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.view(options).transactions[ID]
	if !ok {
		return rental.Transaction{}, errors.WithStack(core.ErrNotFound)
	}
	return t, nil
}

func (r *RentalRepo) GetTransactions(_ context.Context, listOptions rental.ListOptions, limit, offset int, options ...core.QueryOptions) ([]rental.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]rental.Transaction, 0)
	for _, t := range r.view(options).transactions {
		if matches(t, listOptions) {
			list = append(list, t)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Start.Equal(list[j].Start) {
			return list[i].ID < list[j].ID
		}
		return list[i].Start.Before(list[j].Start)
	})

	return page(list, limit, offset), nil
}

func matches(t rental.Transaction, o rental.ListOptions) bool {
	if o.UnitID != 0 && t.UnitID != o.UnitID {
		return false
	}
	if len(o.Statuses) > 0 {
		found := false
		for _, s := range o.Statuses {
			if t.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if o.From != nil && t.End.Before(*o.From) {
		return false
	}
	if o.To != nil && t.Start.After(*o.To) {
		return false
	}
	return true
}

func (r *RentalRepo) GetLatestCompletedTransaction(_ context.Context, unitID uint64, options ...core.QueryOptions) (rental.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *rental.Transaction
	for _, t := range r.view(options).transactions {
		t := t
		if t.UnitID != unitID || t.Status != rental.Completed || t.CompletedAt == nil {
			continue
		}
		if latest == nil || t.CompletedAt.After(*latest.CompletedAt) {
			latest = &t
		}
	}
	if latest == nil {
		return rental.Transaction{}, errors.WithStack(core.ErrNotFound)
	}
	return *latest, nil
}

func (r *RentalRepo) SaveTransaction(_ context.Context, t *rental.Transaction, options ...core.UpdateOptions) error {
	return r.write(options, func(d *data) error {
		d.nextTxID++
		t.ID = d.nextTxID
		d.transactions[t.ID] = *t
		return nil
	})
}

func (r *RentalRepo) UpdateTransaction(_ context.Context, t rental.Transaction, options ...core.UpdateOptions) error {
	return r.write(options, func(d *data) error {
		if _, ok := d.transactions[t.ID]; !ok {
			return errors.WithStack(core.ErrNotFound)
		}
		d.transactions[t.ID] = t
		return nil
	})
}

func (r *RentalRepo) DeleteTransaction(_ context.Context, ID uint64, options ...core.UpdateOptions) error {
	return r.write(options, func(d *data) error {
		if _, ok := d.transactions[ID]; !ok {
			return errors.WithStack(core.ErrNotFound)
		}
		delete(d.transactions, ID)
		return nil
	})
}

func page[T any](list []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(list) {
			return list[:0]
		}
		list = list[offset:]
	}
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}
