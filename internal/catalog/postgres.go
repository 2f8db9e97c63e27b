package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/smilequote/internal/money"
)

// Querier is the subset of pgxpool.Pool used by the catalog store.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore reads the catalog from the treatments, packages,
// package_items and addons tables.
type PostgresStore struct {
	DB Querier
}

const (
	sqlGetTreatment = `SELECT id, name, description, unit_price_cents, category FROM treatments WHERE id = $1 AND active`
	sqlGetPackage   = `SELECT id, name, description, package_price_cents FROM packages WHERE id = $1 AND active`
	sqlGetAddOn     = `SELECT id, name, description, unit_price_cents FROM addons WHERE id = $1 AND active`

	sqlListTreatments = `SELECT id, name, description, unit_price_cents, category FROM treatments WHERE active ORDER BY category, name`
	sqlListPackages   = `SELECT id, name, description, package_price_cents FROM packages WHERE active ORDER BY name`
	sqlListPackageIts = `SELECT pi.package_id, pi.treatment_id, pi.quantity, pi.standard_unit_price_cents
FROM package_items pi JOIN packages p ON p.id = pi.package_id
WHERE p.active ORDER BY pi.package_id, pi.position`
	sqlListAddOns = `SELECT id, name, description, unit_price_cents FROM addons WHERE active ORDER BY name`
)

// Get implements Lookup.
func (s *PostgresStore) Get(ctx context.Context, kind Kind, id string) (Entry, error) {
	var (
		e     = Entry{Kind: kind}
		price int64
		err   error
	)
	switch kind {
	case KindTreatment:
		var category string
		err = s.DB.QueryRow(ctx, sqlGetTreatment, id).Scan(&e.ID, &e.Name, &e.Description, &price, &category)
		e.Category = Category(category)
	case KindPackage:
		err = s.DB.QueryRow(ctx, sqlGetPackage, id).Scan(&e.ID, &e.Name, &e.Description, &price)
	case KindAddOn:
		err = s.DB.QueryRow(ctx, sqlGetAddOn, id).Scan(&e.ID, &e.Name, &e.Description, &price)
	default:
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, notFound(kind, id)
		}
		return Entry{}, fmt.Errorf("catalog: get %s %q: %w", kind, id, err)
	}
	e.UnitPrice = money.Money(price)
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Treatments implements Lister.
func (s *PostgresStore) Treatments(ctx context.Context) ([]Treatment, error) {
	rows, err := s.DB.Query(ctx, sqlListTreatments)
	if err != nil {
		return nil, fmt.Errorf("catalog: list treatments: %w", err)
	}
	defer rows.Close()
	var out []Treatment
	for rows.Next() {
		var (
			t        Treatment
			price    int64
			category string
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &price, &category); err != nil {
			return nil, err
		}
		t.UnitPrice = money.Money(price)
		t.Category = Category(category)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Packages implements Lister. Included items are loaded with a second query
// and attached in position order.
func (s *PostgresStore) Packages(ctx context.Context) ([]Package, error) {
	rows, err := s.DB.Query(ctx, sqlListPackages)
	if err != nil {
		return nil, fmt.Errorf("catalog: list packages: %w", err)
	}
	var out []Package
	pos := map[string]int{}
	for rows.Next() {
		var (
			p     Package
			price int64
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &price); err != nil {
			rows.Close()
			return nil, err
		}
		p.PackagePrice = money.Money(price)
		pos[p.ID] = len(out)
		out = append(out, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := s.DB.Query(ctx, sqlListPackageIts)
	if err != nil {
		return nil, fmt.Errorf("catalog: list package items: %w", err)
	}
	defer items.Close()
	for items.Next() {
		var (
			packageID string
			it        PackageItem
			price     int64
		)
		if err := items.Scan(&packageID, &it.TreatmentID, &it.Quantity, &price); err != nil {
			return nil, err
		}
		it.StandardUnitPrice = money.Money(price)
		if i, ok := pos[packageID]; ok {
			out[i].Included = append(out[i].Included, it)
		}
	}
	return out, items.Err()
}

// AddOns implements Lister.
func (s *PostgresStore) AddOns(ctx context.Context) ([]AddOn, error) {
	rows, err := s.DB.Query(ctx, sqlListAddOns)
	if err != nil {
		return nil, fmt.Errorf("catalog: list addons: %w", err)
	}
	defer rows.Close()
	var out []AddOn
	for rows.Next() {
		var (
			a     AddOn
			price int64
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &price); err != nil {
			return nil, err
		}
		a.UnitPrice = money.Money(price)
		out = append(out, a)
	}
	return out, rows.Err()
}
