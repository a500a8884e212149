package extraction

import (
	"context"
	"database/sql"
	"time"

	"cruiseledger-backend/services/extraction/records"

	_ "modernc.org/sqlite"
)

// Store persists the healed canonical record set, the pipeline's
// durable output.
type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

const upsertCruiseSQL = `
INSERT INTO cruises (
	ship_name, sail_date, return_date, nights, reservation_number,
	itinerary_name, cabin_type, status, hold_expiry,
	offer_code, offer_name, offer_expiry,
	interior_price, balcony_price, suite_price
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (ship_name, sail_date) DO UPDATE SET
	return_date = excluded.return_date,
	nights = excluded.nights,
	reservation_number = excluded.reservation_number,
	itinerary_name = excluded.itinerary_name,
	cabin_type = excluded.cabin_type,
	status = excluded.status,
	hold_expiry = excluded.hold_expiry,
	offer_code = excluded.offer_code,
	offer_name = excluded.offer_name,
	offer_expiry = excluded.offer_expiry,
	interior_price = excluded.interior_price,
	balcony_price = excluded.balcony_price,
	suite_price = excluded.suite_price`

const upsertOfferSQL = `
INSERT INTO offers (
	offer_code, offer_name, offer_type, expiry_date, description,
	ship_name, sail_date, nights,
	interior_price, balcony_price, suite_price
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (offer_code) DO UPDATE SET
	offer_name = excluded.offer_name,
	offer_type = excluded.offer_type,
	expiry_date = excluded.expiry_date,
	description = excluded.description,
	ship_name = excluded.ship_name,
	sail_date = excluded.sail_date,
	nights = excluded.nights,
	interior_price = excluded.interior_price,
	balcony_price = excluded.balcony_price,
	suite_price = excluded.suite_price`

func (s Store) Save(ctx context.Context, set *records.Set, report records.HealingReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range set.Cruises {
		_, err := tx.ExecContext(ctx, upsertCruiseSQL,
			c.ShipName, c.SailDate, c.ReturnDate, c.Nights, c.ReservationNumber,
			c.ItineraryName, c.CabinType, c.Status, c.HoldExpiry,
			c.OfferCode, c.OfferName, c.OfferExpiry,
			c.InteriorPrice, c.BalconyPrice, c.SuitePrice,
		)
		if err != nil {
			return err
		}
	}

	for _, o := range set.Offers {
		if o.OfferCode == "" {
			// codeless offers cannot be keyed durably, they only
			// exist inside a run
			continue
		}
		_, err := tx.ExecContext(ctx, upsertOfferSQL,
			o.OfferCode, o.OfferName, o.OfferType, o.ExpiryDate, o.Description,
			o.ShipName, o.SailDate, o.Nights,
			o.InteriorPrice, o.BalconyPrice, o.SuitePrice,
		)
		if err != nil {
			return err
		}
	}

	now := time.Now().Unix()
	_, err = tx.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO loyalty_snapshots (taken_at, points, tier) VALUES (?, ?, ?)`,
		now, set.Loyalty.Points, set.Loyalty.Tier,
	)
	if err != nil {
		return err
	}

	for _, fix := range report.FieldsFixed {
		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO healing_log (run_at, entity, id, field, old, new) VALUES (?, ?, ?, ?, ?, ?)`,
			now, fix.Entity, fix.Id, fix.Field, fix.Old, fix.New,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s Store) Cruises(ctx context.Context) ([]*records.Cruise, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ship_name, sail_date, return_date, nights, reservation_number,
			itinerary_name, cabin_type, status, hold_expiry,
			offer_code, offer_name, offer_expiry,
			interior_price, balcony_price, suite_price
		FROM cruises ORDER BY sail_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*records.Cruise
	for rows.Next() {
		c := &records.Cruise{}
		err := rows.Scan(
			&c.ShipName, &c.SailDate, &c.ReturnDate, &c.Nights, &c.ReservationNumber,
			&c.ItineraryName, &c.CabinType, &c.Status, &c.HoldExpiry,
			&c.OfferCode, &c.OfferName, &c.OfferExpiry,
			&c.InteriorPrice, &c.BalconyPrice, &c.SuitePrice,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s Store) Offers(ctx context.Context) ([]*records.Offer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT offer_code, offer_name, offer_type, expiry_date, description,
			ship_name, sail_date, nights,
			interior_price, balcony_price, suite_price
		FROM offers ORDER BY offer_code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*records.Offer
	for rows.Next() {
		o := &records.Offer{}
		err := rows.Scan(
			&o.OfferCode, &o.OfferName, &o.OfferType, &o.ExpiryDate, &o.Description,
			&o.ShipName, &o.SailDate, &o.Nights,
			&o.InteriorPrice, &o.BalconyPrice, &o.SuitePrice,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s Store) LatestLoyalty(ctx context.Context) (records.LoyaltySnapshot, error) {
	row := s.db.QueryRowContext(
		ctx, `SELECT points, tier FROM loyalty_snapshots ORDER BY taken_at DESC LIMIT 1`)
	var snapshot records.LoyaltySnapshot
	err := row.Scan(&snapshot.Points, &snapshot.Tier)
	if err == sql.ErrNoRows {
		return records.LoyaltySnapshot{}, nil
	}
	return snapshot, err
}
