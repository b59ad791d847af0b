package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/mattjoyce/hireflow/internal/recruit"
)

const personColumns = `id, email, first_name, last_name, phone, country, city, portfolio_url,
  gc_completed, gc_score, gc_passed_at, created_at, updated_at`

func (t *Tx) CreatePerson(ctx context.Context, p *recruit.Person) error {
	if p.Email == "" {
		return fmt.Errorf("person email is empty")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := t.stamp()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := t.tx.ExecContext(ctx, `
INSERT INTO persons(`+personColumns+`)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, p.ID, p.Email, p.FirstName, p.LastName, p.Phone, p.Country, p.City, p.PortfolioURL,
		boolInt(p.GeneralCompetenciesCompleted), floatArg(p.GeneralCompetenciesScore), fmtTimePtr(p.GeneralCompetenciesPassedAt),
		fmtTime(now), fmtTime(now))
	if isUniqueViolation(err) {
		return fmt.Errorf("person %q: %w", p.Email, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert person: %w", err)
	}
	return nil
}

func (t *Tx) GetPerson(ctx context.Context, id string) (*recruit.Person, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+personColumns+` FROM persons WHERE id = ?;`, id)
	p, err := scanPerson(row)
	if err != nil {
		return nil, notFound(err, "person", id)
	}
	return p, nil
}

// GetPersonByEmail looks a person up by their normalized email.
func (t *Tx) GetPersonByEmail(ctx context.Context, email string) (*recruit.Person, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+personColumns+` FROM persons WHERE email = ?;`, email)
	p, err := scanPerson(row)
	if err != nil {
		return nil, notFound(err, "person", email)
	}
	return p, nil
}

// UpdatePerson overwrites contact details and the GC summary.
func (t *Tx) UpdatePerson(ctx context.Context, p *recruit.Person) error {
	p.UpdatedAt = t.stamp()
	res, err := t.tx.ExecContext(ctx, `
UPDATE persons
SET first_name = ?, last_name = ?, phone = ?, country = ?, city = ?, portfolio_url = ?,
    gc_completed = ?, gc_score = ?, gc_passed_at = ?, updated_at = ?
WHERE id = ?;
`, p.FirstName, p.LastName, p.Phone, p.Country, p.City, p.PortfolioURL,
		boolInt(p.GeneralCompetenciesCompleted), floatArg(p.GeneralCompetenciesScore), fmtTimePtr(p.GeneralCompetenciesPassedAt),
		fmtTime(p.UpdatedAt), p.ID)
	if err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	return expectOne(res, "person", p.ID)
}

func scanPerson(row scanner) (*recruit.Person, error) {
	var (
		p          recruit.Person
		completed  int
		score      sql.NullFloat64
		passedAt   sql.NullString
		createdAtS string
		updatedAtS string
	)
	if err := row.Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.Phone, &p.Country, &p.City, &p.PortfolioURL,
		&completed, &score, &passedAt, &createdAtS, &updatedAtS); err != nil {
		return nil, err
	}
	p.GeneralCompetenciesCompleted = completed != 0
	p.GeneralCompetenciesScore = floatPtr(score)
	p.GeneralCompetenciesPassedAt = parseTimePtr(passedAt)
	p.CreatedAt = parseTime(createdAtS)
	p.UpdatedAt = parseTime(updatedAtS)
	return &p, nil
}

func expectOne(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %q: %w", what, id, ErrNotFound)
	}
	return nil
}
