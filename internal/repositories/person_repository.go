package repositories

import (
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/personbook/personbook/internal/models"
	"github.com/personbook/personbook/pkg/cache"
)

// cacheNamespace prefixes every cache key owned by this repository.
// Writes invalidate the whole namespace instead of tracking single keys.
const cacheNamespace = "persons"

const personColumns = "id, name, surname, email, address, phone, display_name, created_at, updated_at"

// UniqueViolationError identifies the column whose unique constraint a
// write violated and the value that collided. Email is the only unique
// column on persons.
type UniqueViolationError struct {
	Field string
	Value string
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("unique constraint violated on %s (%s)", e.Field, e.Value)
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so repository methods
// run unchanged inside a transaction.
type dbtx interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

type PersonRepository struct {
	db    dbtx
	cache *cache.Cache
}

func NewPersonRepository(db *sql.DB, c *cache.Cache) *PersonRepository {
	return &PersonRepository{db: db, cache: c}
}

// WithTx returns a copy of the repository scoped to the given
// transaction. The cache is shared with the parent.
func (r *PersonRepository) WithTx(tx *sql.Tx) *PersonRepository {
	return &PersonRepository{db: tx, cache: r.cache}
}

// GetAll retrieves every person ordered by name then surname
func (r *PersonRepository) GetAll() ([]*models.Person, error) {
	key := cache.Key(cacheNamespace, "findAll", nil)
	if v, ok := r.cache.Get(key); ok {
		return v.([]*models.Person), nil
	}

	query := `
		SELECT ` + personColumns + `
		FROM persons
		ORDER BY name ASC, surname ASC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	persons, err := scanPersons(rows)
	if err != nil {
		return nil, err
	}

	r.cache.Set(key, persons)
	return persons, nil
}

// GetByID retrieves a person by ID. A missing person returns (nil, nil),
// and that absence is itself cached so repeated lookups for a known
// missing id skip the store.
func (r *PersonRepository) GetByID(id int64) (*models.Person, error) {
	key := cache.Key(cacheNamespace, "findById", map[string]interface{}{"id": id})
	if v, ok := r.cache.Get(key); ok {
		if v == nil {
			return nil, nil
		}
		return v.(*models.Person), nil
	}

	query := `
		SELECT ` + personColumns + `
		FROM persons WHERE id = ?
	`

	person := &models.Person{}
	var address, phone sql.NullString
	err := r.db.QueryRow(query, id).Scan(
		&person.ID, &person.Name, &person.Surname, &person.Email,
		&address, &phone, &person.DisplayName,
		&person.CreatedAt, &person.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		r.cache.Set(key, nil)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	person.Address = address.String
	person.Phone = phone.String

	r.cache.Set(key, person)
	return person, nil
}

// ExistsByEmail checks if a person exists with the given email
func (r *PersonRepository) ExistsByEmail(email string) (bool, error) {
	key := cache.Key(cacheNamespace, "existsByEmail", map[string]interface{}{"email": email})
	if v, ok := r.cache.Get(key); ok {
		return v.(bool), nil
	}

	query := `SELECT COUNT(*) FROM persons WHERE email = ?`

	var count int
	if err := r.db.QueryRow(query, email).Scan(&count); err != nil {
		return false, err
	}

	exists := count > 0
	r.cache.Set(key, exists)
	return exists, nil
}

// Count returns the number of persons matching the filters
func (r *PersonRepository) Count(filters models.SearchFilters) (int, error) {
	key := cache.Key(cacheNamespace, "count", filterParams(filters))
	if v, ok := r.cache.Get(key); ok {
		return v.(int), nil
	}

	query, args, err := applyFilters(sq.Select("COUNT(*)").From("persons"), filters).ToSql()
	if err != nil {
		return 0, err
	}

	var count int
	if err := r.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, err
	}

	r.cache.Set(key, count)
	return count, nil
}

// Search retrieves all persons matching the filters, unpaginated,
// ordered by name then surname.
func (r *PersonRepository) Search(filters models.SearchFilters) ([]*models.Person, error) {
	key := cache.Key(cacheNamespace, "search", filterParams(filters))
	if v, ok := r.cache.Get(key); ok {
		return v.([]*models.Person), nil
	}

	builder := applyFilters(sq.Select(personColumns).From("persons"), filters).
		OrderBy("name ASC", "surname ASC")

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	persons, err := scanPersons(rows)
	if err != nil {
		return nil, err
	}

	r.cache.Set(key, persons)
	return persons, nil
}

// Paginate retrieves one page of persons matching the filters. Pages are
// 1-based; totalPages is the ceiling of total over pageSize.
func (r *PersonRepository) Paginate(page, pageSize int, filters models.SearchFilters) (*models.PaginatedPersons, error) {
	params := filterParams(filters)
	params["page"] = page
	params["pageSize"] = pageSize

	key := cache.Key(cacheNamespace, "paginate", params)
	if v, ok := r.cache.Get(key); ok {
		return v.(*models.PaginatedPersons), nil
	}

	total, err := r.Count(filters)
	if err != nil {
		return nil, err
	}

	builder := applyFilters(sq.Select(personColumns).From("persons"), filters).
		OrderBy("name ASC", "surname ASC").
		Limit(uint64(pageSize)).
		Offset(uint64((page - 1) * pageSize))

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	persons, err := scanPersons(rows)
	if err != nil {
		return nil, err
	}

	result := &models.PaginatedPersons{
		Items:      persons,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: (total + pageSize - 1) / pageSize,
		HasNext:    page*pageSize < total,
		HasPrev:    page > 1,
	}

	r.cache.Set(key, result)
	return result, nil
}

// GetIncomplete retrieves persons missing a phone or an address
func (r *PersonRepository) GetIncomplete() ([]*models.Person, error) {
	key := cache.Key(cacheNamespace, "findIncomplete", nil)
	if v, ok := r.cache.Get(key); ok {
		return v.([]*models.Person), nil
	}

	query := `
		SELECT ` + personColumns + `
		FROM persons
		WHERE phone IS NULL OR phone = '' OR address IS NULL OR address = ''
		ORDER BY name ASC, surname ASC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	persons, err := scanPersons(rows)
	if err != nil {
		return nil, err
	}

	r.cache.Set(key, persons)
	return persons, nil
}

// Create inserts a new person and fills in the store-assigned id and
// timestamps. The persons cache namespace is invalidated.
func (r *PersonRepository) Create(person *models.Person) error {
	query := `
		INSERT INTO persons (
			name, surname, email, address, phone, display_name
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	res, err := r.db.Exec(query,
		person.Name, person.Surname, person.Email,
		person.Address, person.Phone, person.DisplayName,
	)
	if err != nil {
		return translateConstraintError(err, person.Email)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	person.ID = id

	if err := r.reload(person); err != nil {
		return err
	}

	r.cache.InvalidateNamespace(cacheNamespace)
	return nil
}

// Update writes the client-settable fields of a person and returns the
// stored record. A zero-row update returns (nil, nil); callers decide
// whether that is a not-found or a consistency fault.
func (r *PersonRepository) Update(id int64, person *models.Person) (*models.Person, error) {
	query := `
		UPDATE persons SET
			name = ?, surname = ?, email = ?, address = ?, phone = ?,
			display_name = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	res, err := r.db.Exec(query,
		person.Name, person.Surname, person.Email,
		person.Address, person.Phone, person.DisplayName, id,
	)
	if err != nil {
		return nil, translateConstraintError(err, person.Email)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}

	updated := &models.Person{ID: id}
	if err := r.reload(updated); err != nil {
		return nil, err
	}

	r.cache.InvalidateNamespace(cacheNamespace)
	return updated, nil
}

// Delete removes a person by ID and reports whether a row was removed
func (r *PersonRepository) Delete(id int64) (bool, error) {
	res, err := r.db.Exec(`DELETE FROM persons WHERE id = ?`, id)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	r.cache.InvalidateNamespace(cacheNamespace)
	return affected > 0, nil
}

// reload re-reads a person's row into the struct, bypassing the cache
func (r *PersonRepository) reload(person *models.Person) error {
	query := `
		SELECT ` + personColumns + `
		FROM persons WHERE id = ?
	`
	var address, phone sql.NullString
	err := r.db.QueryRow(query, person.ID).Scan(
		&person.ID, &person.Name, &person.Surname, &person.Email,
		&address, &phone, &person.DisplayName,
		&person.CreatedAt, &person.UpdatedAt,
	)
	if err != nil {
		return err
	}
	person.Address = address.String
	person.Phone = phone.String
	return nil
}

func scanPersons(rows *sql.Rows) ([]*models.Person, error) {
	persons := make([]*models.Person, 0)
	for rows.Next() {
		person := &models.Person{}
		// address and phone are nullable at the store
		var address, phone sql.NullString
		err := rows.Scan(
			&person.ID, &person.Name, &person.Surname, &person.Email,
			&address, &phone, &person.DisplayName,
			&person.CreatedAt, &person.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		person.Address = address.String
		person.Phone = phone.String
		persons = append(persons, person)
	}
	return persons, rows.Err()
}

// applyFilters adds the WHERE clauses for the given search filters.
// Name matches name OR surname; text filters are case-insensitive
// substring matches except phone, which stays case-sensitive.
func applyFilters(builder sq.SelectBuilder, filters models.SearchFilters) sq.SelectBuilder {
	if filters.Name != "" {
		pattern := "%" + strings.ToLower(filters.Name) + "%"
		builder = builder.Where(sq.Or{
			sq.Expr("LOWER(name) LIKE ?", pattern),
			sq.Expr("LOWER(surname) LIKE ?", pattern),
		})
	}
	if filters.Email != "" {
		builder = builder.Where(sq.Expr("LOWER(email) LIKE ?", "%"+strings.ToLower(filters.Email)+"%"))
	}
	if filters.Address != "" {
		builder = builder.Where(sq.Expr("LOWER(address) LIKE ?", "%"+strings.ToLower(filters.Address)+"%"))
	}
	if filters.Phone != "" {
		builder = builder.Where(sq.Expr("phone LIKE ?", "%"+filters.Phone+"%"))
	}
	if filters.CreatedAfter != nil {
		builder = builder.Where(sq.GtOrEq{"created_at": *filters.CreatedAfter})
	}
	if filters.CreatedBefore != nil {
		builder = builder.Where(sq.LtOrEq{"created_at": *filters.CreatedBefore})
	}
	return builder
}

// filterParams flattens the filters into cache key parameters
func filterParams(filters models.SearchFilters) map[string]interface{} {
	params := map[string]interface{}{}
	if filters.Name != "" {
		params["name"] = filters.Name
	}
	if filters.Email != "" {
		params["email"] = filters.Email
	}
	if filters.Phone != "" {
		params["phone"] = filters.Phone
	}
	if filters.Address != "" {
		params["address"] = filters.Address
	}
	if filters.CreatedAfter != nil {
		params["createdAfter"] = filters.CreatedAfter.Format("2006-01-02")
	}
	if filters.CreatedBefore != nil {
		params["createdBefore"] = filters.CreatedBefore.Format("2006-01-02")
	}
	return params
}

// translateConstraintError maps SQLite constraint failures to a typed
// error naming the violated column and the colliding value.
func translateConstraintError(err error, email string) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		if strings.Contains(err.Error(), "email") {
			return &UniqueViolationError{Field: "email", Value: email}
		}
		return &UniqueViolationError{Field: "id"}
	}
	return fmt.Errorf("persons store: %w", err)
}
