package services

import (
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/personbook/personbook/internal/models"
	"github.com/personbook/personbook/internal/repositories"
	"github.com/personbook/personbook/pkg/cache"
	"github.com/personbook/personbook/pkg/config"
	"github.com/stretchr/testify/assert"
)

var personCols = []string{"id", "name", "surname", "email", "address", "phone", "display_name", "created_at", "updated_at"}

var testRules = config.RulesConfig{
	ProtectedEmail:     "protected@example.com",
	BlockedEmailDomain: "spam.com",
}

func newTestService(t *testing.T) (*PersonService, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	repo := repositories.NewPersonRepository(db, cache.New(time.Minute))
	service := NewPersonService(repo, repositories.NewTxManager(db), testRules)
	return service, mock, func() { db.Close() }
}

func validInput() models.PersonInput {
	return models.PersonInput{
		Name:    "John",
		Surname: "Doe",
		Email:   "john@x.com",
		Address: "1 Main St",
		Phone:   "5550101",
	}
}

func personRow(id int64, email string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(personCols).
		AddRow(id, "John", "Doe", email, "1 Main St", "5550101", "JOHN DOE", now, now)
}

func TestCreatePersonValidation(t *testing.T) {
	service, _, closeDB := newTestService(t)
	defer closeDB()

	t.Run("Collects every violated rule", func(t *testing.T) {
		_, err := service.CreatePerson(models.PersonInput{})

		var validationErr *models.ValidationError
		assert.ErrorAs(t, err, &validationErr)
		assert.Contains(t, validationErr.Errors, "name is required")
		assert.Contains(t, validationErr.Errors, "surname is required")
		assert.Contains(t, validationErr.Errors, "email is required")
		assert.Contains(t, validationErr.Errors, "phone is required")
		assert.Contains(t, validationErr.Errors, "address is required")
	})

	t.Run("Identical name and surname", func(t *testing.T) {
		input := validInput()
		input.Name = "Doe"
		input.Surname = "doe"

		_, err := service.CreatePerson(input)

		var validationErr *models.ValidationError
		assert.ErrorAs(t, err, &validationErr)
		assert.Contains(t, validationErr.Errors, "name and surname must not be identical")
	})

	t.Run("Malformed email", func(t *testing.T) {
		input := validInput()
		input.Email = "not-an-email"

		_, err := service.CreatePerson(input)

		var validationErr *models.ValidationError
		assert.ErrorAs(t, err, &validationErr)
		assert.Contains(t, validationErr.Errors, "email format is invalid")
	})

	t.Run("Blocked email domain", func(t *testing.T) {
		input := validInput()
		input.Email = "john@spam.com"

		_, err := service.CreatePerson(input)

		var validationErr *models.ValidationError
		assert.ErrorAs(t, err, &validationErr)
		assert.Contains(t, validationErr.Errors, "email domain spam.com is not allowed")
	})

	t.Run("Name over the length limit", func(t *testing.T) {
		input := validInput()
		for len(input.Name) <= 100 {
			input.Name += "x"
		}

		_, err := service.CreatePerson(input)

		var validationErr *models.ValidationError
		assert.ErrorAs(t, err, &validationErr)
		assert.Contains(t, validationErr.Errors, "name must be at most 100 characters")
	})

	t.Run("Length limit counts characters, not bytes", func(t *testing.T) {
		input := validInput()
		input.Name = strings.Repeat("ü", 100) // 200 bytes, 100 characters
		input.Email = ""

		_, err := service.CreatePerson(input)

		var validationErr *models.ValidationError
		assert.ErrorAs(t, err, &validationErr)
		assert.NotContains(t, validationErr.Errors, "name must be at most 100 characters")

		input.Name = strings.Repeat("ü", 101)
		_, err = service.CreatePerson(input)
		assert.ErrorAs(t, err, &validationErr)
		assert.Contains(t, validationErr.Errors, "name must be at most 100 characters")
	})
}

func TestCreatePersonNormalization(t *testing.T) {
	service, mock, closeDB := newTestService(t)
	defer closeDB()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM persons WHERE email = \?`).
		WithArgs("john@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO persons`).
		WithArgs("John", "Doe", "john@x.com", "1 Main St", "5550101", "JOHN DOE").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`FROM persons WHERE id = \??`).
		WithArgs(int64(1)).
		WillReturnRows(personRow(1, "john@x.com"))
	mock.ExpectCommit()

	input := models.PersonInput{
		Name:    "John",
		Surname: "Doe",
		Email:   "JOHN@X.COM",
		Phone:   "(555) 010-1",
		Address: "1 Main St",
	}

	person, err := service.CreatePerson(input)
	assert.NoError(t, err)
	assert.Equal(t, "john@x.com", person.Email)
	assert.Equal(t, "5550101", person.Phone)
	assert.Equal(t, "JOHN DOE", person.DisplayName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePersonDuplicateEmail(t *testing.T) {
	service, mock, closeDB := newTestService(t)
	defer closeDB()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM persons WHERE email = \?`).
		WithArgs("john@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := service.CreatePerson(validInput())

	var conflictErr *models.ConflictError
	assert.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, "email", conflictErr.Field)
	assert.Equal(t, "john@x.com", conflictErr.Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePersonStoreLevelConflict(t *testing.T) {
	service, mock, closeDB := newTestService(t)
	defer closeDB()

	// the pre-check misses a concurrent insert; the unique index catches it
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM persons WHERE email = \?`).
		WithArgs("john@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO persons`).
		WillReturnError(errors.New("UNIQUE constraint failed: persons.email"))
	mock.ExpectRollback()

	_, err := service.CreatePerson(validInput())

	var conflictErr *models.ConflictError
	assert.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, "email", conflictErr.Field)
	assert.Equal(t, "john@x.com", conflictErr.Value)
	assert.Contains(t, conflictErr.Error(), "john@x.com")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePersonNotFoundBeforeValidation(t *testing.T) {
	service, mock, closeDB := newTestService(t)
	defer closeDB()

	mock.ExpectQuery(`FROM persons WHERE id = \??`).
		WithArgs(int64(42)).
		WillReturnError(sql.ErrNoRows)

	// the payload is invalid, but existence must be checked first
	_, err := service.UpdatePerson(42, models.PersonInput{})

	var notFoundErr *models.NotFoundError
	assert.ErrorAs(t, err, &notFoundErr)
	assert.Equal(t, int64(42), notFoundErr.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePersonUnchangedEmailSkipsUniquenessCheck(t *testing.T) {
	service, mock, closeDB := newTestService(t)
	defer closeDB()

	mock.ExpectQuery(`FROM persons WHERE id = \??`).
		WithArgs(int64(1)).
		WillReturnRows(personRow(1, "john@x.com"))
	mock.ExpectBegin()
	// no COUNT expectation: the email did not change
	mock.ExpectExec(`UPDATE persons SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM persons WHERE id = \??`).
		WithArgs(int64(1)).
		WillReturnRows(personRow(1, "john@x.com"))
	mock.ExpectCommit()

	input := validInput()
	input.Address = "2 Side St"

	_, err := service.UpdatePerson(1, input)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePersonChangedEmailConflict(t *testing.T) {
	service, mock, closeDB := newTestService(t)
	defer closeDB()

	mock.ExpectQuery(`FROM persons WHERE id = \??`).
		WithArgs(int64(1)).
		WillReturnRows(personRow(1, "john@x.com"))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM persons WHERE email = \?`).
		WithArgs("taken@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	input := validInput()
	input.Email = "taken@x.com"

	_, err := service.UpdatePerson(1, input)

	var conflictErr *models.ConflictError
	assert.ErrorAs(t, err, &conflictErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletePerson(t *testing.T) {
	t.Run("Missing person", func(t *testing.T) {
		service, mock, closeDB := newTestService(t)
		defer closeDB()

		mock.ExpectQuery(`FROM persons WHERE id = \??`).
			WithArgs(int64(999999)).
			WillReturnError(sql.ErrNoRows)

		err := service.DeletePerson(999999)

		var notFoundErr *models.NotFoundError
		assert.ErrorAs(t, err, &notFoundErr)
		assert.Contains(t, err.Error(), "999999")
	})

	t.Run("Protected person", func(t *testing.T) {
		service, mock, closeDB := newTestService(t)
		defer closeDB()

		mock.ExpectQuery(`FROM persons WHERE id = \??`).
			WithArgs(int64(1)).
			WillReturnRows(personRow(1, "protected@example.com"))

		err := service.DeletePerson(1)

		var forbiddenErr *models.ForbiddenError
		assert.ErrorAs(t, err, &forbiddenErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Removes the row", func(t *testing.T) {
		service, mock, closeDB := newTestService(t)
		defer closeDB()

		mock.ExpectQuery(`FROM persons WHERE id = \??`).
			WithArgs(int64(1)).
			WillReturnRows(personRow(1, "john@x.com"))
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM persons WHERE id = \?`).
			WithArgs(int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.DeletePerson(1)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSearchPersons(t *testing.T) {
	t.Run("Caps the page size at 100", func(t *testing.T) {
		service, mock, closeDB := newTestService(t)
		defer closeDB()

		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM persons`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectQuery(`SELECT (.+) FROM persons ORDER BY name ASC, surname ASC LIMIT 100 OFFSET 0`).
			WillReturnRows(personRow(1, "john@x.com"))

		_, pagination, err := service.SearchPersons(models.SearchFilters{}, 1, 1000)
		assert.NoError(t, err)
		assert.Equal(t, 100, pagination.PageSize)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("No paging parameters returns the full set", func(t *testing.T) {
		service, mock, closeDB := newTestService(t)
		defer closeDB()

		mock.ExpectQuery(`SELECT (.+) FROM persons ORDER BY name ASC, surname ASC`).
			WillReturnRows(personRow(1, "john@x.com"))

		persons, pagination, err := service.SearchPersons(models.SearchFilters{}, 0, 0)
		assert.NoError(t, err)
		assert.Nil(t, pagination)
		assert.Len(t, persons, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetPersonByIDNotFound(t *testing.T) {
	service, mock, closeDB := newTestService(t)
	defer closeDB()

	mock.ExpectQuery(`FROM persons WHERE id = \??`).
		WithArgs(int64(7)).
		WillReturnError(sql.ErrNoRows)

	_, err := service.GetPersonByID(7)

	var notFoundErr *models.NotFoundError
	assert.ErrorAs(t, err, &notFoundErr)
}

func TestGetIncompleteProfiles(t *testing.T) {
	service, mock, closeDB := newTestService(t)
	defer closeDB()

	now := time.Now()
	mock.ExpectQuery(`FROM persons\s+WHERE phone IS NULL OR phone = '' OR address IS NULL OR address = ''`).
		WillReturnRows(sqlmock.NewRows(personCols).
			AddRow(int64(2), "Jane", "Roe", "jane@x.com", "", "5550102", "JANE ROE", now, now))

	persons, err := service.GetIncompleteProfiles()
	assert.NoError(t, err)
	assert.Len(t, persons, 1)
	assert.True(t, persons[0].IsIncomplete())
	assert.NoError(t, mock.ExpectationsWereMet())
}
