package services

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/personbook/personbook/internal/models"
	"github.com/personbook/personbook/internal/repositories"
	"github.com/personbook/personbook/pkg/config"
	"github.com/personbook/personbook/pkg/logger"
	"github.com/xuri/excelize/v2"
)

// maxPageSize caps the page size of any paginated read regardless of
// what the client asked for.
const maxPageSize = 100

const defaultPageSize = 10

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

type PersonService struct {
	personRepo *repositories.PersonRepository
	txManager  *repositories.TxManager
	rules      config.RulesConfig
}

func NewPersonService(personRepo *repositories.PersonRepository, txManager *repositories.TxManager, rules config.RulesConfig) *PersonService {
	return &PersonService{
		personRepo: personRepo,
		txManager:  txManager,
		rules:      rules,
	}
}

// CreatePerson validates and normalizes the input, checks email
// uniqueness and persists the new person inside a transaction.
func (s *PersonService) CreatePerson(input models.PersonInput) (*models.Person, error) {
	if violations := s.validate(input); len(violations) > 0 {
		return nil, &models.ValidationError{Errors: violations}
	}

	person := normalize(input)

	var created *models.Person
	err := s.txManager.RunInTransaction(func(tx *sql.Tx) error {
		repo := s.personRepo.WithTx(tx)

		exists, err := repo.ExistsByEmail(person.Email)
		if err != nil {
			return err
		}
		if exists {
			return &models.ConflictError{Field: "email", Value: person.Email}
		}

		if err := repo.Create(person); err != nil {
			return err
		}
		created = person
		return nil
	})
	if err != nil {
		return nil, s.wrapFailure(models.CodeCreation, "create person", err)
	}

	logger.WithField("person_id", created.ID).Info("person created")
	return created, nil
}

// UpdatePerson replaces the client-settable fields of an existing
// person. Existence is checked before the payload is validated; the
// email uniqueness re-check runs only when the email actually changed.
func (s *PersonService) UpdatePerson(id int64, input models.PersonInput) (*models.Person, error) {
	existing, err := s.personRepo.GetByID(id)
	if err != nil {
		return nil, s.wrapFailure(models.CodeUpdate, "load person", err)
	}
	if existing == nil {
		return nil, &models.NotFoundError{Resource: "person", ID: id}
	}

	if violations := s.validate(input); len(violations) > 0 {
		return nil, &models.ValidationError{Errors: violations}
	}

	person := normalize(input)

	var updated *models.Person
	err = s.txManager.RunInTransaction(func(tx *sql.Tx) error {
		repo := s.personRepo.WithTx(tx)

		if person.Email != existing.Email {
			exists, err := repo.ExistsByEmail(person.Email)
			if err != nil {
				return err
			}
			if exists {
				return &models.ConflictError{Field: "email", Value: person.Email}
			}
		}

		result, err := repo.Update(id, person)
		if err != nil {
			return err
		}
		if result == nil {
			// existence was confirmed above, so a zero-row update is a
			// consistency fault, not a not-found
			return fmt.Errorf("update affected no rows for id %d", id)
		}
		updated = result
		return nil
	})
	if err != nil {
		return nil, s.wrapFailure(models.CodeUpdate, "update person", err)
	}

	logger.WithField("person_id", id).Info("person updated")
	return updated, nil
}

// DeletePerson removes a person unless it is the configured protected
// entry, which can never be deleted.
func (s *PersonService) DeletePerson(id int64) error {
	existing, err := s.personRepo.GetByID(id)
	if err != nil {
		return s.wrapFailure(models.CodeDelete, "load person", err)
	}
	if existing == nil {
		return &models.NotFoundError{Resource: "person", ID: id}
	}

	if strings.EqualFold(existing.Email, s.rules.ProtectedEmail) {
		return &models.ForbiddenError{Reason: "this person is protected and cannot be deleted"}
	}

	err = s.txManager.RunInTransaction(func(tx *sql.Tx) error {
		removed, err := s.personRepo.WithTx(tx).Delete(id)
		if err != nil {
			return err
		}
		if !removed {
			return &models.NotFoundError{Resource: "person", ID: id}
		}
		return nil
	})
	if err != nil {
		return s.wrapFailure(models.CodeDelete, "delete person", err)
	}

	logger.WithField("person_id", id).Info("person deleted")
	return nil
}

// GetAllPersons retrieves every person
func (s *PersonService) GetAllPersons() ([]*models.Person, error) {
	persons, err := s.personRepo.GetAll()
	if err != nil {
		return nil, s.wrapFailure(models.CodeRetrieval, "list persons", err)
	}
	return persons, nil
}

// GetPersonByID retrieves a single person by id
func (s *PersonService) GetPersonByID(id int64) (*models.Person, error) {
	person, err := s.personRepo.GetByID(id)
	if err != nil {
		return nil, s.wrapFailure(models.CodeRetrieval, "load person", err)
	}
	if person == nil {
		return nil, &models.NotFoundError{Resource: "person", ID: id}
	}
	return person, nil
}

// SearchPersons filters persons and optionally paginates. When neither
// page nor limit is given the full filtered set is returned and the
// pagination result is nil. The page size is capped at maxPageSize.
func (s *PersonService) SearchPersons(filters models.SearchFilters, page, limit int) ([]*models.Person, *models.PaginatedPersons, error) {
	if page <= 0 && limit <= 0 {
		persons, err := s.personRepo.Search(filters)
		if err != nil {
			return nil, nil, s.wrapFailure(models.CodeSearch, "search persons", err)
		}
		return persons, nil, nil
	}

	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	result, err := s.personRepo.Paginate(page, limit, filters)
	if err != nil {
		return nil, nil, s.wrapFailure(models.CodeSearch, "search persons", err)
	}
	return result.Items, result, nil
}

// GetIncompleteProfiles retrieves persons missing a phone or an address
func (s *PersonService) GetIncompleteProfiles() ([]*models.Person, error) {
	persons, err := s.personRepo.GetIncomplete()
	if err != nil {
		return nil, s.wrapFailure(models.CodeRetrieval, "list incomplete profiles", err)
	}
	return persons, nil
}

// ExportPersons renders the whole directory as a spreadsheet
func (s *PersonService) ExportPersons() (*excelize.File, error) {
	persons, err := s.personRepo.GetAll()
	if err != nil {
		return nil, s.wrapFailure(models.CodeExport, "export persons", err)
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{"ID", "Name", "Surname", "Email", "Address", "Phone", "Display Name", "Created At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for row, p := range persons {
		values := []interface{}{
			p.ID, p.Name, p.Surname, p.Email, p.Address, p.Phone,
			p.DisplayName, p.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	return f, nil
}

// validate collects every violated rule instead of stopping at the
// first. All five fields are required at this layer, stricter than the
// store, which allows empty phone and address.
func (s *PersonService) validate(input models.PersonInput) []string {
	var violations []string

	name := strings.TrimSpace(input.Name)
	surname := strings.TrimSpace(input.Surname)
	email := strings.TrimSpace(input.Email)
	address := strings.TrimSpace(input.Address)
	phone := models.NormalizePhone(strings.TrimSpace(input.Phone))

	if name == "" {
		violations = append(violations, "name is required")
	} else if utf8.RuneCountInString(name) > 100 {
		violations = append(violations, "name must be at most 100 characters")
	}

	if surname == "" {
		violations = append(violations, "surname is required")
	} else if utf8.RuneCountInString(surname) > 100 {
		violations = append(violations, "surname must be at most 100 characters")
	}

	if name != "" && surname != "" && strings.EqualFold(name, surname) {
		violations = append(violations, "name and surname must not be identical")
	}

	if email == "" {
		violations = append(violations, "email is required")
	} else if !emailPattern.MatchString(email) {
		violations = append(violations, "email format is invalid")
	} else if s.rules.BlockedEmailDomain != "" &&
		strings.HasSuffix(strings.ToLower(email), "@"+strings.ToLower(s.rules.BlockedEmailDomain)) {
		violations = append(violations, fmt.Sprintf("email domain %s is not allowed", s.rules.BlockedEmailDomain))
	}

	if phone == "" {
		violations = append(violations, "phone is required")
	} else if utf8.RuneCountInString(phone) > 20 {
		violations = append(violations, "phone must be at most 20 characters")
	}

	if address == "" {
		violations = append(violations, "address is required")
	} else if utf8.RuneCountInString(address) > 255 {
		violations = append(violations, "address must be at most 255 characters")
	}

	return violations
}

// normalize builds the persistable person from validated input: all
// fields trimmed, email lowercased, phone stripped of formatting and
// the display name recomputed.
func normalize(input models.PersonInput) *models.Person {
	name := strings.TrimSpace(input.Name)
	surname := strings.TrimSpace(input.Surname)

	return &models.Person{
		Name:        name,
		Surname:     surname,
		Email:       strings.ToLower(strings.TrimSpace(input.Email)),
		Address:     strings.TrimSpace(input.Address),
		Phone:       models.NormalizePhone(strings.TrimSpace(input.Phone)),
		DisplayName: models.DisplayNameOf(name, surname),
	}
}

// wrapFailure passes domain errors through untouched and wraps anything
// else in a BusinessError with the operation code. A store uniqueness
// violation becomes a ConflictError here.
func (s *PersonService) wrapFailure(code, op string, err error) error {
	var uniqueErr *repositories.UniqueViolationError
	if errors.As(err, &uniqueErr) {
		return &models.ConflictError{Field: uniqueErr.Field, Value: uniqueErr.Value}
	}

	var validationErr *models.ValidationError
	var notFoundErr *models.NotFoundError
	var conflictErr *models.ConflictError
	var forbiddenErr *models.ForbiddenError
	if errors.As(err, &validationErr) || errors.As(err, &notFoundErr) ||
		errors.As(err, &conflictErr) || errors.As(err, &forbiddenErr) {
		return err
	}

	logger.WithError(err).WithField("operation", op).Error("person operation failed")
	return &models.BusinessError{Code: code, Op: op, Err: err}
}
