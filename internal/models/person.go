package models

import (
	"strings"
	"time"
	"unicode"
)

// Person represents a single directory entry
type Person struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Surname     string    `json:"surname"`
	Email       string    `json:"email"`
	Address     string    `json:"address"`
	Phone       string    `json:"phone"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PersonInput carries the client-settable fields of a person. The
// display name and timestamps are derived server-side.
type PersonInput struct {
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// Trim strips surrounding whitespace from every field. Handlers call
// this before the input reaches the service; no semantic validation
// happens here.
func (in *PersonInput) Trim() {
	in.Name = strings.TrimSpace(in.Name)
	in.Surname = strings.TrimSpace(in.Surname)
	in.Email = strings.TrimSpace(in.Email)
	in.Address = strings.TrimSpace(in.Address)
	in.Phone = strings.TrimSpace(in.Phone)
}

// IsIncomplete reports whether the profile misses contact details
func (p *Person) IsIncomplete() bool {
	return p.Phone == "" || p.Address == ""
}

// DisplayNameOf derives the display name stored with every person:
// the trimmed name and surname joined and uppercased.
func DisplayNameOf(name, surname string) string {
	return strings.ToUpper(strings.TrimSpace(name) + " " + strings.TrimSpace(surname))
}

// NormalizePhone strips whitespace, dashes and parentheses from a phone
// number before it is persisted.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' || r == '(' || r == ')' {
			return -1
		}
		return r
	}, phone)
}

// SearchFilters holds the optional person search criteria. All provided
// filters combine with logical AND. Name matches against name OR surname.
type SearchFilters struct {
	Name          string
	Email         string
	Phone         string
	Address       string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// IsZero reports whether no filter is set
func (f SearchFilters) IsZero() bool {
	return f.Name == "" && f.Email == "" && f.Phone == "" && f.Address == "" &&
		f.CreatedAfter == nil && f.CreatedBefore == nil
}

// PaginatedPersons is one page of search results together with the
// paging arithmetic the client renders.
type PaginatedPersons struct {
	Items      []*Person `json:"items"`
	Page       int       `json:"page"`
	PageSize   int       `json:"pageSize"`
	Total      int       `json:"total"`
	TotalPages int       `json:"totalPages"`
	HasNext    bool      `json:"hasNext"`
	HasPrev    bool      `json:"hasPrev"`
}
