package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/personbook/personbook/internal/models"
	"github.com/personbook/personbook/internal/services"
	"github.com/personbook/personbook/pkg/config"
)

type PersonHandler struct {
	personService *services.PersonService
}

func NewPersonHandler(personService *services.PersonService) *PersonHandler {
	return &PersonHandler{personService: personService}
}

// List returns every person in the directory
func (h *PersonHandler) List(c *gin.Context) {
	persons, err := h.personService.GetAllPersons()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(persons),
		"data":    persons,
	})
}

// Get returns a single person by id
func (h *PersonHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	person, err := h.personService.GetPersonByID(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    person,
	})
}

// Create adds a new person
func (h *PersonHandler) Create(c *gin.Context) {
	var input models.PersonInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid request body",
		})
		return
	}
	input.Trim()

	person, err := h.personService.CreatePerson(input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "person created successfully",
		"data":    person,
	})
}

// Update replaces the fields of an existing person
func (h *PersonHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var input models.PersonInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid request body",
		})
		return
	}
	input.Trim()

	person, err := h.personService.UpdatePerson(id, input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "person updated successfully",
		"data":    person,
	})
}

// Delete removes a person by id
func (h *PersonHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.personService.DeletePerson(id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "person deleted successfully",
	})
}

// Search filters persons by the optional query parameters and paginates
// when page or limit is present.
func (h *PersonHandler) Search(c *gin.Context) {
	filters := models.SearchFilters{
		Name:    c.Query("name"),
		Email:   c.Query("email"),
		Phone:   c.Query("phone"),
		Address: c.Query("address"),
	}

	if v := c.Query("createdAfter"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "createdAfter must be a date in YYYY-MM-DD format",
			})
			return
		}
		filters.CreatedAfter = &t
	}
	if v := c.Query("createdBefore"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "createdBefore must be a date in YYYY-MM-DD format",
			})
			return
		}
		// inclusive upper bound: extend to the end of the given day
		end := t.Add(24*time.Hour - time.Nanosecond)
		filters.CreatedBefore = &end
	}

	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	persons, pagination, err := h.personService.SearchPersons(filters, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	response := gin.H{
		"success": true,
		"data":    persons,
		"filters": searchFilterEcho(c),
	}
	if pagination != nil {
		response["pagination"] = pagination
	}

	c.JSON(http.StatusOK, response)
}

// Incomplete returns persons missing a phone or an address
func (h *PersonHandler) Incomplete(c *gin.Context) {
	persons, err := h.personService.GetIncompleteProfiles()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(persons),
		"data":    persons,
		"message": "profiles missing phone or address",
	})
}

// Export streams the directory as an xlsx download
func (h *PersonHandler) Export(c *gin.Context) {
	f, err := h.personService.ExportPersons()
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", `attachment; filename="persons.xlsx"`)
	if err := f.Write(c.Writer); err != nil {
		respondError(c, err)
	}
}

// parseID reads the id path parameter. A value that is not an integer
// short-circuits with 400 before any service call.
func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "id must be an integer",
		})
		return 0, false
	}
	return id, true
}

// respondError is the single translation point from domain errors to
// HTTP status codes.
func respondError(c *gin.Context, err error) {
	switch e := err.(type) {
	case *models.ValidationError:
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "validation failed",
			"errors":  e.Errors,
		})
	case *models.NotFoundError:
		c.JSON(http.StatusNotFound, gin.H{
			"success":  false,
			"error":    e.Error(),
			"resource": e.Resource,
			"id":       e.ID,
		})
	case *models.ConflictError:
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error":   e.Error(),
		})
	case *models.ForbiddenError:
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   e.Error(),
		})
	default:
		body := gin.H{
			"success": false,
			"error":   "internal server error",
		}
		if config.IsDevelopment() {
			body["detail"] = err.Error()
		}
		c.JSON(http.StatusInternalServerError, body)
	}
}

// searchFilterEcho returns the filters the client actually sent
func searchFilterEcho(c *gin.Context) gin.H {
	echo := gin.H{}
	for _, name := range []string{"name", "email", "phone", "address", "createdAfter", "createdBefore"} {
		if v := c.Query(name); v != "" {
			echo[name] = v
		}
	}
	return echo
}
