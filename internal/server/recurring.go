package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fintrack/internal/recurring/domain"
)

type createRecurringRequest struct {
	CategoryID  string `json:"category_id"`
	Amount      int64  `json:"amount"`
	Note        string `json:"note"`
	Frequency   string `json:"frequency"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	NextDueDate string `json:"next_due_date"`
}

type updateRecurringRequest struct {
	CategoryID   *string `json:"category_id"`
	Amount       *int64  `json:"amount"`
	Note         *string `json:"note"`
	Frequency    *string `json:"frequency"`
	EndDate      *string `json:"end_date"`
	ClearEndDate bool    `json:"clear_end_date"`
	NextDueDate  *string `json:"next_due_date"`
}

func (s *Server) ListRecurring(c *gin.Context) {
	activeOnly, err := parseOptionalBool(c.Query("active_only"))
	if err != nil {
		AbortWithError(c, newValidationError("active_only", "invalid_active_only", "invalid active_only"))
		return
	}

	filter := domain.ListFilter{}
	if activeOnly != nil {
		filter.ActiveOnly = *activeOnly
	}
	templates, err := s.recurring.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": templates})
}

func (s *Server) CreateRecurring(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createRecurringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	categoryID, err := parseOptionalSnowflakeID(req.CategoryID)
	if err != nil || categoryID == nil {
		AbortWithError(c, newValidationError("category_id", "invalid_category_id", "invalid category_id"))
		return
	}
	start, err := parseOptionalTime(req.StartDate)
	if err != nil || start == nil {
		AbortWithError(c, newValidationError("start_date", "invalid_start_date", "invalid start_date"))
		return
	}
	end, err := parseOptionalTime(req.EndDate)
	if err != nil {
		AbortWithError(c, newValidationError("end_date", "invalid_end_date", "invalid end_date"))
		return
	}
	next, err := parseOptionalTime(req.NextDueDate)
	if err != nil {
		AbortWithError(c, newValidationError("next_due_date", "invalid_next_due_date", "invalid next_due_date"))
		return
	}

	template, err := s.recurring.Create(c.Request.Context(), domain.CreateTemplateRequest{
		UserID:      actor.User.ID,
		CategoryID:  *categoryID,
		Amount:      req.Amount,
		Note:        strings.TrimSpace(req.Note),
		Frequency:   req.Frequency,
		StartDate:   *start,
		EndDate:     end,
		NextDueDate: next,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": template})
}

// ListUpcoming shows templates falling due within ?days (default from
// RECURRING_UPCOMING_DAYS) without materializing anything.
func (s *Server) ListUpcoming(c *gin.Context) {
	days := s.cfg.Recurring.UpcomingDays
	parsed, err := parseOptionalInt(c.Query("days"))
	if err != nil {
		AbortWithError(c, newValidationError("days", "invalid_days", "invalid days"))
		return
	}
	if parsed != nil {
		days = *parsed
	}

	templates, err := s.recurring.ListDue(c.Request.Context(), s.clock.Now(), days)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": templates})
}

func (s *Server) ProcessRecurring(c *gin.Context) {
	processed, err := s.recurring.ProcessDue(c.Request.Context(), s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"processed": processed}})
}

func (s *Server) ToggleRecurring(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	template, err := s.recurring.ToggleActive(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": template})
}

func (s *Server) UpdateRecurring(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req updateRecurringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	update := domain.UpdateTemplateRequest{
		Amount:    req.Amount,
		Note:      req.Note,
		Frequency: req.Frequency,
		ClearEnd:  req.ClearEndDate,
	}
	if req.CategoryID != nil {
		categoryID, err := parseOptionalSnowflakeID(*req.CategoryID)
		if err != nil || categoryID == nil {
			AbortWithError(c, newValidationError("category_id", "invalid_category_id", "invalid category_id"))
			return
		}
		update.CategoryID = categoryID
	}
	if req.EndDate != nil {
		end, err := parseOptionalTime(*req.EndDate)
		if err != nil {
			AbortWithError(c, newValidationError("end_date", "invalid_end_date", "invalid end_date"))
			return
		}
		update.EndDate = end
	}
	if req.NextDueDate != nil {
		next, err := parseOptionalTime(*req.NextDueDate)
		if err != nil {
			AbortWithError(c, newValidationError("next_due_date", "invalid_next_due_date", "invalid next_due_date"))
			return
		}
		update.NextDueDate = next
	}

	template, err := s.recurring.Update(c.Request.Context(), id, update)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": template})
}

func (s *Server) DeleteRecurring(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := s.recurring.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
