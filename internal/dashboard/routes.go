package dashboard

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/zulandar/jobvalidator/internal/store"
)

// maxLookupSerials caps one bulk serial lookup.
const maxLookupSerials = 500

type handlers struct {
	store *store.Store
	log   logrus.FieldLogger
}

// registerRoutes sets up all API routes on the group.
func registerRoutes(api *gin.RouterGroup, h *handlers) {
	api.GET("/metrics", h.metrics)
	api.GET("/jobs", h.listJobs)
	api.GET("/jobs/:uid", h.jobDetail)
	api.POST("/jobs/:uid/resolve", h.resolveJob)
	api.POST("/serials/lookup", h.lookupSerials)
	api.GET("/filters", h.filters)
	api.GET("/assets", h.assets)
	api.GET("/categories", h.categories)
	api.GET("/sync-runs", h.syncRuns)
	api.GET("/notifications", h.notifications)
}

func (h *handlers) fail(c *gin.Context, err error) {
	h.log.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (h *handlers) metrics(c *gin.Context) {
	m, err := h.store.Metrics(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	last, err := h.store.LastCompletedSync(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	v := metricsView{
		TotalJobs:          m.TotalJobs,
		MissingNetsuite:    m.MissingNetsuite,
		PartsNoLineItems:   m.PartsNoLineItems,
		FlaggedJobs:        m.FlaggedJobs,
		PassingJobs:        m.PassingJobs,
		ResolvedFlags:      m.ResolvedFlags,
		UnresolvedFlags:    m.UnresolvedFlags,
		JobsWithLineItems:  m.JobsWithLineItems,
		JobsWithChecklists: m.JobsWithChecklists,
	}
	if last != nil {
		v.LastSync = last.CompletedAt
	}
	c.JSON(http.StatusOK, v)
}

type jobsQuery struct {
	Filter       string `form:"filter"`
	Month        string `form:"month"`
	DateFrom     string `form:"date_from"`
	DateTo       string `form:"date_to"`
	Organization string `form:"organization"`
	ServiceTeam  string `form:"team"`
	Category     string `form:"category"`
	JobNumber    string `form:"job_number"`
	Part         string `form:"part"`
	Serial       string `form:"serial"`
	Asset        string `form:"asset"`
	Page         int    `form:"page" binding:"omitempty,min=1"`
	PageSize     int    `form:"page_size" binding:"omitempty,min=1,max=500"`
}

func (h *handlers) listJobs(c *gin.Context) {
	var q jobsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	page, err := h.store.ListJobs(c.Request.Context(), store.JobFilter{
		Filter:       q.Filter,
		Month:        q.Month,
		DateFrom:     q.DateFrom,
		DateTo:       q.DateTo,
		Organization: q.Organization,
		ServiceTeam:  q.ServiceTeam,
		Category:     q.Category,
		JobNumber:    q.JobNumber,
		PartSearch:   q.Part,
		SerialSearch: q.Serial,
		Asset:        q.Asset,
		Page:         q.Page,
		PageSize:     q.PageSize,
	})
	if errors.Is(err, store.ErrInvalidFilter) {
		badRequest(c, err)
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newJobPageView(page))
}

func (h *handlers) jobDetail(c *gin.Context) {
	ctx := c.Request.Context()
	uid := c.Param("uid")
	job, err := h.store.GetJob(ctx, uid)
	if err != nil {
		h.fail(c, err)
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	resp := gin.H{"job": newJobView(*job)}
	if term := strings.TrimSpace(c.Query("part")); term != "" {
		m, err := h.store.FindPartMatches(ctx, uid, term)
		if err != nil {
			h.fail(c, err)
			return
		}
		resp["part_matches"] = newPartMatchesView(term, m)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) resolveJob(c *gin.Context) {
	uid := c.Param("uid")
	ctx := c.Request.Context()
	job, err := h.store.GetJob(ctx, uid)
	if err != nil {
		h.fail(c, err)
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	n, err := h.store.MarkJobResolved(ctx, uid)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.log.WithFields(logrus.Fields{"job_uid": uid, "flags": n}).Info("job resolved")
	c.JSON(http.StatusOK, gin.H{"job_uid": uid, "resolved": n})
}

type lookupRequest struct {
	Serials []string `json:"serials"`
	Text    string   `json:"text"`
}

// lookupTerms merges the explicit list with serials typed one per line or
// comma separated, trimmed and deduplicated in order.
func lookupTerms(req lookupRequest) []string {
	raw := append([]string{}, req.Serials...)
	raw = append(raw, strings.FieldsFunc(req.Text, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ',' || r == ';'
	})...)
	var out []string
	seen := map[string]bool{}
	for _, t := range raw {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func (h *handlers) lookupSerials(c *gin.Context) {
	var req lookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	terms := lookupTerms(req)
	if len(terms) == 0 {
		badRequest(c, errors.New("no serials given"))
		return
	}
	if len(terms) > maxLookupSerials {
		badRequest(c, errors.New("too many serials, limit is "+strconv.Itoa(maxLookupSerials)))
		return
	}
	matches, err := h.store.SearchSerials(c.Request.Context(), terms)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newSerialLookupView(terms, matches))
}

func (h *handlers) filters(c *gin.Context) {
	fo, err := h.store.FilterOptions(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, filtersView{
		Filters: []string{
			store.FilterAll, store.FilterMissingNetsuite, store.FilterPartsNoItems,
			store.FilterFlagged, store.FilterPassing,
		},
		Organizations: nonNil(fo.Organizations),
		ServiceTeams:  nonNil(fo.ServiceTeams),
		Categories:    nonNil(fo.Categories),
		Months:        nonNil(fo.Months),
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (h *handlers) assets(c *gin.Context) {
	rows, err := h.store.AssetsWithCounts(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]tallyView, 0, len(rows))
	for _, r := range rows {
		out = append(out, tallyView{Name: r.AssetName, TotalJobs: r.TotalJobs, JobsWithIssues: r.JobsWithIssues})
	}
	c.JSON(http.StatusOK, gin.H{"assets": out})
}

func (h *handlers) categories(c *gin.Context) {
	rows, err := h.store.CategoryReport(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]tallyView, 0, len(rows))
	for _, r := range rows {
		out = append(out, tallyView{Name: r.Category, TotalJobs: r.TotalJobs, JobsWithIssues: r.JobsWithIssues})
	}
	c.JSON(http.StatusOK, gin.H{"categories": out})
}

func (h *handlers) syncRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 200 {
		badRequest(c, errors.New("limit must be between 1 and 200"))
		return
	}
	logs, err := h.store.RecentSyncRuns(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]syncRunView, 0, len(logs))
	for _, l := range logs {
		out = append(out, newSyncRunView(l))
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

func (h *handlers) notifications(c *gin.Context) {
	st, err := h.store.NotificationStats(c.Request.Context(), time.Now().Add(-24*time.Hour))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, notificationStatsView{
		Total: st.Total, Successful: st.Successful, Failed: st.Failed, Last24h: st.Recent,
	})
}
