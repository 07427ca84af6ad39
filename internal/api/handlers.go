package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"subline/internal/authz"
	"subline/internal/lifecycle"
	"subline/internal/topic"
)

func (h *handler) getStatus(c *gin.Context) {
	if err := authz.Check(c.Request.Context(), authz.ActionView); err != nil {
		respondError(c, err)
		return
	}
	if h.status == nil {
		c.JSON(http.StatusOK, DaemonStatus{})
		return
	}
	c.JSON(http.StatusOK, h.status(c.Request.Context()))
}

func (h *handler) listTopics(c *gin.Context) {
	ctx := c.Request.Context()
	if err := authz.Check(ctx, authz.ActionView); err != nil {
		respondError(c, err)
		return
	}
	filter, err := parseFilter(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	topics, err := h.store.List(ctx, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, TopicListResponse{Items: FromTopics(topics)})
}

func (h *handler) getTopic(c *gin.Context) {
	ctx := c.Request.Context()
	if err := authz.Check(ctx, authz.ActionView); err != nil {
		respondError(c, err)
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	t, err := h.store.MustGet(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	dto := FromTopic(t)
	lines, err := h.store.Lines(ctx, id, topic.LinesCurrent)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Lines = FromLines(lines)
	c.JSON(http.StatusOK, TopicResponse{Item: dto})
}

// runAction dispatches a batch lifecycle operation. The path segment names the
// operation; it shares the :id wildcard with the reload route.
func (h *handler) runAction(c *gin.Context) {
	op := strings.ToLower(strings.TrimSpace(c.Param("id")))
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if len(req.IDs) == 0 {
		badRequest(c, "ids must not be empty")
		return
	}
	run, ok := h.actions(req)[op]
	if !ok {
		jsonError(c, http.StatusNotFound, "unknown operation "+strconv.Quote(op), "")
		return
	}
	results := run(c)
	status := http.StatusOK
	if len(lifecycle.Failed(results)) == len(results) {
		status = statusFor(results[0].Err)
	}
	c.JSON(status, ActionResponse{Action: op, Results: FromResults(results)})
}

type batchFunc func(c *gin.Context) []lifecycle.Result

func (h *handler) actions(req ActionRequest) map[string]batchFunc {
	ids := req.IDs
	return map[string]batchFunc{
		"pause": func(c *gin.Context) []lifecycle.Result {
			return h.lifecycle.Pause(c.Request.Context(), ids)
		},
		"resume": func(c *gin.Context) []lifecycle.Result {
			return h.lifecycle.Resume(c.Request.Context(), ids)
		},
		"re-execute": func(c *gin.Context) []lifecycle.Result {
			return h.lifecycle.ReExecute(c.Request.Context(), ids, lifecycle.Targets{Asr: req.Asr, Convert: req.Convert})
		},
		"set-normal": func(c *gin.Context) []lifecycle.Result {
			return h.lifecycle.SetNormal(c.Request.Context(), ids)
		},
		"archive": func(c *gin.Context) []lifecycle.Result {
			return h.lifecycle.Archive(c.Request.Context(), ids)
		},
		"remove": func(c *gin.Context) []lifecycle.Result {
			return h.lifecycle.Remove(c.Request.Context(), ids)
		},
		"recover": func(c *gin.Context) []lifecycle.Result {
			return h.lifecycle.RecoverToOriginal(c.Request.Context(), ids)
		},
		"reproduce": func(c *gin.Context) []lifecycle.Result {
			return h.lifecycle.ReproduceSubtitle(c.Request.Context(), ids)
		},
		"configure": func(c *gin.Context) []lifecycle.Result {
			settings := lifecycle.Settings{FrameRate: req.FrameRate, WordLimit: req.WordLimit}
			return h.lifecycle.Configure(c.Request.Context(), ids, settings)
		},
	}
}

func (h *handler) reloadSubtitle(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req ReloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		badRequest(c, "path is required")
		return
	}
	result := h.lifecycle.ReloadUpload(c.Request.Context(), id, req.Path)
	if result.Err != nil {
		respondError(c, result.Err)
		return
	}
	c.JSON(http.StatusOK, ActionResponse{Action: "reload", Results: []ActionResult{FromResult(result)}})
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid topic id")
		return 0, false
	}
	return id, true
}

func parseFilter(c *gin.Context) (topic.Filter, error) {
	var filter topic.Filter
	key, ok := topic.ParseSortKey(c.Query("sort"))
	if !ok {
		return filter, errInvalidParam("sort", c.Query("sort"))
	}
	filter.Sort = key
	if raw := c.Query("desc"); raw != "" {
		desc, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, errInvalidParam("desc", raw)
		}
		filter.Desc = desc
	}
	for _, raw := range c.QueryArray("status") {
		for _, value := range strings.Split(raw, ",") {
			if strings.TrimSpace(value) == "" {
				continue
			}
			status, ok := topic.ParseStatus(value)
			if !ok {
				return filter, errInvalidParam("status", value)
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	filter.NameContains = c.Query("name")
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, errInvalidParam("limit", raw)
		}
		filter.Limit = limit
	}
	return filter, nil
}
