package ingress

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"callfeedback/internal/actionable"
	"callfeedback/internal/aggregator"
	"callfeedback/internal/dataset"
	"callfeedback/internal/logger"
	"callfeedback/internal/store"
	"callfeedback/internal/types"
)

const (
	userHeader       = "X-User-ID"
	defaultProjectID = "default"
	signedURLExpiry  = 15 * time.Minute
	summaryCallLimit = 5000
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// AdminStore is what the dashboard routes read and write.
type AdminStore interface {
	GetUser(ctx context.Context, id int64) (*types.User, error)
	GetProject(ctx context.Context, id int64) (*types.Project, error)
	MemberRole(ctx context.Context, projectID, userID int64) (types.Role, error)
	IsDirectorAnywhere(ctx context.Context, userID int64) (bool, error)

	GetCall(ctx context.Context, id int64) (*types.CallRecord, error)
	ListProjectCalls(ctx context.Context, projectID int64, limit int) ([]types.CallRecord, error)

	ActivePrompt(ctx context.Context, projectID *int64, t types.PromptType) (*types.Prompt, error)
	ListPromptVersions(ctx context.Context, projectID *int64, t types.PromptType) ([]types.Prompt, error)
	SavePrompt(ctx context.Context, projectID *int64, t types.PromptType, content string, createdBy *int64) (types.Prompt, error)

	ActiveTalkScript(ctx context.Context, projectID int64) (*types.TalkScript, error)
	SaveTalkScript(ctx context.Context, script types.TalkScript) (types.TalkScript, error)
}

// Blobs gives the call detail route access to stored audio and transcripts.
type Blobs interface {
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Download(ctx context.Context, key string) ([]byte, error)
}

const ctxUserKey = "user"

func (s *Server) registerAdmin(r *gin.Engine) {
	g := r.Group("/", s.requireUser)
	g.GET("/calls/:id", s.getCall)
	g.GET("/projects/:id/prompts/:type", s.getPrompt)
	g.PUT("/projects/:id/prompts/:type", s.putPrompt)
	g.GET("/projects/:id/talk-script", s.getTalkScript)
	g.PUT("/projects/:id/talk-script", s.putTalkScript)
	g.GET("/projects/:id/summary", s.getSummary)
	g.GET("/projects/:id/export", s.exportCalls)
}

func (s *Server) requireUser(c *gin.Context) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.GetHeader(userHeader)), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid " + userHeader})
		return
	}
	u, err := s.admin.GetUser(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Set(ctxUserKey, u)
	c.Next()
}

func currentUser(c *gin.Context) *types.User {
	return c.MustGet(ctxUserKey).(*types.User)
}

// authorize returns the caller's role in the project, aborting with 403 if
// they are not a member or lack the required role.
func (s *Server) authorize(c *gin.Context, projectID int64, need types.Role) (types.Role, bool) {
	role, err := s.admin.MemberRole(c.Request.Context(), projectID, currentUser(c).ID)
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a member of this project"})
		return "", false
	}
	if err != nil {
		s.fail(c, err)
		return "", false
	}
	if need == types.RoleDirector && role != types.RoleDirector {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "director role required"})
		return "", false
	}
	return role, true
}

// projectScope resolves the :id param. "default" addresses the system-wide
// prompts and is open to directors of any project.
func (s *Server) projectScope(c *gin.Context, need types.Role, allowDefault bool) (*int64, bool) {
	raw := c.Param("id")
	if allowDefault && raw == defaultProjectID {
		if need == types.RoleDirector {
			ok, err := s.admin.IsDirectorAnywhere(c.Request.Context(), currentUser(c).ID)
			if err != nil {
				s.fail(c, err)
				return nil, false
			}
			if !ok {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "director role required"})
				return nil, false
			}
		}
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return nil, false
	}
	if _, ok := s.authorize(c, id, need); !ok {
		return nil, false
	}
	return &id, true
}

func (s *Server) getCall(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid call id"})
		return
	}
	ctx := c.Request.Context()
	rec, err := s.admin.GetCall(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	me := currentUser(c)
	if rec.ProjectID == nil {
		ok, err := s.admin.IsDirectorAnywhere(ctx, me.ID)
		if err != nil {
			s.fail(c, err)
			return
		}
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "call has no project"})
			return
		}
	} else {
		role, ok := s.authorize(c, *rec.ProjectID, types.RoleUser)
		if !ok {
			return
		}
		if role == types.RoleUser && (rec.UserID == nil || *rec.UserID != me.ID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not your call"})
			return
		}
	}

	resp := gin.H{"call": rec}
	if s.blobs != nil {
		log := logger.New().WithRequest(c.Request).WithField("record_id", rec.ID)
		if rec.AudioPath != "" {
			if url, err := s.blobs.SignedURL(ctx, rec.AudioPath, signedURLExpiry); err == nil {
				resp["audio_url"] = url
			} else {
				log.WithField("error", err.Error()).Warn("sign audio url")
			}
		}
		if rec.TranscriptPath != "" {
			if text, err := s.blobs.Download(ctx, rec.TranscriptPath); err == nil {
				resp["transcript"] = string(text)
			} else {
				log.WithField("error", err.Error()).Warn("load transcript")
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

func promptTypeParam(c *gin.Context) (types.PromptType, bool) {
	t := types.PromptType(c.Param("type"))
	if !t.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown prompt type"})
		return "", false
	}
	return t, true
}

func (s *Server) getPrompt(c *gin.Context) {
	t, ok := promptTypeParam(c)
	if !ok {
		return
	}
	projectID, ok := s.projectScope(c, types.RoleUser, true)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	versions, err := s.admin.ListPromptVersions(ctx, projectID, t)
	if err != nil {
		s.fail(c, err)
		return
	}
	active, err := s.admin.ActivePrompt(ctx, projectID, t)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": active, "versions": versions})
}

type promptBody struct {
	Content string `json:"content" binding:"required"`
}

func (s *Server) putPrompt(c *gin.Context) {
	t, ok := promptTypeParam(c)
	if !ok {
		return
	}
	projectID, ok := s.projectScope(c, types.RoleDirector, true)
	if !ok {
		return
	}
	var body promptBody
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	me := currentUser(c)
	saved, err := s.admin.SavePrompt(c.Request.Context(), projectID, t, body.Content, &me.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) getTalkScript(c *gin.Context) {
	projectID, ok := s.projectScope(c, types.RoleUser, false)
	if !ok {
		return
	}
	script, err := s.admin.ActiveTalkScript(c.Request.Context(), *projectID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if script == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active talk script"})
		return
	}
	c.JSON(http.StatusOK, script)
}

type talkScriptBody struct {
	Opening      string              `json:"opening"`
	Proposal     string              `json:"proposal"`
	Closing      string              `json:"closing"`
	HearingItems []types.HearingItem `json:"hearing_items"`
}

func (s *Server) putTalkScript(c *gin.Context) {
	projectID, ok := s.projectScope(c, types.RoleDirector, false)
	if !ok {
		return
	}
	var body talkScriptBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(body.HearingItems) > types.MaxHearingItems {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("at most %d hearing items", types.MaxHearingItems)})
		return
	}
	saved, err := s.admin.SaveTalkScript(c.Request.Context(), types.TalkScript{
		ProjectID:    *projectID,
		Opening:      body.Opening,
		Proposal:     body.Proposal,
		Closing:      body.Closing,
		HearingItems: body.HearingItems,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) getSummary(c *gin.Context) {
	projectID, ok := s.projectScope(c, types.RoleUser, false)
	if !ok {
		return
	}
	calls, err := s.admin.ListProjectCalls(c.Request.Context(), *projectID, summaryCallLimit)
	if err != nil {
		s.fail(c, err)
		return
	}
	sum := aggregator.Summarize(calls)
	c.JSON(http.StatusOK, gin.H{"summary": sum, "focus": actionable.Generate(sum)})
}

func (s *Server) exportCalls(c *gin.Context) {
	projectID, ok := s.projectScope(c, types.RoleDirector, false)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	project, err := s.admin.GetProject(ctx, *projectID)
	if err != nil {
		s.fail(c, err)
		return
	}
	calls, err := s.admin.ListProjectCalls(ctx, *projectID, summaryCallLimit)
	if err != nil {
		s.fail(c, err)
		return
	}
	var buf bytes.Buffer
	if err := dataset.ExportCalls(&buf, *project, calls); err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="project-%d-calls.xlsx"`, project.ID))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// fail maps store errors onto responses. Rejected input is the caller's
// fault and comes back as 400 with the reason.
func (s *Server) fail(c *gin.Context, err error) {
	log := logger.New().WithRequest(c.Request).WithField("error", err.Error())
	if errors.Is(err, store.ErrInvalid) {
		log.Warn("admin request rejected")
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log.Error("admin request failed")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
