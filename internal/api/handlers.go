// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具

package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ZSC714725/m3u8downloader/internal/ffmpeg/probe"
	"github.com/ZSC714725/m3u8downloader/internal/ffmpeg/skills"
	"github.com/ZSC714725/m3u8downloader/internal/task"
)

// SkillsSource provides the detected ffmpeg capabilities
type SkillsSource interface {
	Skills(ctx context.Context) (skills.Skills, error)
	ReloadSkills(ctx context.Context) error
}

// Handler holds dependencies
type Handler struct {
	store  task.Store
	skills SkillsSource
}

// NewHandler creates API handler
func NewHandler(store task.Store, source SkillsSource) *Handler {
	return &Handler{store: store, skills: source}
}

// NewRouter mounts the read-only status API
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), cors.Default())

	v1 := r.Group("/api/v1")
	{
		v1.GET("/skills", h.Skills)
		v1.POST("/skills/reload", h.ReloadSkills)

		v1.GET("/jobs", h.ListJobs)
		v1.GET("/jobs/:id", h.GetJob)
		v1.GET("/jobs/:id/report", h.GetReport)
	}

	return r
}

func errResp(c *gin.Context, code int, msg, detail string) {
	c.JSON(code, ErrorResponse{Code: code, Message: msg, Detail: detail})
}

// ListJobs GET /api/v1/jobs
func (h *Handler) ListJobs(c *gin.Context) {
	idStr := c.DefaultQuery("id", "")

	var ids []string
	if idStr != "" {
		ids = strings.FieldsFunc(idStr, func(r rune) bool { return r == ',' })
		for i := range ids {
			ids[i] = strings.TrimSpace(ids[i])
		}
	}

	tasks := h.store.List(ids)
	jobs := make([]Job, 0, len(tasks))
	for _, t := range tasks {
		jobs = append(jobs, snapshotToJob(t.Snapshot()))
	}

	c.JSON(http.StatusOK, jobs)
}

// GetJob GET /api/v1/jobs/:id
func (h *Handler) GetJob(c *gin.Context) {
	t, err := h.store.Get(c.Param("id"))
	if err != nil {
		errResp(c, http.StatusNotFound, "Unknown job ID", err.Error())
		return
	}

	c.JSON(http.StatusOK, snapshotToJob(t.Snapshot()))
}

// GetReport GET /api/v1/jobs/:id/report
func (h *Handler) GetReport(c *gin.Context) {
	t, err := h.store.Get(c.Param("id"))
	if err != nil {
		errResp(c, http.StatusNotFound, "Unknown job ID", err.Error())
		return
	}

	snap := t.Snapshot()
	report := JobReport{ID: snap.ID, Phases: make([]PhaseReport, 0, len(snap.Phases))}
	for _, p := range snap.Phases {
		pr := PhaseReport{Name: p.Name, Command: p.Command, Log: make([][2]string, len(p.Log))}
		for i, line := range p.Log {
			pr.Log[i] = [2]string{
				line.Timestamp.Format("2006-01-02 15:04:05.000"),
				line.Data,
			}
		}
		report.Phases = append(report.Phases, pr)
	}

	c.JSON(http.StatusOK, report)
}

// Skills GET /api/v1/skills
func (h *Handler) Skills(c *gin.Context) {
	sk, err := h.skills.Skills(c.Request.Context())
	if err != nil {
		errResp(c, http.StatusInternalServerError, "Skills unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, SkillsResponse{Skills: sk, Missing: nonNil(sk.Missing())})
}

// ReloadSkills POST /api/v1/skills/reload
func (h *Handler) ReloadSkills(c *gin.Context) {
	if err := h.skills.ReloadSkills(c.Request.Context()); err != nil {
		errResp(c, http.StatusInternalServerError, "Reload failed", err.Error())
		return
	}
	h.Skills(c)
}

func snapshotToJob(s task.Snapshot) Job {
	j := Job{
		ID:        s.ID,
		Source:    s.Source,
		State:     string(s.State),
		Message:   s.Message,
		Output:    s.Output,
		Variants:  s.Variants,
		Selected:  s.Selected,
		Phases:    make([]Phase, 0, len(s.Phases)),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if j.Variants == nil {
		j.Variants = []probe.Variant{}
	}

	for _, p := range s.Phases {
		phase := Phase{
			Name:      p.Name,
			State:     p.State.String(),
			Progress:  p.Progress,
			Message:   p.Message,
			Command:   p.Command,
			Stats:     p.Stats,
			Memory:    p.Usage.MemoryPeak,
			CPU:       p.Usage.CPU,
			StartedAt: p.StartedAt,
		}
		end := p.EndedAt
		if end == 0 {
			end = s.UpdatedAt
		}
		if p.StartedAt > 0 && end >= p.StartedAt {
			phase.Runtime = end - p.StartedAt
		}
		j.Phases = append(j.Phases, phase)
	}

	return j
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
