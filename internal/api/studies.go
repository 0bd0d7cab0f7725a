package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/camtrap-go/internal/errors"
	"github.com/tphakala/camtrap-go/internal/registry"
)

// StartStudyRequest describes a new import and inference run.
type StartStudyRequest struct {
	Folder       string `json:"folder"`
	ModelID      string `json:"modelId"`
	ModelVersion string `json:"modelVersion"`
	Country      string `json:"country,omitempty"`
}

// StartStudyResponse carries the generated study identifier.
type StartStudyResponse struct {
	StudyID string `json:"studyId"`
}

// AddMediaRequest names a folder to incrementally scan into a study.
type AddMediaRequest struct {
	Folder string `json:"folder"`
}

// AddMediaResponse reports how many media rows were registered.
type AddMediaResponse struct {
	Inserted int `json:"inserted"`
}

// StartStudy creates a study for the folder and launches processing. The run
// continues in the background; progress is available through the status
// endpoint.
func (c *Controller) StartStudy(ctx echo.Context) error {
	var req StartStudyRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	if req.Folder == "" || req.ModelID == "" || req.ModelVersion == "" {
		return c.HandleError(ctx,
			errors.Newf("folder, modelId and modelVersion are required").
				Component("api").
				Category(errors.CategoryValidation).
				Build(),
			"Missing required fields", http.StatusBadRequest)
	}

	studyID, err := c.Manager.Start(req.Folder, registry.ModelRef{ID: req.ModelID, Version: req.ModelVersion}, req.Country)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to start study", http.StatusInternalServerError)
	}

	c.logger.Info("study started", "study_id", studyID, "folder", req.Folder, "model", req.ModelID)
	return ctx.JSON(http.StatusAccepted, StartStudyResponse{StudyID: studyID})
}

// AddMedia incrementally registers a folder's media into an existing study.
// Rejected while a run is in flight.
func (c *Controller) AddMedia(ctx echo.Context) error {
	studyID := ctx.Param("id")

	var req AddMediaRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	if req.Folder == "" {
		return c.HandleError(ctx,
			errors.Newf("folder is required").
				Component("api").
				Category(errors.CategoryValidation).
				Build(),
			"Missing required fields", http.StatusBadRequest)
	}

	inserted, err := c.Manager.AddMedia(studyID, req.Folder)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.HasCategory(err, errors.CategoryConflict) {
			code = http.StatusConflict
		}
		return c.HandleError(ctx, err, "Failed to add media", code)
	}

	c.logger.Info("media added", "study_id", studyID, "folder", req.Folder, "inserted", inserted)
	return ctx.JSON(http.StatusOK, AddMediaResponse{Inserted: inserted})
}

// StopStudy cancels the study's active run and force-terminates its
// inference server. Stopping a study with no active run is a no-op.
func (c *Controller) StopStudy(ctx echo.Context) error {
	studyID := ctx.Param("id")
	c.Manager.Stop(studyID)
	c.logger.Info("stop requested", "study_id", studyID)
	return ctx.NoContent(http.StatusNoContent)
}

// ResumeStudy relaunches processing for a study with the model and options
// of its most recent run.
func (c *Controller) ResumeStudy(ctx echo.Context) error {
	studyID := ctx.Param("id")

	if err := c.Manager.Resume(studyID); err != nil {
		code := http.StatusInternalServerError
		switch {
		case errors.HasCategory(err, errors.CategoryConflict):
			code = http.StatusConflict
		case errors.HasCategory(err, errors.CategoryNotFound):
			code = http.StatusNotFound
		}
		return c.HandleError(ctx, err, "Failed to resume study", code)
	}

	c.logger.Info("study resumed", "study_id", studyID)
	return ctx.JSON(http.StatusAccepted, StartStudyResponse{StudyID: studyID})
}

// StudyStatus reports a study's processing progress. Responses are cached
// briefly per study so aggressive polling doesn't hammer the store.
func (c *Controller) StudyStatus(ctx echo.Context) error {
	studyID := ctx.Param("id")

	if cached, found := c.statusCache.Get(studyID); found {
		return ctx.JSON(http.StatusOK, cached)
	}

	status, err := c.Manager.Status(studyID)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to read study status", http.StatusNotFound)
	}

	c.statusCache.Set(studyID, status, cache.DefaultExpiration)
	return ctx.JSON(http.StatusOK, status)
}
