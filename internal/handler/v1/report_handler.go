package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/pharmaops/doseflow/internal/service"
)

type ReportHandler struct {
	reportSvc *service.ReportService
}

func NewReportHandler(reportSvc *service.ReportService) *ReportHandler {
	return &ReportHandler{reportSvc: reportSvc}
}

func (h *ReportHandler) LowStock(c *gin.Context) {
	meds, err := h.reportSvc.LowStock(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, meds)
}

func (h *ReportHandler) NearExpiry(c *gin.Context) {
	meds, err := h.reportSvc.NearExpiry(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, meds)
}

func (h *ReportHandler) UpcomingReleases(c *gin.Context) {
	days := parseQueryInt(c, "days", 7)
	controls, err := h.reportSvc.UpcomingReleases(c.Request.Context(), days)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, controls)
}

func (h *ReportHandler) RecentEarlyReleases(c *gin.Context) {
	days := parseQueryInt(c, "days", 30)
	limit := parseQueryInt(c, "limit", 100)
	logs, err := h.reportSvc.RecentEarlyReleases(c.Request.Context(), days, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, logs)
}
