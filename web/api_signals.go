package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pharmasignals/database"
)

// getSignals 获取开放信号（超过刷新间隔时先刷新价格）
// GET /api/signals
func getSignals(c *gin.Context) {
	list, err := signalService.GetOpenSignals(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "error.signal_not_found")
		return
	}
	if list == nil {
		list = []*database.Signal{}
	}
	c.JSON(http.StatusOK, gin.H{"signals": list})
}

// getHistory 获取历史记录（最新在前）
// GET /api/signals/history
func getHistory(c *gin.Context) {
	records, err := signalService.GetHistory(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "error.history_not_found")
		return
	}
	if records == nil {
		records = []*database.HistoryRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"history": records})
}

// getHistoryStats 获取历史记录统计
// GET /api/signals/history/stats
func getHistoryStats(c *gin.Context) {
	stats, err := signalService.GetHistoryStats(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "error.history_not_found")
		return
	}

	resp := gin.H{"stats": stats}
	if last, err := signalService.LastRefresh(c.Request.Context()); err == nil && !last.IsZero() {
		resp["lastPriceUpdate"] = last
	}
	c.JSON(http.StatusOK, resp)
}
