package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"pharmasignals/database"
	"pharmasignals/logger"
	"pharmasignals/signals"
	"pharmasignals/utils"
)

// signalRequest 新增信号请求
type signalRequest struct {
	Symbol       string  `json:"symbol"`
	Type         string  `json:"type"`
	EnterPrice   float64 `json:"enterPrice"`
	FirstTarget  float64 `json:"firstTarget"`
	SecondTarget float64 `json:"secondTarget"`
	DateOpened   string  `json:"dateOpened"` // YYYY-MM-DD，默认当天
	ReasonEn     string  `json:"reasonEn"`
	ReasonAr     string  `json:"reasonAr"`
}

func (r *signalRequest) apply(sig *database.Signal) error {
	sig.Symbol = r.Symbol
	sig.Type = r.Type
	sig.EnterPrice = r.EnterPrice
	sig.FirstTarget = r.FirstTarget
	sig.SecondTarget = r.SecondTarget
	sig.ReasonEn = r.ReasonEn
	sig.ReasonAr = r.ReasonAr

	if r.DateOpened != "" {
		d, err := time.ParseInLocation("2006-01-02", r.DateOpened, utils.GlobalLocation)
		if err != nil {
			return err
		}
		sig.DateOpened = d
	}
	return nil
}

// updateSignalRequest 修改信号请求。只有 symbol、type 可修改，
// 其余字段可原样回传，与现值不同时返回 400。
type updateSignalRequest struct {
	Symbol       *string  `json:"symbol"`
	Type         *string  `json:"type"`
	EnterPrice   *float64 `json:"enterPrice"`
	FirstTarget  *float64 `json:"firstTarget"`
	SecondTarget *float64 `json:"secondTarget"`
	DateOpened   *string  `json:"dateOpened"`
	ReasonEn     *string  `json:"reasonEn"`
	ReasonAr     *string  `json:"reasonAr"`
}

func (r *updateSignalRequest) toUpdate() (signals.SignalUpdate, error) {
	upd := signals.SignalUpdate{
		Symbol:       r.Symbol,
		Type:         r.Type,
		EnterPrice:   r.EnterPrice,
		FirstTarget:  r.FirstTarget,
		SecondTarget: r.SecondTarget,
		ReasonEn:     r.ReasonEn,
		ReasonAr:     r.ReasonAr,
	}
	if r.DateOpened != nil && *r.DateOpened != "" {
		d, err := time.ParseInLocation("2006-01-02", *r.DateOpened, utils.GlobalLocation)
		if err != nil {
			return upd, err
		}
		upd.DateOpened = &d
	}
	return upd, nil
}

// historyRequest 修改历史记录说明
type historyRequest struct {
	ReasonEn string `json:"reasonEn"`
	ReasonAr string `json:"reasonAr"`
}

// createSignal 新增信号
// POST /api/admin/signals
func createSignal(c *gin.Context) {
	var req signalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "error.invalid_request")
		return
	}

	sig := &database.Signal{}
	if err := req.apply(sig); err != nil {
		respondError(c, http.StatusBadRequest, "error.invalid_signal", map[string]interface{}{"Reason": "dateOpened " + err.Error()})
		return
	}
	if err := signalService.CreateSignal(c.Request.Context(), sig); err != nil {
		respondServiceError(c, err, "error.signal_not_found")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"signal":  sig,
		"message": T(c, "message.signal_created"),
	})
}

// getAdminSignal 获取单个信号（不刷新价格）
// GET /api/admin/signals/:id
func getAdminSignal(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	sig, err := signalService.GetSignal(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "error.signal_not_found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"signal": sig})
}

// updateSignal 修改信号的代码或方向
// PUT /api/admin/signals/:id
func updateSignal(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req updateSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "error.invalid_request")
		return
	}
	upd, err := req.toUpdate()
	if err != nil {
		respondError(c, http.StatusBadRequest, "error.invalid_signal", map[string]interface{}{"Reason": "dateOpened " + err.Error()})
		return
	}

	sig, err := signalService.UpdateSignal(c.Request.Context(), id, upd)
	if err != nil {
		respondServiceError(c, err, "error.signal_not_found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"signal":  sig,
		"message": T(c, "message.signal_updated"),
	})
}

// refreshSignal 立即刷新单个信号价格，查询失败返回 502
// POST /api/admin/signals/:id/refresh
func refreshSignal(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	sig, open, err := signalService.RefreshSignal(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "error.signal_not_found")
		return
	}

	resp := gin.H{"signal": sig, "open": open}
	if !open {
		resp["message"] = T(c, "message.signal_closed", map[string]interface{}{"Symbol": sig.Symbol})
	}
	c.JSON(http.StatusOK, resp)
}

// closeSignal 按当前价格手动平仓
// POST /api/admin/signals/:id/close
func closeSignal(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	record, err := signalService.CloseSignal(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "error.signal_not_found")
		return
	}

	logger.Info("管理员 %s 手动平仓 %s(#%d)", c.GetString("username"), record.Symbol, id)
	c.JSON(http.StatusOK, gin.H{
		"record":  record,
		"message": T(c, "message.signal_closed", map[string]interface{}{"Symbol": record.Symbol}),
	})
}

// deleteSignal 删除信号，closeSignal=yes 时先平仓归档
// DELETE /api/admin/signals/:id?closeSignal=yes|no
func deleteSignal(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var closeFirst bool
	switch strings.ToLower(c.DefaultQuery("closeSignal", "no")) {
	case "yes", "true", "1":
		closeFirst = true
	case "no", "false", "0":
	default:
		respondError(c, http.StatusBadRequest, "error.invalid_close_flag")
		return
	}

	record, err := signalService.DeleteSignal(c.Request.Context(), id, closeFirst)
	if err != nil {
		respondServiceError(c, err, "error.signal_not_found")
		return
	}

	logger.Info("管理员 %s 删除信号 #%d (归档=%v)", c.GetString("username"), id, closeFirst)
	resp := gin.H{"message": T(c, "message.signal_deleted")}
	if record != nil {
		resp["record"] = record
	}
	c.JSON(http.StatusOK, resp)
}

// updateHistory 修改历史记录说明
// PUT /api/admin/history/:id
func updateHistory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req historyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "error.invalid_request")
		return
	}
	if err := signalService.UpdateHistoryReasons(c.Request.Context(), id, req.ReasonEn, req.ReasonAr); err != nil {
		respondServiceError(c, err, "error.history_not_found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": T(c, "message.history_updated")})
}

// deleteHistory 删除历史记录
// DELETE /api/admin/history/:id
func deleteHistory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := signalService.DeleteHistoryRecord(c.Request.Context(), id); err != nil {
		respondServiceError(c, err, "error.history_not_found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": T(c, "message.history_deleted")})
}
