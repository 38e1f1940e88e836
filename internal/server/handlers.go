package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"edgegate/internal/config"
	"edgegate/internal/device"
	"edgegate/internal/gateway"

	"github.com/gin-gonic/gin"
)

// 設定API経由の生存確認に使う短いタイムアウト
const liveStatusTimeout = 3 * time.Second

// 一括適用で受け付ける設定項目。デバイス側スキーマに合わせた固定集合
var allowedSettings = map[string]bool{
	"framesize":        true,
	"quality":          true,
	"brightness":       true,
	"contrast":         true,
	"saturation":       true,
	"capture_interval": true,
	"capture_duration": true,
	"stream_interval":  true,
}

// Handler はゲートウェイAPIのエンドポイントを実装する
type Handler struct {
	config  *config.Config
	gateway *gateway.Gateway
}

// ErrorResponse はエラー応答の共通形式
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AddressRequest はデバイスアドレスを指定するリクエスト
type AddressRequest struct {
	IP   string `json:"ip" binding:"required"`
	Port int    `json:"port" binding:"required"`
}

// ControlRequest はカメラパラメータ変更のリクエスト
type ControlRequest struct {
	Var string `json:"var" binding:"required"`
	Val int    `json:"val"`
}

// CommandRequest は動作コマンドのリクエスト
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// RecordingConfigRequest は録画設定変更のリクエスト
type RecordingConfigRequest struct {
	Setting string `json:"setting" binding:"required"`
	Value   int    `json:"value"`
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// GetStatus はゲートウェイ状態取得エンドポイントの実装
func (h *Handler) GetStatus(c *gin.Context) {
	status := h.gateway.Discoverer.Status()

	response := gin.H{
		"status": "running",
		"server": gin.H{
			"host": h.config.Server.Host,
			"port": h.config.Server.Port,
		},
		"devices":   h.gateway.Registry.Len(),
		"timestamp": time.Now(),
	}

	if addr, ok := h.gateway.Store.Current(); ok {
		response["primary"] = addr.String()
	}
	if !status.LastScanAt.IsZero() {
		response["last_scan_at"] = status.LastScanAt
	}

	c.JSON(http.StatusOK, response)
}

// Discover は検出カスケードを起動するエンドポイントの実装
// force=true でスロットルを無視して再スキャンする
func (h *Handler) Discover(c *gin.Context) {
	force := c.Query("force") == "true"

	devices, err := h.gateway.Discoverer.Discover(c.Request.Context(), force)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:     "discovery_failed",
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	status := h.gateway.Discoverer.Status()
	c.JSON(http.StatusOK, gin.H{
		"devices":    devices,
		"count":      len(devices),
		"scan_id":    status.LastScanID,
		"scanned_at": status.LastScanAt,
	})
}

// GetDiscovery は検出サブシステムの状態取得エンドポイントの実装
func (h *Handler) GetDiscovery(c *gin.Context) {
	c.JSON(http.StatusOK, h.gateway.Discoverer.Status())
}

// GetDevices はレジストリのデバイス一覧取得エンドポイントの実装
func (h *Handler) GetDevices(c *gin.Context) {
	records := h.gateway.Registry.Records()
	c.JSON(http.StatusOK, gin.H{
		"devices": records,
		"count":   len(records),
	})
}

// AddDevice はデバイスの手動登録エンドポイントの実装
// 分類による検証を通過したアドレスのみレジストリに登録される
func (h *Handler) AddDevice(c *gin.Context) {
	var req AddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	addr := device.Address{Host: req.IP, Port: req.Port}
	record, err := h.gateway.AddDevice(c.Request.Context(), addr)
	if err != nil {
		var commsErr *gateway.CommsError
		if errors.As(err, &commsErr) {
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
				Error:     "device_not_verified",
				Message:   commsErr.Error(),
				Timestamp: time.Now(),
			})
			return
		}
		h.badRequest(c, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

// GetDeviceConfig は設定済みプライマリデバイスの取得エンドポイントの実装
// ベストエフォートで現在の生存状態も返す
func (h *Handler) GetDeviceConfig(c *gin.Context) {
	addr, ok := h.gateway.Store.Current()
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:     "not_configured",
			Message:   "プライマリデバイスが設定されていません",
			Timestamp: time.Now(),
		})
		return
	}

	response := gin.H{
		"ip":     addr.Host,
		"port":   addr.Port,
		"online": false,
	}

	// 生存確認は短いタイムアウトで行い、失敗しても設定自体は返す
	probeCtx, cancel := context.WithTimeout(c.Request.Context(), liveStatusTimeout)
	defer cancel()

	if snapshot, err := h.gateway.Client.Status(probeCtx, addr); err == nil {
		response["online"] = true
		response["status"] = snapshot
	}

	c.JSON(http.StatusOK, response)
}

// SetDeviceConfig はプライマリデバイスの設定エンドポイントの実装
// 到達性検証を通過した場合のみ永続化される
func (h *Handler) SetDeviceConfig(c *gin.Context) {
	var req AddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	addr := device.Address{Host: req.IP, Port: req.Port}
	if err := h.gateway.Store.Save(c.Request.Context(), addr); err != nil {
		var commsErr *gateway.CommsError
		switch {
		case errors.As(err, &commsErr):
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
				Error:     "device_not_verified",
				Message:   commsErr.Error(),
				Timestamp: time.Now(),
			})
		case errors.Is(err, gateway.ErrConfigPersist):
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:     "config_persist_failed",
				Message:   err.Error(),
				Timestamp: time.Now(),
			})
		default:
			h.badRequest(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"ip":      addr.Host,
		"port":    addr.Port,
	})
}

// ProxyStatus はデバイスステータス取得のプロキシ実装
func (h *Handler) ProxyStatus(c *gin.Context) {
	snapshot, err := h.gateway.Proxy.Status(c.Request.Context())
	if err != nil {
		h.proxyError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// ProxyControl はカメラパラメータ変更のプロキシ実装
func (h *Handler) ProxyControl(c *gin.Context) {
	var req ControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	result, err := h.gateway.Proxy.Control(c.Request.Context(), req.Var, req.Val)
	if err != nil {
		h.proxyError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ProxyCommand は動作コマンドのプロキシ実装
func (h *Handler) ProxyCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	result, err := h.gateway.Proxy.Command(c.Request.Context(), req.Command)
	if err != nil {
		h.proxyError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ProxyRecordingConfig は録画設定変更のプロキシ実装
func (h *Handler) ProxyRecordingConfig(c *gin.Context) {
	var req RecordingConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	result, err := h.gateway.Proxy.RecordingConfig(c.Request.Context(), req.Setting, req.Value)
	if err != nil {
		h.proxyError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ProxyApplySettings は設定一括適用のプロキシ実装
// 既知の設定項目のみ受け付ける
func (h *Handler) ProxyApplySettings(c *gin.Context) {
	var settings map[string]any
	if err := c.ShouldBindJSON(&settings); err != nil {
		h.badRequest(c, err)
		return
	}
	if len(settings) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "invalid_request",
			Message:   "設定項目が指定されていません",
			Timestamp: time.Now(),
		})
		return
	}
	for key := range settings {
		if !allowedSettings[key] {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:     "invalid_request",
				Message:   "未知の設定項目: " + key,
				Timestamp: time.Now(),
			})
			return
		}
	}

	result, err := h.gateway.Proxy.ApplySettings(c.Request.Context(), settings)
	if err != nil {
		h.proxyError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ProxyFiles はファイル一覧取得のプロキシ実装
func (h *Handler) ProxyFiles(c *gin.Context) {
	list, err := h.gateway.Proxy.Files(c.Request.Context())
	if err != nil {
		h.proxyError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// ProxyCapture は静止画取得のプロキシ実装
// 画像データをそのまま転送する
func (h *Handler) ProxyCapture(c *gin.Context) {
	data, contentType, err := h.gateway.Proxy.Capture(c.Request.Context())
	if err != nil {
		h.proxyError(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, data)
}

// proxyError はプロキシのエラーを呼び出し側向け応答へ変換する
func (h *Handler) proxyError(c *gin.Context, err error) {
	if errors.Is(err, gateway.ErrNoDeviceConfigured) {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:     "no_device_configured",
			Message:   "対象デバイスが設定されていません。検出または設定を行ってください",
			Timestamp: time.Now(),
		})
		return
	}

	var commsErr *gateway.CommsError
	if errors.As(err, &commsErr) {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:     "device_unreachable",
			Message:   commsErr.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:     "internal_error",
		Message:   err.Error(),
		Timestamp: time.Now(),
	})
}

// badRequest は不正なリクエストへの応答を返す
func (h *Handler) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:     "invalid_request",
		Message:   err.Error(),
		Timestamp: time.Now(),
	})
}
