package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/deck-driver/internal/device"
	"github.com/taoyao-code/deck-driver/internal/protocol/loupedeck"
	"github.com/taoyao-code/deck-driver/internal/registry"
	"github.com/taoyao-code/deck-driver/internal/transport"
)

// DeviceHandler 设备控制API处理器
type DeviceHandler struct {
	reg    *registry.Registry
	logger *zap.Logger
}

// NewDeviceHandler 创建设备控制API处理器
func NewDeviceHandler(reg *registry.Registry, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{reg: reg, logger: logger}
}

// BrightnessRequest 亮度设置请求，level取0.0~1.0
type BrightnessRequest struct {
	Level *float64 `json:"level" binding:"required"`
}

// ColorRequest 颜色设置请求，支持#RGB、#RRGGBB与常用色名
type ColorRequest struct {
	Color string `json:"color" binding:"required"`
}

// VibrateRequest 震动请求，pattern为波形名称
type VibrateRequest struct {
	Pattern string `json:"pattern" binding:"required"`
}

// ListDevices 查询设备列表
// @Summary 查询设备列表
// @Description 返回所有纳管设备的状态摘要
// @Tags 设备管理
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/v1/devices [get]
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	entries := h.reg.Entries()
	devices := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		devices = append(devices, deviceSummary(e.Name, e.Device))
	}
	c.JSON(200, gin.H{"devices": devices})
}

// GetDevice 查询单台设备
// @Summary 查询单台设备
// @Description 返回设备状态摘要与型号描述
// @Tags 设备管理
// @Produce json
// @Security ApiKeyAuth
// @Param name path string true "设备名称"
// @Success 200 {object} map[string]interface{} "成功"
// @Failure 404 {object} map[string]interface{} "设备不存在"
// @Router /api/v1/devices/{name} [get]
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	name := c.Param("name")
	d, ok := h.reg.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}

	desc := d.Descriptor()
	screens := make([]string, 0, len(desc.Displays))
	for s := range desc.Displays {
		screens = append(screens, s)
	}
	sort.Strings(screens)

	buttons := make([]string, 0, len(desc.Buttons))
	for _, id := range desc.Buttons {
		buttons = append(buttons, string(id))
	}
	sort.Strings(buttons)

	knobs := make([]string, 0, len(desc.Knobs))
	for _, id := range desc.Knobs {
		knobs = append(knobs, string(id))
	}

	c.JSON(200, gin.H{
		"device": deviceSummary(name, d),
		"descriptor": gin.H{
			"vendor_id":         desc.VendorID,
			"product_id":        desc.ProductID,
			"rows":              desc.Rows,
			"columns":           desc.Columns,
			"key_size":          desc.KeySize,
			"screens":           screens,
			"buttons":           buttons,
			"knobs":             knobs,
			"has_color_buttons": desc.HasColorButtons,
			"has_vibration":     desc.HasVibration,
		},
	})
}

// SetBrightness 设置背光亮度
// @Summary 设置背光亮度
// @Description 设置设备背光，0.0熄灭，1.0最亮，越界值就近截断
// @Tags 设备控制
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param name path string true "设备名称"
// @Param body body BrightnessRequest true "亮度"
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/v1/devices/{name}/brightness [post]
func (h *DeviceHandler) SetBrightness(c *gin.Context) {
	d, ok := h.lookup(c)
	if !ok {
		return
	}
	var req BrightnessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	h.respond(c, "brightness", d.SetBrightness(*req.Level))
}

// SetButtonColor 设置按键灯色
// @Summary 设置按键灯色
// @Description 设置指定实体按键的RGB灯色
// @Tags 设备控制
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param name path string true "设备名称"
// @Param button path string true "按键标识"
// @Param body body ColorRequest true "颜色"
// @Success 200 {object} map[string]interface{} "成功"
// @Failure 422 {object} map[string]interface{} "型号不支持"
// @Router /api/v1/devices/{name}/buttons/{button}/color [post]
func (h *DeviceHandler) SetButtonColor(c *gin.Context) {
	d, ok := h.lookup(c)
	if !ok {
		return
	}
	var req ColorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	rgba, err := loupedeck.ParseColor(req.Color)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respond(c, "button color", d.SetButtonColor(device.ButtonID(c.Param("button")), rgba))
}

// FillKey 纯色填充按键格
// @Summary 纯色填充按键格
// @Description 将中屏指定按键格填充为单一颜色
// @Tags 设备控制
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param name path string true "设备名称"
// @Param key path int true "按键格序号"
// @Param body body ColorRequest true "颜色"
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/v1/devices/{name}/keys/{key}/fill [post]
func (h *DeviceHandler) FillKey(c *gin.Context) {
	d, ok := h.lookup(c)
	if !ok {
		return
	}
	key, err := strconv.Atoi(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key: " + c.Param("key")})
		return
	}
	var req ColorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	rgba, err := loupedeck.ParseColor(req.Color)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respond(c, "key fill", d.FillKey(c.Request.Context(), key, rgba))
}

// Vibrate 触发震动
// @Summary 触发震动
// @Description 按波形名称触发一次震动反馈
// @Tags 设备控制
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param name path string true "设备名称"
// @Param body body VibrateRequest true "波形"
// @Success 200 {object} map[string]interface{} "成功"
// @Failure 422 {object} map[string]interface{} "型号不支持"
// @Router /api/v1/devices/{name}/vibrate [post]
func (h *DeviceHandler) Vibrate(c *gin.Context) {
	d, ok := h.lookup(c)
	if !ok {
		return
	}
	var req VibrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	pattern, ok := loupedeck.ParseHaptic(req.Pattern)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown pattern: " + req.Pattern})
		return
	}
	h.respond(c, "vibrate", d.Vibrate(pattern))
}

// Reset 复位设备
// @Summary 复位设备
// @Description 清屏并让设备回到初始状态
// @Tags 设备控制
// @Produce json
// @Security ApiKeyAuth
// @Param name path string true "设备名称"
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/v1/devices/{name}/reset [post]
func (h *DeviceHandler) Reset(c *gin.Context) {
	d, ok := h.lookup(c)
	if !ok {
		return
	}
	h.respond(c, "reset", d.Reset())
}

// lookup 按路径参数取设备，不存在时写404并返回false
func (h *DeviceHandler) lookup(c *gin.Context) (*device.Device, bool) {
	d, ok := h.reg.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return nil, false
	}
	return d, true
}

// respond 统一操作应答：成功200，失败按错误类型映射状态码
func (h *DeviceHandler) respond(c *gin.Context, action string, err error) {
	if err == nil {
		c.JSON(200, gin.H{"status": "ok"})
		return
	}
	h.logger.Warn("device command failed",
		zap.String("device", c.Param("name")),
		zap.String("action", action),
		zap.Error(err),
	)
	c.JSON(statusOf(err), gin.H{"error": err.Error()})
}

// statusOf 设备层错误到HTTP状态码的映射
func statusOf(err error) int {
	var vErr *device.ValidationError
	var uErr *device.UnsupportedError
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest
	case errors.As(err, &uErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, device.ErrClosed) || errors.Is(err, transport.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, transport.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// deviceSummary 设备状态摘要
func deviceSummary(name string, d *device.Device) gin.H {
	s := gin.H{
		"name":     name,
		"model":    d.Descriptor().Type,
		"state":    d.State().String(),
		"address":  d.Address(),
		"instance": d.InstanceID(),
	}
	if last := d.LastActivity(); !last.IsZero() {
		s["last_activity"] = last.Format(time.RFC3339)
	}
	return s
}
