package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/deck-driver/internal/api/middleware"
	"github.com/taoyao-code/deck-driver/internal/registry"
)

// RegisterDeviceRoutes 注册设备控制路由
func RegisterDeviceRoutes(
	r *gin.Engine,
	reg *registry.Registry,
	authCfg middleware.AuthConfig,
	logger *zap.Logger,
) {
	if r == nil || reg == nil {
		return
	}

	handler := NewDeviceHandler(reg, logger)

	// 控制面板页面跨域访问，预检请求不带Key，必须先于认证
	r.Use(middleware.CORS())

	// API路由组(需要认证)
	api := r.Group("/api/v1")
	if authCfg.Enabled {
		api.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}

	// 设备查询
	api.GET("/devices", handler.ListDevices)
	api.GET("/devices/:name", handler.GetDevice)

	// 设备控制
	api.POST("/devices/:name/brightness", handler.SetBrightness)
	api.POST("/devices/:name/buttons/:button/color", handler.SetButtonColor)
	api.POST("/devices/:name/keys/:key/fill", handler.FillKey)
	api.POST("/devices/:name/vibrate", handler.Vibrate)
	api.POST("/devices/:name/reset", handler.Reset)

	logger.Info("device routes registered", zap.Int("endpoints", 7))
}
