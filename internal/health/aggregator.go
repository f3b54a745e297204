package health

import (
	"context"
	"sync"
	"time"
)

// Aggregator 健康检查聚合器
type Aggregator struct {
	checkers []Checker
	mu       sync.RWMutex
}

// NewAggregator 创建聚合器
func NewAggregator(checkers ...Checker) *Aggregator {
	return &Aggregator{
		checkers: checkers,
	}
}

// AddChecker 添加检查器
func (a *Aggregator) AddChecker(checker Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkers = append(a.checkers, checker)
}

// CheckAll 执行所有健康检查（并发）
func (a *Aggregator) CheckAll(ctx context.Context) map[string]CheckResult {
	a.mu.RLock()
	defer a.mu.RUnlock()

	results := make(map[string]CheckResult)
	resultsMu := sync.Mutex{}
	wg := sync.WaitGroup{}

	for _, checker := range a.checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()

			result := c.Check(ctx)

			resultsMu.Lock()
			results[c.Name()] = result
			resultsMu.Unlock()
		}(checker)
	}

	wg.Wait()
	return results
}

// OverallStatus 计算总体健康状态
func (a *Aggregator) OverallStatus(ctx context.Context) Status {
	return overallOf(a.CheckAll(ctx))
}

// Report 执行一轮检查并生成健康报告
func (a *Aggregator) Report(ctx context.Context) HealthReport {
	results := a.CheckAll(ctx)
	return HealthReport{
		Status:    overallOf(results),
		Timestamp: time.Now(),
		Checks:    results,
	}
}

// Ready 判断系统是否就绪（用于K8s readiness probe）
func (a *Aggregator) Ready(ctx context.Context) bool {
	status := a.OverallStatus(ctx)
	// Degraded状态仍然就绪，只有Unhealthy才不就绪
	return status != StatusUnhealthy
}

// Alive 判断系统是否存活（用于K8s liveness probe）
// 简单返回true，因为如果进程挂了就不会响应
func (a *Aggregator) Alive() bool {
	return true
}

// overallOf 任一不健康则整体不健康，其次任一降级则整体降级
func overallOf(results map[string]CheckResult) Status {
	status := StatusHealthy
	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// HealthReport 一轮检查的汇总
type HealthReport struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}
