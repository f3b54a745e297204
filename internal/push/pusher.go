package push

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Pusher 带签名与重试的Webhook客户端
type Pusher struct {
	Client  *http.Client
	APIKey  string
	Secret  string
	Retries int
	Backoff []time.Duration
}

// NewPusher 创建推送客户端，client为空时使用5秒超时的默认客户端
func NewPusher(client *http.Client, apiKey, secret string) *Pusher {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Pusher{
		Client:  client,
		APIKey:  apiKey,
		Secret:  secret,
		Retries: 5,
		Backoff: []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 500 * time.Millisecond, time.Second, 2 * time.Second},
	}
}

// buildCanonical 构建签名串: method\npath\ntimestamp\nnonce\nbodySha256Hex
func buildCanonical(method, path string, ts int64, nonce, bodyHex string) string {
	return fmt.Sprintf("%s\n%s\n%d\n%s\n%s", strings.ToUpper(method), path, ts, nonce, bodyHex)
}

// hashHex 计算 sha256(body) 的 hex 小写
func hashHex(body []byte) string {
	h := sha256.Sum256(body)
	return hex.EncodeToString(h[:])
}

// SendJSON 发送 JSON 事件，自动添加签名头。
// 2xx与4xx直接返回，5xx与网络错误按退避阶梯重试。
func (p *Pusher) SendJSON(ctx context.Context, endpoint string, payload any) (int, []byte, error) {
	if p == nil || p.Client == nil {
		return 0, nil, errors.New("nil pusher")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return 0, nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	ts := time.Now().Unix()
	nonce := nonceOf(payload)
	canonical := buildCanonical(http.MethodPost, u.Path, ts, nonce, hashHex(body))
	sig := SignHMAC(p.Secret, canonical)

	var respBody []byte
	var code int
	var lastErr error
	for attempt := 0; attempt <= p.Retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if p.APIKey != "" {
			req.Header.Set("X-Api-Key", p.APIKey)
		}
		req.Header.Set("X-Signature", sig)
		req.Header.Set("X-Timestamp", fmt.Sprintf("%d", ts))
		req.Header.Set("X-Nonce", nonce)

		resp, err := p.Client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			code = resp.StatusCode
			rb, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			respBody = rb
			if code >= 200 && code < 300 {
				return code, respBody, nil
			}
			// 非2xx：仅对5xx重试
			if code < 500 {
				return code, respBody, nil
			}
		}
		if attempt == p.Retries {
			break
		}
		backoff := p.Backoff[min(attempt, len(p.Backoff)-1)]
		select {
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if lastErr != nil {
		return 0, nil, lastErr
	}
	return code, respBody, fmt.Errorf("http %d", code)
}

// nonceOf 事件自带nonce时复用，保证重试携带一致签名要素
func nonceOf(payload any) string {
	if e, ok := payload.(*Event); ok && e.Nonce != "" {
		return e.Nonce
	}
	return fmt.Sprintf("%08x", time.Now().UnixNano())
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
