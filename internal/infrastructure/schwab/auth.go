package schwab

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/betbot/wetrade/internal/ports"
)

// ErrInteractiveLogin 需要浏览器交互登录才能获取新 token（不在本程序范围内）
var ErrInteractiveLogin = errors.New("schwab: interactive login required for a new token")

// TokenSource 读取当前可用的 access token（secret store、环境变量、配置文件）
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenSourceFunc 函数适配
type TokenSourceFunc func(ctx context.Context) (string, error)

func (f TokenSourceFunc) AccessToken(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken 固定 token
func StaticToken(token string) TokenSource {
	return TokenSourceFunc(func(context.Context) (string, error) { return token, nil })
}

// Auth 持有当前 token，并在推送登录失败时从 TokenSource 重新读取
type Auth struct {
	source TokenSource

	mu    sync.RWMutex
	token string
}

// NewAuth 创建并立即读取一次 token
func NewAuth(ctx context.Context, source TokenSource) (*Auth, error) {
	a := &Auth{source: source}
	if err := a.reload(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Token 当前 token
func (a *Auth) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// Reauthenticate newToken=false 时重新读取 token（可能已被外部刷新）；
// newToken=true 需要交互登录，返回 ErrInteractiveLogin。
func (a *Auth) Reauthenticate(ctx context.Context, newToken bool) error {
	if newToken {
		return ErrInteractiveLogin
	}
	return a.reload(ctx)
}

func (a *Auth) reload(ctx context.Context) error {
	tok, err := a.source.AccessToken(ctx)
	if err != nil {
		return err
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return errors.New("schwab: empty access token")
	}
	a.mu.Lock()
	changed := a.token != "" && a.token != tok
	a.token = tok
	a.mu.Unlock()
	if changed {
		restLog.Info("access token 已更新")
	}
	return nil
}

var (
	_ ports.Authenticator = (*Auth)(nil)
	_ TokenProvider       = (*Auth)(nil)
)
