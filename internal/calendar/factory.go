package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/roomcal/internal/cache"
	"github.com/hitoshi/roomcal/internal/model"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

// CredentialStore はユーザーのOAuth認証情報を取得するインターフェース。
type CredentialStore interface {
	// FindByUserID は認証情報を返す。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Credentials, error)
}

// TokenStore はリフレッシュしたトークンを保存するインターフェース。
type TokenStore interface {
	Upsert(ctx context.Context, creds *model.Credentials) error
}

// Factory は認証情報ごとのAdapterを生成する。
// 全てのAdapterはプロセスで1つのキャッシュを共有する。
type Factory struct {
	oauth         *oauth2.Config
	cache         *cache.TTLCache[any]
	metrics       MetricsRecorder
	eventsWindow  time.Duration
	clientOptions []option.ClientOption
	tokens        TokenStore
	now           func() time.Time
	newRemote     func(ctx context.Context, opts ...option.ClientOption) (Remote, error)
}

// FactoryOption はFactoryの生成オプション。
type FactoryOption func(*Factory)

// WithClientOptions はGoogle APIクライアントへ追加のオプションを渡す。
func WithClientOptions(opts ...option.ClientOption) FactoryOption {
	return func(f *Factory) {
		f.clientOptions = append(f.clientOptions, opts...)
	}
}

// WithFactoryEventsWindow は生成するAdapterのイベント取得期間を設定する。
func WithFactoryEventsWindow(d time.Duration) FactoryOption {
	return func(f *Factory) {
		f.eventsWindow = d
	}
}

// WithFactoryMetrics は生成するAdapterのメトリクス記録先を設定する。
func WithFactoryMetrics(m MetricsRecorder) FactoryOption {
	return func(f *Factory) {
		f.metrics = m
	}
}

// WithTokenStore はリフレッシュ後のトークンの保存先を設定する。
func WithTokenStore(s TokenStore) FactoryOption {
	return func(f *Factory) {
		f.tokens = s
	}
}

// NewFactory は新しいFactoryを生成する。
func NewFactory(oauthCfg *oauth2.Config, c *cache.TTLCache[any], opts ...FactoryOption) *Factory {
	f := &Factory{
		oauth:        oauthCfg,
		cache:        c,
		eventsWindow: DefaultEventsWindow,
		now:          time.Now,
		newRemote: func(ctx context.Context, opts ...option.ClientOption) (Remote, error) {
			return NewGoogleRemote(ctx, opts...)
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ForCredentials は認証情報に紐づくAdapterを生成する。
// アクセストークンの期限が切れている場合はリフレッシュトークンで更新し、TokenStoreに保存する。
// 有効期限が不明なトークンは期限切れとして扱い、最初の呼び出しで更新する。
func (f *Factory) ForCredentials(ctx context.Context, creds *model.Credentials) (*Adapter, error) {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       creds.Expiry,
	}
	if token.Expiry.IsZero() && token.RefreshToken != "" {
		token.Expiry = time.Unix(0, 0)
	}

	var src oauth2.TokenSource = f.oauth.TokenSource(ctx, token)
	if f.tokens != nil {
		src = &persistingTokenSource{
			ctx:    ctx,
			base:   src,
			creds:  *creds,
			store:  f.tokens,
			now:    f.now,
			stored: creds.AccessToken,
		}
	}
	httpClient := oauth2.NewClient(ctx, src)

	opts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, f.clientOptions...)
	remote, err := f.newRemote(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar client: %w", err)
	}

	return NewAdapter(remote, f.cache, ScopeKey(creds),
		WithEventsWindow(f.eventsWindow),
		WithMetrics(f.metrics),
	), nil
}

// Resolver はユーザーIDから認証情報を引き、Providerを返す。
type Resolver struct {
	factory *Factory
	creds   CredentialStore
}

// NewResolver は新しいResolverを生成する。
func NewResolver(factory *Factory, creds CredentialStore) *Resolver {
	return &Resolver{factory: factory, creds: creds}
}

// ForUser はユーザーのProviderを返す。
// 認証情報が登録されていない場合は CREDENTIALS_NOT_FOUND を返す。
func (r *Resolver) ForUser(ctx context.Context, userID string) (Provider, error) {
	creds, err := r.creds.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find credentials: %w", err)
	}
	if creds == nil {
		return nil, model.NewCredentialsNotFoundError()
	}
	adapter, err := r.factory.ForCredentials(ctx, creds)
	if err != nil {
		return nil, err
	}
	return adapter, nil
}

// persistingTokenSource はトークンが更新されたときに認証情報を保存する。
type persistingTokenSource struct {
	ctx   context.Context
	base  oauth2.TokenSource
	creds model.Credentials
	store TokenStore
	now   func() time.Time

	mu     sync.Mutex
	stored string // 最後に保存したアクセストークン
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken == s.stored {
		return tok, nil
	}

	updated := s.creds
	updated.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		updated.RefreshToken = tok.RefreshToken
	}
	updated.Expiry = tok.Expiry
	updated.UpdatedAt = s.now()

	// 保存に失敗しても今回の呼び出しは更新済みトークンで続行する
	if err := s.store.Upsert(s.ctx, &updated); err != nil {
		slog.Warn("failed to persist refreshed token",
			slog.String("user_id", s.creds.UserID),
			slog.String("error", err.Error()),
		)
		return tok, nil
	}
	s.stored = tok.AccessToken
	return tok, nil
}
