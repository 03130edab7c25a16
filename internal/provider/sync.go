package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	uferrors "github.com/Aman-CERP/unifind/internal/errors"
	"github.com/Aman-CERP/unifind/internal/store"
)

// DefaultProviderTimeout bounds one provider listing attempt.
const DefaultProviderTimeout = 60 * time.Second

// SyncerOptions configures a Syncer.
type SyncerOptions struct {
	// Timeout bounds each List attempt (0 = DefaultProviderTimeout).
	Timeout time.Duration
	// Retry applies to provider calls. Zero value uses ProviderRetryConfig.
	Retry uferrors.RetryConfig
	// BreakerFailures and BreakerReset tune the per-provider circuit breaker.
	BreakerFailures int
	BreakerReset    time.Duration
	// Refreshers renew access tokens before scheduled syncs, per provider.
	Refreshers map[store.StorageType]TokenRefresher
}

// SyncStats summarizes one account sync.
type SyncStats struct {
	RunID     string
	AccountID string
	Provider  store.StorageType
	Listed    int
	Duration  time.Duration
}

// Syncer mirrors provider listings into the Index Store.
type Syncer struct {
	store      store.IndexStore
	tokens     TokenStore
	providers  map[store.StorageType]Provider
	refreshers map[store.StorageType]TokenRefresher
	breakers   map[store.StorageType]*uferrors.CircuitBreaker
	retry      uferrors.RetryConfig
	timeout    time.Duration
	now        func() time.Time
}

// NewSyncer creates a syncer over the given providers.
func NewSyncer(st store.IndexStore, tokens TokenStore, opts SyncerOptions, providers ...Provider) *Syncer {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	retry := opts.Retry
	if retry.Multiplier == 0 {
		retry = uferrors.ProviderRetryConfig()
	}

	var breakerOpts []uferrors.CircuitBreakerOption
	if opts.BreakerFailures > 0 {
		breakerOpts = append(breakerOpts, uferrors.WithMaxFailures(opts.BreakerFailures))
	}
	if opts.BreakerReset > 0 {
		breakerOpts = append(breakerOpts, uferrors.WithResetTimeout(opts.BreakerReset))
	}

	s := &Syncer{
		store:      st,
		tokens:     tokens,
		providers:  make(map[store.StorageType]Provider, len(providers)),
		refreshers: opts.Refreshers,
		breakers:   make(map[store.StorageType]*uferrors.CircuitBreaker, len(providers)),
		retry:      retry,
		timeout:    timeout,
		now:        time.Now,
	}
	for _, p := range providers {
		s.providers[p.Name()] = p
		s.breakers[p.Name()] = uferrors.NewCircuitBreaker(p.Name().String(), breakerOpts...)
	}
	return s
}

// Provider returns the adapter for storage, or a validation error.
func (s *Syncer) Provider(storage store.StorageType) (Provider, error) {
	p, ok := s.providers[storage]
	if !ok {
		return nil, uferrors.New(uferrors.ErrCodeUnsupportedProvider, "unsupported provider", nil).
			WithDetail("provider", storage.String())
	}
	return p, nil
}

// Sync lists the account's objects and upserts them for owner in one
// transaction, then records the sync time. Nothing is written unless the
// whole listing succeeded.
func (s *Syncer) Sync(ctx context.Context, accountID, ownerID string, storage store.StorageType) (SyncStats, error) {
	stats := SyncStats{RunID: uuid.NewString(), AccountID: accountID, Provider: storage}
	start := s.now()
	logger := slog.With(
		slog.String("run_id", stats.RunID),
		slog.String("account_id", accountID),
		slog.String("provider", storage.String()))

	p, err := s.Provider(storage)
	if err != nil {
		return stats, err
	}

	tok, err := s.tokens.GetToken(ctx, accountID, storage)
	if err != nil {
		syncErr := uferrors.SyncFailure("no credentials for account", err).
			WithDetail("account_id", accountID)
		logger.Warn("sync_token_missing", uferrors.LogAttrs(syncErr))
		return stats, syncErr
	}

	logger.Info("sync_started", slog.String("owner", ownerID))

	objs, err := s.list(ctx, p, tok.AccessToken)
	if err != nil {
		return stats, wrapSync("provider listing failed", err)
	}
	stats.Listed = len(objs)

	if err := s.store.Upsert(ctx, toEntries(objs, ownerID, accountID, storage)); err != nil {
		return stats, wrapSync("failed to store listing", err)
	}
	if err := s.store.MarkSynced(ctx, accountID, s.now()); err != nil {
		return stats, wrapSync("failed to record sync time", err)
	}

	stats.Duration = s.now().Sub(start)
	logger.Info("sync_completed",
		slog.Int("listed", stats.Listed),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}

// list runs the provider listing under the breaker, with retry and a
// per-attempt timeout. Only outage-type failures count toward the breaker.
func (s *Syncer) list(ctx context.Context, p Provider, token string) ([]RemoteObject, error) {
	var accountErr error

	objs, err := uferrors.CircuitExecute(ctx, s.breakers[p.Name()], func(ctx context.Context) ([]RemoteObject, error) {
		objs, err := uferrors.RetryWithResult(ctx, s.retry, func() ([]RemoteObject, error) {
			callCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			objs, err := p.List(callCtx, token)
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, uferrors.NetworkError("provider listing timed out", err).
					WithDetail("timeout", s.timeout.String())
			}
			return objs, err
		})
		if err != nil && !isOutage(err) {
			accountErr = err
			return nil, nil
		}
		return objs, err
	})
	if accountErr != nil {
		return nil, accountErr
	}
	return objs, err
}

func isOutage(err error) bool {
	return uferrors.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded)
}

// wrapSync keeps coded errors and wraps everything else as a sync failure.
func wrapSync(message string, err error) error {
	if _, ok := uferrors.As(err); ok {
		return fmt.Errorf("%s: %w", message, err)
	}
	return uferrors.SyncFailure(message, err)
}

// RefreshAccount renews the account's access token when the provider has a
// refresher and the account a refresh token. A rotated refresh token is
// stored too. Failure is logged and the old token stays in use. The sync
// time is not touched.
func (s *Syncer) RefreshAccount(ctx context.Context, acct *store.LinkedAccount) bool {
	r, ok := s.refreshers[acct.Provider]
	if !ok || acct.RefreshToken == "" {
		return false
	}

	tok, err := r.Refresh(ctx, acct.RefreshToken)
	if err != nil {
		slog.Warn("token_refresh_failed",
			slog.String("account_id", acct.ID),
			slog.String("provider", acct.Provider.String()),
			uferrors.LogAttrs(err))
		return false
	}

	refresh := ""
	if tok.RefreshToken != "" && tok.RefreshToken != acct.RefreshToken {
		refresh = tok.RefreshToken
	}
	if err := s.store.UpdateTokens(ctx, acct.ID, tok.AccessToken, refresh); err != nil {
		slog.Warn("token_refresh_store_failed",
			slog.String("account_id", acct.ID),
			slog.String("error", err.Error()))
		return false
	}

	acct.AccessToken = tok.AccessToken
	if refresh != "" {
		acct.RefreshToken = refresh
	}
	slog.Debug("token_refreshed",
		slog.String("account_id", acct.ID),
		slog.Bool("refresh_token_rotated", refresh != ""))
	return true
}

// SyncProvider refreshes and syncs every account of one provider. A failing
// account is logged and skipped. Returns the number of accounts synced and
// failed.
func (s *Syncer) SyncProvider(ctx context.Context, storage store.StorageType) (synced, failed int, err error) {
	accounts, err := s.store.ListAccounts(ctx, storage)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list %s accounts: %w", storage, err)
	}

	for _, acct := range accounts {
		if err := ctx.Err(); err != nil {
			return synced, failed, err
		}

		s.RefreshAccount(ctx, acct)
		if _, err := s.Sync(ctx, acct.ID, acct.OwnerID, storage); err != nil {
			failed++
			slog.Warn("sync_account_failed",
				slog.String("account_id", acct.ID),
				slog.String("owner", acct.OwnerID),
				slog.String("provider", storage.String()),
				uferrors.LogAttrs(err))
			continue
		}
		synced++
	}
	return synced, failed, nil
}
