package extract

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/IshaanNene/ShopStalk/internal/fetcher"
	"github.com/IshaanNene/ShopStalk/internal/platform"
	"github.com/IshaanNene/ShopStalk/internal/types"
)

// PlatformStrategy reads the platform's public product document. Its prices
// come in minor units straight from the store, so it runs ahead of page
// markup whenever it applies.
type PlatformStrategy struct {
	client  fetcher.HTTPClient
	timeout time.Duration
	logger  *slog.Logger
}

// NewPlatformStrategy creates a PlatformStrategy.
func NewPlatformStrategy(client fetcher.HTTPClient, timeout time.Duration, logger *slog.Logger) *PlatformStrategy {
	return &PlatformStrategy{
		client:  client,
		timeout: timeout,
		logger:  logger.With("component", "platform_strategy"),
	}
}

// Kind implements Strategy.
func (s *PlatformStrategy) Kind() StrategyKind { return types.StrategyPlatformAPI }

// Applies reports whether the hint names a platform with a product document
// and the URL follows that platform's product path.
func Applies(in *Input) (string, bool) {
	if !in.Hint.Known() || in.Hint.Platform.Document == nil {
		return "", false
	}
	return in.Hint.Handle(in.URL)
}

// Extract implements Strategy.
func (s *PlatformStrategy) Extract(ctx context.Context, in *Input) ([]*types.ProductRecord, error) {
	handle, ok := Applies(in)
	if !ok {
		return nil, types.ErrNotApplicable
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	currency := in.Hint.Currency
	if currency == "" {
		currency = platform.PageCurrency(in.Doc)
	}
	rec, err := in.Hint.Platform.Document(ctx, platform.DocumentRequest{
		Client:   s.client,
		Base:     &url.URL{Scheme: in.URL.Scheme, Host: in.URL.Host},
		PageURL:  in.URL.String(),
		Handle:   handle,
		Currency: currency,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("platform document read", "url", in.URL.String(), "platform", in.Hint.Name(), "handle", handle)
	return []*types.ProductRecord{rec}, nil
}
