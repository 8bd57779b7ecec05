package viewing

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/eduverse-labs/eduverse/src/cache"
	"github.com/eduverse-labs/eduverse/src/cid"
	"github.com/eduverse-labs/eduverse/src/config"
	"github.com/eduverse-labs/eduverse/src/logging"
	"github.com/eduverse-labs/eduverse/src/oops"
	"github.com/eduverse-labs/eduverse/src/pinning"
)

var (
	ErrNoVideo     = errors.New("section has no video")
	ErrUnreachable = errors.New("no gateway could serve the video")
)

type OptimizedStorage interface {
	OptimizedURL(ctx context.Context, contentID string, opts pinning.OptimizeOptions) (string, error)
}

type VideoSource string

const (
	SourceCache     VideoSource = "cache"
	SourceOptimized VideoSource = "optimized"
	SourceGateway   VideoSource = "gateway"
	SourceFallback  VideoSource = "fallback"
)

type Resolution struct {
	CID    string
	URL    string
	Source VideoSource

	// Err is set when URL is the sample fallback, or there is nothing to
	// play at all.
	Err error
}

type VideoResolver struct {
	Storage      OptimizedStorage
	Gateways     []string
	ProbeTimeout time.Duration
	SampleURL    string
	Cache        *cache.Cache[string, string]
	HTTPClient   *http.Client
}

func NewVideoResolver(storage OptimizedStorage, cfg config.ViewingConfig, urls *cache.Cache[string, string]) *VideoResolver {
	if urls == nil {
		urls = cache.New[string, string](cfg.VideoCacheSize)
	}
	return &VideoResolver{
		Storage:      storage,
		Gateways:     cfg.Gateways,
		ProbeTimeout: cfg.ProbeTimeout,
		SampleURL:    cfg.SampleVideoURL,
		Cache:        urls,
		HTTPClient:   &http.Client{},
	}
}

// Resolve finds a playable URL for a content identifier. Cached answers are
// returned without touching the network. When nothing works the sample video
// is returned along with an error, and that answer is not cached.
func (r *VideoResolver) Resolve(ctx context.Context, raw string) Resolution {
	log := logging.ExtractLogger(ctx)

	contentID := cid.Normalize(raw)
	res := Resolution{CID: contentID}
	if cid.IsNoContent(contentID) {
		res.Err = ErrNoVideo
		return res
	}

	if url, ok := r.Cache.Get(contentID); ok {
		res.URL = url
		res.Source = SourceCache
		return res
	}

	if r.Storage != nil {
		url, err := r.Storage.OptimizedURL(ctx, contentID, pinning.OptimizeOptions{})
		if err == nil {
			r.Cache.Set(contentID, url)
			res.URL = url
			res.Source = SourceOptimized
			return res
		}
		log.Debug().Err(err).Str("cid", contentID).Msg("optimized url unavailable, probing gateways")
	}

	for _, gateway := range r.Gateways {
		url := gatewayURL(gateway, contentID)
		if err := r.probe(ctx, url); err != nil {
			log.Debug().Err(err).Str("url", url).Msg("gateway probe failed")
			continue
		}
		r.Cache.Set(contentID, url)
		res.URL = url
		res.Source = SourceGateway
		return res
	}

	log.Warn().Str("cid", contentID).Msg("no gateway could serve video, using sample")
	res.URL = r.SampleURL
	res.Source = SourceFallback
	res.Err = oops.New(ErrUnreachable, "could not load video %s", contentID)
	return res
}

// Retry forgets any cached URL and resolves again.
func (r *VideoResolver) Retry(ctx context.Context, raw string) Resolution {
	r.Refresh(raw)
	return r.Resolve(ctx, raw)
}

// Refresh forgets the cached URL so the next Resolve probes again.
func (r *VideoResolver) Refresh(raw string) {
	r.Cache.Delete(cid.Normalize(raw))
}

func (r *VideoResolver) probe(ctx context.Context, url string) error {
	if r.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.ProbeTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return oops.New(err, "bad gateway url")
	}
	res, err := r.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return oops.New(nil, "gateway returned %d", res.StatusCode)
	}
	return nil
}

func gatewayURL(gateway, contentID string) string {
	if !strings.HasSuffix(gateway, "/") {
		gateway += "/"
	}
	return gateway + contentID
}
