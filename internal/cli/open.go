package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rshade/scoutcache/internal/cache"
	"github.com/rshade/scoutcache/internal/config"
	"github.com/rshade/scoutcache/internal/upstream"
)

// errNoLookup is returned by the lookup function of maintenance commands,
// which never need the upstream.
var errNoLookup = errors.New("this command does not perform upstream lookups")

// openCache opens the configured cache. When withUpstream is set the cache
// delegates misses to the configured upstream, which must then be set.
func openCache(cmd *cobra.Command, withUpstream bool) (*cache.Cache, *session, error) {
	sess, err := sessionFrom(cmd)
	if err != nil {
		return nil, nil, err
	}

	lookup := cache.LookupFunc(func(context.Context, cache.Query) ([]byte, error) {
		return nil, errNoLookup
	})
	if withUpstream {
		client, clientErr := upstream.NewClient(upstream.Config{
			BaseURL:   sess.cfg.Upstream.BaseURL,
			Timeout:   time.Duration(sess.cfg.Upstream.TimeoutSeconds) * time.Second,
			UserAgent: sess.cfg.Upstream.UserAgent,
		}, sess.logger)
		if clientErr != nil {
			if errors.Is(clientErr, upstream.ErrNoBaseURL) {
				return nil, nil, fmt.Errorf("%w (set upstream.base_url, %s or --%s)",
					clientErr, config.EnvUpstreamURL, flagUpstreamURL)
			}
			return nil, nil, clientErr
		}
		lookup = client.Lookup
	}

	c, err := cache.New(cmd.Context(), sess.cfg.Cache.ToCacheConfig(), lookup, cache.WithLogger(sess.logger))
	if err != nil {
		return nil, nil, err
	}
	return c, sess, nil
}
