package directory

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Open selects a backend from a URL:
//
//	memory://
//	redis://[:password@]host:port/db
//	dynamodb://TableName?region=us-east-1
//	http(s)://host/api
func Open(ctx context.Context, rawURL string) (Directory, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse directory url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "memory", "mem":
		return NewMemory(), nil
	case "redis", "rediss":
		opts, err := redis.ParseURL(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return NewRedis(ctx, opts)
	case "dynamodb":
		return NewDynamoDB(ctx, u.Host, u.Query().Get("region"))
	case "http", "https":
		return NewHTTP(rawURL, nil), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, u.Scheme)
	}
}
