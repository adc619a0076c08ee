package objstore

import (
	"context"
	"path"
	"path/filepath"
	"strings"
)

// Publisher uploads the files of one run under <prefix>/<runID>/.
type Publisher struct {
	client *Client
	prefix string
}

func NewPublisher(c *Client, prefix string) *Publisher {
	return &Publisher{client: c, prefix: strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/")}
}

// Key is the object key a local file of runID is stored under.
func (p *Publisher) Key(runID, localPath string) string {
	return NormalizeKey(path.Join(p.prefix, runID, filepath.Base(localPath)))
}

// Publish uploads every path and returns the keys written, stopping at the
// first failure.
func (p *Publisher) Publish(ctx context.Context, runID string, paths ...string) ([]string, error) {
	keys := make([]string, 0, len(paths))
	for _, lp := range paths {
		if lp == "" {
			continue
		}
		key := p.Key(runID, lp)
		if err := p.client.PutFile(ctx, key, lp); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
