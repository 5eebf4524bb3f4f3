package bulk

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v7"

	"github.com/JonMunkholm/elastic-upload/internal/config"
	"github.com/JonMunkholm/elastic-upload/internal/fault"
)

// NewClient builds a cluster client from the cluster settings. A Cloud ID
// takes precedence over an address, and an API key over basic auth.
// Retries are disabled: a failed request ends the run.
func NewClient(cfg config.Cluster) (*elasticsearch.Client, error) {
	esCfg := elasticsearch.Config{
		DisableRetry: true,
	}

	switch {
	case strings.TrimSpace(cfg.CloudID) != "":
		esCfg.CloudID = strings.TrimSpace(cfg.CloudID)
	case strings.TrimSpace(cfg.URL) != "":
		esCfg.Addresses = []string{strings.TrimRight(strings.TrimSpace(cfg.URL), "/")}
	default:
		return nil, fault.Construction("cluster client", fmt.Errorf("cannot create client: either cloud id or elastic uri must be set"))
	}

	switch {
	case strings.TrimSpace(cfg.APIKey) != "":
		esCfg.APIKey = EncodeAPIKey(cfg.APIKey)
	case cfg.HasBasicAuth():
		esCfg.Username = cfg.User
		esCfg.Password = cfg.Password
	default:
		return nil, fault.Construction("cluster client", fmt.Errorf("cannot create client: no valid authentication options"))
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fault.Construction("cluster client", fmt.Errorf("cannot create client: %w", err))
	}
	return client, nil
}

// EncodeAPIKey returns the header form of an API key. An "id:secret" pair
// is base64-encoded; anything else is assumed to be encoded already.
func EncodeAPIKey(key string) string {
	key = strings.TrimSpace(key)
	if strings.Contains(key, ":") {
		return base64.StdEncoding.EncodeToString([]byte(key))
	}
	return key
}
