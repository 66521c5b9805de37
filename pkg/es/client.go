package es

import (
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/spf13/viper"
)

type ClientFactory func() (*elasticsearch.Client, error)

func init() {
	viper.SetDefault("addresses", []string{"http://localhost:9200"})
	_ = viper.BindEnv("addresses", "ELASTICSEARCH_URL")
	_ = viper.BindEnv("api-key", "ELASTICSEARCH_API_KEY")
}

// CreateClientFromViper builds an Elasticsearch client from the viper
// configuration, honoring ELASTICSEARCH_URL and ELASTICSEARCH_API_KEY.
func CreateClientFromViper() (*elasticsearch.Client, error) {
	cfg := elasticsearch.Config{
		Addresses:               viper.GetStringSlice("addresses"),
		Username:                viper.GetString("username"),
		Password:                viper.GetString("password"),
		CloudID:                 viper.GetString("cloud-id"),
		APIKey:                  viper.GetString("api-key"),
		ServiceToken:            viper.GetString("service-token"),
		CertificateFingerprint:  viper.GetString("certificate-fingerprint"),
		RetryOnStatus:           viper.GetIntSlice("retry-on-status"),
		DisableRetry:            viper.GetBool("disable-retry"),
		MaxRetries:              viper.GetInt("max-retries"),
		EnableMetrics:           viper.GetBool("enable-metrics"),
		EnableDebugLogger:       viper.GetBool("enable-debug-logger"),
		EnableCompatibilityMode: viper.GetBool("enable-compatibility-mode"),
	}

	return elasticsearch.NewClient(cfg)
}
