// Command quiverfetch fetches URLs through a request queue backed by
// a local cache, printing each response. Re-running it within the
// freshness lifetime of a response serves it from the cache.
package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/quiver-http/quiver"
	"github.com/quiver-http/quiver/cache"
)

type fileConfig struct {
	CacheDir string   `yaml:"cacheDir"`
	DB       string   `yaml:"db"`
	PoolSize int      `yaml:"poolSize"`
	URLs     []string `yaml:"urls"`
}

func main() {
	cacheDir := pflag.StringP("cache", "c", "", "cache directory (disk cache)")
	dbFile := pflag.StringP("db", "d", "", "sqlite cache db file (overrides --cache, 'memory' for in-memory)")
	poolSize := pflag.IntP("pool", "p", quiver.DefaultPoolSize, "network dispatcher pool size")
	configFile := pflag.StringP("config", "f", "", "yaml config file")
	verbose := pflag.BoolP("verbose", "v", false, "verbose output")
	pflag.Parse()

	logLevel := zerolog.InfoLevel
	if *verbose {
		logLevel = zerolog.TraceLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(logLevel).
		With().Timestamp().Logger()

	urls := pflag.Args()
	if *configFile != "" {
		cfg, err := getConfig(*configFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not read config file")
		}
		if cfg.CacheDir != "" {
			*cacheDir = cfg.CacheDir
		}
		if cfg.DB != "" {
			*dbFile = cfg.DB
		}
		if cfg.PoolSize > 0 {
			*poolSize = cfg.PoolSize
		}
		urls = append(urls, cfg.URLs...)
	}
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "usage: quiverfetch [flags] url...")
		pflag.PrintDefaults()
		os.Exit(2)
	}

	var store cache.Cache
	switch {
	case *dbFile == "memory":
		store = cache.NewSQLiteCache("")
	case *dbFile != "":
		store = cache.NewSQLiteCache(*dbFile)
	}

	queue := quiver.NewRequestQueue(quiver.Config{
		Cache:    store,
		CacheDir: *cacheDir,
		PoolSize: *poolSize,
	})
	queue.Start()
	defer queue.Stop()

	var wg sync.WaitGroup
	for _, url := range urls {
		wg.Add(1)
		url := url
		r := quiver.NewRequest(
			"GET", url,
			func(nr *quiver.NetworkResponse) ([]byte, *cache.Entry, error) {
				return nr.Data, quiver.ParseCacheHeaders(nr), nil
			},
			func(body []byte) {
				defer wg.Done()
				fmt.Printf("%s\t%d bytes\n", url, len(body))
			},
			func(err error) {
				defer wg.Done()
				log.Error().Err(err).Str("url", url).Msg("Fetch failed")
			},
		)
		queue.Add(r)
	}
	wg.Wait()
}

func getConfig(filename string) (fileConfig, error) {
	var config fileConfig
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}
