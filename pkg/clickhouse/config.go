package clickhouse

import (
	"net"
	"strconv"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ClientOption tunes NewClient.
type ClientOption func(*clientSettings)

type clientSettings struct {
	host         string
	port         int
	options      clickhouse.Options
	settings     clickhouse.Settings // set by explicit options, win over extra
	extra        clickhouse.Settings
	pingAttempts int
}

func defaultClientSettings() *clientSettings {
	return &clientSettings{
		port: 9000,
		options: clickhouse.Options{
			Protocol:        clickhouse.Native,
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			DialTimeout:     5 * time.Second,
			ReadTimeout:     10 * time.Second,
		},
		settings:     clickhouse.Settings{},
		pingAttempts: 3,
	}
}

// resolve builds the driver options.
func (s *clientSettings) resolve() *clickhouse.Options {
	opts := s.options
	opts.Addr = []string{net.JoinHostPort(s.host, strconv.Itoa(s.port))}
	opts.Settings = clickhouse.Settings{}
	for k, v := range s.extra {
		opts.Settings[k] = v
	}
	for k, v := range s.settings {
		opts.Settings[k] = v
	}
	return &opts
}

func WithHost(host string) ClientOption {
	return func(s *clientSettings) { s.host = host }
}

func WithPort(port int) ClientOption {
	return func(s *clientSettings) {
		if port > 0 {
			s.port = port
		}
	}
}

func WithDatabase(database string) ClientOption {
	return func(s *clientSettings) { s.options.Auth.Database = database }
}

func WithCredentials(user, password string) ClientOption {
	return func(s *clientSettings) {
		s.options.Auth.Username = user
		s.options.Auth.Password = password
	}
}

func WithMaxConnections(maxOpen, maxIdle int) ClientOption {
	return func(s *clientSettings) {
		s.options.MaxOpenConns = maxOpen
		s.options.MaxIdleConns = maxIdle
	}
}

func WithTimeouts(dial, read time.Duration) ClientOption {
	return func(s *clientSettings) {
		s.options.DialTimeout = dial
		s.options.ReadTimeout = read
	}
}

// WithHTTP switches from the native protocol to HTTP.
func WithHTTP(useHTTP bool) ClientOption {
	return func(s *clientSettings) {
		s.options.Protocol = clickhouse.Native
		if useHTTP {
			s.options.Protocol = clickhouse.HTTP
		}
	}
}

// WithCompression accepts lz4, zstd or none.
func WithCompression(method string) ClientOption {
	return func(s *clientSettings) {
		switch method {
		case "lz4":
			s.options.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}
		case "zstd":
			s.options.Compression = &clickhouse.Compression{Method: clickhouse.CompressionZSTD}
		default:
			s.options.Compression = nil
		}
	}
}

// WithAsyncInsert lets the server buffer inserts. With wait, an insert
// returns once the buffer is flushed.
func WithAsyncInsert(enabled, wait bool) ClientOption {
	return func(s *clientSettings) {
		delete(s.settings, "async_insert")
		delete(s.settings, "wait_for_async_insert")
		if !enabled {
			return
		}
		s.settings["async_insert"] = 1
		if wait {
			s.settings["wait_for_async_insert"] = 1
		}
	}
}

// WithMaxExecutionTime bounds every query server-side, in whole seconds.
func WithMaxExecutionTime(d time.Duration) ClientOption {
	return func(s *clientSettings) {
		if d >= time.Second {
			s.settings["max_execution_time"] = int(d.Seconds())
		}
	}
}

// WithSettings adds server settings, e.g. join_use_nulls=1. Keys set by
// other options keep their value.
func WithSettings(settings map[string]any) ClientOption {
	return func(s *clientSettings) { s.extra = settings }
}

// WithPingAttempts sets how often the initial ping is tried.
func WithPingAttempts(n int) ClientOption {
	return func(s *clientSettings) {
		if n > 0 {
			s.pingAttempts = n
		}
	}
}
