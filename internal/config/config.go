package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"time"

	flags "github.com/jessevdk/go-flags"
)

const (
	DefaultPort       uint16 = 7667
	DefaultServerAddr        = "127.0.0.1"

	DefaultMaxBodyBytes      int64 = 4 << 20
	DefaultBodyReadTimeout         = 10 * time.Second
	DefaultShutdownTimeout         = 10 * time.Second
	DefaultReadHeaderTimeout       = 10 * time.Second
	DefaultIdleTimeout             = 120 * time.Second
)

// ErrHelp is returned by Parse when usage was requested and printed.
var ErrHelp = errors.New("help requested")

// UsageError reports a command line that could not be turned into a
// ServerConfig.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }

// ServerConfig is built once at startup and never mutated afterwards.
type ServerConfig struct {
	Port        uint16
	ServerAddr  netip.Addr
	MetricsAddr string

	MaxBodyBytes      int64
	BodyReadTimeout   time.Duration
	ShutdownTimeout   time.Duration
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
}

// Default returns the configuration used when no flags are given.
func Default() ServerConfig {
	return ServerConfig{
		Port:              DefaultPort,
		ServerAddr:        netip.MustParseAddr(DefaultServerAddr),
		MaxBodyBytes:      DefaultMaxBodyBytes,
		BodyReadTimeout:   DefaultBodyReadTimeout,
		ShutdownTimeout:   DefaultShutdownTimeout,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}
}

// Addr is the listen address in host:port form, IPv6 hosts bracketed.
func (c ServerConfig) Addr() string {
	return netip.AddrPortFrom(c.ServerAddr, c.Port).String()
}

type options struct {
	Port        uint16 `long:"port" default:"7667" description:"port on which server is listening"`
	ServerAddr  string `long:"server-addr" default:"127.0.0.1" description:"host on which server is accepting connections"`
	MetricsAddr string `long:"metrics-addr" description:"host:port serving prometheus metrics (disabled when empty)"`
}

// Parse builds a ServerConfig from the arguments following the program
// name. When --help is given the usage text goes to stdout and ErrHelp is
// returned; every other failure is a *UsageError.
func Parse(args []string, stdout io.Writer) (ServerConfig, error) {
	var opts options
	p := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	p.Name = "server"

	rest, err := p.ParseArgs(args)
	if err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Fprint(stdout, ferr.Message)
			return ServerConfig{}, ErrHelp
		}
		return ServerConfig{}, &UsageError{Err: err}
	}
	if len(rest) > 0 {
		return ServerConfig{}, &UsageError{Err: fmt.Errorf("unexpected argument %q", rest[0])}
	}

	addr, err := netip.ParseAddr(opts.ServerAddr)
	if err != nil {
		return ServerConfig{}, &UsageError{Err: fmt.Errorf("invalid --server-addr %q: not an IP address", opts.ServerAddr)}
	}
	if opts.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(opts.MetricsAddr); err != nil {
			return ServerConfig{}, &UsageError{Err: fmt.Errorf("invalid --metrics-addr %q: %w", opts.MetricsAddr, err)}
		}
	}

	cfg := Default()
	cfg.Port = opts.Port
	cfg.ServerAddr = addr
	cfg.MetricsAddr = opts.MetricsAddr
	return cfg, nil
}
