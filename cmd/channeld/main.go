// channeld serves simulated qubit measurements over authenticated TCP
// connections, for bb84 --channel=remote.
//
// Both ends authenticate every frame with key material read from the same
// secret file, starting at its beginning on every connection. Generate one
// with --gen-secret and share it out of band; a secret file should back a
// single session.
package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/alan-christopher/qkd/bb84"
	"github.com/alan-christopher/qkd/bb84/photon"
	"github.com/alan-christopher/qkd/bb84/wire"
	"github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// A config holds every setting of a channeld invocation. Flags override
// CHANNELD_-prefixed environment variables.
type config struct {
	Listen      string
	Secret      string
	GenSecret   int
	MaxFrame    int
	Shots       int
	IdleTimeout time.Duration
	LogLevel    string
}

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("channeld", flag.ContinueOnError)
	fs.String("listen", "localhost:8484", "The address to serve on.")
	fs.String("secret", "", "File of pre-shared secret bytes authenticating clients.")
	fs.Int("gen-secret", 0, "If positive, write this many random bytes to --secret and exit.")
	fs.Int("max-frame", wire.DefaultMaxFrameBytes, "Largest frame exchanged with clients.")
	fs.Int("shots", 8, "Samples drawn per batch. Every distinct sample is sent back in the histogram.")
	fs.Duration("idle-timeout", 5*time.Minute, "How long a connection may sit idle.")
	fs.String("log-level", "info", "One of debug, info, warn, error.")
	return fs
}

func loadConfig(fs *flag.FlagSet, args []string) (config, error) {
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	v := viper.New()
	v.SetEnvPrefix("CHANNELD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return config{}, err
	}
	c := config{
		Listen:      v.GetString("listen"),
		Secret:      v.GetString("secret"),
		GenSecret:   v.GetInt("gen-secret"),
		MaxFrame:    v.GetInt("max-frame"),
		Shots:       v.GetInt("shots"),
		IdleTimeout: v.GetDuration("idle-timeout"),
		LogLevel:    v.GetString("log-level"),
	}
	if c.Secret == "" {
		return config{}, errors.New("must provide --secret")
	}
	if c.Shots <= 0 {
		return config{}, fmt.Errorf("shots must be positive, got %d", c.Shots)
	}
	return c, nil
}

func main() {
	c, err := loadConfig(newFlagSet(), os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatal("bad configuration", "err", err)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "channeld"})
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		logger.Fatal("bad log level", "err", err)
	}
	logger.SetLevel(level)

	if c.GenSecret > 0 {
		if err := writeSecret(c.Secret, c.GenSecret); err != nil {
			logger.Fatal("generating secret", "err", err)
		}
		logger.Info("wrote secret", "path", c.Secret, "bytes", c.GenSecret)
		return
	}

	ln, err := net.Listen("tcp", c.Listen)
	if err != nil {
		logger.Fatal("listening", "err", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	s := &server{
		secretPath:  c.Secret,
		framerOpts:  wire.FramerOpts{MaxFrameBytes: c.MaxFrame},
		shots:       c.Shots,
		idleTimeout: c.IdleTimeout,
		log:         logger,
	}
	logger.Info("serving", "addr", ln.Addr())
	if err := s.serve(ctx, ln); err != nil {
		logger.Fatal("serving", "err", err)
	}
}

func writeSecret(path string, n int) error {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// A server hands each connection its own simulated channel.
type server struct {
	secretPath  string
	framerOpts  wire.FramerOpts
	shots       int
	idleTimeout time.Duration
	log         *log.Logger
}

// serve accepts connections on ln until ctx is cancelled, then waits for open
// connections to finish.
func (s *server) serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			l := s.log.With("remote", conn.RemoteAddr())
			l.Info("accepted connection")
			if err := s.handle(ctx, conn); err != nil {
				l.Error("connection failed", "err", err)
				return
			}
			l.Info("connection closed")
		}()
	}
}

func (s *server) handle(ctx context.Context, conn net.Conn) error {
	secret, err := os.Open(s.secretPath)
	if err != nil {
		return err
	}
	defer secret.Close()
	f, err := wire.NewFramer(idleConn{conn, s.idleTimeout}, bufio.NewReader(secret), s.framerOpts)
	if err != nil {
		return fmt.Errorf("building framer: %w", err)
	}
	sim := photon.NewSimulated(bb84.NewSource().Fork())
	sim.Shots = s.shots
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	err = photon.Serve(ctx, f, sim)
	if ctx.Err() != nil {
		err = nil
	}
	c := f.Counters()
	s.log.Debug("connection traffic", "remote", conn.RemoteAddr(),
		"received", c.MessagesReceived, "sent", c.MessagesSent, "bytesRead", c.BytesRead, "bytesSent", c.BytesSent)
	return err
}

// An idleConn extends its deadline before every read.
type idleConn struct {
	net.Conn
	timeout time.Duration
}

func (c idleConn) Read(p []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}
