// bb84 runs a single BB84 experiment, or a session of them, and prints the
// results as JSON.
//
// In interactive mode bb84 reads commands from stdin, one per line:
//
//	run [variant]     run an experiment and remember its key
//	encrypt [message] encrypt with the remembered key, measuring nothing
//	open <hex>        open a sealed_message_hex from the remembered run
//	quit
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alan-christopher/qkd/bb84"
	"github.com/alan-christopher/qkd/bb84/photon"
	"github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func main() {
	c, err := loadConfig(newFlagSet(), os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatal("bad configuration", "err", err)
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "bb84"})
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		logger.Fatal("bad log level", "err", err)
	}
	logger.SetLevel(level)

	src := bb84.NewSource()
	if c.Seed != 0 {
		src = bb84.SeededSource(c.Seed)
	}
	ch, closeCh, err := openChannel(c, src)
	if err != nil {
		logger.Fatal("opening channel", "channel", c.Channel, "err", err)
	}
	defer closeCh()

	s := &session{cfg: c, ch: ch, src: src, log: logger, out: os.Stdout}
	if c.Interactive {
		err = s.serve(os.Stdin)
	} else {
		err = s.run(c.Variant, c.Message)
	}
	if err != nil {
		logger.Error("session failed", "err", err)
		closeCh()
		os.Exit(1)
	}
}

// A session runs experiments against one channel and remembers the latest
// result for follow-up encryption.
type session struct {
	cfg   config
	ch    photon.Channel
	src   *bb84.Source
	log   *log.Logger
	out   io.Writer
	cache bb84.KeyCache
}

func (s *session) run(v bb84.Variant, message string) error {
	var err error
	opts := v.Opts()
	opts.Channel = s.ch
	opts.Source = s.src
	opts.Logger = s.log
	if opts.Reconciler, err = bb84.ParseReconciler(s.cfg.Reconciler); err != nil {
		return err
	}
	if s.cfg.Qubits > 0 {
		opts.Qubits = s.cfg.Qubits
	}
	if sim, ok := s.ch.(*photon.Simulated); ok && s.cfg.Noise > 0 {
		sim.Errors = photon.NoiseMask(opts.Qubits, s.cfg.Noise, s.src.Fork())
	}
	e, err := bb84.NewExperiment(opts)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	res, err := e.Run(ctx, message)
	if err != nil {
		return err
	}
	s.cache.Swap(res)
	s.log.Info("experiment complete", "variant", v, "qber", res.Stats.QBER, "trusted", res.Trusted())
	pb, err := res.ToProto()
	if err != nil {
		return err
	}
	return s.print(pb)
}

func (s *session) encrypt(message string) error {
	enc, err := bb84.EncryptWithExistingKey(s.cache.Last(), message)
	if err != nil {
		return err
	}
	pb, err := enc.ToProto()
	if err != nil {
		return err
	}
	return s.print(pb)
}

func (s *session) open(sealedHex string) error {
	msg, err := bb84.OpenSealed(s.cache.Last(), sealedHex)
	if errors.Is(err, bb84.ErrNoExperiment) {
		return err
	}
	if err != nil {
		// A bad sealed message is the user's mistake, not the session's.
		s.log.Error("cannot open sealed message", "err", err)
		return nil
	}
	pb, err := structpb.NewStruct(map[string]interface{}{"opened_message": msg})
	if err != nil {
		return err
	}
	return s.print(pb)
}

func (s *session) serve(in io.Reader) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		cmd, arg, _ := strings.Cut(strings.TrimSpace(sc.Text()), " ")
		var err error
		switch cmd {
		case "":
			continue
		case "run":
			v := s.cfg.Variant
			if arg != "" {
				if v, err = bb84.ParseVariant(arg); err != nil {
					s.log.Error("bad command", "err", err)
					continue
				}
			}
			err = s.run(v, s.cfg.Message)
		case "encrypt":
			err = s.encrypt(arg)
		case "open":
			err = s.open(arg)
		case "quit", "exit":
			return nil
		default:
			s.log.Error("unknown command", "cmd", cmd)
			continue
		}
		if errors.Is(err, bb84.ErrNoExperiment) {
			s.log.Warn("no key yet; run an experiment first")
			continue
		}
		if err != nil {
			return err
		}
	}
	return sc.Err()
}

func (s *session) print(m proto.Message) error {
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(m)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(s.out, string(b))
	return err
}
