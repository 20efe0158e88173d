package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/alan-christopher/qkd/bb84"
	"github.com/alan-christopher/qkd/bb84/photon"
	"github.com/alan-christopher/qkd/bb84/wire"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// A config holds every setting of a bb84 invocation. Settings are layered:
// flags override BB84_-prefixed environment variables, which override the
// optional config file, which overrides the defaults below.
type config struct {
	Variant     bb84.Variant
	Qubits      int
	Reconciler  string
	Seed        int64
	Message     string
	Channel     string
	Addr        string
	Secret      string
	MaxFrame    int
	Shots       int
	Noise       float64
	Timeout     time.Duration
	LogLevel    string
	Interactive bool
}

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("bb84", flag.ContinueOnError)
	fs.String("config", "", "Path to a config file in any format viper understands.")
	fs.String("variant", string(bb84.VariantNoEavesdropper),
		fmt.Sprintf("The experiment to run, one of %v.", bb84.Variants))
	fs.Int("qubits", 0, "Qubits prepared per run. Zero selects the variant's default.")
	fs.String("reconciler", "block-parity", "Error correction: block-parity or winnow.")
	fs.Int64("seed", 0, "Seed for all randomness. Zero seeds from the operating system.")
	fs.String("message", bb84.DefaultMessage, "The message encrypted with the resulting key.")
	fs.String("channel", "local", "Where qubits are measured: local, or remote via channeld.")
	fs.String("addr", "localhost:8484", "The channeld address, for remote channels.")
	fs.String("secret", "", "File of pre-shared secret bytes authenticating the remote channel.")
	fs.Int("max-frame", wire.DefaultMaxFrameBytes, "Largest frame exchanged with channeld. Must match the server.")
	fs.Int("shots", photon.DefaultShots, "Samples drawn per batch by the local simulator.")
	fs.Float64("noise", 0, "Fraction of outcomes the local simulator flips.")
	fs.Duration("timeout", 30*time.Second, "Deadline for each run.")
	fs.String("log-level", "info", "One of debug, info, warn, error.")
	fs.Bool("interactive", false, "Read commands from stdin instead of running once.")
	return fs
}

func loadConfig(fs *flag.FlagSet, args []string) (config, error) {
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	v := viper.New()
	v.SetEnvPrefix("BB84")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return config{}, err
	}
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	variant, err := bb84.ParseVariant(v.GetString("variant"))
	if err != nil {
		return config{}, err
	}
	c := config{
		Variant:     variant,
		Qubits:      v.GetInt("qubits"),
		Reconciler:  v.GetString("reconciler"),
		Seed:        v.GetInt64("seed"),
		Message:     v.GetString("message"),
		Channel:     v.GetString("channel"),
		Addr:        v.GetString("addr"),
		Secret:      v.GetString("secret"),
		MaxFrame:    v.GetInt("max-frame"),
		Shots:       v.GetInt("shots"),
		Noise:       v.GetFloat64("noise"),
		Timeout:     v.GetDuration("timeout"),
		LogLevel:    v.GetString("log-level"),
		Interactive: v.GetBool("interactive"),
	}
	switch c.Channel {
	case "local":
	case "remote":
		if c.Secret == "" {
			return config{}, fmt.Errorf("remote channels need --secret")
		}
	default:
		return config{}, fmt.Errorf("unknown channel %q, want local or remote", c.Channel)
	}
	if _, err := bb84.ParseReconciler(c.Reconciler); err != nil {
		return config{}, err
	}
	if c.Qubits < 0 {
		return config{}, fmt.Errorf("qubit count must not be negative, got %d", c.Qubits)
	}
	if c.Noise < 0 || c.Noise > 1 {
		return config{}, fmt.Errorf("noise must lie in [0, 1], got %v", c.Noise)
	}
	return c, nil
}
