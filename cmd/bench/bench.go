// bench.go runs a BB84 experiment for each entry in the cartesian product of a
// collection of different tuning parameters, e.g. channel noise and qubits
// prepared, and outputs a CSV of relevant statistics for each different
// combination, e.g. QBER and measurement-channel traffic.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"os"
	"strings"
	"text/template"

	"github.com/alan-christopher/qkd/bb84"
	"github.com/alan-christopher/qkd/bb84/photon"
	"github.com/alan-christopher/qkd/bb84/wire"
	"github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"
)

var (
	variants = flag.StringSlice("variant", []string{string(bb84.VariantNoEavesdropper)},
		"The canned experiments to run.")
	reconcilers = flag.StringSlice("reconciler", []string{"block-parity"}, "The error correction schemes to compare.")
	qubits      = flag.IntSlice("qubits", []int{256}, "The qubits prepared per run.")
	noise       = flag.Float64Slice("noise", []float64{0}, "The fraction of measurement outcomes the channel flips.")
	seeds       = flag.IntSlice("seed", []int{1}, "The seeds driving each run's randomness.")
	remote      = flag.Bool("remote", true, "Measure through an authenticated in-memory connection.")
)

var (
	inputs  = []string{"variant", "reconciler", "qubits", "noise", "seed"}
	columns = []string{"Variant", "Reconciler", "Qubits", "Noise", "Seed", "SiftedBits", "Errors",
		"Fidelity", "QBER", "QBERUpper", "Corrections", "KeyBits", "Trusted", "Withheld",
		"ChannelMessages", "ChannelBytes", "Succeeded"}
)

// A Run packages together the result of benchmarking a single
// parameterization for easy formatting.
type Run struct {
	// Fields corresponding to experiment parameters
	Variant    string
	Reconciler string
	Qubits     int
	Noise      float64
	Seed       int

	// Fields corresponding to experiment results
	SiftedBits      int
	Errors          int
	Fidelity        float64
	QBER            float64
	QBERUpper       float64
	Corrections     int
	KeyBits         int
	Trusted         bool
	Withheld        bool
	ChannelMessages int
	ChannelBytes    int
	Succeeded       bool
}

func main() {
	flag.Parse()
	fmt.Println(header())
	tmpl := template.Must(template.New("line").Parse(lineTmpl()))
	var args [][]interface{}
	for _, inp := range inputs {
		args = append(args, lookupInput(inp))
	}
	applyCartesian(func(args []interface{}) {
		run := &Run{
			Variant:    args[inpIndex("variant")].(string),
			Reconciler: args[inpIndex("reconciler")].(string),
			Qubits:     args[inpIndex("qubits")].(int),
			Noise:      args[inpIndex("noise")].(float64),
			Seed:       args[inpIndex("seed")].(int),
		}
		if err := bench(run); err != nil {
			log.Error("benching", "run", run, "err", err)
		}
		if err := tmpl.Execute(os.Stdout, run); err != nil {
			log.Fatalf("BUG: could not fill in line template: %v", err)
		}
	}, args)
}

func inpIndex(v string) int {
	for i, inp := range inputs {
		if inp == v {
			return i
		}
	}
	return -1
}

func bench(run *Run) error {
	v, err := bb84.ParseVariant(run.Variant)
	if err != nil {
		return err
	}
	src := bb84.SeededSource(int64(run.Seed))
	sim := photon.NewSimulated(src.Fork())
	sim.Shots = 1
	sim.Errors = photon.NoiseMask(run.Qubits, run.Noise, rand.New(rand.NewSource(99)))

	opts := v.Opts()
	if opts.Reconciler, err = bb84.ParseReconciler(run.Reconciler); err != nil {
		return err
	}
	opts.Source = src
	opts.Qubits = run.Qubits
	opts.Channel = sim
	var framer *wire.Framer
	if *remote {
		l, r := net.Pipe()
		defer l.Close()
		fOpts := wire.FramerOpts{MaxFrameBytes: 8*run.Qubits + 1024}
		// Both ends draw the same pad.
		if framer, err = wire.NewFramer(l, rand.New(rand.NewSource(17)), fOpts); err != nil {
			return err
		}
		sf, err := wire.NewFramer(r, rand.New(rand.NewSource(17)), fOpts)
		if err != nil {
			return err
		}
		go func() {
			if err := photon.Serve(context.Background(), sf, sim); err != nil {
				log.Error("serving measurements", "err", err)
			}
		}()
		opts.Channel = photon.NewRemote(framer)
	}

	e, err := bb84.NewExperiment(opts)
	if err != nil {
		return err
	}
	res, err := e.Run(context.Background(), "")
	if framer != nil {
		c := framer.Counters()
		run.ChannelMessages = c.MessagesSent + c.MessagesReceived
		run.ChannelBytes = c.BytesSent + c.BytesRead
	}
	run.Succeeded = err == nil
	if err != nil {
		return err
	}
	run.SiftedBits = res.Stats.SiftedBits
	run.Errors = res.Stats.Errors
	run.Fidelity = res.Stats.Fidelity
	run.QBER = res.Stats.QBER
	run.QBERUpper = res.Stats.QBERUpper
	run.Corrections = res.Stats.Corrections
	run.KeyBits = res.CorrectedKey.Size()
	run.Trusted = res.Trusted()
	run.Withheld = res.Withheld
	return nil
}

func header() string {
	return strings.Join(columns, ", ")
}

func lineTmpl() string {
	var els []string
	for _, c := range columns {
		els = append(els, "{{."+c+"}}")
	}
	return strings.Join(els, ", ") + "\n"
}

func lookupInput(name string) []interface{} {
	var r []interface{}
	if v, err := flag.CommandLine.GetIntSlice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else if v, err := flag.CommandLine.GetFloat64Slice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else if v, err := flag.CommandLine.GetStringSlice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else {
		log.Fatalf("Unknown type for input %s", name)
	}
	return r
}

func applyCartesian(f func([]interface{}), args [][]interface{}) {
	for i := range args {
		if len(args[i]) == 1 {
			continue
		}
		l := make([][]interface{}, len(args))
		r := make([][]interface{}, len(args))
		copy(l, args)
		copy(r, args)
		l[i] = args[i][:1]
		r[i] = args[i][1:]
		applyCartesian(f, l)
		applyCartesian(f, r)
		return
	}
	x := make([]interface{}, 0, len(args))
	for _, a := range args {
		x = append(x, a[0])
	}
	f(x)
}
