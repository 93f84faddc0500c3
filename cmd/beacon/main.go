// Command beacon records telemetry from the shell through a real SDK
// instance, flushes it and drains the request queue once.
//
//	beacon [flags] event KEY [--count N] [--sum X] [--dur S] [--seg k=v]...
//	beacon [flags] view NAME [--seg k=v]...
//	beacon [flags] user [--name ...] [--email ...] [--custom k=v]...
//	beacon [flags] session begin|end
//	beacon [flags] consent add|remove FEATURE...
//	beacon [flags] queues
//
// Use BEACON_STORAGE=sqlite to keep undelivered requests between runs.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/penshort/beacon/internal/config"
	"github.com/penshort/beacon/pkg/beacon"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

type globalFlags struct {
	configPath string
	envFile    string
	deviceID   string
	timeout    time.Duration
	offline    bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var g globalFlags
	fs := pflag.NewFlagSet("beacon", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&g.configPath, "config", "", "YAML or JSON config file overlaid on the environment")
	fs.StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	fs.StringVar(&g.deviceID, "device-id", "", "device id override")
	fs.DurationVar(&g.timeout, "timeout", 10*time.Second, "bound on the delivery pass")
	fs.BoolVar(&g.offline, "offline", false, "record without delivering")
	fs.SetInterspersed(false)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: beacon [flags] event|view|user|session|consent|queues [args]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}

	if err := godotenv.Load(g.envFile); err != nil && fs.Changed("env-file") {
		fmt.Fprintf(stderr, "beacon: load %s: %v\n", g.envFile, err)
		return exitError
	}

	cfg, err := config.LoadWithFile(g.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "beacon: %v\n", err)
		return exitError
	}
	if g.deviceID != "" {
		cfg.DeviceID = g.deviceID
	}
	cfg.OfflineMode = cfg.OfflineMode || g.offline
	// The CLI drains explicitly.
	cfg.HeartbeatInterval = 0

	logger := config.NewLogger(stderr, cfg.LogLevel, cfg.LogFormat)

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	record, err := parseSubcommand(cmd, cmdArgs, stderr)
	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "beacon %s: %v\n", cmd, err)
		}
		return exitUsage
	}

	inst, err := beacon.New(ctx, cfg, beacon.Options{Logger: logger})
	if err != nil {
		fmt.Fprintf(stderr, "beacon: %v\n", err)
		return exitError
	}
	defer func() {
		if err := inst.Close(context.Background()); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}()

	record(inst)

	code := exitOK
	if !inst.Offline() {
		dctx, cancel := context.WithTimeout(ctx, g.timeout)
		n, err := inst.Drain(dctx)
		cancel()
		logger.Info("delivery pass finished", "delivered", n)
		if err != nil {
			fmt.Fprintf(stderr, "beacon: delivery: %v\n", err)
			code = exitError
		}
	} else {
		inst.Flush(ctx)
	}

	if err := printQueues(stdout, inst); err != nil {
		fmt.Fprintf(stderr, "beacon: %v\n", err)
		return exitError
	}
	return code
}

// recordFunc applies one subcommand to an instance.
type recordFunc func(*beacon.Instance)

func parseSubcommand(cmd string, args []string, stderr io.Writer) (recordFunc, error) {
	switch cmd {
	case "event":
		return parseEvent(args, stderr)
	case "view":
		return parseView(args, stderr)
	case "user":
		return parseUser(args, stderr)
	case "session":
		return parseSession(args)
	case "consent":
		return parseConsent(args)
	case "queues":
		return func(*beacon.Instance) {}, nil
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

func newSubFlags(name string, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func parseFlags(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return errUsage
		}
		return err
	}
	return nil
}

func parseEvent(args []string, stderr io.Writer) (recordFunc, error) {
	fs := newSubFlags("event", stderr)
	count := fs.Int("count", 1, "event count")
	sum := fs.Float64("sum", 0, "event sum")
	dur := fs.Float64("dur", 0, "event duration in seconds")
	segs := fs.StringArray("seg", nil, "segmentation as key=value, repeatable")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		return nil, errors.New("expected exactly one event key")
	}
	seg, err := parsePairs(*segs)
	if err != nil {
		return nil, err
	}

	e := beacon.Event{Key: fs.Arg(0), Count: *count}
	if fs.Changed("sum") {
		e.Sum = sum
	}
	if fs.Changed("dur") {
		e.Dur = dur
	}
	if len(seg) > 0 {
		e.Segmentation = beacon.SegmentationFromMap(seg)
	}
	return func(inst *beacon.Instance) { inst.AddEvent(e) }, nil
}

func parseView(args []string, stderr io.Writer) (recordFunc, error) {
	fs := newSubFlags("view", stderr)
	segs := fs.StringArray("seg", nil, "segmentation as key=value, repeatable")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		return nil, errors.New("expected exactly one view name")
	}
	seg, err := parsePairs(*segs)
	if err != nil {
		return nil, err
	}
	name := fs.Arg(0)
	return func(inst *beacon.Instance) {
		var s *beacon.Segmentation
		if len(seg) > 0 {
			s = beacon.SegmentationFromMap(seg)
		}
		inst.RecordView(name, s)
	}, nil
}

func parseUser(args []string, stderr io.Writer) (recordFunc, error) {
	fs := newSubFlags("user", stderr)
	var d beacon.UserDetails
	fs.StringVar(&d.Name, "name", "", "full name")
	fs.StringVar(&d.Username, "username", "", "username")
	fs.StringVar(&d.Email, "email", "", "email")
	fs.StringVar(&d.Organization, "organization", "", "organization")
	fs.StringVar(&d.Phone, "phone", "", "phone")
	fs.StringVar(&d.Picture, "picture", "", "picture URL")
	fs.StringVar(&d.Gender, "gender", "", "gender")
	fs.IntVar(&d.BirthYear, "byear", 0, "birth year")
	custom := fs.StringArray("custom", nil, "custom property as key=value, repeatable")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	props, err := parsePairs(*custom)
	if err != nil {
		return nil, err
	}
	if len(props) > 0 {
		d.Custom = props
	}
	if d.IsEmpty() {
		return nil, errors.New("no user details given")
	}
	return func(inst *beacon.Instance) { inst.UserDetails(d) }, nil
}

func parseSession(args []string) (recordFunc, error) {
	if len(args) != 1 {
		return nil, errors.New("expected begin or end")
	}
	switch args[0] {
	case "begin":
		return func(inst *beacon.Instance) { inst.BeginSession() }, nil
	case "end":
		return func(inst *beacon.Instance) {
			if !inst.SessionActive() {
				inst.BeginSession()
			}
			inst.EndSession()
		}, nil
	default:
		return nil, fmt.Errorf("unknown session action %q", args[0])
	}
}

func parseConsent(args []string) (recordFunc, error) {
	if len(args) < 2 {
		return nil, errors.New("expected add|remove and at least one feature")
	}
	features := args[1:]
	switch args[0] {
	case "add":
		return func(inst *beacon.Instance) { inst.AddConsent(features...) }, nil
	case "remove":
		return func(inst *beacon.Instance) { inst.RemoveConsent(features...) }, nil
	default:
		return nil, fmt.Errorf("unknown consent action %q", args[0])
	}
}

// parsePairs reads key=value items. Values that parse as integers, floats
// or booleans keep that type.
func parsePairs(items []string) (map[string]any, error) {
	out := make(map[string]any, len(items))
	for _, item := range items {
		k, v, ok := strings.Cut(item, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", item)
		}
		out[k] = parseScalar(v)
	}
	return out, nil
}

func parseScalar(v string) any {
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}

func printQueues(w io.Writer, inst *beacon.Instance) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(inst.LocalQueues()); err != nil {
		return fmt.Errorf("encode queues: %w", err)
	}
	return nil
}
