package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/horomatch/internal/candidate"
	"github.com/hyperjump/horomatch/internal/cli"
	"github.com/hyperjump/horomatch/internal/config"
	"github.com/hyperjump/horomatch/internal/horoscope"
	"github.com/hyperjump/horomatch/internal/models"
	"github.com/hyperjump/horomatch/internal/search"
	"github.com/hyperjump/horomatch/internal/storage"
)

// Components holds initialized services.
type Components struct {
	Store        storage.Store
	Client       *horoscope.Client
	Orchestrator *search.Orchestrator
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func clientOptions(cfg *config.Config, logger *zap.Logger) (horoscope.Options, error) {
	e, err := newExtractor(cfg)
	if err != nil {
		return horoscope.Options{}, err
	}
	return horoscope.Options{
		BaseURL:   cfg.Client.RelayURL,
		AuthToken: cfg.Client.AuthToken,
		Timeout:   cfg.Client.Timeout,
		CacheSize: cfg.Client.LocationCacheSize,
		Counterpart: horoscope.Counterpart{
			Name:     cfg.Counterpart.Name,
			Gender:   cfg.Counterpart.Gender,
			Year:     cfg.Search.FixedYear,
			Hour:     cfg.Counterpart.Hour,
			Minute:   cfg.Counterpart.Minute,
			AmPm:     cfg.Counterpart.AmPm,
			Location: cfg.Counterpart.Location,
			Loc:      cfg.Counterpart.Loc,
		},
		SubjectGender: cfg.Subject.Gender,
		Extractor:     e,
		Logger:        logger,
	}, nil
}

func storageOptions(cfg *config.Config) storage.Options {
	return storage.Options{
		Driver:       cfg.Storage.Driver,
		DatabasePath: cfg.Storage.DatabasePath,
		RedisURL:     cfg.Storage.RedisURL,
		KeyPrefix:    cfg.Storage.KeyPrefix,
	}
}

// searchOptions builds orchestrator options. subjectGender comes from the
// client so both sides agree on what was sent to the relay.
func searchOptions(cfg *config.Config, subjectGender string, logger *zap.Logger, onStatus func(string)) search.Options {
	return search.Options{
		CandidatesPerRound: cfg.Search.CandidatesPerRound,
		Concurrency:        cfg.Search.Concurrency,
		HistoryLimit:       cfg.Search.HistoryLimit,
		ReplayWindow:       cfg.Search.ReplayWindow,
		SubjectGender:      subjectGender,
		Generator:          candidate.NewGenerator(nil, cfg.Search.FixedYear),
		OnStatus:           onStatus,
		Logger:             logger,
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, onStatus func(string)) (*Components, error) {
	opts, err := clientOptions(cfg, logger)
	if err != nil {
		return nil, err
	}
	client := horoscope.NewClient(opts)

	store, err := storage.Open(ctx, storageOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	orch := search.New(client, store, searchOptions(cfg, client.SubjectGender(), logger, onStatus))
	if err := orch.Load(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return &Components{Store: store, Client: client, Orchestrator: orch}, nil
}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ExitOnError)
}

// argsReorder moves flags (and their values) before positional args so
// that "horomatch locations chennai -json" parses the same as the reverse.
func argsReorder(args []string) []string {
	var flags, positionals []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "-") && a != "-" {
			flags = append(flags, a)
			if !strings.Contains(a, "=") && i+1 < len(args) && !isBoolFlag(a) && !strings.HasPrefix(args[i+1], "-") {
				flags = append(flags, args[i+1])
				i++
			}
			continue
		}
		positionals = append(positionals, a)
	}
	if len(positionals) == 0 || len(flags) == 0 {
		return args
	}
	return append(flags, positionals...)
}

func isBoolFlag(name string) bool {
	switch strings.TrimLeft(name, "-") {
	case "json", "debug", "next", "retry", "details", "force":
		return true
	}
	return false
}

// inputFlags are the subject's inputs as given on the command line.
type inputFlags struct {
	name, place, loc, date, time, ampm *string
}

func addInputFlags(fs *flag.FlagSet) inputFlags {
	return inputFlags{
		name:  fs.String("name", "", "subject name"),
		place: fs.String("place", "", "birth place to search for"),
		loc:   fs.String("loc", "", "location id to pick from the place search"),
		date:  fs.String("date", "", "birth date (YYYY-MM-DD)"),
		time:  fs.String("time", "", "birth time (HH:MM or digits)"),
		ampm:  fs.String("ampm", "", "am or pm"),
	}
}

// resolve turns the flags into inputs, searching the place through the relay.
// Missing fields are left empty so the orchestrator reports them.
func (f inputFlags) resolve(ctx context.Context, client *horoscope.Client) (models.Inputs, error) {
	clock, err := models.NormalizeTime(*f.time)
	if err != nil {
		return models.Inputs{}, err
	}
	in := models.Inputs{
		Name: strings.TrimSpace(*f.name),
		Date: *f.date,
		Time: clock,
		AmPm: strings.ToLower(*f.ampm),
	}
	if *f.place == "" {
		return in, nil
	}
	loc, err := pickLocation(ctx, client, *f.place, *f.loc)
	if err != nil {
		return models.Inputs{}, err
	}
	in.Location = loc
	return in, nil
}

func pickLocation(ctx context.Context, client *horoscope.Client, place, id string) (*models.Location, error) {
	locations, err := client.SearchLocations(ctx, place)
	if err != nil {
		return nil, fmt.Errorf("location search failed: %w", err)
	}
	for i := range locations {
		if id == "" || locations[i].Loc == id {
			return &locations[i], nil
		}
	}
	if id != "" {
		return nil, fmt.Errorf("location %s not found for %q", id, place)
	}
	return nil, fmt.Errorf("no locations found for %q", place)
}

// resumeHistory applies the newest history entry with exactly these inputs,
// restoring its result and ignore list. Reports whether one was found.
func resumeHistory(ctx context.Context, orch *search.Orchestrator, in models.Inputs) (bool, error) {
	for _, e := range orch.History("") {
		if e.Inputs().Same(in) {
			if _, err := orch.ApplyHistory(ctx, e.ID); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

func statusPrinter(format cli.OutputFormat) func(string) {
	if format == cli.OutputJSON {
		return nil
	}
	return func(status string) {
		if status != "" {
			fmt.Fprintln(os.Stderr, status)
		}
	}
}

// describeCounterpart names who the subject is being matched against.
func describeCounterpart(cp horoscope.Counterpart) string {
	line := fmt.Sprintf("Matching against %s (%s", cp.Name, cp.Gender)
	if cp.Location != "" {
		line += ", " + cp.Location
	}
	return line + fmt.Sprintf(", %d)", cp.Year)
}

func exitOnError(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, search.ErrNoMatch) {
		fmt.Fprintln(os.Stderr, "No suitable match found. Try again with different inputs.")
		os.Exit(2)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runLocations(args []string) {
	fs := newFlagSet("locations")
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	asJSON := fs.Bool("json", false, "print JSON")
	_ = fs.Parse(argsReorder(args))
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "Usage: horomatch locations [flags] <query>")
		os.Exit(1)
	}

	cfg, _, logger := setup(*configPath, *debug, true)
	defer logger.Sync()
	opts, err := clientOptions(cfg, logger)
	exitOnError(err)
	client := horoscope.NewClient(opts)

	locations, err := client.SearchLocations(context.Background(), query)
	exitOnError(err)
	exitOnError(cli.WriteLocations(os.Stdout, locations, cli.ParseOutputFormat(*asJSON)))
}

func runFind(args []string) {
	fs := newFlagSet("find")
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	asJSON := fs.Bool("json", false, "print JSON")
	next := fs.Bool("next", false, "find another match for the newest matching history entry")
	retry := fs.Bool("retry", false, "search again without ignoring the current result")
	details := fs.Bool("details", false, "print the scoring page as Markdown")
	inputs := addInputFlags(fs)
	_ = fs.Parse(args)

	format := cli.ParseOutputFormat(*asJSON)
	cfg, _, logger := setup(*configPath, *debug, true)
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, statusPrinter(format))
	exitOnError(err)
	defer components.Close()
	orch := components.Orchestrator

	in, err := inputs.resolve(ctx, components.Client)
	exitOnError(err)
	if *next || *retry {
		found, err := resumeHistory(ctx, orch, in)
		exitOnError(err)
		if !found {
			logger.Warn("no history entry for these inputs, starting a fresh search")
		}
	}
	_, err = orch.SetInputs(ctx, in)
	exitOnError(err)
	if format == cli.OutputText {
		fmt.Fprintln(os.Stderr, describeCounterpart(components.Client.Counterpart()))
	}

	result, err := orch.FindMatch(ctx, *retry)
	exitOnError(err)
	exitOnError(cli.WriteResult(os.Stdout, result, format))
	if *details {
		exitOnError(cli.WriteDetails(os.Stdout, result.MatchHTML))
	}
}

func runOriginal(args []string) {
	fs := newFlagSet("original")
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	asJSON := fs.Bool("json", false, "print JSON")
	details := fs.Bool("details", false, "print the scoring page as Markdown")
	inputs := addInputFlags(fs)
	_ = fs.Parse(args)

	format := cli.ParseOutputFormat(*asJSON)
	cfg, _, logger := setup(*configPath, *debug, true)
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, nil)
	exitOnError(err)
	defer components.Close()

	in, err := inputs.resolve(ctx, components.Client)
	exitOnError(err)
	_, err = components.Orchestrator.SetInputs(ctx, in)
	exitOnError(err)
	if format == cli.OutputText {
		fmt.Fprintln(os.Stderr, describeCounterpart(components.Client.Counterpart()))
	}
	result, err := components.Orchestrator.CheckOriginal(ctx)
	exitOnError(err)
	exitOnError(cli.WriteResult(os.Stdout, result, format))
	if *details {
		exitOnError(cli.WriteDetails(os.Stdout, result.MatchHTML))
	}
}

func runHistory(args []string) {
	fs := newFlagSet("history")
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	asJSON := fs.Bool("json", false, "print JSON")
	query := fs.String("q", "", "case-insensitive filter")
	_ = fs.Parse(argsReorder(args))

	format := cli.ParseOutputFormat(*asJSON)
	cfg, _, logger := setup(*configPath, *debug, true)
	defer logger.Sync()
	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, nil)
	exitOnError(err)
	defer components.Close()
	orch := components.Orchestrator

	switch sub := fs.Arg(0); sub {
	case "", "list":
		exitOnError(cli.WriteHistory(os.Stdout, orch.History(*query), format))
	case "apply":
		if fs.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: horomatch history apply <id>")
			os.Exit(1)
		}
		entry, err := orch.ApplyHistory(ctx, fs.Arg(1))
		exitOnError(err)
		exitOnError(cli.WriteHistory(os.Stdout, []models.SearchHistoryEntry{entry}, format))
	default:
		fmt.Fprintf(os.Stderr, "Unknown history command: %s\n", sub)
		os.Exit(1)
	}
}

func runIgnored(args []string) {
	fs := newFlagSet("ignored")
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	asJSON := fs.Bool("json", false, "print JSON")
	_ = fs.Parse(argsReorder(args))

	format := cli.ParseOutputFormat(*asJSON)
	cfg, _, logger := setup(*configPath, *debug, true)
	defer logger.Sync()
	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, nil)
	exitOnError(err)
	defer components.Close()
	orch := components.Orchestrator

	switch sub := fs.Arg(0); sub {
	case "", "list":
		exitOnError(cli.WriteIgnored(os.Stdout, orch.Ignored(), format))
	case "remove":
		day, month, err := parseDayMonth(fs.Args()[1:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Usage: horomatch ignored remove <day> <month>: %v\n", err)
			os.Exit(1)
		}
		removed, err := orch.RemoveIgnored(ctx, day, month)
		exitOnError(err)
		if !removed {
			fmt.Fprintf(os.Stderr, "%d/%d is not ignored\n", day, month)
			os.Exit(1)
		}
		fmt.Printf("Removed %d/%d from the ignore list\n", day, month)
	default:
		fmt.Fprintf(os.Stderr, "Unknown ignored command: %s\n", sub)
		os.Exit(1)
	}
}

// parseDayMonth accepts "23 7" or "23/7".
func parseDayMonth(args []string) (int, int, error) {
	if len(args) == 1 && strings.Contains(args[0], "/") {
		c, err := models.ParseCandidateDate(args[0])
		if err != nil {
			return 0, 0, err
		}
		return c.Day, c.Month, nil
	}
	if len(args) != 2 {
		return 0, 0, errors.New("want a day and a month")
	}
	day, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid day %q", args[0])
	}
	month, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month %q", args[1])
	}
	return day, month, nil
}
