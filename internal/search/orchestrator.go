// Package search drives the match search: it walks the ladder of candidate
// strategies and thresholds against the remote scorer, honours the ignore
// list, and keeps history and ignore list mirrored into the store.
package search

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/horomatch/internal/candidate"
	"github.com/hyperjump/horomatch/internal/horoscope"
	"github.com/hyperjump/horomatch/internal/models"
	"github.com/hyperjump/horomatch/internal/storage"
)

// Remote scores candidates and looks up their labels. *horoscope.Client implements it.
type Remote interface {
	Score(ctx context.Context, c models.CandidateDate, subject horoscope.Subject) (models.Score, error)
	Lookup(ctx context.Context, c models.CandidateDate) (models.Labels, error)
}

// Phase is the orchestrator's run state.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseSearching Phase = "searching"
)

// Options tunes the orchestrator. Zero values take defaults.
type Options struct {
	CandidatesPerRound int
	// Concurrency bounds in-flight scoring calls within one round.
	Concurrency  int
	HistoryLimit int
	// ReplayWindow is how long after applying a history entry input changes
	// are not treated as manual edits.
	ReplayWindow  time.Duration
	SubjectGender string
	Generator     *candidate.Generator
	Now           func() time.Time
	NewID         func() string
	// OnStatus receives every status message, and "" when a search ends.
	OnStatus func(status string)
	Logger   *zap.Logger
}

func (o *Options) applyDefaults() {
	if o.CandidatesPerRound <= 0 {
		o.CandidatesPerRound = 100
	}
	if o.Concurrency <= 0 {
		o.Concurrency = o.CandidatesPerRound
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 10
	}
	if o.ReplayWindow <= 0 {
		o.ReplayWindow = 500 * time.Millisecond
	}
	if o.SubjectGender == "" {
		o.SubjectGender = horoscope.DefaultSubjectGender
	}
	if o.Generator == nil {
		o.Generator = candidate.NewGenerator(nil, candidate.DefaultYear)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// State is a snapshot of the orchestrator.
type State struct {
	Phase         Phase                       `json:"phase"`
	SearchingNext bool                        `json:"searchingNext"`
	Status        string                      `json:"status"`
	Inputs        models.Inputs               `json:"inputs"`
	Result        *models.MatchResult         `json:"result"`
	IgnoredDates  []models.IgnoredDate        `json:"ignoredDates"`
	History       []models.SearchHistoryEntry `json:"history"`
}

// Orchestrator owns the session state. In-memory state is the source of
// truth; the store is written at every mutation and read only by Load.
type Orchestrator struct {
	remote      Remote
	historyBlob *storage.Blob[[]models.SearchHistoryEntry]
	ignoredBlob *storage.Blob[[]models.IgnoredDate]
	validate    *validator.Validate
	opts        Options
	logger      *zap.Logger

	mu            sync.Mutex
	phase         Phase
	searchingNext bool
	status        string
	inputs        models.Inputs
	result        *models.MatchResult
	ignored       []models.IgnoredDate
	history       []models.SearchHistoryEntry
	replayUntil   time.Time
}

// New creates an idle orchestrator. Call Load to seed it from the store.
func New(remote Remote, store storage.Store, opts Options) *Orchestrator {
	opts.applyDefaults()
	return &Orchestrator{
		remote:      remote,
		historyBlob: storage.NewBlob[[]models.SearchHistoryEntry](store, storage.KeySearchHistory),
		ignoredBlob: storage.NewBlob[[]models.IgnoredDate](store, storage.KeyIgnoredDates),
		validate:    newValidator(),
		opts:        opts,
		logger:      opts.Logger,
		phase:       PhaseIdle,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Load seeds history and ignore list from the store. Absent blobs are empty;
// malformed blobs are an error.
func (o *Orchestrator) Load(ctx context.Context) error {
	history, _, err := o.historyBlob.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", o.historyBlob.Key(), err)
	}
	ignored, _, err := o.ignoredBlob.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", o.ignoredBlob.Key(), err)
	}
	assigned := false
	for i := range history {
		if history[i].ID == "" {
			history[i].ID = o.opts.NewID()
			assigned = true
		}
	}
	// Ids must survive the process so a later run can apply them.
	if assigned {
		if err := o.historyBlob.Save(ctx, history); err != nil {
			return fmt.Errorf("failed to save %s ids: %w", o.historyBlob.Key(), err)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = history
	o.ignored = ignored
	o.logger.Debug("state loaded", zap.Int("history", len(history)), zap.Int("ignored", len(ignored)))
	return nil
}

// State returns a snapshot.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return State{
		Phase:         o.phase,
		SearchingNext: o.searchingNext,
		Status:        o.status,
		Inputs:        cloneInputs(o.inputs),
		Result:        cloneResult(o.result),
		IgnoredDates:  append([]models.IgnoredDate{}, o.ignored...),
		History:       cloneHistory(o.history),
	}
}

// Inputs returns the current input combination.
func (o *Orchestrator) Inputs() models.Inputs {
	o.mu.Lock()
	defer o.mu.Unlock()
	return cloneInputs(o.inputs)
}

// Result returns the current result, or nil.
func (o *Orchestrator) Result() *models.MatchResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return cloneResult(o.result)
}

// Details returns the raw scoring page of the current result.
func (o *Orchestrator) Details() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.result == nil {
		return "", ErrNoResult
	}
	return o.result.MatchHTML, nil
}

// Ignored returns the ignore list.
func (o *Orchestrator) Ignored() []models.IgnoredDate {
	o.mu.Lock()
	defer o.mu.Unlock()
	return cloneIgnored(o.ignored)
}

// History returns entries matching query, newest first.
func (o *Orchestrator) History(query string) []models.SearchHistoryEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.SearchHistoryEntry, 0, len(o.history))
	for _, e := range o.history {
		if e.MatchesQuery(query) {
			out = append(out, cloneEntry(e))
		}
	}
	return out
}

// SetInputs replaces the input combination. A manual change, one that
// matches no history entry and does not fall within the replay window,
// clears the ignore list and the current result. Reports whether it did.
func (o *Orchestrator) SetInputs(ctx context.Context, in models.Inputs) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase == PhaseSearching {
		return false, ErrSearchInProgress
	}
	if in.Same(o.inputs) {
		o.inputs = cloneInputs(in)
		return false, nil
	}
	o.inputs = cloneInputs(in)

	if in.Empty() || o.opts.Now().Before(o.replayUntil) || o.matchesHistoryLocked(in) {
		return false, nil
	}

	o.ignored = nil
	o.result = nil
	o.logger.Debug("manual input change, clearing ignore list")
	if err := o.ignoredBlob.Clear(ctx); err != nil {
		return true, err
	}
	return true, nil
}

func (o *Orchestrator) matchesHistoryLocked(in models.Inputs) bool {
	for _, e := range o.history {
		if e.Inputs().Same(in) {
			return true
		}
	}
	return false
}

// ApplyHistory restores an entry's inputs, ignore-list snapshot and result.
func (o *Orchestrator) ApplyHistory(ctx context.Context, id string) (models.SearchHistoryEntry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase == PhaseSearching {
		return models.SearchHistoryEntry{}, ErrSearchInProgress
	}

	var entry *models.SearchHistoryEntry
	for i := range o.history {
		if o.history[i].ID == id {
			entry = &o.history[i]
			break
		}
	}
	if entry == nil {
		return models.SearchHistoryEntry{}, fmt.Errorf("%w: %s", ErrHistoryNotFound, id)
	}

	o.inputs = entry.Inputs()
	o.ignored = cloneIgnored(entry.IgnoredDates)
	o.result = cloneResult(entry.Result)
	o.replayUntil = o.opts.Now().Add(o.opts.ReplayWindow)

	var err error
	if len(o.ignored) == 0 {
		err = o.ignoredBlob.Clear(ctx)
	} else {
		err = o.ignoredBlob.Save(ctx, o.ignored)
	}
	return cloneEntry(*entry), err
}

// RemoveIgnored drops the ignored date with exactly this day and month.
// Reports whether one was removed.
func (o *Orchestrator) RemoveIgnored(ctx context.Context, day, month int) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	kept := make([]models.IgnoredDate, 0, len(o.ignored))
	for _, d := range o.ignored {
		if d.Day == day && d.Month == month {
			continue
		}
		kept = append(kept, d)
	}
	if len(kept) == len(o.ignored) {
		return false, nil
	}
	o.ignored = kept
	return true, o.ignoredBlob.Save(ctx, kept)
}

// FindMatch runs the ladder. Unless retry is set, the current result is
// cleared first and, if there was one, its date joins the ignore list.
// Returns ErrNoMatch when every step fails; any scoring or lookup error
// aborts the search and clears the current result.
func (o *Orchestrator) FindMatch(ctx context.Context, retry bool) (*models.MatchResult, error) {
	o.mu.Lock()
	if o.phase == PhaseSearching {
		o.mu.Unlock()
		return nil, ErrSearchInProgress
	}
	inputs := cloneInputs(o.inputs)
	subject, err := o.subject(inputs)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	if !retry {
		if previous := o.result; previous != nil {
			if err := o.ignoreLocked(ctx, previous); err != nil {
				o.mu.Unlock()
				return nil, err
			}
			o.searchingNext = true
		}
		o.result = nil
	}
	o.phase = PhaseSearching
	ignore := candidate.NewIgnoreSet(o.ignored)
	next := o.searchingNext
	o.mu.Unlock()

	match, err := o.runLadder(ctx, subject, ignore, next)
	return o.finish(ctx, inputs, match, err)
}

// CheckOriginal scores the counterpart's own birth date against the subject.
// The ignore list is not consulted or changed.
func (o *Orchestrator) CheckOriginal(ctx context.Context) (*models.MatchResult, error) {
	o.mu.Lock()
	if o.phase == PhaseSearching {
		o.mu.Unlock()
		return nil, ErrSearchInProgress
	}
	inputs := cloneInputs(o.inputs)
	subject, err := o.subject(inputs)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	o.phase = PhaseSearching
	o.mu.Unlock()

	original := models.CandidateDate{Day: candidate.FixedDay, Month: candidate.FixedMonth}
	var match *models.MatchResult
	score, err := o.remote.Score(ctx, original, subject)
	if err == nil {
		match, err = o.accept(ctx, score)
	}
	return o.finish(ctx, inputs, match, err)
}

func (o *Orchestrator) subject(in models.Inputs) (horoscope.Subject, error) {
	if err := o.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return horoscope.Subject{}, fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(fields, ", "))
		}
		return horoscope.Subject{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	subject, err := horoscope.NewSubject(in, o.opts.SubjectGender)
	if err != nil {
		return horoscope.Subject{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return subject, nil
}

func (o *Orchestrator) ignoreLocked(ctx context.Context, previous *models.MatchResult) error {
	c, err := models.ParseCandidateDate(previous.Date)
	if err != nil {
		return err
	}
	if candidate.NewIgnoreSet(o.ignored).Contains(c) {
		return nil
	}
	ignored := append(cloneIgnored(o.ignored), models.IgnoredDate{
		Day:       c.Day,
		Month:     c.Month,
		Timestamp: o.opts.Now().UnixMilli(),
	})
	if err := o.ignoredBlob.Save(ctx, ignored); err != nil {
		return fmt.Errorf("failed to save %s: %w", o.ignoredBlob.Key(), err)
	}
	o.ignored = ignored
	o.logger.Info("ignoring previous match", zap.String("date", previous.Date))
	return nil
}

func (o *Orchestrator) runLadder(ctx context.Context, subject horoscope.Subject, ignore candidate.IgnoreSet, next bool) (*models.MatchResult, error) {
	for i, step := range Ladder {
		message := step.Message()
		if next {
			message = NextMatchPrefix + message
		}
		o.setStatus(message)

		batch := ignore.Filter(o.opts.Generator.Generate(step.Strategy, o.opts.CandidatesPerRound))
		o.logger.Info("search step",
			zap.Int("step", i+1),
			zap.String("strategy", string(step.Strategy)),
			zap.Float64("target", step.Target),
			zap.Int("candidates", len(batch)))
		if len(batch) == 0 {
			continue
		}

		scores, err := o.scoreRound(ctx, subject, batch)
		if err != nil {
			return nil, err
		}
		for _, s := range scores {
			if s.Points >= step.Target {
				return o.accept(ctx, s)
			}
		}
	}
	return nil, nil
}

// scoreRound scores every candidate and waits for all of them. A failed
// call does not cancel the others; the first error is returned once the
// whole batch has settled.
func (o *Orchestrator) scoreRound(ctx context.Context, subject horoscope.Subject, batch []models.CandidateDate) ([]models.Score, error) {
	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)

	scores := make([]models.Score, len(batch))
	for i, c := range batch {
		g.Go(func() error {
			s, err := o.remote.Score(ctx, c, subject)
			if err != nil {
				return fmt.Errorf("scoring %s failed: %w", c.Format(o.opts.Generator.Year()), err)
			}
			scores[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

func (o *Orchestrator) accept(ctx context.Context, s models.Score) (*models.MatchResult, error) {
	labels, err := o.remote.Lookup(ctx, s.Candidate)
	if err != nil {
		return nil, fmt.Errorf("nakshatra lookup failed: %w", err)
	}
	return &models.MatchResult{
		Date:      s.Candidate.Format(o.opts.Generator.Year()),
		Nakshatra: labels.Nakshatra,
		Rasi:      labels.Rasi,
		Points:    s.Points,
		MatchHTML: s.HTML,
	}, nil
}

// finish returns the orchestrator to idle and records the outcome.
func (o *Orchestrator) finish(ctx context.Context, inputs models.Inputs, match *models.MatchResult, runErr error) (*models.MatchResult, error) {
	o.mu.Lock()
	o.phase = PhaseIdle
	o.status = ""
	o.searchingNext = false

	var err error
	switch {
	case runErr != nil:
		o.result = nil
		o.logger.Error("error finding match", zap.Error(runErr))
		err = runErr
	case match == nil:
		o.logger.Info("no suitable match found")
		err = ErrNoMatch
	default:
		o.result = match
		o.logger.Info("match found", zap.String("date", match.Date), zap.Float64("points", match.Points))
		if perr := o.recordLocked(ctx, inputs, match); perr != nil {
			err = perr
		}
	}
	result := cloneResult(o.result)
	onStatus := o.opts.OnStatus
	o.mu.Unlock()

	if onStatus != nil {
		onStatus("")
	}
	if runErr != nil || match == nil {
		return nil, err
	}
	return result, err
}

func (o *Orchestrator) recordLocked(ctx context.Context, inputs models.Inputs, match *models.MatchResult) error {
	entry := models.SearchHistoryEntry{
		ID:           o.opts.NewID(),
		Name:         inputs.Name,
		Location:     *inputs.Location,
		Date:         inputs.Date,
		Time:         inputs.Time,
		AmPm:         inputs.AmPm,
		Result:       cloneResult(match),
		Timestamp:    o.opts.Now().UnixMilli(),
		IgnoredDates: cloneIgnored(o.ignored),
	}
	history := append([]models.SearchHistoryEntry{entry}, o.history...)
	if len(history) > o.opts.HistoryLimit {
		history = history[:o.opts.HistoryLimit]
	}
	o.history = history
	return o.historyBlob.Save(ctx, history)
}

func (o *Orchestrator) setStatus(status string) {
	o.mu.Lock()
	o.status = status
	onStatus := o.opts.OnStatus
	o.mu.Unlock()
	if onStatus != nil {
		onStatus(status)
	}
}

func cloneInputs(in models.Inputs) models.Inputs {
	if in.Location != nil {
		loc := *in.Location
		in.Location = &loc
	}
	return in
}

func cloneResult(r *models.MatchResult) *models.MatchResult {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

func cloneIgnored(d []models.IgnoredDate) []models.IgnoredDate {
	if d == nil {
		return nil
	}
	return append([]models.IgnoredDate(nil), d...)
}

func cloneEntry(e models.SearchHistoryEntry) models.SearchHistoryEntry {
	e.Result = cloneResult(e.Result)
	e.IgnoredDates = cloneIgnored(e.IgnoredDates)
	return e
}

func cloneHistory(h []models.SearchHistoryEntry) []models.SearchHistoryEntry {
	out := make([]models.SearchHistoryEntry, len(h))
	for i, e := range h {
		out[i] = cloneEntry(e)
	}
	return out
}
