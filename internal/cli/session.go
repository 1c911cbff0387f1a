package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/ranklist/internal/config"
	"github.com/roach88/ranklist/internal/engine"
	"github.com/roach88/ranklist/internal/ir"
	"github.com/roach88/ranklist/internal/metrics"
	"github.com/roach88/ranklist/internal/store"
)

// session is one list opened against the configured database.
type session struct {
	def      config.ListDef
	store    *store.Store
	manager  *engine.Manager
	logger   *slog.Logger
	registry *prometheus.Registry
	ops      *lastOpID
	out      *OutputFormatter
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openSession loads the list definitions, connects to the database and
// builds a manager for the list called name. Errors are already reported
// through the formatter.
func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command, name string) (*session, error) {
	out := newFormatter(opts, cmd)
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	res, errs := config.LoadDir(opts.Config, config.LoadModeFailFast)
	if len(errs) > 0 {
		msg := errs[0].Error()
		code := config.ErrCodeGeneric
		if le, ok := errs[0].(*config.LoadError); ok {
			code, msg = le.Code, le.Message
		}
		if err := out.Error(code, msg, nil); err != nil {
			return nil, err
		}
		return nil, WrapExitError(ExitCommandError, "failed to load list definitions", errs[0])
	}
	def, ok := res.Find(name)
	if !ok {
		names := make([]string, len(res.Lists))
		for i, d := range res.Lists {
			names[i] = d.Name
		}
		msg := fmt.Sprintf("list %q is not defined (have: %s)", name, strings.Join(names, ", "))
		if err := out.Error(ErrCodeUnknownList, msg, nil); err != nil {
			return nil, err
		}
		return nil, NewExitError(ExitCommandError, msg)
	}
	out.VerboseLog("Loaded %d list(s) from %s", len(res.Lists), opts.Config)

	st, err := store.Open(ctx, store.Options{Driver: store.Driver(opts.Driver), DSN: opts.DSN})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	reg := prometheus.NewRegistry()
	rec, err := metrics.New(reg)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to register metrics", err)
	}

	ops := &lastOpID{next: engine.UUIDv7Generator{}}
	m, err := engine.New(ctx, st, def.EngineConfig(),
		engine.WithLogger(logger),
		engine.WithMetrics(rec),
		engine.WithOpIDGenerator(ops))
	if err != nil {
		st.Close()
		if outErr := out.Error(string(engine.ErrCodeInvalidConfig), err.Error(), nil); outErr != nil {
			return nil, outErr
		}
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("list %q does not match its table", name), err)
	}

	return &session{
		def:      def,
		store:    st,
		manager:  m,
		logger:   logger,
		registry: reg,
		ops:      ops,
		out:      out,
	}, nil
}

// Close logs what the engine recorded and closes the database.
func (s *session) Close() {
	families, err := s.registry.Gather()
	if err != nil {
		s.logger.Warn("gather metrics", "error", err)
	}
	for _, mf := range families {
		var total float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
		s.logger.Debug("metric", "name", mf.GetName(), "series", len(mf.GetMetric()), "total", total)
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
	}
}

// load reads the row named by a command-line id.
func (s *session) load(ctx context.Context, arg string) (*ir.Record, error) {
	id, err := parseID(arg)
	if err != nil {
		return nil, err
	}
	rec, err := s.manager.Load(ctx, id)
	if err != nil {
		return nil, s.out.operationError(err)
	}
	return rec, nil
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id < 1 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid id %q: must be a positive integer", arg))
	}
	return id, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// lastOpID remembers the op ID of the most recent mutation so it can be
// reported with the result.
type lastOpID struct {
	next engine.OpIDGenerator
	last string
}

func (g *lastOpID) Generate() string {
	g.last = g.next.Generate()
	return g.last
}
