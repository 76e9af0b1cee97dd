package main

import (
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"mixtape/internal/auth"
	"mixtape/internal/repositories"
	"mixtape/internal/services"
	"mixtape/internal/shared"
	"mixtape/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config *shared.Config
	store  auth.Store
	auth   *auth.Manager
	client *services.Client
	logger *log.Logger
	output io.Writer

	db   *sql.DB
	sets *repositories.WorkingSetRepository
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *shared.Config
	Store  auth.Store
	Auth   *auth.Manager
	Client *services.Client
	Logger *log.Logger
	Output io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Store == nil {
		opts.Store = auth.NewMemoryStore()
	}
	if opts.Auth == nil {
		opts.Auth = auth.NewManager(opts.Config, opts.Store, opts.Logger)
	}
	if opts.Client == nil {
		dispatcher := services.NewDispatcher(opts.Logger)
		opts.Client = services.NewClient(opts.Auth, dispatcher, opts.Logger)
	}

	return &Runner{
		config: opts.Config,
		store:  opts.Store,
		auth:   opts.Auth,
		client: opts.Client,
		logger: opts.Logger,
		output: opts.Output,
	}
}

// SetLogger replaces the runner's logger.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// workingSet lazily opens the session database and its repository. The
// handle is shared for the remainder of the process.
func (r *Runner) workingSet() (*repositories.WorkingSetRepository, error) {
	if r.sets != nil {
		return r.sets, nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	sets, err := repositories.NewWorkingSetRepository(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	r.db = db
	r.sets = sets
	return sets, nil
}

// engine builds the orchestration engine over the client and working set.
func (r *Runner) engine() (*tasks.Engine, error) {
	sets, err := r.workingSet()
	if err != nil {
		return nil, err
	}
	return tasks.NewEngine(r.client, sets), nil
}

// Close releases the runner's database handle, if one was opened.
func (r *Runner) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, searchCommand, playlistCommand, trackCommand, saveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
