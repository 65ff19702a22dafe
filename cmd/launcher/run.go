package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	shellquote "github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/isdmx/workspace/process"
	"github.com/isdmx/workspace/workspace"
)

const relayBufferSize = 32 * 1024

type runOptions struct {
	root    *rootOptions
	id      string
	sandbox bool
	network networkFlags
	cwd     string
	env     []string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{root: root}

	cmd := &cobra.Command{
		Use:   "run [flags] -- <command> [args...]",
		Short: "Run a command and relay its output",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.id, "id", "", "Workspace id (default: sandbox.default_id)")
	cmd.Flags().BoolVar(&opts.sandbox, "sandbox", false, "Confine the command in the platform sandbox")
	opts.network.register(cmd)
	cmd.Flags().StringVar(&opts.cwd, "cwd", "", "Working directory for the command")
	cmd.Flags().StringArrayVar(&opts.env, "env", nil, "Extra environment entry as KEY=VALUE (repeatable)")
	// Flags after the command name belong to the command.
	cmd.Flags().SetInterspersed(false)

	return cmd
}

func (o *runOptions) run(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errNoCommand
	}
	if err := validateEnv(o.env); err != nil {
		return err
	}

	cfg, log, err := o.root.load()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	id := o.id
	if id == "" {
		id = cfg.Sandbox.DefaultID
	}

	cwd := o.cwd
	if cwd != "" {
		if cwd, err = filepath.Abs(cwd); err != nil {
			return fmt.Errorf("resolve --cwd: %w", err)
		}
	}

	core := workspace.New(log, process.NewEngineFromConfig(log, cfg))
	h, err := core.Launch(&workspace.Options{
		CommandLine:  shellquote.Join(args...),
		Cwd:          cwd,
		Sandbox:      o.sandbox,
		ID:           id,
		AllowNetwork: o.network.resolve(cfg.Sandbox.AllowNetwork),
		Env:          o.env,
	})
	if err != nil {
		return err
	}
	defer core.Free(h)

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	code := supervise(core, h, relay{
		stdout:   cmd.OutOrStdout(),
		stderr:   cmd.ErrOrStderr(),
		interval: cfg.PollInterval(),
		signals:  signals,
		logger:   log,
	})

	if status := statusFromExitCode(code); status != 0 {
		return &childExit{code: status}
	}
	return nil
}

// networkFlags overrides sandbox.allow_network from the command line.
type networkFlags struct {
	noNet    bool
	allowNet bool
}

func (f *networkFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.noNet, "no-net", false, "Deny network access inside the sandbox")
	cmd.Flags().BoolVar(&f.allowNet, "allow-net", false, "Allow network access inside the sandbox")
	cmd.MarkFlagsMutuallyExclusive("no-net", "allow-net")
}

func (f networkFlags) resolve(configured bool) bool {
	switch {
	case f.noNet:
		return false
	case f.allowNet:
		return true
	default:
		return configured
	}
}

func validateEnv(env []string) error {
	for _, kv := range env {
		if i := strings.IndexByte(kv, '='); i <= 0 {
			return fmt.Errorf("invalid --env %q: expected KEY=VALUE", kv)
		}
	}
	return nil
}

// relay is where a supervised child's output and control signals go.
type relay struct {
	stdout   io.Writer
	stderr   io.Writer
	interval time.Duration
	signals  <-chan os.Signal
	logger   *zap.Logger
}

// supervise polls h until the child exits, copying its output as it
// arrives and forwarding signals as kill requests. It returns the child's
// exit code after draining whatever output the child left in its pipes.
func supervise(core *workspace.Core, h *process.Handle, r relay) int {
	buf := make([]byte, relayBufferSize)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var outDone, errDone bool
	pump := func() {
		if !outDone {
			outDone = r.copy(core.ReadStdout, h, buf, r.stdout)
		}
		if !errDone {
			errDone = r.copy(core.ReadStderr, h, buf, r.stderr)
		}
	}

	var code int
	for {
		pump()
		if !core.IsRunning(h, &code) {
			pump()
			return code
		}

		select {
		case sig := <-r.signals:
			r.logger.Info("forwarding signal to child",
				zap.Int("pid", h.Pid()),
				zap.Stringer("signal", sig))
			core.Kill(h)
		case <-ticker.C:
		}
	}
}

// copy moves everything currently readable from one channel into w and
// reports whether the channel reached end-of-stream.
func (r relay) copy(read func(*process.Handle, []byte) int, h *process.Handle, buf []byte, w io.Writer) bool {
	for {
		n := read(h, buf)
		if n <= 0 {
			return n == workspace.ReadEndOfStream
		}
		if _, err := w.Write(buf[:n]); err != nil {
			r.logger.Debug("relay write failed", zap.Error(err))
		}
	}
}
