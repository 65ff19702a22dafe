package main

import (
	"fmt"
	"path/filepath"

	shellquote "github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/isdmx/workspace/sandbox"
)

type policyOptions struct {
	root    *rootOptions
	network networkFlags
	cwd     string
	format  string
}

// policyDocument is the YAML rendering of a wrapped command.
type policyDocument struct {
	Binary       string   `yaml:"binary"`
	AllowNetwork bool     `yaml:"allow_network"`
	HostCwd      string   `yaml:"host_cwd,omitempty"`
	SandboxCwd   string   `yaml:"sandbox_cwd,omitempty"`
	Argv         []string `yaml:"argv"`
}

func newPolicyCmd(root *rootOptions) *cobra.Command {
	opts := &policyOptions{root: root}

	cmd := &cobra.Command{
		Use:   "policy [flags] -- <command> [args...]",
		Short: "Print the bubblewrap command line for a sandboxed run",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args)
		},
	}

	opts.network.register(cmd)
	cmd.Flags().StringVar(&opts.cwd, "cwd", "", "Host working directory to expose in the sandbox")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format: text or yaml")
	cmd.Flags().SetInterspersed(false)

	return cmd
}

func (o *policyOptions) run(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errNoCommand
	}
	if o.format != "text" && o.format != "yaml" {
		return fmt.Errorf("invalid --format %q, must be 'text' or 'yaml'", o.format)
	}

	cfg, log, err := o.root.load()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cwd := o.cwd
	if cwd != "" {
		if cwd, err = filepath.Abs(cwd); err != nil {
			return fmt.Errorf("resolve --cwd: %w", err)
		}
	}

	policy := sandbox.BwrapPolicy{
		Binary:       cfg.Sandbox.BwrapPath,
		AllowNetwork: o.network.resolve(cfg.Sandbox.AllowNetwork),
		Cwd:          cwd,
	}
	argv, err := sandbox.Policy(shellquote.Join(args...), policy)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if o.format == "text" {
		_, err = fmt.Fprintln(out, shellquote.Join(argv...))
		return err
	}

	doc := policyDocument{
		Binary:       argv[0],
		AllowNetwork: policy.AllowNetwork,
		HostCwd:      cwd,
		Argv:         argv,
	}
	if cwd != "" {
		doc.SandboxCwd = sandbox.SandboxWorkdir
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	return enc.Close()
}
