// Package main is the workspace launcher CLI.
//
// The launcher runs a single command under the process supervisor and
// relays its output:
//
//	workspace-launcher run --sandbox --id ws-1 --cwd ./project -- make test
//
// stdout and stderr of the child are copied to the launcher's own streams,
// SIGINT and SIGTERM are forwarded as a kill request, and the launcher exits
// with the child's status. A child killed by signal N exits with 128+N.
// Exit status 98 means no command was given and 99 means the launcher
// itself failed.
//
// The policy subcommand prints the bubblewrap command line a sandboxed
// launch would execute, as shell text or YAML.
package main
