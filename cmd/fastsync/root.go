package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gux928/fastsync/agent"
	"github.com/gux928/fastsync/internal/config"
	"github.com/gux928/fastsync/internal/logging"
	"github.com/gux928/fastsync/internal/progress"
	"github.com/gux928/fastsync/syncengine"
	"github.com/gux928/fastsync/transport"
)

var flagConfig config.Config

var (
	configFile string
	serverMode bool
	serverRoot string
)

var rootCommand = &cobra.Command{
	Use:   "fastsync <source> <destination>",
	Short: "Synchronize a local directory to a remote one, transferring only what changed.",
	RunE:  runRoot,
}

func init() {
	defaults := config.Default()
	flags := rootCommand.Flags()

	flags.StringSliceVar(&flagConfig.Exclude, "exclude", nil, "Glob pattern to exclude from the sync (repeatable)")
	flags.BoolVar(&flagConfig.Delete, "delete", defaults.Delete, "Delete destination files that no longer exist in the source")
	flags.BoolVar(&flagConfig.DryRun, "dry-run", defaults.DryRun, "Show what would be done without changing the destination")
	flags.BoolVar(&flagConfig.Progress, "progress", defaults.Progress, "Show a progress bar")
	flags.IntVar(&flagConfig.Parallel, "parallel", defaults.Parallel, "Number of files to transfer concurrently")
	flags.StringVar(&flagConfig.Identity, "identity", "", "SSH identity file to use")
	flags.IntVar(&flagConfig.Port, "port", defaults.Port, "SSH port")
	flags.BoolVarP(&flagConfig.Quiet, "quiet", "q", false, "Suppress non-error output")
	flags.BoolVarP(&flagConfig.Verbose, "verbose", "v", false, "Show debug-level logging")
	flags.BoolVar(&flagConfig.BlockLevel, "block-level", defaults.BlockLevel, "Use block-level delta transfer via a remote agent")
	flags.BoolVar(&flagConfig.Checksum, "checksum", false, "Compare file content checksums instead of size and mtime")
	flags.StringVar(&configFile, "config", "", "Path to a YAML file supplying default flag values")

	flags.BoolVar(&serverMode, "server", false, "Run as the remote agent, reading requests from stdin")
	flags.StringVar(&serverRoot, "root", "", "Root directory to serve (only with --server)")
	flags.MarkHidden("server")
	flags.MarkHidden("root")
}

func runRoot(cmd *cobra.Command, args []string) error {
	if serverMode {
		logger := logging.New(flagConfig.Verbose, true)
		return agent.Serve(serverRoot, os.Stdin, os.Stdout, logger)
	}

	if len(args) != 2 {
		return errors.New("fastsync: expected exactly two arguments: <source> <destination>")
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	fileCfg, err := config.LoadFile(configFile)
	if err != nil {
		return err
	}
	cfg := config.Merge(fileCfg, flagConfig, changed)

	logger := logging.New(cfg.Verbose, cfg.Quiet)
	return runSync(logger, args[0], args[1], cfg)
}

func runSync(logger zerolog.Logger, source, destination string, cfg config.Config) error {
	ctx := context.Background()

	user, host, port, remoteRoot, err := parseDestination(destination)
	if err != nil {
		return err
	}
	if port == 0 {
		port = cfg.Port
	}

	sshTransport := &transport.SSHTransport{
		Host:       host,
		Port:       port,
		User:       user,
		Identity:   cfg.Identity,
		RemoteRoot: remoteRoot,
	}

	localScanner := &transport.LocalScanner{Root: source}

	var remoteScanner transport.Scanner
	var mutator syncengine.Mutator

	if cfg.BlockLevel {
		// Each worker in the engine's pool needs its own agent connection —
		// AgentClient serializes every request on one mutex, so sharing a
		// single connection across concurrent uploads would defeat
		// --parallel entirely. Pool dials a fresh SSH-spawned agent per
		// connection and hands them out as workers need them.
		pool := syncengine.NewPool(func() (syncengine.Connection, error) {
			channel, err := sshTransport.OpenChannel(ctx)
			if err != nil {
				return nil, errors.Wrap(err, "fastsync: opening agent channel")
			}
			client, err := transport.NewAgentClient(channel, remoteRoot)
			if err != nil {
				return nil, errors.Wrap(err, "fastsync: agent handshake")
			}
			return client, nil
		})
		defer pool.CloseAll()

		conn, err := pool.Get()
		if err != nil {
			return err
		}
		scanClient := conn.(*transport.AgentClient)
		remoteScanner = scanClient
		mutator = &syncengine.BlockMutator{Pool: pool, LocalRoot: source}
		defer pool.Put(conn)
	} else {
		remoteScanner = &transport.AgentlessScanner{Transport: sshTransport, Root: remoteRoot}
		mutator = &syncengine.WholeFileMutator{Transport: sshTransport, LocalRoot: source, RemoteRoot: remoteRoot}
		if cfg.Checksum {
			logger.Warn().Msg("fastsync: --checksum has no effect in agentless mode; falling back to size/mtime comparison")
		}
	}

	localManifest, err := localScanner.Scan(ctx, cfg.Exclude, cfg.Checksum)
	if err != nil {
		return errors.Wrap(err, "fastsync: scanning source")
	}
	remoteManifest, err := remoteScanner.Scan(ctx, cfg.Exclude, cfg.Checksum)
	if err != nil {
		return errors.Wrap(err, "fastsync: scanning destination")
	}

	plan := syncengine.ComputeDiff(localManifest, remoteManifest, cfg.Delete, cfg.Checksum)
	logger.Info().Int("actions", len(plan)).Msg("fastsync: plan computed")

	if cfg.DryRun {
		printPlan(plan)
		return nil
	}

	reporter := progress.NewReporter(len(plan), cfg.Progress && !cfg.Quiet)
	engine := &syncengine.Engine{
		Mutator:    mutator,
		Parallel:   cfg.Parallel,
		OnProgress: reporter.Report,
		Logger:     logger,
	}

	failures := engine.Run(ctx, plan)
	reporter.Finish()

	if len(failures) > 0 {
		for _, f := range failures {
			logger.Error().Err(f.Err).Str("path", f.Action.Path).Msg("fastsync: action failed")
		}
		return errors.Errorf("fastsync: %d of %d actions failed", len(failures), len(plan))
	}
	return nil
}

func printPlan(plan []syncengine.SyncAction) {
	for _, action := range plan {
		line := fmt.Sprintf("%-7s %s", strings.ToUpper(action.Kind.String()), action.Path)
		switch action.Kind {
		case syncengine.ActionDelete:
			color.New(color.FgYellow).Println(line)
		default:
			color.New(color.FgGreen).Println(line)
		}
	}
}

// parseDestination splits an rsync-style "[user@]host[:port]:path" string.
func parseDestination(dest string) (user, host string, port int, remotePath string, err error) {
	hostPart := dest
	if idx := strings.Index(dest, ":"); idx >= 0 {
		hostPart = dest[:idx]
		remotePath = dest[idx+1:]
	} else {
		return "", "", 0, "", errors.Errorf("fastsync: destination %q is missing a ':<path>' suffix", dest)
	}

	if idx := strings.Index(hostPart, "@"); idx >= 0 {
		user = hostPart[:idx]
		hostPart = hostPart[idx+1:]
	}

	host = hostPart
	// The host was split off at the first ':', so an optional port is the
	// next ':'-terminated segment, left at the front of remotePath.
	if idx := strings.Index(remotePath, ":"); idx >= 0 {
		if p, convErr := strconv.Atoi(remotePath[:idx]); convErr == nil {
			port = p
			remotePath = remotePath[idx+1:]
		}
	}

	if host == "" {
		return "", "", 0, "", errors.Errorf("fastsync: destination %q is missing a host", dest)
	}
	return user, host, port, remotePath, nil
}
