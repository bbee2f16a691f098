package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog"

	"github.com/openshift/build-orchestrator/pkg/clusterclient/openshift"
	"github.com/openshift/build-orchestrator/pkg/clusterconfig"
	orcherrors "github.com/openshift/build-orchestrator/pkg/errors"
	"github.com/openshift/build-orchestrator/pkg/log"
	"github.com/openshift/build-orchestrator/pkg/orchestrate"
	"github.com/openshift/build-orchestrator/pkg/recipe"
	"github.com/openshift/build-orchestrator/pkg/version"
)

var logger = log.StderrLog

func newCmdVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display version",
		Long:  "Display version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("build-orchestrator %v\n", version.Get())
		},
	}
}

type runOptions struct {
	clustersFile  string
	manifestFile  string
	release       string
	platforms     []string
	osbsConfigDir string
	isAuto        bool
}

func newCmdRun() *cobra.Command {
	opts := &runOptions{}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Dispatch one worker build per platform and aggregate the results",
		Long: "Resolve the requested platforms against container.yaml, dispatch a worker build to the\n" +
			"least-loaded healthy cluster for each, and print the aggregated build result.",
		Run: func(cmd *cobra.Command, args []string) {
			runOrchestration(opts)
		},
	}

	runCmd.Flags().StringVar(&opts.clustersFile, "clusters", "", "Path to the clusters.yaml cluster configuration")
	runCmd.Flags().StringVar(&opts.manifestFile, "manifest", "", "Path to container.yaml (optional)")
	runCmd.Flags().StringVar(&opts.release, "release", "", "Release label to forward to every worker build")
	runCmd.Flags().StringSliceVar(&opts.platforms, "platform", nil, "Platform to dispatch a build for; repeatable")
	runCmd.Flags().StringVar(&opts.osbsConfigDir, "osbs-config-dir", "", "Directory holding osbs.conf; when set, every cluster client uses <dir>/osbs.conf instead of its conf_file")
	runCmd.Flags().BoolVar(&opts.isAuto, "auto", false, "Mark this run as an automatic (scratch) build")
	runCmd.MarkFlagRequired("clusters")

	return runCmd
}

func runOrchestration(opts *runOptions) {
	if len(opts.platforms) == 0 {
		fmt.Fprintln(os.Stderr, "ERROR: at least one --platform is required")
		os.Exit(1)
	}

	clusters, err := clusterconfig.Load(opts.clustersFile)
	checkErr(err)

	o, err := orchestrate.New(orchestrate.Config{
		Platforms:    opts.platforms,
		ManifestPath: opts.manifestFile,
		Clusters:     clusters,
		NewClient:    openshift.NewClientFactory(clusters, opts.osbsConfigDir, logger),
		Release:      recipe.StaticRelease(opts.release),
		PriorResults: recipe.NoPriorResults{},
		IsAuto:       opts.isAuto,
		Logger:       logger,
	})
	checkErr(err)

	result, err := o.Run(context.Background())
	checkErr(err)

	fmt.Printf("annotations: %+v\n", result.Annotations)
	fmt.Printf("labels: %+v\n", result.Labels)
	if result.FailReason != nil {
		fmt.Printf("fail_reason: %s\n", *result.FailReason)
		os.Exit(1)
	}
}

// setupKlog wires klog's -v flag into the root command's persistent
// flags so --v controls verbosity across every subcommand.
func setupKlog(flags *pflag.FlagSet) {
	klog.InitFlags(nil)
	from := flag.CommandLine
	if vflag := from.Lookup("v"); vflag != nil {
		flags.AddGoFlag(vflag)
	}
	flag.CommandLine.Set("logtostderr", "true")
}

func checkErr(err error) {
	if err == nil {
		return
	}
	if e, ok := err.(orcherrors.Error); ok {
		logger.Errorf("An error occurred: %v", e)
		if e.Suggestion != "" {
			logger.Errorf("Suggested solution: %v", e.Suggestion)
		}
		os.Exit(e.ErrorCode)
	}
	logger.Errorf("An error occurred: %v", err)
	os.Exit(1)
}

func main() {
	flag.CommandLine.Parse([]string{})

	rootCmd := &cobra.Command{
		Use: "build-orchestrator",
		Long: "build-orchestrator dispatches one worker build per platform to the least-loaded\n" +
			"healthy cluster, retries on alternates, and aggregates the results.",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	setupKlog(rootCmd.PersistentFlags())
	rootCmd.AddCommand(newCmdVersion())
	rootCmd.AddCommand(newCmdRun())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
