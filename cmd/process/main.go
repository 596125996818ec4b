package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/timmy/cloudnet/internal/domain"
	"github.com/timmy/cloudnet/internal/logger"
)

type runFlags struct {
	start     string
	stop      string
	products  string
	reprocess bool
	freeze    bool
}

var (
	rootCmd = &cobra.Command{
		Use:   "process SITE...",
		Short: "Process raw cloud observations into products",
		Long: "Process converts raw instrument and model files into level-1, categorize and\n" +
			"level-2 products for each site and date, printing one status line per unit.",
		Args:          cobra.MinimumNArgs(1),
		RunE:          cmdProcess,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	freezeCmd = &cobra.Command{
		Use:   "freeze SITE...",
		Short: "Assign permanent identifiers to volatile products",
		Args:  cobra.MinimumNArgs(1),
		RunE:  cmdFreeze,
	}

	importCmd = &cobra.Command{
		Use:   "import DIR",
		Short: "Submit staged raw files listed in DIR/manifest.jsonl",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdImport,
	}

	configPath  string
	processArgs runFlags
	freezeArgs  runFlags
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to config file")

	f := rootCmd.Flags()
	f.StringVar(&processArgs.start, "start", "", "first date to process, YYYY-MM-DD (default: 7 days ago)")
	f.StringVar(&processArgs.stop, "stop", "", "date to stop before, YYYY-MM-DD (default: yesterday)")
	f.StringVarP(&processArgs.products, "products", "p", "", "comma-separated products (default: all, in level order)")
	f.BoolVarP(&processArgs.reprocess, "reprocess", "r", false, "supersede frozen products and reconsume processed raw files")
	f.BoolVar(&processArgs.freeze, "freeze", false, "publish every product with a permanent identifier")

	f = freezeCmd.Flags()
	f.StringVar(&freezeArgs.start, "start", "", "first date, YYYY-MM-DD (default: 7 days ago)")
	f.StringVar(&freezeArgs.stop, "stop", "", "date to stop before, YYYY-MM-DD (default: yesterday)")
	f.StringVarP(&freezeArgs.products, "products", "p", "", "comma-separated products (default: all)")

	rootCmd.AddCommand(freezeCmd, importCmd)
}

func main() {
	envCfg := logger.LoadFromEnv("cloudnet-process")
	if envCfg.Environment == "local" {
		// stdout carries the status lines.
		envCfg.Output = os.Stderr
	}
	appLogger := logger.NewFromEnv(envCfg)
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		logger.Sync()
		os.Exit(1)
	}
}

// parse validates the range and product flags before any collaborator is
// contacted, so usage errors never touch the archive.
func (f runFlags) parse() (domain.DateRange, []domain.ProductKind, error) {
	dates, err := domain.NewDateRange(f.start, f.stop)
	if err != nil {
		return domain.DateRange{}, nil, err
	}
	kinds, err := domain.ParseKinds(f.products)
	if err != nil {
		return domain.DateRange{}, nil, err
	}
	return dates, kinds, nil
}
