package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/andresmejia3/depotscan/internal/catalog"
	"github.com/andresmejia3/depotscan/internal/fetch"
	"github.com/andresmejia3/depotscan/internal/session"
	"github.com/andresmejia3/depotscan/internal/types"
	"github.com/andresmejia3/depotscan/internal/utils"
	"github.com/andresmejia3/depotscan/internal/worker"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type recognizeOptions struct {
	Debug    bool
	Save     bool
	Parallel int
	MinSim   float64
}

var recOpts recognizeOptions

var recognizeCmd = &cobra.Command{
	Use:   "recognize <screenshot>...",
	Short: "Recognize item counts in depot screenshots",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runRecognize(cmd.Context(), args, recOpts)
	},
}

func init() {
	recognizeCmd.Flags().BoolVarP(&recOpts.Debug, "debug", "d", false, "Enable engine debug output")
	recognizeCmd.Flags().BoolVarP(&recOpts.Save, "save", "s", false, "Record results in the database")
	recognizeCmd.Flags().IntVarP(&recOpts.Parallel, "parallel", "p", 2, "Screenshots to submit concurrently")
	recognizeCmd.Flags().Float64Var(&recOpts.MinSim, "min-sim", 0, "Hide items below this similarity")
	rootCmd.AddCommand(recognizeCmd)
}

type screenshotResult struct {
	Path  string
	Items []types.Item
}

func runRecognize(ctx context.Context, paths []string, opts recognizeOptions) error {
	if opts.Save && DB == nil {
		err := fmt.Errorf("--save needs a database (--db or POSTGRES_HOST)")
		utils.ShowError("Cannot record results", err, nil)
		return err
	}
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			utils.ShowError("Input file does not exist", err, nil)
			return err
		}
	}

	order, err := catalog.Load(Cfg.ItemOrderPath)
	if err != nil {
		utils.ShowError("Failed to load item order", err, nil)
		return err
	}

	fetcher := fetch.New(Cfg.Package.BaseURL, Cfg.Package.Path)
	fetcher.Client.Timeout = Cfg.PackageTimeout()
	fetcher.MaxSize = Cfg.Package.MaxSize
	fetcher.Progress = func(total int64) io.Writer {
		return progressbar.DefaultBytes(total, "📦 Downloading recognition package")
	}

	engine := worker.NewEngine(worker.Config{
		Command:     Cfg.Engine.Command,
		ReadTimeout: Cfg.EngineReadTimeout(),
	}, Logger)

	mgr, err := session.New(ctx, session.Options{
		Fetcher:   fetcher,
		Engine:    engine,
		Order:     order,
		Cache:     Local,
		Namespace: Cfg.Cache.Namespace,
		Logger:    Logger,
		Metrics:   Metrics,
	})
	if err != nil {
		utils.ShowError("Failed to set up recognition", err, nil)
		return err
	}
	defer mgr.Close()
	mgr.SetDebug(opts.Debug || Cfg.Engine.Debug)

	fmt.Fprintln(os.Stderr, "🚀 Starting recognition engine...")

	results := make([]screenshotResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallel)
	for i, p := range paths {
		g.Go(func() error {
			// Every goroutine asks for the recognizer; only the first one downloads
			rec, err := mgr.GetRecognizer(gctx)
			if err != nil {
				return err
			}
			img, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", p, err)
			}
			items, err := rec.Recognize(gctx, img)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			results[i] = screenshotResult{Path: p, Items: items}
			Logger.Debug("Screenshot recognized", zap.String("path", p), zap.Int("items", len(items)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var crashLog *utils.SafeCommand
		if w := engine.Worker(); w != nil {
			crashLog = w.Cmd
		}
		utils.ShowError(describeFailure(err), err, crashLog)
		return err
	}

	for _, res := range results {
		items := filterItems(res.Items, opts.MinSim)
		sortByOrder(items, order)
		printItems(os.Stdout, res.Path, items)

		if opts.Save {
			imageID, err := utils.GenerateImageID(res.Path)
			if err != nil {
				utils.ShowError("Failed to fingerprint screenshot", err, nil)
				return err
			}
			id, err := DB.SaveScan(ctx, imageID, res.Path, res.Items)
			if err != nil {
				utils.ShowError("Failed to record scan", err, nil)
				return err
			}
			fmt.Fprintf(os.Stderr, "💾 Saved scan %s\n", id)
		}
	}
	return nil
}

// describeFailure maps the session error taxonomy to a headline for the user.
func describeFailure(err error) string {
	var fetchErr *session.FetchError
	var initErr *session.EngineInitError
	var remote *worker.RemoteError
	switch {
	case errors.As(err, &fetchErr):
		return "Could not download the recognition package (check your network and retry)"
	case errors.As(err, &initErr):
		return "Recognition engine failed to start"
	case errors.As(err, &remote):
		return "Recognition engine rejected the screenshot"
	default:
		return "Recognition failed"
	}
}

func filterItems(items []types.Item, minSim float64) []types.Item {
	out := make([]types.Item, 0, len(items))
	for _, it := range items {
		if it.Similarity >= minSim {
			out = append(out, it)
		}
	}
	return out
}

// sortByOrder lists items in game depot order; unknown IDs go last, by ID.
func sortByOrder(items []types.Item, order catalog.Order) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := order.Index(items[i].ID), order.Index(items[j].ID)
		switch {
		case a == -1 && b == -1:
			return items[i].ID < items[j].ID
		case a == -1:
			return false
		case b == -1:
			return true
		default:
			return a < b
		}
	})
}

func printItems(out io.Writer, path string, items []types.Item) {
	fmt.Fprintf(out, "\n📷 %s\n", path)
	if len(items) == 0 {
		fmt.Fprintln(out, "❌ No items recognized.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ITEM\tCOUNT\tSIMILARITY\tNOTE")
	fmt.Fprintln(w, "----\t-----\t----------\t----")
	for _, it := range items {
		note := ""
		if it.Ambiguous {
			note = "⚠️  ambiguous"
		}
		fmt.Fprintf(w, "%s\t%d\t%.1f%%\t%s\n", it.ID, it.Count, it.Similarity*100, note)
	}
	w.Flush()
}
