// Command ingest loads the movie catalog and ratings into the
// recommendation service.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"movie-recommender/internal/app"
	"movie-recommender/internal/common/config"
	"movie-recommender/internal/common/logger"
	"movie-recommender/internal/gateway"
	"movie-recommender/internal/ingest/pipeline"
	"movie-recommender/internal/ingest/runlog"
)

const qualitySample = 5

type flags struct {
	moviesOnly   bool
	ratingsOnly  bool
	limitMovies  int
	limitRatings int
	test         bool
	reset        bool
	yes          bool
	configFile   string
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.BoolVar(&f.moviesOnly, "movies-only", false, "load only the movie catalog")
	fs.BoolVar(&f.ratingsOnly, "ratings-only", false, "load only the ratings")
	fs.IntVar(&f.limitMovies, "limit-movies", 0, "cap the number of movies (0 = all)")
	fs.IntVar(&f.limitRatings, "limit-ratings", 0, "cap the number of ratings (0 = all)")
	fs.BoolVar(&f.test, "test", false, "load a small sample (100 movies, 1000 ratings)")
	fs.BoolVar(&f.reset, "reset", false, "erase the recommendation database before loading")
	fs.BoolVar(&f.yes, "yes", false, "do not ask for confirmation before --reset")
	fs.StringVar(&f.configFile, "config", "", "config file (default: configs/config.yaml)")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.moviesOnly && f.ratingsOnly {
		return f, fmt.Errorf("--movies-only and --ratings-only are mutually exclusive")
	}
	return f, nil
}

func (f flags) options(cfg config.IngestionConfig) pipeline.Options {
	opts := app.Options(cfg)
	opts.MoviesOnly = f.moviesOnly
	opts.RatingsOnly = f.ratingsOnly
	opts.LimitMovies = f.limitMovies
	opts.LimitRatings = f.limitRatings
	opts.Reset = f.reset
	if f.test {
		opts = opts.TestOptions()
	}
	return opts
}

// confirm reads a yes/no answer. Anything but y or yes declines.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s (y/n): ", prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func main() {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var cfg *config.Config
	if f.configFile != "" {
		cfg, err = config.LoadFromFile(f.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "config load failed:", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in, err := app.NewIngestion(ctx, cfg, log)
	if err != nil {
		zapLog.Fatal("ingestion init failed", zap.Error(err))
	}
	defer in.Close()

	opts := f.options(cfg.Ingestion)
	if err := in.Pipeline.Preflight(opts); err != nil {
		zapLog.Error("preflight failed", zap.Error(err))
		os.Exit(1)
	}
	if opts.Reset && !f.yes && !confirm(os.Stdin, os.Stdout, "This erases every item, user and interaction. Continue?") {
		fmt.Println("aborted")
		return
	}

	sum, err := in.Pipeline.Run(ctx, opts)
	fmt.Println(sum.Text())
	if err != nil {
		zapLog.Error("ingestion failed", zap.Error(err))
		os.Exit(1)
	}

	report(ctx, os.Stdout, in.Gateway)
	if sum.Status != runlog.StatusCompleted {
		os.Exit(3)
	}
}

// report prints what the service holds after the run.
func report(ctx context.Context, out io.Writer, gw *gateway.Gateway) {
	stats := gw.GetStats(ctx)
	if stats.Err != nil {
		fmt.Fprintln(out, "stats unavailable:", stats.Err)
	} else {
		fmt.Fprintf(out, "service now holds %d items and %d users\n", stats.TotalItems, stats.TotalUsers)
	}

	q := gw.VerifyDataQuality(ctx, qualitySample)
	if q.Err != nil {
		fmt.Fprintln(out, "quality check unavailable:", q.Err)
		return
	}
	fmt.Fprintf(out, "quality sample of %d items:\n", q.Sampled)
	for _, field := range gateway.QualityFields {
		fmt.Fprintf(out, "  %-12s %d/%d\n", field, q.Filled[field], q.Sampled)
	}
	for _, s := range q.Samples {
		if len(s.Missing) > 0 {
			fmt.Fprintf(out, "  %s %q missing %s\n", s.ID, s.Title, strings.Join(s.Missing, ", "))
		}
	}
}
