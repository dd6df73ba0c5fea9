// quotectl looks up market quotes and historical series from the command
// line.
//
//	quotectl quote 600000
//	quotectl series 000001 -period daily -limit 30 -indicators
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"quotecore/internal/cli"
	"quotecore/internal/config"
	"quotecore/internal/query"
	"quotecore/internal/svc"
	"quotecore/pkg/confkit"
)

var (
	configFile = flag.String("f", "etc/quotecore.yaml", "main config file")
	period     = flag.String("period", "", "series period: daily|weekly|monthly|hourly|minutely")
	limit      = flag.Int("limit", 0, "series length, 0 takes the config default")
	withInd    = flag.Bool("indicators", false, "derive MA/MACD/KDJ overlays for series output")
	startDate  = flag.String("start", "", "series window start, YYYY-MM-DD")
	endDate    = flag.String("end", "", "series window end, YYYY-MM-DD")
	tail       = flag.Int("tail", 5, "number of recent bars to print")
	timeout    = flag.Duration("timeout", 30*time.Second, "overall command deadline")
	verbose    = flag.Bool("v", false, "log the loaded configuration")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: quotectl <quote|series> <symbol> [flags]\n\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	logx.DisableStat()

	args := flag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(2)
	}
	command, rawSymbol := args[0], args[1]

	cfg, err := config.Load(resolveConfigPath(*configFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "quotectl: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		cli.LogConfigSummary(cfg)
	}

	service := query.NewService(svc.NewServiceContext(*cfg))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch command {
	case "quote":
		res, err := service.Quote(ctx, rawSymbol)
		if err != nil {
			fmt.Fprintln(os.Stderr, service.FailureMessage(rawSymbol, err))
			os.Exit(1)
		}
		fmt.Print(cli.RenderQuote(res))
	case "series":
		start, err := parseDate(*startDate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "quotectl: %v\n", err)
			os.Exit(2)
		}
		end, err := parseDate(*endDate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "quotectl: %v\n", err)
			os.Exit(2)
		}
		res, err := service.Series(ctx, rawSymbol, query.SeriesOptions{
			Period:         *period,
			Limit:          *limit,
			Start:          start,
			End:            end,
			WithIndicators: *withInd,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, service.FailureMessage(rawSymbol, err))
			os.Exit(1)
		}
		fmt.Print(cli.RenderSeries(res, *tail))
	default:
		usage()
		os.Exit(2)
	}
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

// resolveConfigPath accepts the path as given when it exists, otherwise
// resolves it against the repository root so quotectl runs from anywhere.
func resolveConfigPath(path string) string {
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return confkit.MustProjectPath(path)
}
