// Command sitewatchctl drives a running sitewatch server from the shell.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"sitewatch/pkg/config"
	"sitewatch/pkg/log"
	"sitewatch/pkg/models"
)

const (
	defaultServerURL   = "http://127.0.0.1:3000"
	defaultHTTPTimeout = 2 * time.Minute
	timestampLayout    = "2006-01-02T15:04:05.000Z"
)

var errUsage = errors.New("usage")

func main() {
	server := flag.String("server", defaultServerURL, "sitewatch server base URL")
	timeout := flag.Duration("http-timeout", defaultHTTPTimeout, "HTTP client timeout; single-site checks can be slow")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <command> [args]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nCommands:\n")
		fmt.Fprintf(os.Stderr, "  sites                 List the status of every site\n")
		fmt.Fprintf(os.Stderr, "  check [site-id]       Start a full run, or check one site and wait\n")
		fmt.Fprintf(os.Stderr, "  approve <site-id>     Promote the current screenshot to baseline\n")
		fmt.Fprintf(os.Stderr, "  config get [file]     Print the sites document, or save it (.json/.yaml)\n")
		fmt.Fprintf(os.Stderr, "  config set <file>     Replace the sites document from a .json/.yaml file\n")
		fmt.Fprintf(os.Stderr, "  health                Show server health\n")
		fmt.Fprintf(os.Stderr, "\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *debug {
		log.SetDebugMode()
	}

	client := newAPIClient(*server, *timeout)
	err := run(context.Background(), client, flag.Args(), os.Stdout)
	if errors.Is(err, errUsage) {
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "sitewatchctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, client *apiClient, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	log.Debug().Str("server", client.baseURL).Strs("args", args).Msg("Running command")

	switch args[0] {
	case "sites":
		return listSites(ctx, client, out)
	case "check":
		if len(args) > 1 {
			return checkSite(ctx, client, args[1], out)
		}
		return checkAll(ctx, client, out)
	case "approve":
		if len(args) < 2 {
			return errUsage
		}
		return approve(ctx, client, args[1], out)
	case "config":
		return configCommand(ctx, client, args[1:], out)
	case "health":
		return health(ctx, client, out)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

func listSites(ctx context.Context, client *apiClient, out io.Writer) error {
	sites, err := client.sites(ctx)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tSTATUS\tDIFF\tLAST CHECK\tREASON")
	for _, site := range sites {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			site.ID, orDash(string(site.Status)), diffText(site.DiffPercent), lastCheckText(site.LastCheck), orDash(site.Reason))
	}
	return writer.Flush()
}

func checkAll(ctx context.Context, client *apiClient, out io.Writer) error {
	started, err := client.checkAll(ctx)
	if err != nil {
		return err
	}

	if started.Error != "" {
		fmt.Fprintf(out, "%s (status: %s)\n", started.Error, started.Status)
		return nil
	}
	fmt.Fprintf(out, "%s (status: %s)\n", started.Message, started.Status)
	return nil
}

func checkSite(ctx context.Context, client *apiClient, id string, out io.Writer) error {
	site, err := client.checkSite(ctx, id)
	if err != nil {
		return err
	}
	printSite(out, site)
	return nil
}

func approve(ctx context.Context, client *apiClient, id string, out io.Writer) error {
	site, err := client.approve(ctx, id)
	if err != nil {
		return err
	}
	printSite(out, site)
	return nil
}

func configCommand(ctx context.Context, client *apiClient, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "get":
		doc, err := client.getConfig(ctx)
		if err != nil {
			return err
		}
		if len(args) > 1 {
			if err := config.Save(args[1], doc); err != nil {
				return err
			}
			fmt.Fprintf(out, "Saved %d sites to %s\n", len(doc.Sites), args[1])
			return nil
		}
		data, err := config.Marshal(doc, "sites.json")
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	case "set":
		if len(args) < 2 {
			return errUsage
		}
		doc, err := config.Load(args[1])
		if err != nil {
			return err
		}
		if err := client.putConfig(ctx, doc); err != nil {
			return err
		}
		fmt.Fprintf(out, "Uploaded %d sites\n", len(doc.Sites))
		return nil
	default:
		return fmt.Errorf("%w: unknown config command %q", errUsage, args[0])
	}
}

func health(ctx context.Context, client *apiClient, out io.Writer) error {
	info, err := client.health(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Status:  %s\n", info.Status)
	fmt.Fprintf(out, "Version: %s\n", info.Version)
	fmt.Fprintf(out, "Uptime:  %s\n", info.Uptime)
	fmt.Fprintf(out, "Running: %t\n", info.Running)
	if info.Storage != nil {
		fmt.Fprintf(out, "Storage: %s\n", info.Storage.Human)
	}
	return nil
}

func printSite(out io.Writer, site *models.SiteStatus) {
	fmt.Fprintf(out, "%s (%s)\n", site.Name, site.URL)
	fmt.Fprintf(out, "  status:   %s\n", orDash(string(site.Status)))
	fmt.Fprintf(out, "  reason:   %s\n", orDash(site.Reason))
	fmt.Fprintf(out, "  diff:     %s\n", diffText(site.DiffPercent))
	if site.LoadTime != nil {
		fmt.Fprintf(out, "  load:     %d ms\n", *site.LoadTime)
	}
	if site.StatusCode != nil {
		fmt.Fprintf(out, "  http:     %d\n", *site.StatusCode)
	}
	for _, msg := range site.ConsoleErrors {
		fmt.Fprintf(out, "  console:  %s\n", msg)
	}
	fmt.Fprintf(out, "  baseline: %s\n", orDash(site.BaselineScreenshot))
	fmt.Fprintf(out, "  current:  %s\n", orDash(site.CurrentScreenshot))
	fmt.Fprintf(out, "  diff img: %s\n", orDash(site.DiffScreenshot))
}

func diffText(percent *float64) string {
	if percent == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", *percent)
}

// lastCheckText renders a stored timestamp relative to now, e.g. "3 minutes ago".
func lastCheckText(ts string) string {
	if ts == "" {
		return "never"
	}
	parsed, err := time.Parse(timestampLayout, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(parsed)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
