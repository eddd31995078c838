// Command roamctl finds running controllers on the local network and talks
// to their HTTP API.
//
//	roamctl list
//	roamctl [-url http://robot:8080] status
//	roamctl [-url http://robot:8080] target <x_mm> <y_mm>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/scanroam/internal/api"
	"github.com/banshee-data/scanroam/internal/discovery"
	"github.com/banshee-data/scanroam/internal/httputil"
)

func main() {
	var baseURL string
	var browseFor time.Duration
	flag.StringVar(&baseURL, "url", "", "controller base URL (discovered over mDNS when empty)")
	flag.DurationVar(&browseFor, "browse", 2*time.Second, "how long to browse for controllers")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), browseFor+10*time.Second)
	defer cancel()

	c := &cli{
		out:    os.Stdout,
		client: httputil.NewStandardClient(&http.Client{Timeout: 5 * time.Second}),
		browse: func(ctx context.Context) ([]discovery.Instance, error) {
			return discovery.Browse(ctx, browseFor)
		},
	}
	if err := c.run(ctx, baseURL, flag.Args()); err != nil {
		log.Fatal(err)
	}
}

type cli struct {
	out    io.Writer
	client httputil.HTTPClient
	browse func(ctx context.Context) ([]discovery.Instance, error)
}

func (c *cli) run(ctx context.Context, baseURL string, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: roamctl list | status | target <x> <y>")
	}
	switch args[0] {
	case "list":
		return c.list(ctx)
	case "status":
		url, err := c.resolve(ctx, baseURL)
		if err != nil {
			return err
		}
		return c.status(ctx, url)
	case "target":
		if len(args) != 3 {
			return errors.New("usage: roamctl target <x_mm> <y_mm>")
		}
		x, errX := strconv.ParseFloat(args[1], 64)
		y, errY := strconv.ParseFloat(args[2], 64)
		if errX != nil || errY != nil {
			return fmt.Errorf("target coordinates must be numbers, got %q %q", args[1], args[2])
		}
		url, err := c.resolve(ctx, baseURL)
		if err != nil {
			return err
		}
		if err := httputil.PostJSON(ctx, c.client, url+"/api/target", api.Target{X: x, Y: y}, nil); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "target (%.0f, %.0f) sent to %s\n", x, y, url)
		return nil
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func (c *cli) list(ctx context.Context) error {
	found, err := c.browse(ctx)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Fprintln(c.out, "no controllers found")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tURL\tINFO")
	for _, in := range found {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", in.Name, in.URL(), strings.Join(in.Text, " "))
	}
	return tw.Flush()
}

// resolve returns baseURL, or the single controller found on the network.
func (c *cli) resolve(ctx context.Context, baseURL string) (string, error) {
	if baseURL != "" {
		return strings.TrimRight(baseURL, "/"), nil
	}
	found, err := c.browse(ctx)
	if err != nil {
		return "", err
	}
	switch len(found) {
	case 0:
		return "", errors.New("no controllers found; pass -url")
	case 1:
		return found[0].URL(), nil
	default:
		return "", fmt.Errorf("%d controllers found; pass -url", len(found))
	}
}

func (c *cli) status(ctx context.Context, url string) error {
	var st api.StatusResponse
	if err := httputil.GetJSON(ctx, c.client, url+"/api/status", &st); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "controller\t%s\n", url)
	fmt.Fprintf(tw, "version\t%s\n", st.Version.Version)
	fmt.Fprintf(tw, "uptime\t%s\n", st.Uptime)
	fmt.Fprintf(tw, "healthy\t%v (failure streak %d)\n", st.Healthy, st.AcquireStreak)
	fmt.Fprintf(tw, "mode\t%s\n", st.Loop.Mode)
	fmt.Fprintf(tw, "command\tlinear=%.0f mm/s angular=%+.2f rad/s\n", st.Loop.LastCommand.Linear, st.Loop.LastCommand.Angular)
	fmt.Fprintf(tw, "ticks\t%d (%d stepped, %d acquire failures, %d dispatch failures)\n",
		st.Loop.Ticks, st.Loop.Stepped, st.Loop.AcquireFailures, st.Loop.DispatchFailures)
	fmt.Fprintf(tw, "transitions\t%d\n", st.Loop.Transitions)
	if st.Loop.LastError != "" {
		fmt.Fprintf(tw, "last error\t%s\n", st.Loop.LastError)
	}
	return tw.Flush()
}
