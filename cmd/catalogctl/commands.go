package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	catalogapp "github.com/procurement/backend/internal/application/catalog"
	"github.com/procurement/backend/internal/domain/catalog"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/procurement/backend/internal/infrastructure/cache"
	"github.com/procurement/backend/internal/infrastructure/pricelist"
	"github.com/procurement/backend/internal/interfaces/http/dto"
	"github.com/procurement/backend/internal/interfaces/http/middleware"
	"github.com/urfave/cli/v2"
)

const defaultServer = "http://localhost:8080"

var partnerFlag = &cli.StringFlag{
	Name:     "partner",
	Aliases:  []string{"p"},
	Usage:    "partner `ID` owning the shop",
	Required: true,
}

var serverFlag = &cli.StringSliceFlag{
	Name:    "server",
	Usage:   "base `URL` of a running server, repeatable",
	EnvVars: []string{"CATALOGCTL_SERVERS"},
}

func loadCommand() *cli.Command {
	return &cli.Command{
		Name:      "load",
		Usage:     "import a price list into a partner's shop",
		ArgsUsage: "<file|url>",
		Description: "With --server the price list goes through that server's partner API. Without it " +
			"catalogctl writes the database itself, which needs Redis shop locks and the Redis cache " +
			"broadcast so running servers stay consistent.",
		Flags: []cli.Flag{
			partnerFlag,
			&cli.StringFlag{Name: "format", Usage: "yaml or json, detected when omitted"},
			&cli.StringFlag{Name: "server", Usage: "base `URL` of a running server", EnvVars: []string{"CATALOGCTL_SERVER"}},
		},
		Action: func(c *cli.Context) error {
			partnerID, err := uuid.Parse(c.String("partner"))
			if err != nil {
				return fmt.Errorf("invalid partner id: %w", err)
			}
			target := c.Args().First()
			if target == "" {
				return cli.Exit("load needs a file path or URL", 2)
			}
			isURL := strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")

			var raw []byte
			format := c.String("format")
			if !isURL {
				if raw, err = os.ReadFile(target); err != nil {
					return err
				}
				if format == "" {
					format = pricelist.FormatFromPath(target)
				}
			}

			if server := c.String("server"); server != "" {
				if isURL {
					format = pricelist.FormatJSON
				}
				return loadThroughServer(c, server, partnerID, target, raw, format)
			}

			e, err := newEnv(c)
			if err != nil {
				return err
			}
			defer e.Close()
			if err := e.requireSharedCoordination(); err != nil {
				return cli.Exit(err.Error(), 2)
			}
			ingestion, err := e.ingestion()
			if err != nil {
				return err
			}
			if isURL {
				run, err := ingestion.IngestFromURL(c.Context, partnerID, target, catalog.IngestionSourceURL)
				return printRun(c.App.Writer, run, err)
			}
			run, err := ingestion.IngestDocument(c.Context, partnerID, raw, format, catalog.IngestionSourceFile)
			return printRun(c.App.Writer, run, err)
		},
	}
}

// loadThroughServer posts the document, or {"url": target} when raw is nil,
// to the partner update endpoint
func loadThroughServer(c *cli.Context, server string, partnerID uuid.UUID, target string, raw []byte, format string) error {
	var body any = raw
	if raw == nil {
		body = map[string]string{"url": target}
	}
	contentType := "application/octet-stream"
	switch format {
	case pricelist.FormatJSON:
		contentType = "application/json"
	case pricelist.FormatYAML:
		contentType = "application/yaml"
	}

	var run catalogapp.IngestionRunView
	err := callServer(c, server, http.MethodPost, "/api/v1/partner/update", body, &run, map[string]string{
		middleware.HeaderPartnerID: partnerID.String(),
		"Content-Type":             contentType,
	})
	if err != nil {
		return err
	}
	return printRun(c.App.Writer, &run, nil)
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "write a partner's current catalog as a price list",
		Flags: []cli.Flag{
			partnerFlag,
			&cli.StringFlag{Name: "format", Value: pricelist.FormatYAML, Usage: "yaml or json"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output `FILE`, stdout when omitted"},
		},
		Action: func(c *cli.Context) error {
			partnerID, err := uuid.Parse(c.String("partner"))
			if err != nil {
				return fmt.Errorf("invalid partner id: %w", err)
			}
			e, err := newEnv(c)
			if err != nil {
				return err
			}
			defer e.Close()
			ingestion, err := e.ingestion()
			if err != nil {
				return err
			}

			body, err := ingestion.ExportShopCatalog(c.Context, partnerID, c.String("format"))
			if err != nil {
				return err
			}
			if out := c.String("out"); out != "" {
				return os.WriteFile(out, body, 0o644)
			}
			_, err = c.App.Writer.Write(body)
			return err
		},
	}
}

func runsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "list recent ingestion runs of a partner",
		Flags: []cli.Flag{
			partnerFlag,
			&cli.IntFlag{Name: "limit", Value: 20},
		},
		Action: func(c *cli.Context) error {
			partnerID, err := uuid.Parse(c.String("partner"))
			if err != nil {
				return fmt.Errorf("invalid partner id: %w", err)
			}
			e, err := newEnv(c)
			if err != nil {
				return err
			}
			defer e.Close()
			ingestion, err := e.ingestion()
			if err != nil {
				return err
			}

			runs, err := ingestion.ListRuns(c.Context, partnerID, c.Int("limit"))
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tSOURCE\tSTATUS\tCREATED\tUPDATED\tREMOVED\tERROR")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					r.StartedAt.Format(time.RFC3339), r.Source, r.Status,
					r.Stats.ListingsCreated, r.Stats.ListingsUpdated, r.Stats.ListingsRemoved, r.Error)
			}
			return w.Flush()
		},
	}
}

func cacheFlushCommand() *cli.Command {
	return &cli.Command{
		Name:  "flush",
		Usage: "drop cached catalog reads on running servers",
		Description: "With --server each server is flushed over HTTP and records the flush in its " +
			"audit log. Without it the flush is broadcast on the Redis invalidation channel.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "scope", Value: "all", Usage: "all, shop or category"},
			&cli.StringFlag{Name: "id", Usage: "shop or category `ID`"},
			&cli.StringFlag{Name: "reason"},
			&cli.StringFlag{Name: "actor", Value: "catalogctl", EnvVars: []string{"USER"}},
			serverFlag,
		},
		Action: func(c *cli.Context) error {
			scope, err := parseScope(c.String("scope"), c.String("id"))
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}

			if servers := c.StringSlice("server"); len(servers) > 0 {
				req := dto.CacheFlushRequest{Scope: c.String("scope"), ID: c.String("id"), Reason: c.String("reason")}
				for _, server := range servers {
					var result struct {
						Removed int `json:"removed"`
					}
					if err := callServer(c, server, http.MethodPost, "/api/v1/admin/cache/flush", req, &result); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "%s: removed %d entries\n", server, result.Removed)
				}
				return nil
			}

			e, err := newEnv(c)
			if err != nil {
				return err
			}
			defer e.Close()
			b, err := e.broadcaster()
			if err != nil {
				return err
			}
			if err := b.Publish(c.Context, scope); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "broadcast invalidation %s\n", scope)
			return nil
		},
	}
}

func cacheStatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "show read cache counters of running servers",
		Flags: []cli.Flag{serverFlag},
		Action: func(c *cli.Context) error {
			servers := c.StringSlice("server")
			if len(servers) == 0 {
				servers = []string{defaultServer}
			}
			w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SERVER\tENTRIES\tHITS\tMISSES\tHIT RATE\tINVALIDATIONS\tFLUSHES")
			for _, server := range servers {
				var stats cache.Stats
				if err := callServer(c, server, http.MethodGet, "/api/v1/admin/cache/stats", nil, &stats); err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1f%%\t%d\t%d\n", server, stats.Entries, stats.Hits,
					stats.Misses, stats.HitRate*100, stats.Invalidations, stats.Flushes)
			}
			return w.Flush()
		},
	}
}

func parseScope(scope, rawID string) (shared.CacheScope, error) {
	if scope == "all" {
		return shared.AllScope(), nil
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return shared.CacheScope{}, fmt.Errorf("scope %s needs a valid --id", scope)
	}
	switch scope {
	case "shop":
		return shared.ShopScope(id), nil
	case "category":
		return shared.CategoryScope(id), nil
	default:
		return shared.CacheScope{}, fmt.Errorf("unknown scope %q", scope)
	}
}

// callServer sends a request with the caller's actor header and decodes the
// response envelope's data into out
func callServer(c *cli.Context, server, method, path string, body, out any, headers ...map[string]string) error {
	var envelope struct {
		Data  json.RawMessage `json:"data"`
		Error *dto.ErrorInfo  `json:"error"`
	}
	req := resty.New().
		SetBaseURL(strings.TrimRight(server, "/")).
		SetTimeout(10*time.Second).
		R().
		SetContext(c.Context).
		SetHeader(middleware.HeaderActor, c.String("actor")).
		SetResult(&envelope).
		SetError(&envelope)
	for _, h := range headers {
		req.SetHeaders(h)
	}
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s: %w", server, err)
	}
	if resp.IsError() {
		if envelope.Error != nil {
			return fmt.Errorf("%s: %s: %s", server, envelope.Error.Code, envelope.Error.Message)
		}
		return fmt.Errorf("%s: %s", server, resp.Status())
	}
	return json.Unmarshal(envelope.Data, out)
}

func printRun(w io.Writer, run *catalogapp.IngestionRunView, err error) error {
	if run != nil {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(run); encErr != nil {
			return encErr
		}
	}
	return err
}
