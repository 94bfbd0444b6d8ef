package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/chartfarm/chartfarm/pkg/api"
	"github.com/chartfarm/chartfarm/pkg/app"
	"github.com/chartfarm/chartfarm/pkg/cmdexec"
	"github.com/chartfarm/chartfarm/pkg/helmexec"
	"github.com/chartfarm/chartfarm/pkg/kubeexec"
	"github.com/chartfarm/chartfarm/pkg/queue"
	"github.com/chartfarm/chartfarm/pkg/reconciler"
	"github.com/chartfarm/chartfarm/pkg/service"
	"github.com/chartfarm/chartfarm/pkg/store"
)

var Version string

var logger *zap.SugaredLogger

type services struct {
	store       *store.Store
	queue       *queue.Queue
	users       *service.Users
	products    *service.Products
	templates   *service.Templates
	deployments *service.Deployments
}

func (s *services) Close() error {
	return s.store.Close()
}

func configureLogging(c *cli.Context) error {
	logLevel := c.GlobalString("log-level")
	if c.GlobalBool("quiet") {
		logLevel = "warn"
	}
	l, err := app.NewLogger(os.Stderr, logLevel)
	if err != nil {
		return err
	}
	logger = l
	return nil
}

func wire(ctx context.Context, c *cli.Context) (*services, error) {
	databaseURL := c.GlobalString("database-url")
	if databaseURL == "" {
		return nil, fmt.Errorf("--database-url or CHARTFARM_DATABASE_URL is required")
	}
	st, err := store.Open(ctx, databaseURL, logger)
	if err != nil {
		return nil, err
	}
	q := queue.New(st, logger)
	return &services{
		store:       st,
		queue:       q,
		users:       service.NewUsers(st, logger),
		products:    service.NewProducts(st, logger),
		templates:   service.NewTemplates(st, logger),
		deployments: service.NewDeployments(st, q, logger),
	}, nil
}

func newReconciler(s *services, c *cli.Context) *reconciler.Reconciler {
	runner := cmdexec.ShellRunner{Logger: logger}
	kube := kubeexec.New(logger, runner)
	helm := helmexec.New(logger, runner)
	if bin := c.GlobalString("helm-binary"); bin != "" {
		helm.SetHelmBinary(bin)
	}
	if bin := c.GlobalString("kubectl-binary"); bin != "" {
		kube.SetKubectlBinary(bin)
	}
	prov := &reconciler.ClusterProvisioner{Kube: kube, Helm: helm}
	return reconciler.New(s.store, s.queue, prov, logger)
}

func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()
	return ctx
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func parseUserValues(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("--user-values must be a JSON object: %w", err)
	}
	return parsed, nil
}

func main() {
	cliApp := cli.NewApp()
	cliApp.Name = "chartfarm"
	cliApp.Usage = "provision per-user instances of packaged web applications"
	cliApp.Version = Version
	cliApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "database-url",
			Usage:  "database URL (postgres://... or sqlite://path)",
			EnvVar: "CHARTFARM_DATABASE_URL",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "log level (debug, info, warn, error)",
			Value: "info",
		},
		cli.BoolFlag{
			Name:  "quiet, q",
			Usage: "silence output below warning",
		},
		cli.StringFlag{
			Name:  "helm-binary, b",
			Usage: "path to helm binary",
		},
		cli.StringFlag{
			Name:  "kubectl-binary",
			Usage: "path to kubectl binary",
		},
	}
	cliApp.Before = configureLogging
	cliApp.Commands = []cli.Command{
		{
			Name:  "serve",
			Usage: "run the HTTP API",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "addr", Value: ":8080", Usage: "listen address"},
			},
			Action: func(c *cli.Context) error {
				ctx := signalContext()
				s, err := wire(ctx, c)
				if err != nil {
					return err
				}
				defer s.Close()
				server := &api.Server{
					Users:       s.users,
					Products:    s.products,
					Templates:   s.templates,
					Deployments: s.deployments,
					Jobs:        s.queue,
					Logger:      logger,
				}
				httpServer := &http.Server{Addr: c.String("addr"), Handler: server.Router()}
				go func() {
					<-ctx.Done()
					httpServer.Shutdown(context.Background())
				}()
				logger.Infof("Serving HTTP on %s", c.String("addr"))
				if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
					return err
				}
				return nil
			},
		},
		{
			Name:  "worker",
			Usage: "run reconcile workers until interrupted",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "concurrency", Value: 2, Usage: "number of parallel workers"},
			},
			Action: func(c *cli.Context) error {
				ctx := signalContext()
				s, err := wire(ctx, c)
				if err != nil {
					return err
				}
				defer s.Close()
				newReconciler(s, c).RunWorkers(ctx, c.Int("concurrency"))
				return nil
			},
		},
		{
			Name:  "reconcile-once",
			Usage: "claim and process at most one reconcile job",
			Action: func(c *cli.Context) error {
				ctx := signalContext()
				s, err := wire(ctx, c)
				if err != nil {
					return err
				}
				defer s.Close()
				claimed, err := newReconciler(s, c).ReconcileOne(ctx, "cli")
				if err != nil {
					return err
				}
				if !claimed {
					logger.Info("No runnable reconcile job")
				}
				return nil
			},
		},
		{
			Name:  "migrate",
			Usage: "run database migrations and exit",
			Action: func(c *cli.Context) error {
				s, err := wire(context.Background(), c)
				if err != nil {
					return err
				}
				return s.Close()
			},
		},
		{
			Name:      "create-user",
			Usage:     "create a user",
			ArgsUsage: "EMAIL",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "admin", Usage: "grant admin"},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return fmt.Errorf("usage: create-user EMAIL")
				}
				s, err := wire(context.Background(), c)
				if err != nil {
					return err
				}
				defer s.Close()
				user, err := s.users.Create(context.Background(), c.Args().First(), c.Bool("admin"))
				if err != nil {
					return err
				}
				return printJSON(user)
			},
		},
		{
			Name:  "list-users",
			Usage: "list users",
			Action: func(c *cli.Context) error {
				s, err := wire(context.Background(), c)
				if err != nil {
					return err
				}
				defer s.Close()
				users, err := s.users.List(context.Background())
				if err != nil {
					return err
				}
				return printJSON(users)
			},
		},
		{
			Name:      "create-product",
			Usage:     "create a product",
			ArgsUsage: "NAME",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "description"},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return fmt.Errorf("usage: create-product NAME")
				}
				s, err := wire(context.Background(), c)
				if err != nil {
					return err
				}
				defer s.Close()
				var description *string
				if d := c.String("description"); d != "" {
					description = &d
				}
				product, err := s.products.Create(context.Background(), c.Args().First(), description)
				if err != nil {
					return err
				}
				return printJSON(product)
			},
		},
		{
			Name:  "list-products",
			Usage: "list products",
			Action: func(c *cli.Context) error {
				s, err := wire(context.Background(), c)
				if err != nil {
					return err
				}
				defer s.Close()
				products, err := s.products.List(context.Background())
				if err != nil {
					return err
				}
				return printJSON(products)
			},
		},
		{
			Name:  "create-template",
			Usage: "register a template version for a product",
			Flags: []cli.Flag{
				cli.Int64Flag{Name: "product-id", Required: true},
				cli.StringFlag{Name: "chart-ref", Required: true},
				cli.StringFlag{Name: "chart-version", Required: true},
				cli.StringFlag{Name: "chart-digest"},
				cli.StringFlag{Name: "version-label"},
				cli.StringFlag{Name: "default-values", Usage: "JSON object"},
				cli.StringFlag{Name: "values-schema", Usage: "JSON Schema object"},
				cli.IntFlag{Name: "health-timeout-sec"},
			},
			Action: func(c *cli.Context) error {
				s, err := wire(context.Background(), c)
				if err != nil {
					return err
				}
				defer s.Close()
				payload := service.TemplateCreate{
					ProductID:    c.Int64("product-id"),
					ChartRef:     c.String("chart-ref"),
					ChartVersion: c.String("chart-version"),
				}
				if d := c.String("chart-digest"); d != "" {
					payload.ChartDigest = &d
				}
				if l := c.String("version-label"); l != "" {
					payload.VersionLabel = &l
				}
				if payload.DefaultValues, err = parseUserValues(c.String("default-values")); err != nil {
					return err
				}
				if payload.ValuesSchema, err = parseUserValues(c.String("values-schema")); err != nil {
					return err
				}
				if t := c.Int("health-timeout-sec"); t > 0 {
					payload.HealthTimeoutSec = &t
				}
				template, err := s.templates.Create(context.Background(), payload)
				if err != nil {
					return err
				}
				return printJSON(template)
			},
		},
		{
			Name:  "create-deployment",
			Usage: "request a new deployment",
			Flags: []cli.Flag{
				cli.Int64Flag{Name: "user-id", Required: true},
				cli.Int64Flag{Name: "template-id", Required: true},
				cli.StringFlag{Name: "domain", Required: true},
				cli.StringFlag{Name: "user-values", Usage: "JSON object"},
			},
			Action: func(c *cli.Context) error {
				s, err := wire(context.Background(), c)
				if err != nil {
					return err
				}
				defer s.Close()
				userValues, err := parseUserValues(c.String("user-values"))
				if err != nil {
					return err
				}
				deployment, err := s.deployments.Create(context.Background(), service.DeploymentCreate{
					UserID:            c.Int64("user-id"),
					DesiredTemplateID: c.Int64("template-id"),
					Domainname:        c.String("domain"),
					UserValues:        userValues,
				})
				if err != nil {
					return err
				}
				return printJSON(deployment)
			},
		},
		{
			Name:  "update-deployment",
			Usage: "upgrade a deployment to a newer template",
			Flags: []cli.Flag{
				cli.Int64Flag{Name: "id", Required: true},
				cli.Int64Flag{Name: "user-id", Required: true},
				cli.Int64Flag{Name: "template-id", Required: true},
			},
			Action: func(c *cli.Context) error {
				s, err := wire(context.Background(), c)
				if err != nil {
					return err
				}
				defer s.Close()
				deployment, err := s.deployments.Update(context.Background(), service.DeploymentUpdate{
					ID:                c.Int64("id"),
					UserID:            c.Int64("user-id"),
					DesiredTemplateID: c.Int64("template-id"),
				})
				if err != nil {
					return err
				}
				return printJSON(deployment)
			},
		},
		{
			Name:  "delete-deployment",
			Usage: "mark a deployment for teardown",
			Flags: []cli.Flag{
				cli.Int64Flag{Name: "id", Required: true},
				cli.Int64Flag{Name: "user-id", Required: true},
			},
			Action: func(c *cli.Context) error {
				s, err := wire(context.Background(), c)
				if err != nil {
					return err
				}
				defer s.Close()
				deployment, err := s.deployments.Delete(context.Background(), c.Int64("id"), c.Int64("user-id"))
				if err != nil {
					return err
				}
				return printJSON(deployment)
			},
		},
		{
			Name:  "list-deployments",
			Usage: "list a user's deployments",
			Flags: []cli.Flag{
				cli.Int64Flag{Name: "user-id", Required: true},
			},
			Action: func(c *cli.Context) error {
				s, err := wire(context.Background(), c)
				if err != nil {
					return err
				}
				defer s.Close()
				deployments, err := s.deployments.List(context.Background(), c.Int64("user-id"))
				if err != nil {
					return err
				}
				return printJSON(deployments)
			},
		},
		{
			Name:  "list-jobs",
			Usage: "list reconcile jobs",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "status"},
				cli.Int64Flag{Name: "deployment-id"},
				cli.IntFlag{Name: "limit", Value: 100},
			},
			Action: func(c *cli.Context) error {
				s, err := wire(context.Background(), c)
				if err != nil {
					return err
				}
				defer s.Close()
				jobs, err := s.queue.ListJobs(context.Background(), c.String("status"), c.Int64("deployment-id"), c.Int("limit"))
				if err != nil {
					return err
				}
				return printJSON(jobs)
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		if logger != nil {
			logger.Errorf("err: %v", err)
		} else {
			fmt.Fprintf(os.Stderr, "err: %v\n", err)
		}
		os.Exit(1)
	}
}
