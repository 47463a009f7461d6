// Copyright © 2024 CloudSpan <oss@cloudspan.dev>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"

	"github.com/cloudspan/cloudspan/adapter"
	"github.com/cloudspan/cloudspan/api"
	"github.com/cloudspan/cloudspan/auth"
	"github.com/cloudspan/cloudspan/catalog"
	"github.com/cloudspan/cloudspan/common"
	"github.com/cloudspan/cloudspan/engine"
	"github.com/cloudspan/cloudspan/events"
	"github.com/cloudspan/cloudspan/metricsint"
	"github.com/cloudspan/cloudspan/placement"
	"github.com/cloudspan/cloudspan/predict"
	"github.com/cloudspan/cloudspan/store"
)

const maxOpenConnections = 512

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: serveCmdShortDescription,
	Long:  serveCmdLongDescription,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	logger := openProcessLogger()
	defer logger.CloseLog()

	adapters, containers, defaults, err := buildAdapters(context.Background(), logger)
	if err != nil {
		return err
	}

	jobs, principals, err := store.NewStores(store.Config{
		Kind:            common.GetEnvironmentVariable(common.EEnvironmentVariable.StoreKind()),
		Location:        common.GetEnvironmentVariable(common.EEnvironmentVariable.StoreLocation()),
		TableConnection: common.GetEnvironmentVariable(common.EEnvironmentVariable.StoreTableConnection()),
	})
	if err != nil {
		return err
	}

	bus := events.NewBus(events.Config{
		RingCapacity:    common.GetEnvironmentVariableInt(common.EEnvironmentVariable.EventsRingCapacity()),
		SubscriberQueue: common.GetEnvironmentVariableInt(common.EEnvironmentVariable.EventsSubscriberQueue()),
		Heartbeat:       common.GetEnvironmentVariableSeconds(common.EEnvironmentVariable.EventsHeartbeatSeconds()),
	})
	defer bus.Close()

	cost, err := buildCostModel()
	if err != nil {
		return err
	}
	predictor := predict.NewPredictor(
		common.GetEnvironmentVariable(common.EEnvironmentVariable.PredictorModelPath()), logger)
	classifier := placement.NewClassifier(cost, predictor,
		common.GetEnvironmentVariableFloat(common.EEnvironmentVariable.ClassifierMinSavings()))

	cat := catalog.NewCatalog(adapters, catalog.Config{
		Containers:       containers,
		AccessWindowDays: common.GetEnvironmentVariableInt(common.EEnvironmentVariable.ClassifierAccessWindowDays()),
	}, classifier, bus, logger)

	authSvc, err := auth.NewService(principals, auth.Config{
		TokenTTL:       common.GetEnvironmentVariableSeconds(common.EEnvironmentVariable.AuthTokenTTLSeconds()),
		SigningKeyFile: common.GetEnvironmentVariable(common.EEnvironmentVariable.AuthSigningKeyFile()),
	})
	if err != nil {
		return err
	}

	metrics := metricsint.New()
	eng := engine.NewEngine(engineConfig(defaults), adapters, jobs, bus, cat, metrics, logger)
	if err := eng.Resume(); err != nil {
		return err
	}

	srv := api.NewServer(api.Deps{
		Auth:      authSvc,
		Catalog:   cat,
		Cost:      cost,
		Engine:    eng,
		Bus:       bus,
		Predictor: predictor,
		Metrics:   metrics,
		StoreKind: common.GetEnvironmentVariable(common.EEnvironmentVariable.StoreKind()),
		Logger:    logger,
	})

	listenAddr := common.GetEnvironmentVariable(common.EEnvironmentVariable.ListenAddr())
	rawListener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	// push-channel subscribers hold connections open; cap them before the
	// accept queue does it for us
	listener := netutil.LimitListener(rawListener, maxOpenConnections)
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// first inventory, off the serve path so the API is up immediately
	cat.StartRefresh(context.Background(), nil)

	var g run.Group
	{
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))
		defer cancel()
	}
	{
		g.Add(func() error {
			logger.Log(common.LogInfo, "control API listening on "+listenAddr)
			return httpServer.Serve(listener)
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(ctx)
		})
	}
	{
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error { return eng.Run(ctx) }, func(error) { cancel() })
	}
	{
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error { return bus.RunHeartbeat(ctx) }, func(error) { cancel() })
	}
	if interval := common.GetEnvironmentVariableSeconds(common.EEnvironmentVariable.CatalogRefreshSeconds()); interval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					cat.Refresh(ctx, nil)
				}
			}
		}, func(error) { cancel() })
	}
	{
		// SIGHUP hot-swaps the predictor model without a restart
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		done := make(chan struct{})
		g.Add(func() error {
			for {
				select {
				case <-done:
					return nil
				case <-hup:
					if err := predictor.Reload(); err != nil {
						logger.Log(common.LogWarning, "predictor model reload failed: "+err.Error())
					}
				}
			}
		}, func(error) {
			signal.Stop(hup)
			close(done)
		})
	}

	err = g.Run()
	if _, ok := err.(run.SignalError); ok {
		logger.Log(common.LogInfo, "shutting down: "+err.Error())
		return nil
	}
	return err
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func openProcessLogger() common.ILoggerResetable {
	var level common.LogLevel
	if err := level.Parse(common.GetEnvironmentVariable(common.EEnvironmentVariable.LogLevel())); err != nil {
		level = common.LogInfo
	}
	folder := common.GetEnvironmentVariable(common.EEnvironmentVariable.LogLocation())
	if folder == "" {
		folder = "."
	}
	logger := common.NewProcessLogger(level, folder)
	logger.OpenLog()
	return logger
}

// buildAdapters constructs one adapter per enabled provider and reports the
// containers the catalog should inventory plus each provider's default
// container for migration requests that leave theirs empty.
func buildAdapters(ctx context.Context, logger common.ILogger) (
	adapter.Set, map[common.Provider][]string, map[common.Provider]string, error) {

	adapters := adapter.Set{}
	containers := make(map[common.Provider][]string)
	defaults := make(map[common.Provider]string)
	register := func(p common.Provider, a adapter.Adapter, container string) {
		adapters[p] = a
		if container != "" {
			containers[p] = []string{container}
			defaults[p] = container
		}
	}

	if common.GetEnvironmentVariableBool(common.EEnvironmentVariable.AWSEnabled()) {
		info, err := adapter.LoadS3CredentialInfo(
			common.GetEnvironmentVariable(common.EEnvironmentVariable.AWSCredentials()))
		if err != nil {
			return nil, nil, nil, err
		}
		a, err := adapter.NewAWSAdapter(info, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		register(common.EProvider.AWS(), a,
			common.GetEnvironmentVariable(common.EEnvironmentVariable.AWSDefaultContainer()))
	}
	if common.GetEnvironmentVariableBool(common.EEnvironmentVariable.AzureEnabled()) {
		info := adapter.ParseAzureCredentialInfo(
			common.GetEnvironmentVariable(common.EEnvironmentVariable.AzureCredentials()))
		a, err := adapter.NewAzureAdapter(info)
		if err != nil {
			return nil, nil, nil, err
		}
		register(common.EProvider.Azure(), a,
			common.GetEnvironmentVariable(common.EEnvironmentVariable.AzureDefaultContainer()))
	}
	if common.GetEnvironmentVariableBool(common.EEnvironmentVariable.GCPEnabled()) {
		a, err := adapter.NewGCPAdapter(ctx, adapter.GCPCredentialInfo{
			KeyFilePath: common.GetEnvironmentVariable(common.EEnvironmentVariable.GCPCredentials()),
		})
		if err != nil {
			return nil, nil, nil, err
		}
		register(common.EProvider.GCP(), a,
			common.GetEnvironmentVariable(common.EEnvironmentVariable.GCPDefaultContainer()))
	}
	if common.GetEnvironmentVariableBool(common.EEnvironmentVariable.MockEnabled()) {
		m := adapter.NewMockAdapter()
		m.SeedDemo()
		register(common.EProvider.Mock(), m, "demo-media")
		containers[common.EProvider.Mock()] = []string{"demo-media", "demo-archive"}
	}

	if len(adapters) == 0 {
		return nil, nil, nil, common.NewCloudError(common.EErrorCode.InvalidArgument(), "serve",
			"no providers enabled; set at least one CLOUDSPAN_PROVIDERS_*_ENABLED variable")
	}
	return adapters, containers, defaults, nil
}

func buildCostModel() (*placement.CostModel, error) {
	storage := placement.DefaultStoragePrices()
	if path := common.GetEnvironmentVariable(common.EEnvironmentVariable.PricingFile()); path != "" {
		loaded, err := placement.LoadPriceTable(path)
		if err != nil {
			return nil, err
		}
		storage = loaded
	}
	return placement.NewCostModel(storage, placement.DefaultRetrievalPrices()), nil
}

func engineConfig(defaults map[common.Provider]string) engine.Config {
	return engine.Config{
		MaxWorkers:            common.GetEnvironmentVariableInt(common.EEnvironmentVariable.EngineMaxWorkers()),
		MaxAttempts:           common.GetEnvironmentVariableInt(common.EEnvironmentVariable.EngineMaxAttempts()),
		PerRouteConcurrency:   common.GetEnvironmentVariableInt(common.EEnvironmentVariable.EnginePerRouteConcurrency()),
		PerJobParallelism:     common.GetEnvironmentVariableInt(common.EEnvironmentVariable.EnginePerJobParallelism()),
		ReadyQueueCapacity:    common.GetEnvironmentVariableInt(common.EEnvironmentVariable.EngineReadyQueueCapacity()),
		FileDeadline:          common.GetEnvironmentVariableSeconds(common.EEnvironmentVariable.EngineFileDeadlineSeconds()),
		MaxActiveJobsPerOwner: common.GetEnvironmentVariableInt(common.EEnvironmentVariable.EngineMaxActiveJobsPerOwner()),
		MaxFilesPerJob:        common.GetEnvironmentVariableInt(common.EEnvironmentVariable.EngineMaxFilesPerJob()),
		DefaultContainers:     defaults,
	}
}
