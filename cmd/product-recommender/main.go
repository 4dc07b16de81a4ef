// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"

	"github.com/gorse-io/product-recommender/base/log"
	"github.com/gorse-io/product-recommender/cmd/version"
	"github.com/gorse-io/product-recommender/config"
	"github.com/gorse-io/product-recommender/dataset"
	"github.com/gorse-io/product-recommender/logics"
	"github.com/gorse-io/product-recommender/master"
	"github.com/gorse-io/product-recommender/model"
	"github.com/gorse-io/product-recommender/model/mf"
	"github.com/gorse-io/product-recommender/server"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCommand = &cobra.Command{
	Use:   "product-recommender",
	Short: "Train a product rating model and serve predictions.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
	},
}

var trainCommand = &cobra.Command{
	Use:   "train",
	Short: "Train a model, evaluate it and save it to the model store.",
	Run: func(cmd *cobra.Command, args []string) {
		m := newMaster(cmd)
		defer m.Close()
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()
		result, err := m.Train(ctx)
		if err != nil {
			log.Logger().Fatal("failed to train model", zap.Error(err))
		}
		printSamples(os.Stdout, result.Samples)
		printLoadReport(os.Stdout, result.Report)
		printMetrics(os.Stdout, result.Metrics)
		if path, _ := cmd.Flags().GetString("metrics-path"); path != "" {
			if err = master.WriteMetrics(path); err != nil {
				log.Logger().Fatal("failed to write metrics", zap.Error(err))
			}
		}
	},
}

var tuneCommand = &cobra.Command{
	Use:   "tune",
	Short: "Search hyper-parameters by held-out RMSE.",
	Run: func(cmd *cobra.Command, args []string) {
		m := newMaster(cmd)
		defer m.Close()
		if n, _ := cmd.Flags().GetInt("trials"); n > 0 {
			m.Config.Model.NumTrials = n
		}
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()
		result, err := m.Tune(ctx)
		if err != nil {
			log.Logger().Fatal("failed to tune model", zap.Error(err))
		}
		printTrials(os.Stdout, result)
	},
}

var predictCommand = &cobra.Command{
	Use:   "predict",
	Short: "Predict the rating of a user for a product with the saved model.",
	Run: func(cmd *cobra.Command, args []string) {
		userId, _ := cmd.Flags().GetString("user")
		productId, _ := cmd.Flags().GetString("product")
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		m := newMaster(cmd)
		defer m.Close()
		predictor, err := m.LoadPredictor()
		if err != nil {
			log.Logger().Fatal("failed to load model", zap.Error(err))
		}
		score, err := predictor.Predict(context.Background(), userId, productId)
		if err != nil {
			log.Logger().Fatal("failed to predict", zap.Error(err))
		}
		fmt.Printf("UserId: %s, ProductId: %s, Score: %.1f\n", userId, productId, score)
		if logics.Recommended(score, threshold) {
			fmt.Printf("Product %s is recommended for user %s\n", productId, userId)
		} else {
			fmt.Printf("Product %s is not recommended for user %s\n", productId, userId)
		}
	},
}

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Serve predictions over HTTP.",
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig(cmd)
		s, err := server.NewServer(conf)
		if err != nil {
			log.Logger().Fatal("failed to create server", zap.Error(err))
		}
		done := make(chan struct{})
		go func() {
			sigint := make(chan os.Signal, 1)
			signal.Notify(sigint, os.Interrupt)
			<-sigint
			s.Shutdown()
			close(done)
		}()
		s.Serve()
		<-done
		log.Logger().Info("stop server successfully")
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show build information.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(version.BuildInfo())
	},
}

func loadConfig(cmd *cobra.Command) *config.Config {
	configPath, _ := cmd.Flags().GetString("config")
	log.Logger().Info("load config", zap.String("config", configPath))
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		log.Logger().Fatal("failed to load config", zap.Error(err))
	}
	if cmd.Flags().Changed("data") {
		conf.Data.Path, _ = cmd.Flags().GetString("data")
	}
	return conf
}

func newMaster(cmd *cobra.Command) *master.Master {
	m, err := master.NewMaster(loadConfig(cmd))
	if err != nil {
		log.Logger().Fatal("failed to create master", zap.Error(err))
	}
	return m
}

func printSamples(w io.Writer, samples []dataset.Rating) {
	table := tablewriter.NewWriter(w)
	table.Header("User", "Product", "Rating")
	for _, sample := range samples {
		_ = table.Append([]string{sample.UserId, sample.ProductId, fmt.Sprintf("%.1f", sample.Label)})
	}
	_ = table.Render()
}

func printLoadReport(w io.Writer, report *dataset.LoadReport) {
	table := tablewriter.NewWriter(w)
	table.Header("Rows", "Accepted", "Skipped")
	_ = table.Append([]string{fmt.Sprint(report.Rows), fmt.Sprint(report.Accepted), fmt.Sprint(report.Skipped)})
	_ = table.Render()
}

func printMetrics(w io.Writer, metrics model.Metrics) {
	table := tablewriter.NewWriter(w)
	table.Header("Metric", "Value")
	_ = table.Append([]string{"RMSE", fmt.Sprintf("%.4f", metrics.RMSE)})
	_ = table.Append([]string{"R-Squared", fmt.Sprintf("%.4f", metrics.RSquared)})
	_ = table.Append([]string{"MAE", fmt.Sprintf("%.4f", metrics.MAE)})
	_ = table.Append([]string{"MSE", fmt.Sprintf("%.4f", metrics.MSE)})
	_ = table.Render()
}

func printTrials(w io.Writer, result mf.SearchResult) {
	names := lo.Map(lo.Keys(result.BestParams), func(name model.ParamName, _ int) string {
		return string(name)
	})
	sort.Strings(names)
	table := tablewriter.NewWriter(w)
	table.Header(lo.ToAnySlice(append([]string{"Trial", "RMSE"}, names...))...)
	for i, trial := range result.Trials {
		row := []string{fmt.Sprint(i), fmt.Sprintf("%.4f", trial.Metrics.RMSE)}
		if i == result.BestIndex {
			row[0] += " (best)"
		}
		for _, name := range names {
			row = append(row, fmt.Sprint(trial.Params[model.ParamName(name)]))
		}
		_ = table.Append(row)
	}
	_ = table.Render()
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	rootCommand.PersistentFlags().String("data", "", "path of the rating file")
	trainCommand.Flags().String("metrics-path", "", "write training metrics to a Prometheus textfile")
	tuneCommand.Flags().Int("trials", 0, "number of trials")
	predictCommand.Flags().String("user", "", "identifier of the user")
	predictCommand.Flags().String("product", "", "identifier of the product")
	predictCommand.Flags().Float64("threshold", 3.5, "minimum rounded score to recommend")
	rootCommand.AddCommand(trainCommand, tuneCommand, predictCommand, serveCommand, versionCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
