// Command flashqd opens a FlashQ data directory and reports basic stats
// about the topics and partitions it finds, in the ambient style of the
// example pack's cobra+viper CLI entrypoints (influxdb's cmd/influxd in
// particular). It is a bootstrap/inspection harness, not an RPC server —
// wiring FlashQ to a network protocol is out of scope.
package main

import (
	"fmt"
	"os"
	"path"
	"strconv"

	"github.com/google/uuid"
	flashlog "github.com/harshitmahapatra/flashq/internal/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	dataDir     string
	logLevel    string
	backendKind string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "flashqd",
		Short: "FlashQ storage engine bootstrap and inspection tool",
	}

	root.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "data directory to open")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&backendKind, "backend", "file", "storage backend: file or memory")
	viper.BindPFlag("data-dir", root.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("backend", root.PersistentFlags().Lookup("backend"))
	viper.SetEnvPrefix("flashqd")
	viper.AutomaticEnv()

	root.AddCommand(newStatsCmd())
	root.AddCommand(newTopicCreateCmd())
	return root
}

func newLogger() (*zap.Logger, error) {
	level := viper.GetString("log-level")
	var cfg zap.Config
	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	return cfg.Build()
}

func openBackend(logger *zap.Logger) (flashlog.Backend, error) {
	c := flashlog.DefaultConfig()
	c.DataDir = viper.GetString("data-dir")
	c.Logger = logger
	switch viper.GetString("backend") {
	case "memory":
		c.Kind = flashlog.BackendMemory
	default:
		c.Kind = flashlog.BackendFile
	}
	return flashlog.OpenBackend(c)
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print topic and partition counts for the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			runID := uuid.New().String()
			logger = logger.With(zap.String("run_id", runID))

			backend, err := openBackend(logger)
			if err != nil {
				return fmt.Errorf("open backend: %w", err)
			}
			defer backend.Close()

			topics := backend.Topics()
			logger.Info("data directory opened", zap.Int("topic_count", len(topics)))
			for _, name := range topics {
				t, err := backend.Topic(name)
				if err != nil {
					logger.Warn("could not open topic", zap.String("topic", name), zap.Error(err))
					continue
				}
				if entries, err := os.ReadDir(path.Join(viper.GetString("data-dir"), name)); err == nil {
					for _, e := range entries {
						if id, err := strconv.Atoi(e.Name()); err == nil && e.IsDir() {
							if _, err := t.Partition(id); err != nil {
								logger.Warn("could not open partition", zap.String("topic", name), zap.Int("partition", id), zap.Error(err))
							}
						}
					}
				}
				partitions := t.Partitions()
				fmt.Printf("%s\t%d partitions\n", name, len(partitions))
			}
			return nil
		},
	}
}

func newTopicCreateCmd() *cobra.Command {
	var partitions int
	cmd := &cobra.Command{
		Use:   "create-topic [name]",
		Short: "Create a topic with the given number of partitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			backend, err := openBackend(logger)
			if err != nil {
				return fmt.Errorf("open backend: %w", err)
			}
			defer backend.Close()

			t, err := backend.Topic(args[0])
			if err != nil {
				return err
			}
			for i := 0; i < partitions; i++ {
				if _, err := t.Partition(i); err != nil {
					return err
				}
			}
			logger.Info("topic created", zap.String("topic", args[0]), zap.Int("partitions", partitions))
			return nil
		},
	}
	cmd.Flags().IntVar(&partitions, "partitions", 1, "number of partitions to create")
	return cmd
}
