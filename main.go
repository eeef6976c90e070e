package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/flowmill/flowmill/agent"
	"github.com/flowmill/flowmill/config"
	"github.com/flowmill/flowmill/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type cfg struct {
	config.Config
}

type cli struct {
	cfg cfg
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	cmd.Flags().String("namespace", "flowmill", "namespace used in storage")
	cmd.Flags().Int("http-port", 8080, "http port for rest endpoints")
	cmd.Flags().String("storage-impl", "redis", "implementation of underline storage")
	cmd.Flags().Int("runner-pool-size", 8, "number of runner workers")
	cmd.Flags().Int("runner-capacity", 512, "runner worker queue capacity")
	cmd.Flags().Int("sweep-interval-ms", 1000, "scheduler sweep interval in milliseconds")
	cmd.Flags().Int("batch-size", 100, "poll batch size for sweeps")
	cmd.Flags().Int("retry-backoff-base-seconds", 30, "base retry backoff in seconds")
	cmd.Flags().Int("retry-backoff-max-seconds", 3600, "maximum retry backoff in seconds")
	cmd.Flags().Int("step-ceiling", 1000, "maximum node dispatches per execution")
	cmd.Flags().String("log-level", "info", "log level")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	viper.SetConfigFile(configFile)

	if err = viper.ReadInConfig(); err != nil {
		// it's ok if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.RunnerPoolSize = viper.GetInt("runner-pool-size")
	c.cfg.RunnerCapacity = viper.GetInt("runner-capacity")
	c.cfg.SweepIntervalMs = viper.GetInt("sweep-interval-ms")
	c.cfg.BatchSize = viper.GetInt("batch-size")
	c.cfg.RetryBackoff.BaseSeconds = viper.GetInt("retry-backoff-base-seconds")
	c.cfg.RetryBackoff.MaxSeconds = viper.GetInt("retry-backoff-max-seconds")
	c.cfg.StepCeiling = viper.GetInt("step-ceiling")
	c.cfg.LogLevel = viper.GetString("log-level")
	return logger.Configure(c.cfg.LogLevel)
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	agent, err := agent.New(c.cfg.Config)
	if err != nil {
		panic(err)
	}
	err = agent.Start()
	if err != nil {
		panic(err)
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return agent.Shutdown()
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "flowmill",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
