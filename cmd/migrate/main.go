package main

import (
	"fmt"
	"os"

	migrate "github.com/fraudguard-labs/fraudguard/db"
	"github.com/spf13/viper"
)

func init() {
	viper.SetDefault("POSTGRES_USER", "postgres")
	viper.SetDefault("POSTGRES_PASSWORD", "")
	viper.SetDefault("POSTGRES_DB", "fraudguard")
	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", 5432)
	viper.AutomaticEnv()
}

func main() {
	if err := migrate.RunCoreDBMigration(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
