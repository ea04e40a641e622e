package main

import (
	"fmt"

	catalogrepo "github.com/fjod/storefront/internal/catalog/repository"
	ordersrepo "github.com/fjod/storefront/internal/orders/repository"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply catalog and orders database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrations()
	},
}

func runMigrations() error {
	catalog, err := catalogrepo.NewRepository(cfg.Catalog.DBPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer catalog.Close()
	if err := catalog.RunMigrations(); err != nil {
		return fmt.Errorf("catalog migrations: %w", err)
	}
	log.Info("catalog migrations completed")

	orders, err := ordersrepo.NewRepository(postgresCredentials())
	if err != nil {
		return fmt.Errorf("connect to orders database: %w", err)
	}
	defer orders.Close()
	if err := orders.RunMigrations(); err != nil {
		return fmt.Errorf("orders migrations: %w", err)
	}
	log.Info("orders migrations completed")
	return nil
}

func postgresCredentials() *ordersrepo.Credentials {
	return &ordersrepo.Credentials{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		DBName:   cfg.Postgres.DBName,
	}
}
