package main

import (
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/buildfund/onboard/pkg/server"
)

func newServeCommand() *cobra.Command {
	var (
		addr   string
		dbPath string
		role   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the development onboarding API server",
		Long: `serve exposes the onboarding chat API backed by a local sqlite
database. Any "Authorization: Token <value>" header is accepted; each token
gets its own sessions and documents.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if dbPath == "" {
				dbPath = cfg.Server.DB
			}
			if role == "" {
				role = cfg.Server.Role
			}
			switch server.Role(role) {
			case server.RoleBorrower, server.RoleLender, server.RoleAdmin:
			default:
				return errors.Errorf("unknown role %q, expected Borrower, Lender or Admin", role)
			}

			store, err := server.NewStore(dbPath)
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Close()
			}()

			handler := server.NewHandler(store, server.Role(role), server.WithHandlerLogger(logger))
			srv := server.NewServer(addr, handler, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite database path (overrides config)")
	cmd.Flags().StringVar(&role, "role", "", "role for new sessions: Borrower, Lender or Admin (overrides config)")

	return cmd
}
