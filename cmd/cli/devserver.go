package cli

import (
	"context"
	"crypto/rsa"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/turtacn/contentsdk/internal/domain/models"
	"github.com/turtacn/contentsdk/internal/serverlite"
)

var (
	devAddr         string
	devClientID     string
	devClientSecret string
	devPublicKey    string
	devEmitEvery    time.Duration
)

var devServerCmd = &cobra.Command{
	Use:   "dev-server",
	Short: "Run an in-memory content API for trying contentctl locally",
	Long: `dev-server serves the token, revoke, events and long-poll endpoints in memory.
Point api.base_url at <url>/2.0, api.token_url at <url>/oauth2/token and
api.revoke_url at <url>/oauth2/revoke. With --emit-every it publishes a synthetic
event on that interval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var pub *rsa.PublicKey
		if devPublicKey != "" {
			data, err := os.ReadFile(devPublicKey)
			if err != nil {
				return err
			}
			if pub, err = jwt.ParseRSAPublicKeyFromPEM(data); err != nil {
				return fmt.Errorf("parse public key: %w", err)
			}
		}

		srv := serverlite.NewServer(serverlite.Config{
			ClientID:     devClientID,
			ClientSecret: devClientSecret,
			PublicKey:    pub,
		})
		url, err := srv.Start(devAddr)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "content API listening on %s\n", url)

		if devEmitEvery > 0 {
			go emitEvents(ctx, srv, devEmitEvery)
		}
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	},
}

func emitEvents(ctx context.Context, srv *serverlite.Server, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			srv.Publish(models.Event{
				EventID:   uuid.NewString(),
				EventType: "ITEM_UPLOAD",
				CreatedAt: now.UTC(),
				SessionID: "dev-" + strconv.Itoa(n),
			})
		}
	}
}

func init() {
	devServerCmd.Flags().StringVar(&devAddr, "addr", "127.0.0.1:8089", "listen address")
	devServerCmd.Flags().StringVar(&devClientID, "client-id", "dev-client", "accepted client_id")
	devServerCmd.Flags().StringVar(&devClientSecret, "client-secret", "dev-secret", "accepted client_secret")
	devServerCmd.Flags().StringVar(&devPublicKey, "public-key", "", "PEM public key verifying assertions (unverified when empty)")
	devServerCmd.Flags().DurationVar(&devEmitEvery, "emit-every", 0, "publish a synthetic event on this interval")

	rootCmd.AddCommand(devServerCmd)
}
