package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/contentsdk/internal/infrastructure/sink"
	apphttp "github.com/turtacn/contentsdk/internal/interfaces/http"
	"github.com/turtacn/contentsdk/internal/interfaces/http/handlers"
	"github.com/turtacn/contentsdk/pkg/errors"
	"github.com/turtacn/contentsdk/pkg/logger"
	"github.com/turtacn/contentsdk/sdk/go/contentsdk"
)

var (
	tailPosition   string
	tailCheckpoint string
	tailMaxEvents  int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Read the enterprise event stream",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow the event stream and publish every event to the configured sink",
	Long: `tail starts at --position, the position saved in --checkpoint, feed.stream_position,
or the current head of the stream, in that order. Each event is published to the
sink from the config (stdout by default). With --checkpoint the stream position is
saved whenever every fetched event has been published.`,
	RunE: runTail,
}

func init() {
	eventsTailCmd.Flags().StringVar(&tailPosition, "position", "", "stream position to start from")
	eventsTailCmd.Flags().StringVar(&tailCheckpoint, "checkpoint", "", "file holding the stream position between runs")
	eventsTailCmd.Flags().IntVar(&tailMaxEvents, "max-events", 0, "stop after this many events (0 = run until interrupted)")

	eventsCmd.AddCommand(eventsTailCmd)
	rootCmd.AddCommand(eventsCmd)
}

func runTail(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, cmd.ErrOrStderr(), true)
	if err != nil {
		return err
	}
	defer s.Close()
	log := s.log.WithComponent("tail")

	out, err := sink.New(s.cfg.Sink, cmd.OutOrStdout(), s.log)
	if err != nil {
		return err
	}
	defer out.Close()

	start, err := startPosition(tailPosition, tailCheckpoint)
	if err != nil {
		return err
	}
	feed := s.client.NewEventFeed(contentsdk.StreamPosition(start))
	defer feed.Destroy()

	if s.cfg.Metrics.Enabled {
		health := handlers.NewHealthHandler(s.log)
		health.Register("feed", func(context.Context) error { return feed.Halted() })
		health.Register("token", func(ctx context.Context) error {
			_, err := s.client.AccessToken(ctx, contentsdk.TokenRequestOptions{})
			return err
		})
		router := apphttp.NewRouter(s.cfg.Metrics.ListenAddr, s.client.Registry(), health, s.log)
		addr, err := router.Start(ctx)
		if err != nil {
			return err
		}
		log.Info(ctx, "Debug server listening", logger.String("addr", addr.String()))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = router.Stop(shutdownCtx)
		}()
	}

	go func() {
		for {
			select {
			case err := <-feed.Errors():
				log.Warn(ctx, "Event feed error", logger.String("kind", string(errors.KindOf(err))),
					logger.String("error", err.Error()))
			case <-feed.Done():
				return
			}
		}
	}()

	for n := 0; tailMaxEvents <= 0 || n < tailMaxEvents; n++ {
		ev, err := feed.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info(ctx, "Stopping", logger.String("stream_position", feed.StreamPosition().String()))
				return nil
			}
			return err
		}
		if err := out.Publish(ctx, []contentsdk.Event{ev}); err != nil {
			return err
		}
		if tailCheckpoint != "" && feed.Pending() == 0 {
			if err := saveCheckpoint(tailCheckpoint, feed.StreamPosition().String()); err != nil {
				log.Error(ctx, "Failed to save checkpoint", err)
			}
		}
	}
	return nil
}

func startPosition(flag, checkpoint string) (string, error) {
	if flag != "" || checkpoint == "" {
		return flag, nil
	}
	data, err := os.ReadFile(checkpoint)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read checkpoint: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// saveCheckpoint replaces path atomically.
func saveCheckpoint(path, position string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(position + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
