package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/chatship-io/chatship/internal/adapters/fs"
	"github.com/chatship-io/chatship/internal/adapters/httptransport"
	logAdapter "github.com/chatship-io/chatship/internal/adapters/log"
	"github.com/chatship-io/chatship/internal/adapters/wstransport"
	"github.com/chatship-io/chatship/internal/cliconfig"
	"github.com/chatship-io/chatship/internal/domain"
	"github.com/chatship-io/chatship/pkg/chatship"
)

const helpDescription = `
Sync a chat event stream and transfer files over flaky links.

Highlights:
  - Ordered, gap-free, exactly-once local delivery with automatic resync.
  - Reconnects with capped backoff; falls back to polling without websockets.
  - Resumable chunked uploads that never retransmit acknowledged bytes.
  - Configure via file, CHATSHIP_* environment variables, or flags.
`

var exampleUsage = strings.TrimSpace(`
  chatship tail --user-id alice --auth-key <api-key>
  chatship send --user-id alice --peer-id bob "hello"
  chatship upload --user-id alice ./video.mp4
`)

// maskKey keeps enough of a key to recognize it in logs without leaking it.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	log := cliconfig.Logger()

	root := &cobra.Command{
		Use:     "chatship",
		Short:   "Chat stream sync and resumable file transfer client",
		Long:    strings.TrimSpace(helpDescription),
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.chatship/config.toml)")
	pf.StringVar(&cfg.ServiceURL, "service-url", cfg.ServiceURL, "base service URL")
	pf.StringVar(&cfg.WSURL, "ws-url", cfg.WSURL, "websocket stream URL (derived from service-url if empty)")
	pf.StringVar(&cfg.AuthKey, "auth-key", cfg.AuthKey, "API key for authentication")
	pf.StringVar(&cfg.UserID, "user-id", cfg.UserID, "local user identifier")
	pf.StringVar(&cfg.PeerID, "peer-id", cfg.PeerID, "peer to scope the stream to (optional for tail)")
	pf.StringVar(&cfg.Transport, "transport", cfg.Transport, "stream transport: ws or poll")
	pf.DurationVar(&cfg.PollTimeout, "poll-timeout", cfg.PollTimeout, "per-request wait on the poll transport")
	pf.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout")
	pf.DurationVar(&cfg.BackoffInitial, "backoff-initial", cfg.BackoffInitial, "initial reconnect delay")
	pf.DurationVar(&cfg.BackoffMax, "backoff-max", cfg.BackoffMax, "maximum reconnect delay")
	pf.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "consecutive failed connection attempts before giving up")
	pf.IntVar(&cfg.RangeLimit, "range-limit", cfg.RangeLimit, "page size for catch-up range reads")
	pf.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "directory for persisted stream cursors")
	pf.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "listen address for Prometheus metrics (disabled if empty)")

	root.AddCommand(tailCmd(&cfg, &cfgPath))
	root.AddCommand(sendCmd(&cfg, &cfgPath))
	root.AddCommand(uploadCmd(&cfg, &cfgPath))

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("chatship")
		os.Exit(1)
	}
}

// loadConfig layers file and environment configuration under explicit flags,
// then validates.
func loadConfig(cmd *cobra.Command, cfg *cliconfig.Config, cfgPath string) error {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	}

	if err := cliconfig.ApplyEnvConfig(cfg, changed); err != nil {
		return err
	}

	return cfg.Validate()
}

// buildClient assembles the transport stack and client from cfg.
func buildClient(cfg cliconfig.Config, logger chatship.Logger, opts ...chatship.Option) (*chatship.Client, error) {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	var transport chatship.Transport = httptransport.New(httpClient, logger, httptransport.Config{
		BaseURL: cfg.ServiceURL,
		AuthKey: cfg.AuthKey,
	})
	if cfg.Transport == cliconfig.TransportWS {
		transport = wstransport.New(transport, logger, wstransport.Config{
			URL:     cfg.WSURL,
			AuthKey: cfg.AuthKey,
		})
	}

	opts = append(opts, chatship.WithLogger(logger))
	return chatship.New(transport, chatship.Config{
		UserID:         cfg.UserID,
		PeerID:         cfg.PeerID,
		StartOffset:    cfg.StartOffset,
		MaxAttempts:    cfg.MaxAttempts,
		BackoffInitial: cfg.BackoffInitial,
		BackoffMax:     cfg.BackoffMax,
		PollTimeout:    cfg.PollTimeout,
		RangeLimit:     cfg.RangeLimit,
		ChunkSize:      cfg.ChunkSize,
		ChunkRetries:   cfg.ChunkRetries,
		UploadRateBps:  cfg.UploadRateBps,
	}, opts...)
}

// serveMetrics exposes reg on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger chatship.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics listener failed")
		}
	}()
}

// streamErrors adapts the terminal stream error into a channel the command
// loop can select on.
type streamErrors struct {
	ch chan error
}

func newStreamErrors() *streamErrors {
	return &streamErrors{ch: make(chan error, 1)}
}

func (s *streamErrors) OnConnected(offset uint64) {}

func (s *streamErrors) OnStreamError(err error) {
	select {
	case s.ch <- err:
	default:
	}
}

func tailCmd(cfg *cliconfig.Config, cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow the event stream, printing events in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, cfg, *cfgPath); err != nil {
				return err
			}
			log := cliconfig.Logger()
			logger := logAdapter.NewZerologAdapterWithLogger(log)

			scope := domain.ScopeFilter{OwnerID: cfg.UserID, PeerID: cfg.PeerID}
			cursors := fs.NewCursorFileRepository(cfg.StateDir)

			// Resume from the persisted cursor unless an explicit offset
			// was given.
			if !cmd.Flags().Changed("start-offset") {
				saved, err := cursors.Load(cmd.Context(), scope)
				if err != nil {
					return fmt.Errorf("load cursor: %w", err)
				}
				cfg.StartOffset = saved.LastOffset
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			errs := newStreamErrors()
			reg := prometheus.NewRegistry()
			client, err := buildClient(*cfg, logger,
				chatship.WithEventHandler(errs),
				chatship.WithMetricsRegistry(reg),
			)
			if err != nil {
				return err
			}
			defer client.Close()

			if cfg.MetricsAddr != "" {
				serveMetrics(ctx, cfg.MetricsAddr, reg, logger)
			}

			log.Info().
				Str("service_url", cfg.ServiceURL).
				Str("auth_key", maskKey(cfg.AuthKey)).
				Str("user_id", cfg.UserID).
				Uint64("start_offset", cfg.StartOffset).
				Msg("tailing stream")

			unsubscribe := client.Subscribe(func(ev chatship.Event) {
				fmt.Printf("%d\t%s\t%s -> %s\t%s\n",
					ev.Offset, ev.Kind, ev.SenderID, ev.RecipientID, ev.Payload)
			})
			defer unsubscribe()

			if err := client.Connect(ctx); err != nil {
				return err
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			// Persist the cursor periodically and once more on shutdown.
			saveCursor := func() {
				state := fs.CursorState{Scope: scope.Key(), LastOffset: client.Offset()}
				if err := cursors.Save(ctx, state); err != nil {
					log.Warn().Err(err).Msg("save cursor")
				}
			}
			ticker := time.NewTicker(5 * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-sigCh:
					log.Info().Msg("received signal, stopping...")
					client.Disconnect()
					saveCursor()
					return nil
				case err := <-errs.ch:
					saveCursor()
					return fmt.Errorf("stream: %w", err)
				case <-ticker.C:
					saveCursor()
				}
			}
		},
	}
	cmd.Flags().Uint64Var(&cfg.StartOffset, "start-offset", cfg.StartOffset, "offset to start from (default: persisted cursor)")
	return cmd
}

func sendCmd(cfg *cliconfig.Config, cfgPath *string) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Append one event to the stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, cfg, *cfgPath); err != nil {
				return err
			}
			if cfg.PeerID == "" {
				return fmt.Errorf("peer-id is required for send")
			}
			k := domain.EventKind(kind)
			if !k.Valid() {
				return fmt.Errorf("unknown event kind %q", kind)
			}
			log := cliconfig.Logger()
			logger := logAdapter.NewZerologAdapterWithLogger(log)

			client, err := buildClient(*cfg, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			receipt, err := client.Send(cmd.Context(), cfg.PeerID, []byte(args[0]), k)
			if err != nil {
				return err
			}
			fmt.Printf("sent: id=%s offset=%d\n", receipt.ID, receipt.Offset)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(domain.KindText), "event kind")
	return cmd
}

func uploadCmd(cfg *cliconfig.Config, cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload [file]",
		Short: "Upload a file, resuming any interrupted transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, cfg, *cfgPath); err != nil {
				return err
			}
			log := cliconfig.Logger()
			logger := logAdapter.NewZerologAdapterWithLogger(log)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			client, err := buildClient(*cfg, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			// Rate changes in the config file take effect mid-transfer.
			cfgFile := *cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}
			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				watcher := cliconfig.NewWatcher(cfgFile, logger, func(fc cliconfig.FileConfig) {
					if fc.UploadRateBps > 0 {
						client.SetUploadRate(fc.UploadRateBps)
					}
				})
				go watcher.Run(ctx)
			}

			done := make(chan error, 1)
			session, err := client.Upload(ctx, args[0], nil, chatship.UploadCallbacks{
				OnProgress: func(percent float64, uploaded, total int64) {
					fmt.Fprintf(os.Stderr, "\r%6.2f%%  %d/%d bytes", percent, uploaded, total)
				},
				OnSuccess: func(sessionID, location string) {
					fmt.Fprintln(os.Stderr)
					fmt.Printf("uploaded: session=%s location=%s\n", sessionID, location)
					done <- nil
				},
				OnError: func(err error) {
					fmt.Fprintln(os.Stderr)
					done <- err
				},
			})
			if err != nil {
				return err
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case <-sigCh:
				log.Info().Msg("received signal, aborting upload...")
				if err := session.Abort(); err != nil {
					return err
				}
				return nil
			case err := <-done:
				return err
			}
		},
	}
	cmd.Flags().IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "chunk size in bytes")
	cmd.Flags().IntVar(&cfg.ChunkRetries, "chunk-retries", cfg.ChunkRetries, "retries per chunk before failing")
	cmd.Flags().IntVar(&cfg.UploadRateBps, "upload-rate", cfg.UploadRateBps, "upload bandwidth cap in bytes/sec (0 = unlimited)")
	return cmd
}
