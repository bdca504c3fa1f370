package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jacktea/gitblobts/pkg/codec"
	"github.com/jacktea/gitblobts/pkg/gitsync"
	"github.com/jacktea/gitblobts/pkg/index"
	"github.com/jacktea/gitblobts/pkg/store"
	"github.com/jacktea/gitblobts/pkg/timeparse"
)

type app struct {
	ctx   context.Context
	store *store.Store
}

func (a *app) ensureStore() error {
	if a.store != nil {
		return nil
	}
	cfg, err := buildStoreConfig()
	if err != nil {
		return err
	}
	s, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.ctx = context.Background()
	a.store = s
	return nil
}

func buildStoreConfig() (store.Config, error) {
	compression, err := codec.ParseCompression(viper.GetString("compression"))
	if err != nil {
		return store.Config{}, err
	}

	var key []byte
	if keyFile := viper.GetString("key-file"); keyFile != "" {
		raw, err := os.ReadFile(keyFile)
		if err != nil {
			return store.Config{}, fmt.Errorf("read key file: %w", err)
		}
		key, err = hex.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil || len(key) != codec.KeySize {
			return store.Config{}, fmt.Errorf("key file must hold %d bytes of hex", codec.KeySize)
		}
	}

	policy := index.FailFast
	switch viper.GetString("decode-errors") {
	case "", "fail":
		policy = index.FailFast
	case "skip":
		policy = index.SkipFailed
	default:
		return store.Config{}, fmt.Errorf("decode-errors must be fail or skip, got %q", viper.GetString("decode-errors"))
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if viper.GetBool("verbose") {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	return store.Config{
		Path:         viper.GetString("repo"),
		Compression:  compression,
		Key:          key,
		DecodeErrors: policy,
		CacheEntries: viper.GetInt("cache-entries"),
		CacheTTL:     viper.GetDuration("cache-ttl"),
		Remote:       viper.GetString("remote"),
		AuthorName:   viper.GetString("author-name"),
		AuthorEmail:  viper.GetString("author-email"),
		Logger:       logger,
	}, nil
}

var (
	cfgFile     string
	application = &app{}
	rootCmd     = &cobra.Command{
		Use:           "gitblobts",
		Short:         "time-indexed blob storage in a git repository",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	initRootFlags()
	initCommands()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("gitblobts")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "gitblobts"))
		}
	}
	viper.SetEnvPrefix("GITBLOBTS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			fmt.Fprintf(os.Stderr, "read config: %v\n", err)
		}
	}
}

func bindConfig(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func initRootFlags() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (TOML or YAML)")

	rootCmd.PersistentFlags().String("repo", ".", "path to the cloned repository holding the blobs")
	rootCmd.PersistentFlags().String("compression", "none", "payload compression: none|lz4|zstd")
	rootCmd.PersistentFlags().String("key-file", "", "file holding a hex-encoded 32-byte encryption key")
	rootCmd.PersistentFlags().String("decode-errors", "fail", "on per-blob decode failure: fail|skip")
	rootCmd.PersistentFlags().Int("cache-entries", 0, "decoded payloads kept in memory (0 disables)")
	rootCmd.PersistentFlags().Duration("cache-ttl", time.Minute, "time to keep cached payloads")
	rootCmd.PersistentFlags().String("remote", "origin", "remote to pull from and push to")
	rootCmd.PersistentFlags().String("author-name", "gitblobts", "commit author name")
	rootCmd.PersistentFlags().String("author-email", "gitblobts@localhost", "commit author email")
	rootCmd.PersistentFlags().Bool("verbose", false, "log operations to stderr")

	bindConfig("repo", rootCmd.PersistentFlags().Lookup("repo"))
	bindConfig("compression", rootCmd.PersistentFlags().Lookup("compression"))
	bindConfig("key-file", rootCmd.PersistentFlags().Lookup("key-file"))
	bindConfig("decode-errors", rootCmd.PersistentFlags().Lookup("decode-errors"))
	bindConfig("cache-entries", rootCmd.PersistentFlags().Lookup("cache-entries"))
	bindConfig("cache-ttl", rootCmd.PersistentFlags().Lookup("cache-ttl"))
	bindConfig("remote", rootCmd.PersistentFlags().Lookup("remote"))
	bindConfig("author-name", rootCmd.PersistentFlags().Lookup("author-name"))
	bindConfig("author-email", rootCmd.PersistentFlags().Lookup("author-email"))
	bindConfig("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initCommands() {
	rootCmd.AddCommand(
		newKeygenCmd(),
		newPutCmd(),
		newGetCmd(),
		newSyncCmd(),
		newCheckCmd(),
	)
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new encryption key",
		Long: "Generate a new random encryption key and print it as hex.\n" +
			"Store it safely: losing it makes encrypted blobs unreadable.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := codec.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(key))
			return nil
		},
	}
}

func newPutCmd() *cobra.Command {
	var timeStr string
	cmd := &cobra.Command{
		Use:   "put [file...]",
		Short: "Store blobs and push; reads stdin when no files are given",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := application.ensureStore(); err != nil {
				return err
			}
			at := time.Time{}
			if timeStr != "" {
				parsed, err := timeparse.Parse(timeStr, time.Now().UTC())
				if err != nil {
					return err
				}
				at = parsed
			}

			if len(args) == 0 {
				payload, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				timeUTC, err := application.store.Put(application.ctx, payload, store.PutOptions{Time: at})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), timeUTC)
				return nil
			}

			items := make([]store.Item, len(args))
			for i, name := range args {
				payload, err := os.ReadFile(name)
				if err != nil {
					return err
				}
				items[i] = store.Item{Payload: payload, Time: at}
			}
			times, err := application.store.PutBatch(application.ctx, items)
			if err != nil {
				return err
			}
			for _, timeUTC := range times {
				fmt.Fprintln(cmd.OutOrStdout(), timeUTC)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&timeStr, "time", "", `blob instant ("now", "1 week ago", RFC 3339); default now`)
	return cmd
}

func newGetCmd() *cobra.Command {
	var pull bool
	var outDir string
	cmd := &cobra.Command{
		Use:   "get [start] [end]",
		Short: "Retrieve blobs in a time range",
		Long: "Retrieve blobs whose instants fall between start and end, inclusive.\n" +
			"Both bounds accept the same phrases as put --time. Omitting them\n" +
			"selects all blobs. Giving start after end returns blobs newest first.",
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := application.ensureStore(); err != nil {
				return err
			}
			r := store.AllTime()
			now := time.Now().UTC()
			if len(args) >= 1 {
				start, err := timeparse.Parse(args[0], now)
				if err != nil {
					return err
				}
				r.Start = start.UnixNano()
			}
			if len(args) == 2 {
				end, err := timeparse.Parse(args[1], now)
				if err != nil {
					return err
				}
				r.End = end.UnixNano()
			}

			it, err := application.store.Get(application.ctx, r, store.GetOptions{Pull: pull})
			if err != nil {
				return err
			}
			count := 0
			for it.Next() {
				blob := it.Blob()
				if outDir != "" {
					dest := filepath.Join(outDir, blob.Name)
					if err := os.WriteFile(dest, blob.Payload, 0o644); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", blob.TimeUTC, dest)
				} else {
					fmt.Fprintf(os.Stderr, "%d\t%s\n", blob.TimeUTC, blob.Name)
					if _, err := cmd.OutOrStdout().Write(blob.Payload); err != nil {
						return err
					}
				}
				count++
			}
			if err := it.Err(); err != nil {
				return err
			}
			for _, skip := range it.Skipped() {
				fmt.Fprintf(os.Stderr, "skipped %s: %v\n", skip.Entry.Name, skip.Err)
			}
			fmt.Fprintf(os.Stderr, "%d blob(s)\n", count)
			return nil
		},
	}
	cmd.Flags().BoolVar(&pull, "pull", false, "pull from the remote before reading")
	cmd.Flags().StringVar(&outDir, "out", "", "write each payload to this directory instead of stdout")
	return cmd
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Retry the commit-and-push step alone",
		Long: "Commit and push whatever is staged locally. Recovers a put whose\n" +
			"files were written but whose push failed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := application.ensureStore(); err != nil {
				return err
			}
			return application.store.Sync(application.ctx)
		},
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the repository is usable as a blob store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := gitsync.Open(viper.GetString("repo"), gitsync.Options{
				Remote: viper.GetString("remote"),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s\n", repo.Root())
			return nil
		},
	}
}
