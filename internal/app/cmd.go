package app

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hitoshi/salesdigest/internal/model"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandWorker はスケジューラとopsサーバーを常駐させる。引数なしの場合の既定。
	CommandWorker Command = "worker"
	// CommandRun はダイジェストバッチを1回だけ実行する。
	CommandRun Command = "run"
	// CommandPreview は1ユーザー分のダイジェストを配信せずに表示する。
	CommandPreview Command = "preview"
	// CommandMigrate はデータベースマイグレーションを実行する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行する。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// NewRootCommand はsalesdigestのcobraコマンドツリーを生成する。
// ログはw、run/previewの結果JSONはoutに書き出す。
func NewRootCommand(w, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "salesdigest",
		Short: "Personalized news digest batch for sales teams",
		Long: `salesdigest selects already-scored news articles for each user, removes
articles sent within the lookback window, and hands the capped digest to the
delivery service. Without a subcommand it starts the scheduled worker.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkerCommand(w)
		},
	}
	root.SetOut(out)
	root.SetErr(w)

	root.AddCommand(
		newWorkerCommand(w),
		newRunCommand(w, out),
		newPreviewCommand(w, out),
		newMigrateCommand(w),
		newHealthcheckCommand(),
	)
	return root
}

func newWorkerCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandWorker),
		Short: "Run the digest scheduler, ledger cleanup and ops server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkerCommand(w)
		},
	}
}

func runWorkerCommand(w io.Writer) error {
	cfg, log, err := Init(w)
	if err != nil {
		return err
	}
	return runWorker(cfg, log)
}

func newRunCommand(w, out io.Writer) *cobra.Command {
	var opts model.RunOptions

	cmd := &cobra.Command{
		Use:   string(CommandRun),
		Short: "Run one digest batch now and print the summary as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := Init(w)
			if err != nil {
				return err
			}
			return runOnce(cfg, log, out, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.TestMode, "test", false, "skip delivery and ledger writes")
	cmd.Flags().StringVar(&opts.SpecificUserID, "user", "", "process only this user ID")
	return cmd
}

func newPreviewCommand(w, out io.Writer) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   string(CommandPreview),
		Short: "Print the digest one user would receive, without sending it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := Init(w)
			if err != nil {
				return err
			}
			return runPreview(cfg, log, out, userID)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user ID to preview")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newMigrateCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandMigrate),
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := Init(w)
			if err != nil {
				return err
			}
			return runMigrate(cfg, log)
		},
	}
}

// healthcheck は軽量サブコマンドのため、フル初期化をスキップする。
func newHealthcheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandHealthcheck),
		Short: "Probe the local ops server /health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			port := os.Getenv("SERVER_PORT")
			if port == "" {
				port = "8080"
			}
			return runHealthcheck(port)
		},
	}
}
