package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/hitoshi/authbridge/internal/app"
)

func main() {
	// ローカル開発用の.envを読み込む。本番では環境変数を直接設定するため、
	// ファイルが存在しない場合は無視する。
	_ = godotenv.Load()

	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("application exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
